package model

// Balances holds an identity's balance per currency in smallest units.
type Balances map[Currency]int64

// Get returns the balance for currency and whether it is known.
func (b Balances) Get(currency Currency) (int64, bool) {
	if b == nil {
		return 0, false
	}
	v, ok := b[currency]
	return v, ok
}
