package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is the tag that selects one of the two supported ledgers.
type Currency string

const (
	ICP   Currency = "ICP"
	CkBTC Currency = "ckBTC"
)

// CurrencyInfo describes a supported currency. Precision is the number of
// decimal places between the display unit and the smallest unit the ledger stores.
type CurrencyInfo struct {
	Tag       Currency `json:"tag"`
	Name      string   `json:"name"`
	Precision int32    `json:"precision"`
}

// DefaultCurrencies returns currency A (ICP) and currency B (ckBTC).
func DefaultCurrencies() []CurrencyInfo {
	return []CurrencyInfo{
		{Tag: ICP, Name: "Internet Computer", Precision: 8},
		{Tag: CkBTC, Name: "Chain-key Bitcoin", Precision: 8},
	}
}

// Matches reports whether tag names this currency, ignoring case and surrounding space.
func (c CurrencyInfo) Matches(tag string) bool {
	return strings.EqualFold(strings.TrimSpace(tag), string(c.Tag))
}

// ToMinor converts a display amount into smallest units. Amounts finer than
// the currency precision are rejected rather than rounded.
func (c CurrencyInfo) ToMinor(amount decimal.Decimal) (int64, error) {
	shifted := amount.Shift(c.Precision)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("%s supports at most %d decimal places", c.Tag, c.Precision)
	}
	if !shifted.IsPositive() {
		return 0, fmt.Errorf("amount must be positive")
	}
	if shifted.GreaterThan(decimal.NewFromInt(maxMinorUnits)) {
		return 0, fmt.Errorf("amount is too large")
	}
	return shifted.IntPart(), nil
}

// FromMinor converts smallest units into a display amount.
func (c CurrencyInfo) FromMinor(amount int64) decimal.Decimal {
	return decimal.New(amount, -c.Precision)
}

const maxMinorUnits = int64(1<<63 - 1)
