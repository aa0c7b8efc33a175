package rwa

import (
	"context"
	"fmt"

	"github.com/jerry-enebeli/rwa/backend"
	"github.com/jerry-enebeli/rwa/internal/apierror"
	"github.com/jerry-enebeli/rwa/model"
)

// LedgerOps is the ledger call set bound to one currency, so saga steps are
// written once for both currencies.
type LedgerOps struct {
	Currency model.CurrencyInfo
	Debit    func(ctx context.Context, identity string, amount int64, memo model.TransactionType) error
	Credit   func(ctx context.Context, identity string, amount int64, memo model.TransactionType) error
	Balance  func(ctx context.Context, identity string) (int64, error)
	Transfer func(ctx context.Context, from, to string, amount int64) error
}

// CurrencyRouter selects the ledger calls for a currency tag.
type CurrencyRouter struct {
	ledger     backend.AccountLedger
	currencies []model.CurrencyInfo
}

func NewCurrencyRouter(ledger backend.AccountLedger, currencies []model.CurrencyInfo) *CurrencyRouter {
	return &CurrencyRouter{ledger: ledger, currencies: currencies}
}

func (r *CurrencyRouter) Currencies() []model.CurrencyInfo {
	return r.currencies
}

// Lookup resolves tag, ignoring case, to a configured currency.
func (r *CurrencyRouter) Lookup(tag string) (model.CurrencyInfo, error) {
	for _, c := range r.currencies {
		if c.Matches(tag) {
			return c, nil
		}
	}
	return model.CurrencyInfo{}, apierror.NewAPIError(apierror.ErrUnsupportedCurrency,
		fmt.Sprintf("currency %q is not supported", tag), map[string]interface{}{"supported": r.tags()})
}

// Select returns the ledger calls for tag or UNSUPPORTED_CURRENCY.
func (r *CurrencyRouter) Select(tag string) (LedgerOps, error) {
	info, err := r.Lookup(tag)
	if err != nil {
		return LedgerOps{}, err
	}
	cur := info.Tag
	return LedgerOps{
		Currency: info,
		Debit: func(ctx context.Context, identity string, amount int64, memo model.TransactionType) error {
			return r.ledger.Debit(ctx, identity, cur, amount, memo)
		},
		Credit: func(ctx context.Context, identity string, amount int64, memo model.TransactionType) error {
			return r.ledger.Credit(ctx, identity, cur, amount, memo)
		},
		Balance: func(ctx context.Context, identity string) (int64, error) {
			return r.ledger.GetBalance(ctx, identity, cur)
		},
		Transfer: func(ctx context.Context, from, to string, amount int64) error {
			return r.ledger.Transfer(ctx, from, to, cur, amount)
		},
	}, nil
}

func (r *CurrencyRouter) tags() []model.Currency {
	tags := make([]model.Currency, 0, len(r.currencies))
	for _, c := range r.currencies {
		tags = append(tags, c.Tag)
	}
	return tags
}
