package rwa

import (
	"fmt"

	"github.com/jerry-enebeli/rwa/internal/apierror"
	"github.com/jerry-enebeli/rwa/model"
)

// BalanceGuard is the pre-flight sufficiency check. It only reads the view
// and is advisory: the ledger may still refuse the debit.
type BalanceGuard struct{}

// Sufficient reports whether the last known balance covers amount. known is
// false when the view holds no balance for currency.
func (BalanceGuard) Sufficient(view *model.View, currency model.Currency, amount int64) (sufficient, known bool) {
	if view == nil {
		return false, false
	}
	balance, ok := view.Balances.Get(currency)
	if !ok {
		return false, false
	}
	return balance >= amount, true
}

// Check fails with INSUFFICIENT_FUNDS when the known balance is below
// amount. An unknown balance passes and is left to the ledger.
func (g BalanceGuard) Check(view *model.View, currency model.Currency, amount int64) error {
	sufficient, known := g.Sufficient(view, currency, amount)
	if !known || sufficient {
		return nil
	}
	balance, _ := view.Balances.Get(currency)
	return apierror.NewAPIError(apierror.ErrInsufficientFunds,
		fmt.Sprintf("insufficient %s balance: have %d, need %d", currency, balance, amount),
		map[string]interface{}{
			"currency": currency,
			"balance":  balance,
			"required": amount,
		})
}
