package rwa

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jerry-enebeli/rwa/backend"
	"github.com/jerry-enebeli/rwa/internal/apierror"
	"github.com/jerry-enebeli/rwa/model"
)

const (
	ActionDeposit       = "deposit"
	ActionCreateAndList = "create_and_list"
	ActionBuyToken      = "buy_token"
	ActionTransfer      = "transfer"
	ActionBorrow        = "borrow"
	ActionRepayLoan     = "repay_loan"
	ActionReset         = "reset"
)

// planFunc validates an action against the session and returns its saga.
// An error here stops the action before anything is mutated.
type planFunc func(ctx context.Context, session *Session, result *model.ActionResult) ([]Step, error)

type executeOptions struct {
	clearSession bool
}

// execute runs one action for identity: it takes the identity's lock, plans
// the saga, runs it, refreshes the view and stores the session.
//
// Once the saga has run the result is returned even when err is set, so
// callers always see the refreshed view. A refresh failure does not fail a
// settled action; it is reported as the result's Warning.
func (p *Platform) execute(ctx context.Context, action, identity string, opts executeOptions, plan planFunc) (*model.ActionResult, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "identity is required", nil)
	}

	reference := model.GenerateUUIDWithSuffix("act")
	ctx, span := p.tracer.Start(ctx, "rwa."+action, trace.WithAttributes(
		attribute.String("rwa.action", action),
		attribute.String("rwa.identity", identity),
		attribute.String("rwa.reference", reference),
	))
	defer span.End()

	entry := logrus.WithFields(logrus.Fields{"action": action, "identity": identity, "reference": reference})

	release, err := p.gate.acquire(ctx, identity)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer release()

	session, err := p.sessions.Load(ctx, identity)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := &model.ActionResult{Action: action, Identity: identity, Reference: reference}
	steps, err := plan(ctx, session, result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		entry.WithError(err).Info("action refused before settlement")
		p.notifyOutcome(ctx, action, identity, reference, nil, err)
		return nil, err
	}

	runErr := p.coordinator.Run(ctx, action, steps...)

	view, refreshErr := p.refresher.Refresh(context.WithoutCancel(ctx), identity, session.View)
	result.View = view
	if refreshErr != nil {
		warning := apierror.As(refreshErr, apierror.ErrStaleView)
		result.Warning = &warning
	}

	if opts.clearSession && runErr == nil {
		err = p.sessions.Clear(context.WithoutCancel(ctx), identity)
	} else {
		session.View = view
		session.LastAction = action
		session.LastReference = reference
		err = p.sessions.Save(context.WithoutCancel(ctx), session)
	}
	if err != nil {
		entry.WithError(err).Error("failed to store session")
	}

	p.notifyOutcome(ctx, action, identity, reference, result, runErr)

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		entry.WithError(runErr).Warn("action failed")
		return result, runErr
	}
	entry.Info("action settled")
	return result, nil
}

// ensureBalance refreshes the session view unless it is recent, complete and
// holds a balance for currency.
func (p *Platform) ensureBalance(ctx context.Context, session *Session, currency model.Currency) {
	if session.IsFresh(p.conf.Orchestrator.StaleView()) {
		if _, ok := session.View.Balances.Get(currency); ok {
			return
		}
	}
	view, err := p.refresher.Refresh(ctx, session.Identity, session.View)
	if err != nil {
		logrus.WithError(err).WithField("identity", session.Identity).Debug("pre-flight refresh incomplete")
	}
	session.View = view
}

// guardedDebit checks the balance and returns the debit step paired with
// its credit-back compensation.
func (p *Platform) guardedDebit(ctx context.Context, session *Session, ops LedgerOps, amount int64) (Step, error) {
	p.ensureBalance(ctx, session, ops.Currency.Tag)
	if err := p.guard.Check(session.View, ops.Currency.Tag, amount); err != nil {
		return Step{}, err
	}
	identity := session.Identity
	return Step{
		Name: "debit",
		Action: func(ctx context.Context) error {
			return ops.Debit(ctx, identity, amount, "")
		},
		Compensate: func(ctx context.Context) error {
			return ops.Credit(ctx, identity, amount, model.TransactionRefund)
		},
	}, nil
}

func validateAmount(field string, amount int64) error {
	if amount <= 0 {
		return apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("%s must be a positive integer", field), nil)
	}
	return nil
}

// Deposit credits amount of currency to identity.
func (p *Platform) Deposit(ctx context.Context, identity, currency string, amount int64) (*model.ActionResult, error) {
	return p.execute(ctx, ActionDeposit, identity, executeOptions{}, func(ctx context.Context, session *Session, result *model.ActionResult) ([]Step, error) {
		if err := validateAmount("amount", amount); err != nil {
			return nil, err
		}
		ops, err := p.router.Select(currency)
		if err != nil {
			return nil, err
		}
		return []Step{{
			Name: "credit",
			Action: func(ctx context.Context) error {
				return ops.Credit(ctx, session.Identity, amount, model.TransactionDeposit)
			},
		}}, nil
	})
}

// CreateAndListToken tokenizes details for identity and lists the token at
// price. Nothing is debited.
func (p *Platform) CreateAndListToken(ctx context.Context, identity, details string, price int64, currency string) (*model.ActionResult, error) {
	return p.execute(ctx, ActionCreateAndList, identity, executeOptions{}, func(ctx context.Context, session *Session, result *model.ActionResult) ([]Step, error) {
		if strings.TrimSpace(details) == "" {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "asset details are required", nil)
		}
		if err := validateAmount("price", price); err != nil {
			return nil, err
		}
		info, err := p.router.Lookup(currency)
		if err != nil {
			return nil, err
		}
		return []Step{{
			Name: "create_and_list",
			Action: func(ctx context.Context) error {
				listing, err := p.backends.Marketplace.CreateAndList(ctx, session.Identity, details, price, info.Tag)
				if err != nil {
					return err
				}
				result.ListingID = listing.ID
				result.TokenID = listing.TokenID
				return nil
			},
		}}, nil
	})
}

// BuyToken debits the listing price from identity, then buys the token. A
// failed buy credits the price back.
//
// price and currency are optional; when set they must match the listing.
func (p *Platform) BuyToken(ctx context.Context, identity, tokenID string, price int64, currency string) (*model.ActionResult, error) {
	return p.execute(ctx, ActionBuyToken, identity, executeOptions{}, func(ctx context.Context, session *Session, result *model.ActionResult) ([]Step, error) {
		if strings.TrimSpace(tokenID) == "" {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "token_id is required", nil)
		}

		listing, err := p.resolveListing(ctx, tokenID)
		if err != nil {
			return nil, err
		}
		if listing.Seller == session.Identity {
			return nil, apierror.NewAPIError(apierror.ErrActionRejected, "cannot buy your own token", nil)
		}
		if price != 0 && price != listing.Price {
			return nil, apierror.NewAPIError(apierror.ErrActionRejected,
				fmt.Sprintf("price %d does not match listing price %d", price, listing.Price),
				map[string]interface{}{"listing_id": listing.ID, "price": listing.Price})
		}
		ops, err := p.router.Select(string(listing.Currency))
		if err != nil {
			return nil, err
		}
		if currency != "" && !ops.Currency.Matches(currency) {
			return nil, apierror.NewAPIError(apierror.ErrActionRejected,
				fmt.Sprintf("token %s is listed in %s, not %s", tokenID, listing.Currency, currency), nil)
		}

		debit, err := p.guardedDebit(ctx, session, ops, listing.Price)
		if err != nil {
			return nil, err
		}
		result.ListingID = listing.ID
		return []Step{debit, {
			Name: "buy",
			Action: func(ctx context.Context) error {
				bought, err := p.backends.Marketplace.Buy(ctx, session.Identity, tokenID, listing.Price, ops.Currency.Tag)
				if err != nil {
					return err
				}
				result.TokenID = bought
				return nil
			},
			Verify: func(ctx context.Context) (bool, error) {
				token, err := p.findToken(ctx, tokenID)
				if err != nil {
					return false, err
				}
				if token.Owner != session.Identity {
					return false, nil
				}
				result.TokenID = token.ID
				return true, nil
			},
		}}, nil
	})
}

func (p *Platform) findToken(ctx context.Context, tokenID string) (model.Token, error) {
	tokens, err := backend.RetryRead(ctx, p.conf.Orchestrator.ReadRetryWindow(), p.backends.Marketplace.ListTokens)
	if err != nil {
		return model.Token{}, err
	}
	for _, token := range tokens {
		if token.ID == tokenID {
			return token, nil
		}
	}
	return model.Token{}, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("token %s not found", tokenID), nil)
}

func (p *Platform) listLoans(ctx context.Context) ([]model.Loan, error) {
	return backend.RetryRead(ctx, p.conf.Orchestrator.ReadRetryWindow(), p.backends.Loans.ListLoans)
}

func (p *Platform) resolveListing(ctx context.Context, tokenID string) (model.Listing, error) {
	listings, err := backend.RetryRead(ctx, p.conf.Orchestrator.ReadRetryWindow(), p.backends.Marketplace.ListAll)
	if err != nil {
		return model.Listing{}, err
	}
	view := model.View{Listings: listings}
	listing, ok := view.ListingForToken(tokenID)
	if !ok {
		return model.Listing{}, apierror.NewAPIError(apierror.ErrActionRejected,
			fmt.Sprintf("token %s is not listed for sale", tokenID), nil)
	}
	return listing, nil
}

// Transfer moves amount of currency from identity to another identity.
func (p *Platform) Transfer(ctx context.Context, identity, to, currency string, amount int64) (*model.ActionResult, error) {
	return p.execute(ctx, ActionTransfer, identity, executeOptions{}, func(ctx context.Context, session *Session, result *model.ActionResult) ([]Step, error) {
		to = strings.TrimSpace(to)
		if to == "" {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "recipient is required", nil)
		}
		if to == session.Identity {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "cannot transfer to yourself", nil)
		}
		if err := validateAmount("amount", amount); err != nil {
			return nil, err
		}
		ops, err := p.router.Select(currency)
		if err != nil {
			return nil, err
		}
		p.ensureBalance(ctx, session, ops.Currency.Tag)
		if err := p.guard.Check(session.View, ops.Currency.Tag, amount); err != nil {
			return nil, err
		}
		return []Step{{
			Name: "transfer",
			Action: func(ctx context.Context) error {
				return ops.Transfer(ctx, session.Identity, to, amount)
			},
		}}, nil
	})
}

// Borrow debits amount from identity, then originates a loan against
// tokenID. A refused origination credits the amount back. A token that
// already backs an open loan is refused before anything is debited.
func (p *Platform) Borrow(ctx context.Context, identity, tokenID string, amount int64, currency string) (*model.ActionResult, error) {
	return p.execute(ctx, ActionBorrow, identity, executeOptions{}, func(ctx context.Context, session *Session, result *model.ActionResult) ([]Step, error) {
		if strings.TrimSpace(tokenID) == "" {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "token_id is required", nil)
		}
		if err := validateAmount("amount", amount); err != nil {
			return nil, err
		}
		ops, err := p.router.Select(currency)
		if err != nil {
			return nil, err
		}
		loans, err := p.listLoans(ctx)
		if err != nil {
			return nil, err
		}
		for _, l := range loans {
			if l.TokenID == tokenID && !l.Repaid {
				return nil, apierror.NewAPIError(apierror.ErrActionRejected,
					fmt.Sprintf("token %s already backs an open loan", tokenID), map[string]interface{}{"loan_id": l.ID})
			}
		}
		debit, err := p.guardedDebit(ctx, session, ops, amount)
		if err != nil {
			return nil, err
		}
		result.TokenID = tokenID
		return []Step{debit, {
			Name: "originate",
			Action: func(ctx context.Context) error {
				msg, err := p.backends.Loans.Originate(ctx, session.Identity, tokenID, amount, ops.Currency.Tag)
				if err != nil {
					return err
				}
				result.Message = msg
				return nil
			},
			// the token had no open loan when planned, so any open loan
			// now is the one this step originated
			Verify: func(ctx context.Context) (bool, error) {
				loans, err := p.listLoans(ctx)
				if err != nil {
					return false, err
				}
				view := model.View{Loans: loans}
				_, ok := view.OpenLoan(session.Identity, tokenID)
				return ok, nil
			},
		}}, nil
	})
}

// RepayLoan debits the principal of identity's open loan on tokenID in the
// loan's currency, then repays it. A refused repayment credits it back.
func (p *Platform) RepayLoan(ctx context.Context, identity, tokenID string) (*model.ActionResult, error) {
	return p.execute(ctx, ActionRepayLoan, identity, executeOptions{}, func(ctx context.Context, session *Session, result *model.ActionResult) ([]Step, error) {
		if strings.TrimSpace(tokenID) == "" {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "token_id is required", nil)
		}
		loans, err := p.listLoans(ctx)
		if err != nil {
			return nil, err
		}
		view := model.View{Loans: loans}
		loan, ok := view.OpenLoan(session.Identity, tokenID)
		if !ok {
			return nil, apierror.NewAPIError(apierror.ErrActionRejected,
				fmt.Sprintf("no open loan against token %s", tokenID), nil)
		}
		ops, err := p.router.Select(string(loan.Currency))
		if err != nil {
			return nil, err
		}
		debit, err := p.guardedDebit(ctx, session, ops, loan.Amount)
		if err != nil {
			return nil, err
		}
		result.TokenID = tokenID
		return []Step{debit, {
			Name: "repay",
			Action: func(ctx context.Context) error {
				msg, err := p.backends.Loans.Repay(ctx, session.Identity, tokenID)
				if err != nil {
					return err
				}
				result.Message = msg
				return nil
			},
			Verify: func(ctx context.Context) (bool, error) {
				loans, err := p.listLoans(ctx)
				if err != nil {
					return false, err
				}
				for _, l := range loans {
					if l.ID == loan.ID {
						return l.Repaid, nil
					}
				}
				return false, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("loan %s not found", loan.ID), nil)
			},
		}}, nil
	})
}

// Reset zeroes identity's balances, drops its history, rewinds the id
// counters and clears its session. Running it twice leaves the same state.
func (p *Platform) Reset(ctx context.Context, identity string) (*model.ActionResult, error) {
	return p.execute(ctx, ActionReset, identity, executeOptions{clearSession: true}, func(ctx context.Context, session *Session, result *model.ActionResult) ([]Step, error) {
		return []Step{
			{Name: "reset_balances", Action: func(ctx context.Context) error {
				return p.backends.Ledger.Reset(ctx, session.Identity)
			}},
			{Name: "reset_history", Action: func(ctx context.Context) error {
				return p.backends.History.ResetHistory(ctx, session.Identity)
			}},
			{Name: "reset_transaction_ids", Action: p.backends.History.ResetHistoryIDs},
			{Name: "reset_marketplace_ids", Action: p.backends.Marketplace.ResetIDs},
		}, nil
	})
}

// View returns the session's last view of identity, refreshing it when the
// session has none.
func (p *Platform) View(ctx context.Context, identity string) (*model.View, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "identity is required", nil)
	}
	session, err := p.sessions.Load(ctx, identity)
	if err != nil {
		return nil, err
	}
	if session.View != nil {
		return session.View, nil
	}
	return p.RefreshView(ctx, identity)
}

// RefreshView reads identity's view from the services. The session is only
// updated when no action holds the identity; the fresh view is returned
// either way. An incomplete view comes back with a STALE_VIEW error.
func (p *Platform) RefreshView(ctx context.Context, identity string) (*model.View, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "identity is required", nil)
	}
	session, err := p.sessions.Load(ctx, identity)
	if err != nil {
		return nil, err
	}

	view, refreshErr := p.refresher.Refresh(ctx, identity, session.View)

	if release, ok := p.gate.tryAcquire(ctx, identity); ok {
		defer release()
		p.storeView(ctx, identity, view)
	}
	return view, refreshErr
}

// storeView replaces the view of the identity's current session. The caller
// holds the identity's lock.
func (p *Platform) storeView(ctx context.Context, identity string, view *model.View) {
	session, err := p.sessions.Load(ctx, identity)
	if err == nil {
		session.View = view
		err = p.sessions.Save(ctx, session)
	}
	if err != nil {
		logrus.WithError(err).WithField("identity", identity).Error("failed to store session")
	}
}
