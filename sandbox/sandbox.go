package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jerry-enebeli/rwa/backend"
	"github.com/jerry-enebeli/rwa/internal/apierror"
	"github.com/jerry-enebeli/rwa/model"
)

// Op names a sandbox operation for fault injection.
type Op string

const (
	OpGetBalance    Op = "ledger.get_balance"
	OpDebit         Op = "ledger.debit"
	OpCredit        Op = "ledger.credit"
	OpTransfer      Op = "ledger.transfer"
	OpResetAccount  Op = "ledger.reset"
	OpCreateAndList Op = "marketplace.create_and_list"
	OpBuy           Op = "marketplace.buy"
	OpListAll       Op = "marketplace.list"
	OpListTokens    Op = "marketplace.tokens"
	OpResetIDs      Op = "marketplace.reset_ids"
	OpOriginate     Op = "loans.originate"
	OpRepay         Op = "loans.repay"
	OpListLoans     Op = "loans.list"
	OpHistory       Op = "history.list"
	OpResetHistory  Op = "history.reset"
	OpResetTxIDs    Op = "history.reset_ids"
)

type fault struct {
	err   error
	times int // negative means every call
}

// Sandbox keeps the ledger, marketplace, loan book and history in memory.
// All four share one lock so each call is atomic, as the real services are
// for their own entities.
type Sandbox struct {
	mu         sync.Mutex
	currencies []model.CurrencyInfo
	now        func() time.Time

	balances map[string]model.Balances
	tokens   []*model.Token
	listings []*model.Listing
	loans    []*model.Loan
	history  []model.TransactionRecord

	tokenSeq int64
	txSeq    int64

	faults map[Op]*fault
}

func New(currencies []model.CurrencyInfo) *Sandbox {
	if len(currencies) == 0 {
		currencies = model.DefaultCurrencies()
	}
	return &Sandbox{
		currencies: currencies,
		now:        time.Now,
		balances:   make(map[string]model.Balances),
		faults:     make(map[Op]*fault),
	}
}

// Backends exposes the sandbox through the interfaces the platform consumes.
func (s *Sandbox) Backends() *backend.Backends {
	return &backend.Backends{
		Ledger:      &Ledger{s: s},
		Marketplace: &Marketplace{s: s},
		Loans:       &LoanBook{s: s},
		History:     &History{s: s},
	}
}

// InjectFault makes the next times calls of op fail with err. A negative
// times fails every call until ClearFaults.
func (s *Sandbox) InjectFault(op Op, err error, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = &fault{err: err, times: times}
}

func (s *Sandbox) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[Op]*fault)
}

// SetBalance seeds a balance directly, bypassing history.
func (s *Sandbox) SetBalance(identity string, currency model.Currency, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tag, err := s.currency(currency)
	if err != nil {
		return err
	}
	s.account(identity)[tag] = amount
	return nil
}

// enter is called with the lock held at the start of every operation.
func (s *Sandbox) enter(ctx context.Context, op Op) error {
	if err := ctx.Err(); err != nil {
		return apierror.Wrap(err, apierror.ErrTimeout, fmt.Sprintf("%s did not complete in time", op))
	}
	f, ok := s.faults[op]
	if !ok {
		return nil
	}
	if f.times > 0 {
		f.times--
		if f.times == 0 {
			delete(s.faults, op)
		}
	}
	return f.err
}

func (s *Sandbox) currency(tag model.Currency) (model.Currency, error) {
	for _, c := range s.currencies {
		if c.Matches(string(tag)) {
			return c.Tag, nil
		}
	}
	return "", apierror.NewAPIError(apierror.ErrUnsupportedCurrency, fmt.Sprintf("currency %s is not supported", tag), nil)
}

func (s *Sandbox) account(identity string) model.Balances {
	b, ok := s.balances[identity]
	if !ok {
		b = make(model.Balances)
		s.balances[identity] = b
	}
	return b
}

func (s *Sandbox) record(from, to string, amount int64, currency model.Currency, kind model.TransactionType) {
	s.txSeq++
	s.history = append(s.history, model.TransactionRecord{
		ID:        s.txSeq,
		From:      from,
		To:        to,
		Amount:    amount,
		Currency:  currency,
		Type:      kind,
		Timestamp: s.now().UTC(),
	})
}

func rejected(format string, args ...interface{}) error {
	return apierror.NewAPIError(apierror.ErrActionRejected, fmt.Sprintf(format, args...), nil)
}

func (s *Sandbox) findToken(id string) *model.Token {
	for _, t := range s.tokens {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (s *Sandbox) openListing(tokenID string) *model.Listing {
	for _, l := range s.listings {
		if l.TokenID == tokenID && !l.Sold {
			return l
		}
	}
	return nil
}

func (s *Sandbox) openLoan(tokenID string) *model.Loan {
	for _, l := range s.loans {
		if l.TokenID == tokenID && !l.Repaid {
			return l
		}
	}
	return nil
}
