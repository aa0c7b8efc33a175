package sandbox

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/jerry-enebeli/rwa/internal/apierror"
	"github.com/jerry-enebeli/rwa/model"
)

type Ledger struct {
	s *Sandbox
}

func (l *Ledger) GetBalance(ctx context.Context, identity string, currency model.Currency) (int64, error) {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpGetBalance); err != nil {
		return 0, err
	}
	tag, err := s.currency(currency)
	if err != nil {
		return 0, err
	}
	balance, _ := s.balances[identity].Get(tag)
	return balance, nil
}

func (l *Ledger) Debit(ctx context.Context, identity string, currency model.Currency, amount int64, memo model.TransactionType) error {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpDebit); err != nil {
		return err
	}
	tag, err := s.currency(currency)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return rejected("amount must be positive")
	}
	acct := s.account(identity)
	if acct[tag] < amount {
		return apierror.NewAPIError(apierror.ErrInsufficientFunds,
			fmt.Sprintf("insufficient %s balance: have %d, need %d", tag, acct[tag], amount), nil)
	}
	acct[tag] -= amount
	if memo != "" {
		s.record(identity, "", amount, tag, memo)
	}
	return nil
}

func (l *Ledger) Credit(ctx context.Context, identity string, currency model.Currency, amount int64, memo model.TransactionType) error {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpCredit); err != nil {
		return err
	}
	tag, err := s.currency(currency)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return rejected("amount must be positive")
	}
	acct := s.account(identity)
	if acct[tag] > math.MaxInt64-amount {
		return rejected("credit would overflow the %s balance", tag)
	}
	acct[tag] += amount
	if memo != "" {
		s.record("", identity, amount, tag, memo)
	}
	return nil
}

func (l *Ledger) Transfer(ctx context.Context, from, to string, currency model.Currency, amount int64) error {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpTransfer); err != nil {
		return err
	}
	tag, err := s.currency(currency)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return rejected("amount must be positive")
	}
	if to == "" || from == to {
		return rejected("transfer needs two distinct identities")
	}
	src, dst := s.account(from), s.account(to)
	if src[tag] < amount {
		return apierror.NewAPIError(apierror.ErrInsufficientFunds,
			fmt.Sprintf("insufficient %s balance: have %d, need %d", tag, src[tag], amount), nil)
	}
	if dst[tag] > math.MaxInt64-amount {
		return rejected("transfer would overflow the %s balance of %s", tag, to)
	}
	src[tag] -= amount
	dst[tag] += amount
	s.record(from, to, amount, tag, model.TransactionTransfer)
	return nil
}

// Reset zeroes both balances of identity.
func (l *Ledger) Reset(ctx context.Context, identity string) error {
	s := l.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpResetAccount); err != nil {
		return err
	}
	acct := s.account(identity)
	for _, c := range s.currencies {
		acct[c.Tag] = 0
	}
	return nil
}

type Marketplace struct {
	s *Sandbox
}

func (m *Marketplace) CreateAndList(ctx context.Context, owner, details string, price int64, currency model.Currency) (model.Listing, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpCreateAndList); err != nil {
		return model.Listing{}, err
	}
	tag, err := s.currency(currency)
	if err != nil {
		return model.Listing{}, err
	}
	if owner == "" {
		return model.Listing{}, rejected("owner is required")
	}
	if price <= 0 {
		return model.Listing{}, rejected("price must be positive")
	}

	s.tokenSeq++
	id := strconv.FormatInt(s.tokenSeq, 10)
	s.tokens = append(s.tokens, &model.Token{ID: id, Details: details, Owner: owner})
	listing := &model.Listing{
		ID:       "listing_" + id,
		TokenID:  id,
		Seller:   owner,
		Price:    price,
		Currency: tag,
	}
	s.listings = append(s.listings, listing)
	s.record(owner, "", price, tag, model.TransactionListing)
	return *listing, nil
}

func (m *Marketplace) Buy(ctx context.Context, buyer, tokenID string, price int64, currency model.Currency) (string, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpBuy); err != nil {
		return "", err
	}
	tag, err := s.currency(currency)
	if err != nil {
		return "", err
	}
	listing := s.openListing(tokenID)
	if listing == nil {
		return "", rejected("no open listing for token %s", tokenID)
	}
	switch {
	case listing.Seller == buyer:
		return "", rejected("token %s is already owned by %s", tokenID, buyer)
	case listing.Price != price:
		return "", rejected("token %s is listed at %d, not %d", tokenID, listing.Price, price)
	case listing.Currency != tag:
		return "", rejected("token %s is listed in %s, not %s", tokenID, listing.Currency, tag)
	case s.openLoan(tokenID) != nil:
		return "", rejected("token %s is pledged as collateral", tokenID)
	}

	listing.Sold = true
	if token := s.findToken(tokenID); token != nil {
		token.Owner = buyer
	}
	s.record(buyer, listing.Seller, price, tag, model.TransactionPurchase)
	return tokenID, nil
}

func (m *Marketplace) ListAll(ctx context.Context) ([]model.Listing, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpListAll); err != nil {
		return nil, err
	}
	out := make([]model.Listing, 0, len(s.listings))
	for _, l := range s.listings {
		out = append(out, *l)
	}
	return out, nil
}

func (m *Marketplace) ListTokens(ctx context.Context) ([]model.Token, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpListTokens); err != nil {
		return nil, err
	}
	out := make([]model.Token, 0, len(s.tokens))
	for _, t := range s.tokens {
		out = append(out, *t)
	}
	return out, nil
}

// ResetIDs rewinds the token counter to the highest id still in use, so ids
// stay unique.
func (m *Marketplace) ResetIDs(ctx context.Context) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpResetIDs); err != nil {
		return err
	}
	var highest int64
	for _, t := range s.tokens {
		if n, err := strconv.ParseInt(t.ID, 10, 64); err == nil && n > highest {
			highest = n
		}
	}
	s.tokenSeq = highest
	return nil
}

type LoanBook struct {
	s *Sandbox
}

func (b *LoanBook) Originate(ctx context.Context, borrower, tokenID string, amount int64, currency model.Currency) (string, error) {
	s := b.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpOriginate); err != nil {
		return "", err
	}
	tag, err := s.currency(currency)
	if err != nil {
		return "", err
	}
	if amount <= 0 {
		return "", rejected("loan amount must be positive")
	}
	token := s.findToken(tokenID)
	if token == nil {
		return "", rejected("token %s not found", tokenID)
	}
	if token.Owner != borrower {
		return "", rejected("token %s is not owned by %s", tokenID, borrower)
	}
	if s.openLoan(tokenID) != nil {
		return "", rejected("token %s already backs an open loan", tokenID)
	}

	s.loans = append(s.loans, &model.Loan{
		ID:       model.GenerateUUIDWithSuffix("loan"),
		TokenID:  tokenID,
		Borrower: borrower,
		Amount:   amount,
		Currency: tag,
	})
	s.record(borrower, "", amount, tag, model.TransactionBorrow)
	return fmt.Sprintf("Loan of %d %s originated against token %s", amount, tag, tokenID), nil
}

func (b *LoanBook) Repay(ctx context.Context, borrower, tokenID string) (string, error) {
	s := b.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpRepay); err != nil {
		return "", err
	}
	var loan *model.Loan
	for _, l := range s.loans {
		if l.TokenID == tokenID && l.Borrower == borrower && !l.Repaid {
			loan = l
			break
		}
	}
	if loan == nil {
		return "", rejected("no open loan of %s against token %s", borrower, tokenID)
	}
	loan.Repaid = true
	s.record(borrower, "", loan.Amount, loan.Currency, model.TransactionRepay)
	return fmt.Sprintf("Loan against token %s repaid", tokenID), nil
}

func (b *LoanBook) ListLoans(ctx context.Context) ([]model.Loan, error) {
	s := b.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpListLoans); err != nil {
		return nil, err
	}
	out := make([]model.Loan, 0, len(s.loans))
	for _, l := range s.loans {
		out = append(out, *l)
	}
	return out, nil
}

type History struct {
	s *Sandbox
}

// History returns the records identity took part in, oldest first.
func (h *History) History(ctx context.Context, identity string) ([]model.TransactionRecord, error) {
	s := h.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpHistory); err != nil {
		return nil, err
	}
	out := make([]model.TransactionRecord, 0)
	for _, r := range s.history {
		if r.From == identity || r.To == identity {
			out = append(out, r)
		}
	}
	return out, nil
}

func (h *History) ResetHistory(ctx context.Context, identity string) error {
	s := h.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpResetHistory); err != nil {
		return err
	}
	kept := s.history[:0]
	for _, r := range s.history {
		if r.From != identity && r.To != identity {
			kept = append(kept, r)
		}
	}
	s.history = kept
	return nil
}

// ResetHistoryIDs rewinds the record counter to the highest id still present.
func (h *History) ResetHistoryIDs(ctx context.Context) error {
	s := h.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpResetTxIDs); err != nil {
		return err
	}
	var highest int64
	for _, r := range s.history {
		if r.ID > highest {
			highest = r.ID
		}
	}
	s.txSeq = highest
	return nil
}
