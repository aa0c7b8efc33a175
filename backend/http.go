package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jerry-enebeli/rwa/config"
	"github.com/jerry-enebeli/rwa/internal/request"
	"github.com/jerry-enebeli/rwa/model"
)

// NewHTTPBackends builds JSON clients for the configured services. Each call
// is bounded by timeout and its failures are classified with Classify.
func NewHTTPBackends(services config.ServicesConfig, timeout time.Duration) *Backends {
	client := func(base string) *request.Client {
		return request.NewClient(base, services.AuthToken, timeout)
	}
	return &Backends{
		Ledger:      NewLedgerClient(client(services.LedgerURL)),
		Marketplace: NewMarketplaceClient(client(services.MarketplaceURL)),
		Loans:       NewLoanClient(client(services.LoansURL)),
		History:     NewHistoryClient(client(services.HistoryURL)),
	}
}

type postingRequest struct {
	Amount int64                 `json:"amount"`
	Memo   model.TransactionType `json:"memo,omitempty"`
}

type balanceResponse struct {
	Identity string         `json:"identity"`
	Currency model.Currency `json:"currency"`
	Balance  int64          `json:"balance"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func balancePath(identity string, currency model.Currency) string {
	return fmt.Sprintf("/accounts/%s/balances/%s", url.PathEscape(identity), url.PathEscape(string(currency)))
}

type LedgerClient struct {
	c *request.Client
}

func NewLedgerClient(c *request.Client) *LedgerClient {
	return &LedgerClient{c: c}
}

func (l *LedgerClient) GetBalance(ctx context.Context, identity string, currency model.Currency) (int64, error) {
	var out balanceResponse
	err := l.c.Do(ctx, http.MethodGet, balancePath(identity, currency), nil, &out)
	if err != nil {
		return 0, Classify("ledger get balance", err)
	}
	return out.Balance, nil
}

func (l *LedgerClient) Debit(ctx context.Context, identity string, currency model.Currency, amount int64, memo model.TransactionType) error {
	err := l.c.Do(ctx, http.MethodPost, balancePath(identity, currency)+"/debit", postingRequest{Amount: amount, Memo: memo}, nil)
	return Classify("ledger debit", err)
}

func (l *LedgerClient) Credit(ctx context.Context, identity string, currency model.Currency, amount int64, memo model.TransactionType) error {
	err := l.c.Do(ctx, http.MethodPost, balancePath(identity, currency)+"/credit", postingRequest{Amount: amount, Memo: memo}, nil)
	return Classify("ledger credit", err)
}

func (l *LedgerClient) Transfer(ctx context.Context, from, to string, currency model.Currency, amount int64) error {
	body := map[string]interface{}{
		"from":     from,
		"to":       to,
		"currency": currency,
		"amount":   amount,
	}
	return Classify("ledger transfer", l.c.Do(ctx, http.MethodPost, "/transfers", body, nil))
}

func (l *LedgerClient) Reset(ctx context.Context, identity string) error {
	path := fmt.Sprintf("/accounts/%s/reset", url.PathEscape(identity))
	return Classify("ledger reset", l.c.Do(ctx, http.MethodPost, path, nil, nil))
}

type MarketplaceClient struct {
	c *request.Client
}

func NewMarketplaceClient(c *request.Client) *MarketplaceClient {
	return &MarketplaceClient{c: c}
}

func (m *MarketplaceClient) CreateAndList(ctx context.Context, owner, details string, price int64, currency model.Currency) (model.Listing, error) {
	body := map[string]interface{}{
		"owner":    owner,
		"details":  details,
		"price":    price,
		"currency": currency,
	}
	var listing model.Listing
	if err := m.c.Do(ctx, http.MethodPost, "/listings", body, &listing); err != nil {
		return model.Listing{}, Classify("marketplace create and list", err)
	}
	return listing, nil
}

func (m *MarketplaceClient) Buy(ctx context.Context, buyer, tokenID string, price int64, currency model.Currency) (string, error) {
	body := map[string]interface{}{
		"buyer":    buyer,
		"price":    price,
		"currency": currency,
	}
	var out struct {
		TokenID string `json:"token_id"`
	}
	path := fmt.Sprintf("/listings/%s/buy", url.PathEscape(tokenID))
	if err := m.c.Do(ctx, http.MethodPost, path, body, &out); err != nil {
		return "", Classify("marketplace buy", err)
	}
	return out.TokenID, nil
}

func (m *MarketplaceClient) ListAll(ctx context.Context) ([]model.Listing, error) {
	var listings []model.Listing
	if err := m.c.Do(ctx, http.MethodGet, "/listings", nil, &listings); err != nil {
		return nil, Classify("marketplace list", err)
	}
	return listings, nil
}

func (m *MarketplaceClient) ListTokens(ctx context.Context) ([]model.Token, error) {
	var tokens []model.Token
	if err := m.c.Do(ctx, http.MethodGet, "/tokens", nil, &tokens); err != nil {
		return nil, Classify("marketplace tokens", err)
	}
	return tokens, nil
}

func (m *MarketplaceClient) ResetIDs(ctx context.Context) error {
	return Classify("marketplace reset ids", m.c.Do(ctx, http.MethodPost, "/marketplace/reset-ids", nil, nil))
}

type LoanClient struct {
	c *request.Client
}

func NewLoanClient(c *request.Client) *LoanClient {
	return &LoanClient{c: c}
}

func (l *LoanClient) Originate(ctx context.Context, borrower, tokenID string, amount int64, currency model.Currency) (string, error) {
	body := map[string]interface{}{
		"borrower": borrower,
		"token_id": tokenID,
		"amount":   amount,
		"currency": currency,
	}
	var out messageResponse
	if err := l.c.Do(ctx, http.MethodPost, "/loans", body, &out); err != nil {
		return "", Classify("loan origination", err)
	}
	return out.Message, nil
}

func (l *LoanClient) Repay(ctx context.Context, borrower, tokenID string) (string, error) {
	var out messageResponse
	path := fmt.Sprintf("/loans/%s/repay", url.PathEscape(tokenID))
	if err := l.c.Do(ctx, http.MethodPost, path, map[string]string{"borrower": borrower}, &out); err != nil {
		return "", Classify("loan repayment", err)
	}
	return out.Message, nil
}

func (l *LoanClient) ListLoans(ctx context.Context) ([]model.Loan, error) {
	var loans []model.Loan
	if err := l.c.Do(ctx, http.MethodGet, "/loans", nil, &loans); err != nil {
		return nil, Classify("loan list", err)
	}
	return loans, nil
}

type HistoryClient struct {
	c *request.Client
}

func NewHistoryClient(c *request.Client) *HistoryClient {
	return &HistoryClient{c: c}
}

func (h *HistoryClient) History(ctx context.Context, identity string) ([]model.TransactionRecord, error) {
	var records []model.TransactionRecord
	path := fmt.Sprintf("/history/%s", url.PathEscape(identity))
	if err := h.c.Do(ctx, http.MethodGet, path, nil, &records); err != nil {
		return nil, Classify("history", err)
	}
	return records, nil
}

func (h *HistoryClient) ResetHistory(ctx context.Context, identity string) error {
	body := map[string]string{"identity": identity}
	return Classify("history reset", h.c.Do(ctx, http.MethodPost, "/history/reset", body, nil))
}

func (h *HistoryClient) ResetHistoryIDs(ctx context.Context) error {
	return Classify("history reset ids", h.c.Do(ctx, http.MethodPost, "/history/reset-ids", nil, nil))
}
