package rwa

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jerry-enebeli/rwa/backend"
	"github.com/jerry-enebeli/rwa/backend/mocks"
	"github.com/jerry-enebeli/rwa/config"
	"github.com/jerry-enebeli/rwa/internal/apierror"
	redlock "github.com/jerry-enebeli/rwa/internal/lock"
	"github.com/jerry-enebeli/rwa/model"
	"github.com/jerry-enebeli/rwa/sandbox"
)

func testConfig(redisAddr string) *config.Configuration {
	cnf := &config.Configuration{
		ProjectName: "RWA Platform",
		Redis:       config.RedisConfig{Dns: redisAddr},
		Currencies:  model.DefaultCurrencies(),
		Queue:       config.QueueConfig{WebhookQueue: config.DEFAULT_WEBHOOK_QUEUE},
		Orchestrator: config.OrchestratorConfig{
			CallTimeoutSec:     2,
			LockTTLSec:         30,
			LockWaitTimeoutSec: 1,
			SessionTTLSec:      3600,
			StaleViewSec:       30,
		},
	}
	config.MockConfig(cnf)
	return cnf
}

type harness struct {
	platform *Platform
	sandbox  *sandbox.Sandbox
	redis    *miniredis.Miniredis
	client   redis.UniversalClient
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, nil)
}

// newHarnessWith lets wrap replace sandbox services before the platform is
// built on them.
func newHarnessWith(t *testing.T, wrap func(b *backend.Backends)) *harness {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sb := sandbox.New(nil)
	backends := sb.Backends()
	if wrap != nil {
		wrap(backends)
	}
	p, err := NewPlatform(testConfig(mr.Addr()), backends, client, nil)
	require.NoError(t, err)

	return &harness{platform: p, sandbox: sb, redis: mr, client: client}
}

func (h *harness) balance(t *testing.T, identity string, currency model.Currency) int64 {
	balance, err := h.sandbox.Backends().Ledger.GetBalance(context.Background(), identity, currency)
	require.NoError(t, err)
	return balance
}

func (h *harness) history(t *testing.T, identity string) []model.TransactionRecord {
	records, err := h.sandbox.Backends().History.History(context.Background(), identity)
	require.NoError(t, err)
	return records
}

func TestCreateListAndBuy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	x, y := "identity-x", "identity-y"

	require.NoError(t, h.sandbox.SetBalance(x, model.ICP, 100))
	require.NoError(t, h.sandbox.SetBalance(y, model.ICP, 50))

	listed, err := h.platform.CreateAndListToken(ctx, x, "Warehouse deed", 40, "ICP")
	require.NoError(t, err)
	require.NotEmpty(t, listed.TokenID)
	assert.NotEmpty(t, listed.ListingID)
	assert.Equal(t, ActionCreateAndList, listed.Action)

	listing, ok := listed.View.ListingForToken(listed.TokenID)
	require.True(t, ok)
	assert.Equal(t, int64(40), listing.Price)
	assert.Equal(t, int64(100), listed.View.Balances[model.ICP])
	assert.Equal(t, int64(100), h.balance(t, x, model.ICP))

	before := h.history(t, y)
	bought, err := h.platform.BuyToken(ctx, y, listed.TokenID, 0, "")
	require.NoError(t, err)
	assert.Equal(t, listed.TokenID, bought.TokenID)
	assert.Nil(t, bought.Warning)

	assert.Equal(t, int64(10), h.balance(t, y, model.ICP))
	assert.Equal(t, int64(0), h.balance(t, y, model.CkBTC))
	assert.Equal(t, model.Balances{model.ICP: 10, model.CkBTC: 0}, bought.View.Balances)

	tokens, err := h.sandbox.Backends().Marketplace.ListTokens(ctx)
	require.NoError(t, err)
	for _, tok := range tokens {
		if tok.ID == listed.TokenID {
			assert.Equal(t, y, tok.Owner)
		}
	}

	after := h.history(t, y)
	require.Len(t, after, len(before)+1)
	assert.Equal(t, model.TransactionPurchase, after[len(after)-1].Type)
	assert.Equal(t, after, bought.View.History)
}

func TestBuyToken_InsufficientFunds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.sandbox.SetBalance("seller", model.ICP, 0))
	listed, err := h.platform.CreateAndListToken(ctx, "seller", "Vintage car", 40, "ICP")
	require.NoError(t, err)

	require.NoError(t, h.sandbox.SetBalance("x", model.ICP, 10))
	result, err := h.platform.BuyToken(ctx, "x", listed.TokenID, 40, "ICP")
	assert.Nil(t, result)
	assert.Equal(t, apierror.ErrInsufficientFunds, apierror.CodeOf(err))

	var apiErr apierror.APIError
	require.True(t, errors.As(err, &apiErr))
	details := apiErr.Details.(map[string]interface{})
	assert.Equal(t, int64(10), details["balance"])
	assert.Equal(t, int64(40), details["required"])

	assert.Equal(t, int64(10), h.balance(t, "x", model.ICP))
	assert.Equal(t, int64(0), h.balance(t, "x", model.CkBTC))
	assert.Empty(t, h.history(t, "x"))

	listings, err := h.sandbox.Backends().Marketplace.ListAll(ctx)
	require.NoError(t, err)
	assert.False(t, listings[0].Sold)
}

func TestBuyToken_GuardStopsBeforeAnyMutation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	ledger := &mocks.MockLedger{}
	market := &mocks.MockMarketplace{}
	loans := &mocks.MockLoanBook{}
	history := &mocks.MockHistory{}

	listing := model.Listing{ID: "listing_7", TokenID: "7", Seller: "alice", Price: 40, Currency: model.ICP}
	ledger.On("GetBalance", mock.Anything, "bob", model.ICP).Return(int64(39), nil)
	ledger.On("GetBalance", mock.Anything, "bob", model.CkBTC).Return(int64(500), nil)
	market.On("ListAll", mock.Anything).Return([]model.Listing{listing}, nil)
	market.On("ListTokens", mock.Anything).Return([]model.Token{}, nil)
	loans.On("ListLoans", mock.Anything).Return([]model.Loan{}, nil)
	history.On("History", mock.Anything, "bob").Return([]model.TransactionRecord{}, nil)

	p, err := NewPlatform(testConfig(mr.Addr()), &backend.Backends{
		Ledger: ledger, Marketplace: market, Loans: loans, History: history,
	}, client, nil)
	require.NoError(t, err)

	_, err = p.BuyToken(context.Background(), "bob", "7", 40, "")
	assert.Equal(t, apierror.ErrInsufficientFunds, apierror.CodeOf(err))

	ledger.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	market.AssertNotCalled(t, "Buy", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBuyToken_RejectedBuyIsCompensated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	listed, err := h.platform.CreateAndListToken(ctx, "seller", gofakeit.Sentence(4), 40, "icp")
	require.NoError(t, err)
	require.NoError(t, h.sandbox.SetBalance("buyer", model.ICP, 75))

	h.sandbox.InjectFault(sandbox.OpBuy, apierror.NewAPIError(apierror.ErrActionRejected, "listing withdrawn", nil), 1)

	result, err := h.platform.BuyToken(ctx, "buyer", listed.TokenID, 40, "ICP")
	assert.Equal(t, apierror.ErrActionRejected, apierror.CodeOf(err))
	require.NotNil(t, result)
	require.NotNil(t, result.View)

	assert.Equal(t, int64(75), h.balance(t, "buyer", model.ICP))
	assert.Equal(t, int64(75), result.View.Balances[model.ICP])

	records := h.history(t, "buyer")
	require.Len(t, records, 1)
	assert.Equal(t, model.TransactionRefund, records[0].Type)
}

func TestBuyToken_PreChecks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	listed, err := h.platform.CreateAndListToken(ctx, "seller", "Painting", 40, "ICP")
	require.NoError(t, err)
	require.NoError(t, h.sandbox.SetBalance("buyer", model.ICP, 100))

	tests := []struct {
		name     string
		identity string
		tokenID  string
		price    int64
		currency string
		code     apierror.ErrorCode
	}{
		{name: "unknown token", identity: "buyer", tokenID: "404", code: apierror.ErrActionRejected},
		{name: "price mismatch", identity: "buyer", tokenID: listed.TokenID, price: 39, code: apierror.ErrActionRejected},
		{name: "currency mismatch", identity: "buyer", tokenID: listed.TokenID, currency: "ckBTC", code: apierror.ErrActionRejected},
		{name: "own token", identity: "seller", tokenID: listed.TokenID, code: apierror.ErrActionRejected},
		{name: "missing token", identity: "buyer", tokenID: " ", code: apierror.ErrInvalidInput},
		{name: "missing identity", identity: "", tokenID: listed.TokenID, code: apierror.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.platform.BuyToken(ctx, tt.identity, tt.tokenID, tt.price, tt.currency)
			assert.Equal(t, tt.code, apierror.CodeOf(err))
			assert.Equal(t, int64(100), h.balance(t, "buyer", model.ICP))
		})
	}
}

func TestBuyToken_CompensationFailureIsEscalated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	listed, err := h.platform.CreateAndListToken(ctx, "seller", "Bond", 30, "ckBTC")
	require.NoError(t, err)
	require.NoError(t, h.sandbox.SetBalance("buyer", model.CkBTC, 30))

	h.sandbox.InjectFault(sandbox.OpBuy, errors.New("marketplace crashed"), 1)
	h.sandbox.InjectFault(sandbox.OpCredit, apierror.NewAPIError(apierror.ErrUnreachable, "ledger down", nil), 1)

	result, err := h.platform.BuyToken(ctx, "buyer", listed.TokenID, 30, "ckbtc")
	require.Error(t, err)
	assert.Equal(t, apierror.ErrCompensationFailed, apierror.CodeOf(err))

	var apiErr apierror.APIError
	require.True(t, errors.As(err, &apiErr))
	report := apiErr.Details.(CompensationReport)
	assert.Equal(t, "buy", report.FailedStep)
	assert.Equal(t, "debit", report.FailedCompensation)

	// the refreshed view shows the divergence instead of hiding it
	require.NotNil(t, result)
	assert.Equal(t, int64(0), result.View.Balances[model.CkBTC])
	assert.Equal(t, int64(0), h.balance(t, "buyer", model.CkBTC))
}

func TestDepositAndTransfer_BothCurrencies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, currency := range []string{"ICP", "ckBTC"} {
		t.Run(currency, func(t *testing.T) {
			from := gofakeit.Username() + "-from"
			to := gofakeit.Username() + "-to"

			result, err := h.platform.Deposit(ctx, from, currency, 500)
			require.NoError(t, err)
			info, err := h.platform.router.Lookup(currency)
			require.NoError(t, err)
			assert.Equal(t, int64(500), result.View.Balances[info.Tag])

			result, err = h.platform.Transfer(ctx, from, to, currency, 200)
			require.NoError(t, err)
			assert.Equal(t, int64(300), result.View.Balances[info.Tag])
			assert.Equal(t, int64(200), h.balance(t, to, info.Tag))

			_, err = h.platform.Transfer(ctx, from, to, currency, 301)
			assert.Equal(t, apierror.ErrInsufficientFunds, apierror.CodeOf(err))
			assert.Equal(t, int64(300), h.balance(t, from, info.Tag))

			kinds := []model.TransactionType{}
			for _, r := range h.history(t, from) {
				kinds = append(kinds, r.Type)
			}
			assert.Equal(t, []model.TransactionType{model.TransactionDeposit, model.TransactionTransfer}, kinds)
		})
	}
}

func TestActions_InvalidInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.platform.Deposit(ctx, "alice", "ICP", 0)
	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))

	_, err = h.platform.Deposit(ctx, "alice", "DOGE", 10)
	assert.Equal(t, apierror.ErrUnsupportedCurrency, apierror.CodeOf(err))

	_, err = h.platform.Transfer(ctx, "alice", "alice", "ICP", 10)
	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))

	_, err = h.platform.Transfer(ctx, "alice", "", "ICP", 10)
	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))

	_, err = h.platform.CreateAndListToken(ctx, "alice", "", 10, "ICP")
	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))

	_, err = h.platform.Borrow(ctx, "alice", "1", 10, "EUR")
	assert.Equal(t, apierror.ErrUnsupportedCurrency, apierror.CodeOf(err))
}

func TestBorrowAndRepay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	owner := "owner"

	_, err := h.platform.Deposit(ctx, owner, "ICP", 100)
	require.NoError(t, err)
	listed, err := h.platform.CreateAndListToken(ctx, owner, "Farmland", 80, "ICP")
	require.NoError(t, err)

	borrowed, err := h.platform.Borrow(ctx, owner, listed.TokenID, 30, "ICP")
	require.NoError(t, err)
	assert.NotEmpty(t, borrowed.Message)
	assert.Equal(t, int64(70), h.balance(t, owner, model.ICP))

	loan, ok := borrowed.View.OpenLoan(owner, listed.TokenID)
	require.True(t, ok)
	assert.Equal(t, int64(30), loan.Amount)

	// a second loan on the same collateral is refused before any debit
	_, err = h.platform.Borrow(ctx, owner, listed.TokenID, 10, "ICP")
	assert.Equal(t, apierror.ErrActionRejected, apierror.CodeOf(err))
	assert.Equal(t, int64(70), h.balance(t, owner, model.ICP))

	repaid, err := h.platform.RepayLoan(ctx, owner, listed.TokenID)
	require.NoError(t, err)
	assert.NotEmpty(t, repaid.Message)
	assert.Equal(t, int64(40), h.balance(t, owner, model.ICP))
	_, ok = repaid.View.OpenLoan(owner, listed.TokenID)
	assert.False(t, ok)

	_, err = h.platform.RepayLoan(ctx, owner, listed.TokenID)
	assert.Equal(t, apierror.ErrActionRejected, apierror.CodeOf(err))
	assert.Equal(t, int64(40), h.balance(t, owner, model.ICP))
}

// lostReplyMarketplace applies a buy and then reports a timeout, as when the
// marketplace's reply is lost on the way back.
type lostReplyMarketplace struct {
	backend.AssetMarketplace
	applied func()
}

func (m lostReplyMarketplace) Buy(ctx context.Context, buyer, tokenID string, price int64, currency model.Currency) (string, error) {
	if _, err := m.AssetMarketplace.Buy(ctx, buyer, tokenID, price, currency); err != nil {
		return "", err
	}
	if m.applied != nil {
		m.applied()
	}
	return "", apierror.NewAPIError(apierror.ErrTimeout, "marketplace did not answer in time", nil)
}

type lostReplyLoanBook struct {
	backend.LoanBook
}

func (b lostReplyLoanBook) Originate(ctx context.Context, borrower, tokenID string, amount int64, currency model.Currency) (string, error) {
	if _, err := b.LoanBook.Originate(ctx, borrower, tokenID, amount, currency); err != nil {
		return "", err
	}
	return "", apierror.NewAPIError(apierror.ErrUnreachable, "loan book connection reset", nil)
}

func (b lostReplyLoanBook) Repay(ctx context.Context, borrower, tokenID string) (string, error) {
	if _, err := b.LoanBook.Repay(ctx, borrower, tokenID); err != nil {
		return "", err
	}
	return "", apierror.NewAPIError(apierror.ErrTimeout, "loan book did not answer in time", nil)
}

func TestBuyToken_AppliedBuyWithLostReplyIsNotRefunded(t *testing.T) {
	h := newHarnessWith(t, func(b *backend.Backends) {
		b.Marketplace = lostReplyMarketplace{AssetMarketplace: b.Marketplace}
	})
	ctx := context.Background()

	listed, err := h.platform.CreateAndListToken(ctx, "seller", "Warehouse", 40, "ICP")
	require.NoError(t, err)
	require.NoError(t, h.sandbox.SetBalance("buyer", model.ICP, 50))

	result, err := h.platform.BuyToken(ctx, "buyer", listed.TokenID, 40, "ICP")
	require.NoError(t, err)
	assert.Equal(t, listed.TokenID, result.TokenID)

	assert.Equal(t, int64(10), h.balance(t, "buyer", model.ICP))
	tokens, err := h.sandbox.Backends().Marketplace.ListTokens(ctx)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "buyer", tokens[0].Owner)

	for _, record := range h.history(t, "buyer") {
		assert.NotEqual(t, model.TransactionRefund, record.Type)
	}
}

func TestBuyToken_TimeoutBeforeBuyIsRefunded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	listed, err := h.platform.CreateAndListToken(ctx, "seller", "Warehouse", 40, "ICP")
	require.NoError(t, err)
	require.NoError(t, h.sandbox.SetBalance("buyer", model.ICP, 50))

	h.sandbox.InjectFault(sandbox.OpBuy, apierror.NewAPIError(apierror.ErrTimeout, "marketplace did not answer in time", nil), 1)

	result, err := h.platform.BuyToken(ctx, "buyer", listed.TokenID, 40, "ICP")
	assert.Equal(t, apierror.ErrTimeout, apierror.CodeOf(err))
	require.NotNil(t, result)
	assert.Equal(t, int64(50), h.balance(t, "buyer", model.ICP))

	listings, err := h.sandbox.Backends().Marketplace.ListAll(ctx)
	require.NoError(t, err)
	assert.False(t, listings[0].Sold)
}

func TestBuyToken_UnknownOutcomeIsEscalatedWithoutRefund(t *testing.T) {
	var sb *sandbox.Sandbox
	h := newHarnessWith(t, func(b *backend.Backends) {
		b.Marketplace = lostReplyMarketplace{
			AssetMarketplace: b.Marketplace,
			applied: func() {
				sb.InjectFault(sandbox.OpListTokens, apierror.NewAPIError(apierror.ErrUnreachable, "marketplace down", nil), -1)
			},
		}
	})
	sb = h.sandbox
	ctx := context.Background()

	listed, err := h.platform.CreateAndListToken(ctx, "seller", "Warehouse", 40, "ICP")
	require.NoError(t, err)
	require.NoError(t, h.sandbox.SetBalance("buyer", model.ICP, 50))

	result, err := h.platform.BuyToken(ctx, "buyer", listed.TokenID, 40, "ICP")
	assert.Equal(t, apierror.ErrCompensationFailed, apierror.CodeOf(err))

	var apiErr apierror.APIError
	require.True(t, errors.As(err, &apiErr))
	report := apiErr.Details.(CompensationReport)
	assert.True(t, report.Unverified)
	assert.Equal(t, "buy", report.FailedStep)
	assert.Equal(t, []string{"debit"}, report.Skipped)
	assert.Empty(t, report.Compensated)

	require.NotNil(t, result)
	require.NotNil(t, result.Warning)
	assert.Equal(t, int64(10), h.balance(t, "buyer", model.ICP))
}

func TestBorrow_AppliedOriginationWithLostReplyStands(t *testing.T) {
	h := newHarnessWith(t, func(b *backend.Backends) {
		b.Loans = lostReplyLoanBook{LoanBook: b.Loans}
	})
	ctx := context.Background()

	require.NoError(t, h.sandbox.SetBalance("owner", model.ICP, 100))
	listed, err := h.platform.CreateAndListToken(ctx, "owner", "Orchard", 80, "ICP")
	require.NoError(t, err)

	borrowed, err := h.platform.Borrow(ctx, "owner", listed.TokenID, 30, "ICP")
	require.NoError(t, err)
	assert.Equal(t, int64(70), h.balance(t, "owner", model.ICP))
	_, ok := borrowed.View.OpenLoan("owner", listed.TokenID)
	assert.True(t, ok)

	repaid, err := h.platform.RepayLoan(ctx, "owner", listed.TokenID)
	require.NoError(t, err)
	assert.Equal(t, int64(40), h.balance(t, "owner", model.ICP))
	_, ok = repaid.View.OpenLoan("owner", listed.TokenID)
	assert.False(t, ok)
}

func TestBorrow_TimeoutBeforeOriginationIsRefunded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.sandbox.SetBalance("owner", model.CkBTC, 60))
	listed, err := h.platform.CreateAndListToken(ctx, "owner", "Orchard", 80, "ckBTC")
	require.NoError(t, err)

	h.sandbox.InjectFault(sandbox.OpOriginate, apierror.NewAPIError(apierror.ErrUnreachable, "loan book down", nil), 1)

	result, err := h.platform.Borrow(ctx, "owner", listed.TokenID, 20, "ckBTC")
	assert.Equal(t, apierror.ErrUnreachable, apierror.CodeOf(err))
	require.NotNil(t, result)
	assert.Equal(t, int64(60), h.balance(t, "owner", model.CkBTC))
	_, ok := result.View.OpenLoan("owner", listed.TokenID)
	assert.False(t, ok)
}

func TestBuyToken_StaleGuardDefersToLedger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	listed, err := h.platform.CreateAndListToken(ctx, "seller", "Harbour crane", 40, "ICP")
	require.NoError(t, err)

	_, err = h.platform.Deposit(ctx, "buyer", "ICP", 50)
	require.NoError(t, err)
	// the balance drops behind the session's back, so the guard passes on 50
	require.NoError(t, h.sandbox.SetBalance("buyer", model.ICP, 10))

	result, err := h.platform.BuyToken(ctx, "buyer", listed.TokenID, 40, "ICP")
	assert.Equal(t, apierror.ErrInsufficientFunds, apierror.CodeOf(err))
	require.NotNil(t, result)
	assert.Equal(t, int64(10), result.View.Balances[model.ICP])

	assert.Equal(t, int64(10), h.balance(t, "buyer", model.ICP))
	listings, err := h.sandbox.Backends().Marketplace.ListAll(ctx)
	require.NoError(t, err)
	assert.False(t, listings[0].Sold)

	records := h.history(t, "buyer")
	require.Len(t, records, 1)
	assert.Equal(t, model.TransactionDeposit, records[0].Type)
}

func TestBorrow_NotOwnerIsCompensated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	listed, err := h.platform.CreateAndListToken(ctx, "owner", "Gold", 80, "ckBTC")
	require.NoError(t, err)
	require.NoError(t, h.sandbox.SetBalance("stranger", model.CkBTC, 50))

	result, err := h.platform.Borrow(ctx, "stranger", listed.TokenID, 20, "ckBTC")
	assert.Equal(t, apierror.ErrActionRejected, apierror.CodeOf(err))
	require.NotNil(t, result)
	assert.Equal(t, int64(50), h.balance(t, "stranger", model.CkBTC))
}

func TestRepayLoan_UsesLoanCurrency(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.sandbox.SetBalance("owner", model.CkBTC, 100))
	require.NoError(t, h.sandbox.SetBalance("owner", model.ICP, 100))
	listed, err := h.platform.CreateAndListToken(ctx, "owner", "Ship", 80, "ICP")
	require.NoError(t, err)

	_, err = h.platform.Borrow(ctx, "owner", listed.TokenID, 25, "ckBTC")
	require.NoError(t, err)
	_, err = h.platform.RepayLoan(ctx, "owner", listed.TokenID)
	require.NoError(t, err)

	assert.Equal(t, int64(50), h.balance(t, "owner", model.CkBTC))
	assert.Equal(t, int64(100), h.balance(t, "owner", model.ICP))
}

func TestHistoryIsAppendOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	x := "collector"

	var snapshots [][]model.TransactionRecord
	snap := func(result *model.ActionResult) {
		snapshots = append(snapshots, result.View.History)
	}

	result, err := h.platform.Deposit(ctx, x, "ICP", 300)
	require.NoError(t, err)
	snap(result)

	listed, err := h.platform.CreateAndListToken(ctx, "artist", "Sculpture", 120, "ICP")
	require.NoError(t, err)

	result, err = h.platform.BuyToken(ctx, x, listed.TokenID, 120, "ICP")
	require.NoError(t, err)
	snap(result)

	result, err = h.platform.Transfer(ctx, x, "friend", "ICP", 30)
	require.NoError(t, err)
	snap(result)

	result, err = h.platform.Borrow(ctx, x, listed.TokenID, 50, "ICP")
	require.NoError(t, err)
	snap(result)

	for k := 1; k < len(snapshots); k++ {
		prev, next := snapshots[k-1], snapshots[k]
		require.Greater(t, len(next), len(prev))
		assert.Equal(t, prev, next[:len(prev)])
	}
	last := snapshots[len(snapshots)-1]
	for i := 1; i < len(last); i++ {
		assert.Greater(t, last[i].ID, last[i-1].ID)
	}
}

func TestResetIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	x := "tester"

	_, err := h.platform.Deposit(ctx, x, "ICP", 100)
	require.NoError(t, err)
	_, err = h.platform.Deposit(ctx, x, "ckBTC", 7)
	require.NoError(t, err)
	_, err = h.platform.CreateAndListToken(ctx, x, "Land", 10, "ICP")
	require.NoError(t, err)

	first, err := h.platform.Reset(ctx, x)
	require.NoError(t, err)
	second, err := h.platform.Reset(ctx, x)
	require.NoError(t, err)

	for _, result := range []*model.ActionResult{first, second} {
		assert.Equal(t, model.Balances{model.ICP: 0, model.CkBTC: 0}, result.View.Balances)
		assert.Empty(t, result.View.History)
	}
	assert.Equal(t, first.View.Listings, second.View.Listings)
	assert.Equal(t, first.View.Tokens, second.View.Tokens)

	// the session is cleared, so the view is read again
	session, err := h.platform.sessions.Load(ctx, x)
	require.NoError(t, err)
	assert.Nil(t, session.View)
}

func TestActionInFlight(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	held := redlock.NewIdentityLocker(h.client, "busy")
	require.NoError(t, held.Lock(ctx, h.platform.conf.Orchestrator.LockTTL()))

	_, err := h.platform.Deposit(ctx, "busy", "ICP", 10)
	assert.Equal(t, apierror.ErrActionInFlight, apierror.CodeOf(err))
	assert.Equal(t, int64(0), h.balance(t, "busy", model.ICP))

	// other identities are independent
	_, err = h.platform.Deposit(ctx, "idle", "ICP", 10)
	assert.NoError(t, err)

	require.NoError(t, held.Unlock(ctx))
	_, err = h.platform.Deposit(ctx, "busy", "ICP", 10)
	assert.NoError(t, err)
}

func TestActionInFlight_WaitForLock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.platform.gate.wait = true

	held := redlock.NewIdentityLocker(h.client, "slow")
	require.NoError(t, held.Lock(ctx, h.platform.conf.Orchestrator.LockTTL()))

	_, err := h.platform.Deposit(ctx, "slow", "ICP", 10)
	assert.Equal(t, apierror.ErrActionInFlight, apierror.CodeOf(err))
}

func TestSettledActionWithStaleView(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.sandbox.InjectFault(sandbox.OpHistory, apierror.NewAPIError(apierror.ErrUnreachable, "history service down", nil), -1)

	result, err := h.platform.Deposit(ctx, "alice", "ICP", 25)
	require.NoError(t, err)
	require.NotNil(t, result.Warning)
	assert.Equal(t, apierror.ErrStaleView, result.Warning.Code)
	assert.Equal(t, []string{partHistory}, result.View.Stale)
	assert.Equal(t, int64(25), result.View.Balances[model.ICP])

	// the deposit stands
	assert.Equal(t, int64(25), h.balance(t, "alice", model.ICP))
}

func TestViewAndRefreshView(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.sandbox.SetBalance("viewer", model.ICP, 9))
	view, err := h.platform.View(ctx, "viewer")
	require.NoError(t, err)
	assert.Equal(t, int64(9), view.Balances[model.ICP])

	// a change made behind the platform's back only shows after a refresh
	require.NoError(t, h.sandbox.SetBalance("viewer", model.ICP, 12))
	view, err = h.platform.View(ctx, "viewer")
	require.NoError(t, err)
	assert.Equal(t, int64(9), view.Balances[model.ICP])

	view, err = h.platform.RefreshView(ctx, "viewer")
	require.NoError(t, err)
	assert.Equal(t, int64(12), view.Balances[model.ICP])

	view, err = h.platform.View(ctx, "viewer")
	require.NoError(t, err)
	assert.Equal(t, int64(12), view.Balances[model.ICP])

	_, err = h.platform.View(ctx, " ")
	assert.Equal(t, apierror.ErrInvalidInput, apierror.CodeOf(err))
}

func TestNewPlatform_RequiresDependencies(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cnf := testConfig(mr.Addr())

	_, err := NewPlatform(nil, sandbox.New(nil).Backends(), client, nil)
	assert.Error(t, err)

	_, err = NewPlatform(cnf, &backend.Backends{}, client, nil)
	assert.Error(t, err)

	_, err = NewPlatform(cnf, sandbox.New(nil).Backends(), nil, nil)
	assert.Error(t, err)
}
