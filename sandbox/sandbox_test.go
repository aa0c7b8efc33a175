package sandbox

import (
	"context"
	"errors"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerry-enebeli/rwa/internal/apierror"
	"github.com/jerry-enebeli/rwa/model"
)

func TestLedger_DebitCredit(t *testing.T) {
	s := New(nil)
	b := s.Backends()
	ctx := context.Background()
	alice := gofakeit.Username()

	require.NoError(t, b.Ledger.Credit(ctx, alice, "icp", 100, model.TransactionDeposit))
	balance, err := b.Ledger.GetBalance(ctx, alice, model.ICP)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)

	err = b.Ledger.Debit(ctx, alice, model.ICP, 101, "")
	assert.Equal(t, apierror.ErrInsufficientFunds, apierror.CodeOf(err))

	require.NoError(t, b.Ledger.Debit(ctx, alice, model.ICP, 40, ""))
	balance, _ = b.Ledger.GetBalance(ctx, alice, model.ICP)
	assert.Equal(t, int64(60), balance)

	// only memo postings reach the history
	records, err := b.History.History(ctx, alice)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, model.TransactionDeposit, records[0].Type)
	assert.Equal(t, alice, records[0].To)

	_, err = b.Ledger.GetBalance(ctx, alice, "DOGE")
	assert.Equal(t, apierror.ErrUnsupportedCurrency, apierror.CodeOf(err))
}

func TestLedger_Transfer(t *testing.T) {
	s := New(nil)
	b := s.Backends()
	ctx := context.Background()

	require.NoError(t, s.SetBalance("alice", model.CkBTC, 50))
	require.NoError(t, b.Ledger.Transfer(ctx, "alice", "bob", model.CkBTC, 20))

	aliceBal, _ := b.Ledger.GetBalance(ctx, "alice", model.CkBTC)
	bobBal, _ := b.Ledger.GetBalance(ctx, "bob", model.CkBTC)
	assert.Equal(t, int64(30), aliceBal)
	assert.Equal(t, int64(20), bobBal)

	err := b.Ledger.Transfer(ctx, "alice", "bob", model.CkBTC, 31)
	assert.Equal(t, apierror.ErrInsufficientFunds, apierror.CodeOf(err))

	err = b.Ledger.Transfer(ctx, "alice", "alice", model.CkBTC, 1)
	assert.Equal(t, apierror.ErrActionRejected, apierror.CodeOf(err))

	bobHistory, _ := b.History.History(ctx, "bob")
	require.Len(t, bobHistory, 1)
	assert.Equal(t, model.TransactionTransfer, bobHistory[0].Type)
}

func TestMarketplace_ListAndBuy(t *testing.T) {
	s := New(nil)
	b := s.Backends()
	ctx := context.Background()

	listing, err := b.Marketplace.CreateAndList(ctx, "alice", gofakeit.Sentence(5), 40, model.ICP)
	require.NoError(t, err)
	assert.Equal(t, "1", listing.TokenID)
	assert.Equal(t, "alice", listing.Seller)

	_, err = b.Marketplace.Buy(ctx, "bob", listing.TokenID, 39, model.ICP)
	assert.Equal(t, apierror.ErrActionRejected, apierror.CodeOf(err))

	_, err = b.Marketplace.Buy(ctx, "alice", listing.TokenID, 40, model.ICP)
	assert.Equal(t, apierror.ErrActionRejected, apierror.CodeOf(err))

	tokenID, err := b.Marketplace.Buy(ctx, "bob", listing.TokenID, 40, model.ICP)
	require.NoError(t, err)
	assert.Equal(t, listing.TokenID, tokenID)

	tokens, _ := b.Marketplace.ListTokens(ctx)
	require.Len(t, tokens, 1)
	assert.Equal(t, "bob", tokens[0].Owner)

	listings, _ := b.Marketplace.ListAll(ctx)
	assert.True(t, listings[0].Sold)

	_, err = b.Marketplace.Buy(ctx, "carol", listing.TokenID, 40, model.ICP)
	assert.Equal(t, apierror.ErrActionRejected, apierror.CodeOf(err))
}

func TestLoanBook_Lifecycle(t *testing.T) {
	s := New(nil)
	b := s.Backends()
	ctx := context.Background()

	listing, err := b.Marketplace.CreateAndList(ctx, "alice", "Farmland", 40, model.ICP)
	require.NoError(t, err)

	_, err = b.Loans.Originate(ctx, "bob", listing.TokenID, 10, model.ICP)
	assert.Equal(t, apierror.ErrActionRejected, apierror.CodeOf(err))

	msg, err := b.Loans.Originate(ctx, "alice", listing.TokenID, 10, model.ICP)
	require.NoError(t, err)
	assert.Contains(t, msg, "originated")

	_, err = b.Loans.Originate(ctx, "alice", listing.TokenID, 10, model.ICP)
	assert.Equal(t, apierror.ErrActionRejected, apierror.CodeOf(err))

	// pledged tokens cannot be sold
	_, err = b.Marketplace.Buy(ctx, "bob", listing.TokenID, 40, model.ICP)
	assert.Equal(t, apierror.ErrActionRejected, apierror.CodeOf(err))

	_, err = b.Loans.Repay(ctx, "alice", listing.TokenID)
	require.NoError(t, err)

	_, err = b.Loans.Repay(ctx, "alice", listing.TokenID)
	assert.Equal(t, apierror.ErrActionRejected, apierror.CodeOf(err))

	loans, _ := b.Loans.ListLoans(ctx)
	require.Len(t, loans, 1)
	assert.True(t, loans[0].Repaid)
}

func TestHistory_ResetKeepsIDsUnique(t *testing.T) {
	s := New(nil)
	b := s.Backends()
	ctx := context.Background()

	require.NoError(t, b.Ledger.Credit(ctx, "alice", model.ICP, 5, model.TransactionDeposit))
	require.NoError(t, b.Ledger.Credit(ctx, "bob", model.ICP, 5, model.TransactionDeposit))
	require.NoError(t, b.Ledger.Credit(ctx, "alice", model.ICP, 5, model.TransactionDeposit))

	require.NoError(t, b.History.ResetHistory(ctx, "alice"))
	require.NoError(t, b.History.ResetHistoryIDs(ctx))

	records, _ := b.History.History(ctx, "alice")
	assert.Empty(t, records)

	require.NoError(t, b.Ledger.Credit(ctx, "alice", model.ICP, 5, model.TransactionDeposit))
	records, _ = b.History.History(ctx, "alice")
	require.Len(t, records, 1)
	assert.Equal(t, int64(3), records[0].ID)
}

func TestInjectFault(t *testing.T) {
	s := New(nil)
	b := s.Backends()
	ctx := context.Background()

	boom := errors.New("boom")
	s.InjectFault(OpCredit, boom, 1)

	assert.ErrorIs(t, b.Ledger.Credit(ctx, "alice", model.ICP, 5, ""), boom)
	assert.NoError(t, b.Ledger.Credit(ctx, "alice", model.ICP, 5, ""))

	s.InjectFault(OpHistory, boom, -1)
	for i := 0; i < 3; i++ {
		_, err := b.History.History(ctx, "alice")
		assert.ErrorIs(t, err, boom)
	}
	s.ClearFaults()
	_, err := b.History.History(ctx, "alice")
	assert.NoError(t, err)
}

func TestCancelledContext(t *testing.T) {
	s := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Backends().Ledger.GetBalance(ctx, "alice", model.ICP)
	assert.Equal(t, apierror.ErrTimeout, apierror.CodeOf(err))
}
