/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package backend

import (
	"context"

	"github.com/jerry-enebeli/rwa/model"
)

// AccountLedger owns per-identity balances in both currencies. A non-empty
// memo asks the ledger to append a history record for the posting.
type AccountLedger interface {
	GetBalance(ctx context.Context, identity string, currency model.Currency) (int64, error)
	Debit(ctx context.Context, identity string, currency model.Currency, amount int64, memo model.TransactionType) error
	Credit(ctx context.Context, identity string, currency model.Currency, amount int64, memo model.TransactionType) error
	Transfer(ctx context.Context, from, to string, currency model.Currency, amount int64) error
	Reset(ctx context.Context, identity string) error
}

// AssetMarketplace owns tokens and their sale listings.
type AssetMarketplace interface {
	CreateAndList(ctx context.Context, owner, details string, price int64, currency model.Currency) (model.Listing, error)
	Buy(ctx context.Context, buyer, tokenID string, price int64, currency model.Currency) (string, error)
	ListAll(ctx context.Context) ([]model.Listing, error)
	ListTokens(ctx context.Context) ([]model.Token, error)
	ResetIDs(ctx context.Context) error
}

// LoanBook owns loans collateralized by tokens.
type LoanBook interface {
	Originate(ctx context.Context, borrower, tokenID string, amount int64, currency model.Currency) (string, error)
	Repay(ctx context.Context, borrower, tokenID string) (string, error)
	ListLoans(ctx context.Context) ([]model.Loan, error)
}

// TransactionLedgerView is the append-only record of settled transactions.
// Records are appended by the other services, never by the platform.
type TransactionLedgerView interface {
	History(ctx context.Context, identity string) ([]model.TransactionRecord, error)
	ResetHistory(ctx context.Context, identity string) error
	ResetHistoryIDs(ctx context.Context) error
}

// Backends groups the four external services the platform orchestrates.
type Backends struct {
	Ledger      AccountLedger
	Marketplace AssetMarketplace
	Loans       LoanBook
	History     TransactionLedgerView
}
