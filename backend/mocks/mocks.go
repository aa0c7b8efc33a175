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
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/jerry-enebeli/rwa/backend"
	"github.com/jerry-enebeli/rwa/model"
)

// MockLedger is a mock implementation of backend.AccountLedger
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) GetBalance(ctx context.Context, identity string, currency model.Currency) (int64, error) {
	args := m.Called(ctx, identity, currency)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedger) Debit(ctx context.Context, identity string, currency model.Currency, amount int64, memo model.TransactionType) error {
	args := m.Called(ctx, identity, currency, amount, memo)
	return args.Error(0)
}

func (m *MockLedger) Credit(ctx context.Context, identity string, currency model.Currency, amount int64, memo model.TransactionType) error {
	args := m.Called(ctx, identity, currency, amount, memo)
	return args.Error(0)
}

func (m *MockLedger) Transfer(ctx context.Context, from, to string, currency model.Currency, amount int64) error {
	args := m.Called(ctx, from, to, currency, amount)
	return args.Error(0)
}

func (m *MockLedger) Reset(ctx context.Context, identity string) error {
	args := m.Called(ctx, identity)
	return args.Error(0)
}

// MockMarketplace is a mock implementation of backend.AssetMarketplace
type MockMarketplace struct {
	mock.Mock
}

func (m *MockMarketplace) CreateAndList(ctx context.Context, owner, details string, price int64, currency model.Currency) (model.Listing, error) {
	args := m.Called(ctx, owner, details, price, currency)
	return args.Get(0).(model.Listing), args.Error(1)
}

func (m *MockMarketplace) Buy(ctx context.Context, buyer, tokenID string, price int64, currency model.Currency) (string, error) {
	args := m.Called(ctx, buyer, tokenID, price, currency)
	return args.String(0), args.Error(1)
}

func (m *MockMarketplace) ListAll(ctx context.Context) ([]model.Listing, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Listing), args.Error(1)
}

func (m *MockMarketplace) ListTokens(ctx context.Context) ([]model.Token, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Token), args.Error(1)
}

func (m *MockMarketplace) ResetIDs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockLoanBook is a mock implementation of backend.LoanBook
type MockLoanBook struct {
	mock.Mock
}

func (m *MockLoanBook) Originate(ctx context.Context, borrower, tokenID string, amount int64, currency model.Currency) (string, error) {
	args := m.Called(ctx, borrower, tokenID, amount, currency)
	return args.String(0), args.Error(1)
}

func (m *MockLoanBook) Repay(ctx context.Context, borrower, tokenID string) (string, error) {
	args := m.Called(ctx, borrower, tokenID)
	return args.String(0), args.Error(1)
}

func (m *MockLoanBook) ListLoans(ctx context.Context) ([]model.Loan, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Loan), args.Error(1)
}

// MockHistory is a mock implementation of backend.TransactionLedgerView
type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) History(ctx context.Context, identity string) ([]model.TransactionRecord, error) {
	args := m.Called(ctx, identity)
	return args.Get(0).([]model.TransactionRecord), args.Error(1)
}

func (m *MockHistory) ResetHistory(ctx context.Context, identity string) error {
	args := m.Called(ctx, identity)
	return args.Error(0)
}

func (m *MockHistory) ResetHistoryIDs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

var (
	_ backend.AccountLedger         = (*MockLedger)(nil)
	_ backend.AssetMarketplace      = (*MockMarketplace)(nil)
	_ backend.LoanBook              = (*MockLoanBook)(nil)
	_ backend.TransactionLedgerView = (*MockHistory)(nil)
)
