package model

import (
	"time"
)

type TransactionType string

const (
	TransactionDeposit  TransactionType = "deposit"
	TransactionPurchase TransactionType = "purchase"
	TransactionListing  TransactionType = "listing"
	TransactionTransfer TransactionType = "transfer"
	TransactionBorrow   TransactionType = "borrow"
	TransactionRepay    TransactionType = "repay"
	TransactionRefund   TransactionType = "refund"
)

// TransactionRecord is an entry of the append-only history kept by the ledger side.
// IDs are assigned by the ledger and increase with insertion order.
type TransactionRecord struct {
	ID        int64           `json:"id"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Amount    int64           `json:"amount"`
	Currency  Currency        `json:"currency"`
	Type      TransactionType `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
}
