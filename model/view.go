package model

import "time"

// View is the client-observable projection of an identity's state. It has no
// authority of its own: every field is overwritten by the next refresh.
type View struct {
	Identity    string              `json:"identity"`
	Balances    Balances            `json:"balances"`
	History     []TransactionRecord `json:"history"`
	Listings    []Listing           `json:"listings"`
	Tokens      []Token             `json:"tokens"`
	Loans       []Loan              `json:"loans"`
	RefreshedAt time.Time           `json:"refreshed_at"`
	// Stale names the parts of the view whose last read failed.
	Stale []string `json:"stale,omitempty"`
}

// ListingForToken returns the first unsold listing of tokenID.
func (v *View) ListingForToken(tokenID string) (Listing, bool) {
	for _, l := range v.Listings {
		if l.TokenID == tokenID && !l.Sold {
			return l, true
		}
	}
	return Listing{}, false
}

// OpenLoan returns the borrower's unrepaid loan against tokenID.
func (v *View) OpenLoan(borrower, tokenID string) (Loan, bool) {
	for _, l := range v.Loans {
		if l.TokenID == tokenID && l.Borrower == borrower && !l.Repaid {
			return l, true
		}
	}
	return Loan{}, false
}
