package model

// Token is a tokenized asset owned by an identity.
type Token struct {
	ID      string `json:"id"`
	Details string `json:"details"`
	Owner   string `json:"owner"`
}

// Listing is a sale offer for a token. Sold listings stay visible with Sold set.
type Listing struct {
	ID       string   `json:"id"`
	TokenID  string   `json:"token_id"`
	Seller   string   `json:"seller"`
	Price    int64    `json:"price"`
	Currency Currency `json:"currency"`
	Sold     bool     `json:"sold"`
}

// Loan is collateralized by a token. Repaid only ever moves from false to true.
type Loan struct {
	ID       string   `json:"id"`
	TokenID  string   `json:"token_id"`
	Borrower string   `json:"borrower"`
	Amount   int64    `json:"amount"`
	Currency Currency `json:"currency"`
	Repaid   bool     `json:"repaid"`
}
