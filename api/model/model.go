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
package model

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/jerry-enebeli/rwa/model"
)

// Deposit credits an identity. Exactly one of Amount (smallest units) and
// DisplayAmount (major units) is set.
type Deposit struct {
	Currency      string           `json:"currency"`
	Amount        int64            `json:"amount"`
	DisplayAmount *decimal.Decimal `json:"display_amount"`
}

type CreateListing struct {
	Details      string           `json:"details"`
	Currency     string           `json:"currency"`
	Price        int64            `json:"price"`
	DisplayPrice *decimal.Decimal `json:"display_price"`
}

// Purchase buys a listed token. Price and Currency are optional guards
// against buying at a price the caller did not see.
type Purchase struct {
	TokenID  string `json:"token_id"`
	Currency string `json:"currency"`
	Price    int64  `json:"price"`
}

type Transfer struct {
	To            string           `json:"to"`
	Currency      string           `json:"currency"`
	Amount        int64            `json:"amount"`
	DisplayAmount *decimal.Decimal `json:"display_amount"`
}

type Borrow struct {
	TokenID       string           `json:"token_id"`
	Currency      string           `json:"currency"`
	Amount        int64            `json:"amount"`
	DisplayAmount *decimal.Decimal `json:"display_amount"`
}

func amountOrDisplayAmountValidation(amount int64, display *decimal.Decimal, name string) validation.RuleFunc {
	return func(value interface{}) error {
		if (amount == 0 && display == nil) || (amount != 0 && display != nil) {
			return fmt.Errorf("either %s or display_%s is required, not both", name, name)
		}
		if amount < 0 {
			return fmt.Errorf("%s must be positive", name)
		}
		if display != nil && !display.IsPositive() {
			return fmt.Errorf("display_%s must be positive", name)
		}
		return nil
	}
}

func notBlank(value interface{}) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
}

func (d *Deposit) ValidateDeposit() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.Currency, validation.By(notBlank)),
		validation.Field(&d.Amount, validation.By(amountOrDisplayAmountValidation(d.Amount, d.DisplayAmount, "amount"))),
	)
}

func (l *CreateListing) ValidateCreateListing() error {
	return validation.ValidateStruct(l,
		validation.Field(&l.Details, validation.By(notBlank), validation.Length(1, 1024)),
		validation.Field(&l.Currency, validation.By(notBlank)),
		validation.Field(&l.Price, validation.By(amountOrDisplayAmountValidation(l.Price, l.DisplayPrice, "price"))),
	)
}

func (p *Purchase) ValidatePurchase() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.TokenID, validation.By(notBlank)),
		validation.Field(&p.Price, validation.Min(int64(0))),
	)
}

func (t *Transfer) ValidateTransfer() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.To, validation.By(notBlank)),
		validation.Field(&t.Currency, validation.By(notBlank)),
		validation.Field(&t.Amount, validation.By(amountOrDisplayAmountValidation(t.Amount, t.DisplayAmount, "amount"))),
	)
}

func (b *Borrow) ValidateBorrow() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.TokenID, validation.By(notBlank)),
		validation.Field(&b.Currency, validation.By(notBlank)),
		validation.Field(&b.Amount, validation.By(amountOrDisplayAmountValidation(b.Amount, b.DisplayAmount, "amount"))),
	)
}

// ToMinor returns amount, or display converted with the precision of info.
func ToMinor(info model.CurrencyInfo, amount int64, display *decimal.Decimal) (int64, error) {
	if display == nil {
		return amount, nil
	}
	return info.ToMinor(*display)
}

// FindCurrency returns the currency of currencies that tag names.
func FindCurrency(currencies []model.CurrencyInfo, tag string) (model.CurrencyInfo, bool) {
	for _, c := range currencies {
		if c.Matches(tag) {
			return c, true
		}
	}
	return model.CurrencyInfo{}, false
}
