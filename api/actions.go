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
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	model2 "github.com/jerry-enebeli/rwa/api/model"
	"github.com/jerry-enebeli/rwa/internal/apierror"
	"github.com/jerry-enebeli/rwa/model"
)

// minorAmount converts the request amount into smallest units of currency.
func (a Api) minorAmount(c *gin.Context, currency string, amount int64, display *decimal.Decimal) (int64, bool) {
	if display == nil {
		return amount, true
	}
	info, ok := model2.FindCurrency(a.platform.Currencies(), currency)
	if !ok {
		respondError(c, apierror.NewAPIError(apierror.ErrUnsupportedCurrency,
			fmt.Sprintf("currency %q is not supported", currency), nil), nil)
		return 0, false
	}
	minor, err := model2.ToMinor(info, amount, display)
	if err != nil {
		invalidInput(c, err)
		return 0, false
	}
	return minor, true
}

func (a Api) Deposit(c *gin.Context) {
	id, ok := identityParam(c)
	if !ok {
		return
	}
	var req model2.Deposit
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, err)
		return
	}
	if err := req.ValidateDeposit(); err != nil {
		invalidInput(c, err)
		return
	}
	amount, ok := a.minorAmount(c, req.Currency, req.Amount, req.DisplayAmount)
	if !ok {
		return
	}

	result, err := a.platform.Deposit(c.Request.Context(), id, req.Currency, amount)
	respondAction(c, http.StatusCreated, result, err)
}

func (a Api) CreateListing(c *gin.Context) {
	id, ok := identityParam(c)
	if !ok {
		return
	}
	var req model2.CreateListing
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, err)
		return
	}
	if err := req.ValidateCreateListing(); err != nil {
		invalidInput(c, err)
		return
	}
	price, ok := a.minorAmount(c, req.Currency, req.Price, req.DisplayPrice)
	if !ok {
		return
	}

	result, err := a.platform.CreateAndListToken(c.Request.Context(), id, req.Details, price, req.Currency)
	respondAction(c, http.StatusCreated, result, err)
}

func (a Api) BuyToken(c *gin.Context) {
	id, ok := identityParam(c)
	if !ok {
		return
	}
	var req model2.Purchase
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, err)
		return
	}
	if err := req.ValidatePurchase(); err != nil {
		invalidInput(c, err)
		return
	}

	result, err := a.platform.BuyToken(c.Request.Context(), id, req.TokenID, req.Price, req.Currency)
	respondAction(c, http.StatusCreated, result, err)
}

func (a Api) Transfer(c *gin.Context) {
	id, ok := identityParam(c)
	if !ok {
		return
	}
	var req model2.Transfer
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, err)
		return
	}
	if err := req.ValidateTransfer(); err != nil {
		invalidInput(c, err)
		return
	}
	amount, ok := a.minorAmount(c, req.Currency, req.Amount, req.DisplayAmount)
	if !ok {
		return
	}

	result, err := a.platform.Transfer(c.Request.Context(), id, req.To, req.Currency, amount)
	respondAction(c, http.StatusCreated, result, err)
}

func (a Api) Borrow(c *gin.Context) {
	id, ok := identityParam(c)
	if !ok {
		return
	}
	var req model2.Borrow
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidInput(c, err)
		return
	}
	if err := req.ValidateBorrow(); err != nil {
		invalidInput(c, err)
		return
	}
	amount, ok := a.minorAmount(c, req.Currency, req.Amount, req.DisplayAmount)
	if !ok {
		return
	}

	result, err := a.platform.Borrow(c.Request.Context(), id, req.TokenID, amount, req.Currency)
	respondAction(c, http.StatusCreated, result, err)
}

func (a Api) RepayLoan(c *gin.Context) {
	id, ok := identityParam(c)
	if !ok {
		return
	}
	tokenID := c.Param("token_id")

	result, err := a.platform.RepayLoan(c.Request.Context(), id, tokenID)
	respondAction(c, http.StatusOK, result, err)
}

func (a Api) Reset(c *gin.Context) {
	id, ok := identityParam(c)
	if !ok {
		return
	}

	result, err := a.platform.Reset(c.Request.Context(), id)
	respondAction(c, http.StatusOK, result, err)
}

// viewResponse carries the view and, when part of it could not be read,
// the STALE_VIEW warning.
type viewResponse struct {
	View    *model.View        `json:"view"`
	Warning *apierror.APIError `json:"warning,omitempty"`
}

func respondView(c *gin.Context, view *model.View, err error) {
	if err != nil && !apierror.IsCode(err, apierror.ErrStaleView) {
		respondError(c, err, nil)
		return
	}
	resp := viewResponse{View: view}
	if err != nil {
		warning := apierror.As(err, apierror.ErrStaleView)
		resp.Warning = &warning
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetView(c *gin.Context) {
	id, ok := identityParam(c)
	if !ok {
		return
	}
	view, err := a.platform.View(c.Request.Context(), id)
	respondView(c, view, err)
}

func (a Api) RefreshView(c *gin.Context) {
	id, ok := identityParam(c)
	if !ok {
		return
	}
	view, err := a.platform.RefreshView(c.Request.Context(), id)
	respondView(c, view, err)
}
