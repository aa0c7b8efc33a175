package model

import "github.com/jerry-enebeli/rwa/internal/apierror"

// ActionResult is returned by every platform action. View is the projection
// refreshed after the action settled; Warning is set when that refresh was
// incomplete and the view may lag the services.
type ActionResult struct {
	Action    string             `json:"action"`
	Identity  string             `json:"identity"`
	Reference string             `json:"reference"`
	ListingID string             `json:"listing_id,omitempty"`
	TokenID   string             `json:"token_id,omitempty"`
	Message   string             `json:"message,omitempty"`
	View      *View              `json:"view"`
	Warning   *apierror.APIError `json:"warning,omitempty"`
}
