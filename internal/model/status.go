package model

import "fmt"

// Status values produced by carrier adapters and the backoff policy.
const (
	StatusInTransit          = "IN_TRANSIT"
	StatusMissingCredentials = "MISSING_CREDENTIALS"
	StatusNotFound           = "NOT_FOUND"
	StatusRateLimited        = "RATE_LIMIT_429"
	StatusNetworkError       = "NETWORK_ERROR"
	StatusParsingError       = "PARSING_ERROR"
	StatusUnknownCarrier     = "UNKNOWN_CARRIER"
	StatusSkipNoCode         = "SKIP_NO_CODE"
	StatusSkipInvalidCode    = "SKIP_INVALID_CODE"
)

// HTTPStatus returns the status value for an unmapped non-2xx response.
func HTTPStatus(code int) string {
	return fmt.Sprintf("HTTP_%d", code)
}

// StatusResult is the normalized answer of a carrier for one tracking code.
//
// RetryAfter is set only for RATE_LIMIT_429 results and is in seconds.
type StatusResult struct {
	Carrier    string `json:"carrier"`
	Found      bool   `json:"found"`
	Status     string `json:"status"`
	Time       string `json:"time,omitempty"`
	Location   string `json:"location,omitempty"`
	Raw        string `json:"raw,omitempty"`
	RetryAfter *int   `json:"retry_after,omitempty"`
}

// RateLimited reports whether the result carries a usable retry hint.
func (r StatusResult) RateLimited() bool {
	return r.Status == StatusRateLimited && r.RetryAfter != nil
}
