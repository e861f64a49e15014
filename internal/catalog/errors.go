package catalog

import "fmt"

// Error categories reported by the catalog API. These mirror the category
// field of the service's error envelope.
const (
	CategoryRateLimit      = "RATE_LIMIT_ERROR"
	CategoryAuthentication = "AUTHENTICATION_ERROR"
	CategoryInvalidRequest = "INVALID_REQUEST_ERROR"
	CategoryAPIError       = "API_ERROR"
)

// Well-known error codes within the categories above.
const (
	CodeRateLimited         = "RATE_LIMITED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInternalServerError = "INTERNAL_SERVER_ERROR"
	CodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	CodeNotFound            = "NOT_FOUND"
	CodeBadRequest          = "BAD_REQUEST"
)

// APIError is the structured error envelope returned by the catalog API.
// It implements error and carries enough shape for classification into
// retryable and terminal failures.
type APIError struct {
	Category   string `json:"category"`
	Code       string `json:"code"`
	Detail     string `json:"detail,omitempty"`
	StatusCode int    `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("catalog api error %s/%s: %s", e.Category, e.Code, e.Detail)
	}
	return fmt.Sprintf("catalog api error %s/%s", e.Category, e.Code)
}

// Retryable reports whether the call that produced this error is worth
// retrying. Rate limits and server-side failures are transient; everything
// else is terminal.
func (e *APIError) Retryable() bool {
	switch e.Category {
	case CategoryRateLimit:
		return true
	case CategoryAPIError:
		return e.Code == CodeInternalServerError || e.Code == CodeServiceUnavailable
	default:
		return false
	}
}
