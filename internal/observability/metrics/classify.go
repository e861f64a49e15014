package metrics

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"catalog-pulse/internal/catalog"
)

// Error classification types. Together with the code they form a closed
// tagged variant: call sites switch on these instead of probing error
// shapes themselves.
const (
	ErrorTypeCatalogAPI = "catalog_api"
	ErrorTypeTransport  = "transport"
	ErrorTypeUnknown    = "unknown"
)

// Classification is the closed result of classifying an operation error.
type Classification struct {
	Type      string `json:"type"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

// ClassifyError maps a heterogeneous error to a Classification through an
// ordered chain of shape matchers: catalog API envelope first, transport
// shapes second, unknown fallback last. It never returns a zero value and
// never panics, whatever the error shape.
func ClassifyError(err error) Classification {
	if err == nil {
		return Classification{Type: ErrorTypeUnknown, Code: "UNKNOWN_ERROR", Retryable: false}
	}

	// 1. Catalog API error envelope
	var apiErr *catalog.APIError
	if errors.As(err, &apiErr) {
		return Classification{
			Type:      ErrorTypeCatalogAPI,
			Code:      apiErr.Code,
			Retryable: apiErr.Retryable(),
		}
	}

	// 2. Transport shapes
	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{Type: ErrorTypeTransport, Code: "TIMEOUT", Retryable: true}
	}
	if errors.Is(err, context.Canceled) {
		return Classification{Type: ErrorTypeTransport, Code: "CANCELED", Retryable: false}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Classification{Type: ErrorTypeTransport, Code: "DNS_FAILURE", Retryable: true}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Classification{Type: ErrorTypeTransport, Code: "TIMEOUT", Retryable: true}
	}

	switch {
	case errors.Is(err, syscall.ECONNRESET):
		return Classification{Type: ErrorTypeTransport, Code: "CONNECTION_RESET", Retryable: true}
	case errors.Is(err, syscall.ECONNREFUSED):
		return Classification{Type: ErrorTypeTransport, Code: "CONNECTION_REFUSED", Retryable: true}
	case errors.Is(err, syscall.ETIMEDOUT):
		return Classification{Type: ErrorTypeTransport, Code: "TIMEOUT", Retryable: true}
	case errors.Is(err, syscall.ENETUNREACH):
		return Classification{Type: ErrorTypeTransport, Code: "NETWORK_UNREACHABLE", Retryable: true}
	}

	// Wrapped transport errors from the HTTP client lose their typed shape
	// when stringified by intermediate layers; catch the common spellings.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection reset") {
		return Classification{Type: ErrorTypeTransport, Code: "CONNECTION_RESET", Retryable: true}
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return Classification{Type: ErrorTypeTransport, Code: "TIMEOUT", Retryable: true}
	}

	// 3. Fallback
	return Classification{Type: ErrorTypeUnknown, Code: "UNKNOWN_ERROR", Retryable: false}
}

// IsRateLimit reports whether a classification indicates API rate limiting.
func (c Classification) IsRateLimit() bool {
	return c.Code == catalog.CodeRateLimited
}
