// Package adapter holds the source adapters and their shared HTTP error
// classification. Each subpackage wraps one external system behind the
// uniform Fetch contract consumed by the orchestrator.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/vitae-cloud/profilex/internal/domain"
)

// ClassifyStatus maps an HTTP status code to the transient/permanent error
// taxonomy. 429 and 5xx are retryable; 4xx (auth, not found, revoked scope)
// are not.
func ClassifyStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.Transient(fmt.Errorf("status %d", status))
	case status >= 500:
		return domain.Transient(fmt.Errorf("status %d", status))
	case status >= 400:
		return domain.Permanent(fmt.Errorf("status %d", status))
	default:
		return nil
	}
}

// ClassifyErr maps a transport-level error. Network and deadline failures
// are transient; anything else is permanent.
func ClassifyErr(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return domain.Transient(err)
	}
	return domain.Permanent(err)
}
