package shared

import (
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrAuthExhausted    = fmt.Errorf("authentication retries exhausted")

	// Upstream errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrEgressBlocked      = fmt.Errorf("upstream refused request (egress blocked)")
	ErrUnknownUpstream    = fmt.Errorf("unexpected upstream response")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrPreviewFetch       = fmt.Errorf("preview download failed")

	// Signature errors
	ErrIncompleteFeature = fmt.Errorf("feature group is empty")
	ErrUnknownMode       = fmt.Errorf("unknown normalization mode")
	ErrUnknownMetric     = fmt.Errorf("unknown distance metric")
	ErrUnknownFeature    = fmt.Errorf("unknown feature kind")
	ErrDimensionMismatch = fmt.Errorf("vector dimensions do not match")
	ErrDecode            = fmt.Errorf("audio decode failed")

	// Storage errors
	ErrTrackNotFound = fmt.Errorf("track not found")
	ErrNoSignature   = fmt.Errorf("track has no signature")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// UpstreamError describes a non-success response from the catalog API.
//
// Err is one of [ErrAuthExhausted], [ErrEgressBlocked] or [ErrUnknownUpstream] so callers can match with errors.Is.
type UpstreamError struct {
	StatusCode int
	URL        string
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%v: status %d from %s", e.Err, e.StatusCode, e.URL)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
