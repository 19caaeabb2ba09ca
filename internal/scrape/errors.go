package scrape

import (
	"errors"
	"fmt"
)

// FailureKind classifies why an acquisition gave up.
type FailureKind string

const (
	// NotFound means the source explicitly reported the page does not
	// exist. Never retried.
	NotFound FailureKind = "not_found"
	// TransientError covers timeouts and transport failures after the
	// retry ceiling was exhausted.
	TransientError FailureKind = "transient"
	// MalformedResult means the source responded but the payload failed
	// structural validation. Never retried.
	MalformedResult FailureKind = "malformed"
)

// ErrMalformedPayload marks a fetch whose response could not be decoded.
// Wrapped by fetchers so the guard can classify it as terminal.
var ErrMalformedPayload = errors.New("malformed scrape payload")

// AcquireError is the terminal error of Guard.Acquire.
type AcquireError struct {
	Kind    FailureKind
	PageKey string
	Err     error
}

func (e *AcquireError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("acquire %s: %s: %v", e.PageKey, e.Kind, e.Err)
	}
	return fmt.Sprintf("acquire %s: %s", e.PageKey, e.Kind)
}

func (e *AcquireError) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from err, or "" when err is not an
// acquisition failure.
func KindOf(err error) FailureKind {
	var ae *AcquireError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
