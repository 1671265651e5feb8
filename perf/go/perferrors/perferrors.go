// Package perferrors defines the kinds of errors the alert engine reports.
// Every error returned by a store or service wraps exactly one kind, so
// callers can decide with errors.Is whether to retry, drop or surface it.
package perferrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-multierror"
)

// Error kinds.
var (
	// ErrValidation is bad input. 400 to the API, dropped from the queue.
	ErrValidation = errors.New("validation error")

	// ErrConflict is a uniqueness collision. Resolved by re-reading.
	ErrConflict = errors.New("conflict")

	// ErrNotFound is a lookup miss.
	ErrNotFound = errors.New("not found")

	// ErrUpstreamUnavailable is a failure of the bug tracker or the queue,
	// or a detection that ran out of time. Retried with backoff.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrStateTransitionRejected is an edge that the alert or summary state
	// machine does not allow. 409 to the API.
	ErrStateTransitionRejected = errors.New("state transition rejected")

	// ErrInternal is a bug.
	ErrInternal = errors.New("internal error")
)

// Specific errors, each wrapping one kind.
var (
	ErrUnknownRepository = fmt.Errorf("unknown repository: %w", ErrValidation)
	ErrUnknownFramework  = fmt.Errorf("unknown framework: %w", ErrValidation)
	ErrSignatureCycle    = fmt.Errorf("signature parent would create a cycle: %w", ErrValidation)
	ErrConflictingDatum  = fmt.Errorf("datum already ingested with a different value: %w", ErrValidation)
	ErrPendingParent     = fmt.Errorf("parent signature not ingested yet: %w", ErrNotFound)
	ErrDeadlineExceeded  = fmt.Errorf("detection deadline exceeded: %w", ErrUpstreamUnavailable)
)

// kinds in the order they are tested by Kind.
var kinds = []error{
	ErrValidation,
	ErrConflict,
	ErrNotFound,
	ErrUpstreamUnavailable,
	ErrStateTransitionRejected,
	ErrInternal,
}

// Kind returns the kind err wraps, ErrInternal if it wraps none, or nil if
// err is nil.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}

// HTTPStatus returns the status code an API handler responds with for err.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case nil:
		return http.StatusOK
	case ErrValidation:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrStateTransitionRejected, ErrConflict:
		return http.StatusConflict
	case ErrUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable returns true if a task that failed with err should be tried
// again later rather than dropped. A multierror is retryable if any of its
// errors is.
func Retryable(err error) bool {
	var merr *multierror.Error
	if errors.As(err, &merr) {
		for _, e := range merr.Errors {
			if Retryable(e) {
				return true
			}
		}
		return false
	}
	k := Kind(err)
	return k != nil && k != ErrValidation && k != ErrStateTransitionRejected
}
