package charts

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for a chart name the registry does not know.
	// It is a caller error, not a transient one.
	ErrNotFound = errors.New("charts: chart not found")

	// ErrSourceUnavailable wraps failures reading the primary ledger. The
	// checkpoint is not advanced; retrying later is safe.
	ErrSourceUnavailable = errors.New("charts: source unavailable")

	// ErrPersistence wraps failures reading or writing the chart store.
	// Writes are atomic, so no partial state is left behind.
	ErrPersistence = errors.New("charts: persistence failure")

	// ErrInternal marks query-construction or validation failures that are
	// not retryable without correcting the input.
	ErrInternal = errors.New("charts: internal error")

	// ErrCanceled is returned to a caller whose context ended while it
	// waited for an update. The update itself may still complete.
	ErrCanceled = errors.New("charts: update wait canceled")
)

// UpdateError is the error returned by every update path. Kind is one of
// the sentinel errors above; Err is the underlying cause, if any. Both are
// reachable through errors.Is.
type UpdateError struct {
	Chart string
	Kind  error
	Err   error
}

func (e *UpdateError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Chart)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Chart, e.Err)
}

func (e *UpdateError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NotFound builds the error for an unregistered chart name.
func NotFound(name string) *UpdateError {
	return &UpdateError{Chart: name, Kind: ErrNotFound}
}

func sourceError(chart string, err error) *UpdateError {
	kind := ErrSourceUnavailable
	if errors.Is(err, ErrInternal) {
		kind = ErrInternal
	}
	return &UpdateError{Chart: chart, Kind: kind, Err: err}
}

func persistenceError(chart string, err error) *UpdateError {
	return &UpdateError{Chart: chart, Kind: ErrPersistence, Err: err}
}

func canceledError(chart string, err error) *UpdateError {
	return &UpdateError{Chart: chart, Kind: ErrCanceled, Err: err}
}

func internalError(chart string, err error) *UpdateError {
	return &UpdateError{Chart: chart, Kind: ErrInternal, Err: err}
}
