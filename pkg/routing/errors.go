package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/azybler/route_finder/pkg/geo"
	"github.com/azybler/route_finder/pkg/spatial"
)

var (
	// ErrNoPath is returned when the destination cannot be reached from the
	// origin. It is an expected outcome, not a server fault.
	ErrNoPath = errors.New("no route found")

	// ErrNodeOutOfRange marks a node index outside the graph. Seeing it
	// means an index or path is corrupt.
	ErrNodeOutOfRange = errors.New("node index out of range")

	// ErrInvalidCoordinate and ErrPointTooFar are re-exported so callers can
	// classify failures without importing the lower packages.
	ErrInvalidCoordinate = geo.ErrInvalidCoordinate
	ErrPointTooFar       = spatial.ErrPointTooFar
)

// Kind is the closed set of routing outcomes a caller has to tell apart.
type Kind uint8

const (
	// KindInternal is an invariant violation: a defect to fix, never masked.
	KindInternal Kind = iota
	// KindInvalidInput is a malformed or unusable query.
	KindInvalidInput
	// KindNoPath means origin and destination are not connected.
	KindNoPath
	// KindTimeout means the search ran out of its time budget or was
	// cancelled. Retrying may succeed.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNoPath:
		return "no_path"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// RouteError is the only error type Route returns.
type RouteError struct {
	Kind Kind
	Err  error
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("route %s: %v", e.Kind, e.Err)
}

func (e *RouteError) Unwrap() error { return e.Err }

// KindOf classifies err. Errors that are not a *RouteError are internal.
func KindOf(err error) Kind {
	var re *RouteError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindInternal
}

// classify maps a lower-level failure to its RouteError.
func classify(err error) *RouteError {
	var re *RouteError
	if errors.As(err, &re) {
		return re
	}
	switch {
	case errors.Is(err, geo.ErrInvalidCoordinate), errors.Is(err, spatial.ErrPointTooFar):
		return &RouteError{Kind: KindInvalidInput, Err: err}
	case errors.Is(err, ErrNoPath):
		return &RouteError{Kind: KindNoPath, Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &RouteError{Kind: KindTimeout, Err: err}
	default:
		return &RouteError{Kind: KindInternal, Err: err}
	}
}
