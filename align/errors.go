package align

import "errors"

var (
	// ErrDegenerateInput means one of the anchor baselines is shorter than Epsilon.
	// The operator has to capture anchors further apart.
	ErrDegenerateInput = errors.New("degenerate input")

	// ErrNoCurrentHit means a Set was issued while no surface was being tracked.
	ErrNoCurrentHit = errors.New("no current hit")

	// ErrUnknownTarget is returned for anchor names other than B1 and B2.
	ErrUnknownTarget = errors.New("unknown anchor target")
)
