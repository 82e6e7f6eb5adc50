package align

import "fmt"

// Completion describes how many captured anchors are present.
type Completion int

const (
	CompletionNone Completion = iota
	CompletionOneSet
	CompletionBothSet
)

func (c Completion) String() string {
	switch c {
	case CompletionNone:
		return "none"
	case CompletionOneSet:
		return "one-set"
	case CompletionBothSet:
		return "both-set"
	}
	return fmt.Sprintf("Completion(%d)", int(c))
}

// MarshalText lets Completion appear by name in JSON payloads.
func (c Completion) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// AnchorStore holds the fixed plan anchors and the two captured real-space anchors.
// It is not safe for concurrent use; Controller serializes access to its store.
type AnchorStore struct {
	plan PlanAnchors
	b1   *Vec3
	b2   *Vec3
}

// NewAnchorStore creates a store with no captured anchors.
func NewAnchorStore(plan PlanAnchors) *AnchorStore {
	return &AnchorStore{plan: plan}
}

// Plan returns the configured plan anchors.
func (s *AnchorStore) Plan() PlanAnchors {
	return s.plan
}

// B1 returns the captured origin anchor, if set.
func (s *AnchorStore) B1() (Vec3, bool) {
	return deref(s.b1)
}

// B2 returns the captured direction anchor, if set.
func (s *AnchorStore) B2() (Vec3, bool) {
	return deref(s.b2)
}

// Captured returns the anchor named by target.
func (s *AnchorStore) Captured(target AnchorTarget) (Vec3, bool) {
	switch target {
	case B1:
		return s.B1()
	case B2:
		return s.B2()
	}
	return Vec3{}, false
}

// SetCaptured overwrites the named slot with pos and reports whether both anchors are
// now present. There is no merging with the previous value.
func (s *AnchorStore) SetCaptured(target AnchorTarget, pos Vec3) (bool, error) {
	switch target {
	case B1:
		s.b1 = &pos
	case B2:
		s.b2 = &pos
	default:
		return false, fmt.Errorf("set anchor: %w: %q", ErrUnknownTarget, target)
	}
	return s.b1 != nil && s.b2 != nil, nil
}

// Reset clears both captured anchors. Plan anchors are configuration and stay.
func (s *AnchorStore) Reset() {
	s.b1 = nil
	s.b2 = nil
}

// Completion reports how many captured anchors are set.
func (s *AnchorStore) Completion() Completion {
	switch {
	case s.b1 != nil && s.b2 != nil:
		return CompletionBothSet
	case s.b1 != nil || s.b2 != nil:
		return CompletionOneSet
	}
	return CompletionNone
}

func deref(v *Vec3) (Vec3, bool) {
	if v == nil {
		return Vec3{}, false
	}
	return *v, true
}
