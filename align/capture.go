package align

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TrackingState tells whether the hit-test source currently reports a surface.
type TrackingState int

const (
	StateIdle TrackingState = iota
	StateTracking
)

func (s TrackingState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTracking:
		return "tracking"
	}
	return fmt.Sprintf("TrackingState(%d)", int(s))
}

// MarshalText lets TrackingState appear by name in JSON payloads.
func (s TrackingState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status strings shown to the operator when no transform line applies.
const (
	StatusAwaitingAnchors      = "awaiting anchors"
	StatusAwaitingSecondAnchor = "awaiting second anchor"
)

// EventKind classifies controller notifications.
type EventKind string

const (
	EventTracking EventKind = "tracking" // Idle <-> Tracking transition
	EventAnchor   EventKind = "anchor"   // one anchor captured, waiting for the other
	EventApplied  EventKind = "applied"  // a new transform was written to the node
	EventFailed   EventKind = "failed"   // Set rejected or solve failed
	EventReset    EventKind = "reset"
)

// Event is delivered to observers after the controller state changed.
type Event struct {
	Kind     EventKind `json:"kind"`
	Snapshot Snapshot  `json:"snapshot"`
}

// Observer receives controller events. It is called without the controller lock held.
type Observer func(Event)

// Outcome describes the result of a Set command.
type Outcome struct {
	Target     AnchorTarget `json:"target"`
	Position   Vec3         `json:"position"`
	Completion Completion   `json:"completion"`
	Transform  *Transform2D `json:"transform,omitempty"`
	Pose       *Pose        `json:"pose,omitempty"`
}

// Snapshot is a consistent copy of the controller state.
type Snapshot struct {
	SessionID  string        `json:"sessionId"`
	State      TrackingState `json:"state"`
	Completion Completion    `json:"completion"`
	LatestHit  *Vec3         `json:"latestHit"`
	HitOnPlan  *Point2       `json:"hitOnPlan,omitempty"`
	Plan       PlanAnchors   `json:"plan"`
	B1         *Vec3         `json:"b1"`
	B2         *Vec3         `json:"b2"`
	Transform  *Transform2D  `json:"transform,omitempty"`
	Status     string        `json:"status"`
	Error      string        `json:"error,omitempty"`
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger *zap.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithApplier overrides the default applier policy.
func WithApplier(ap *Applier) ControllerOption {
	return func(c *Controller) {
		if ap != nil {
			c.applier = ap
		}
	}
}

// WithSessionIDs overrides the session id generator (UUIDv7 by default).
func WithSessionIDs(gen func() string) ControllerOption {
	return func(c *Controller) {
		if gen != nil {
			c.newSessionID = gen
		}
	}
}

// Controller mediates hit updates and Set commands, and writes the solved alignment to
// its node whenever both captured anchors are present.
type Controller struct {
	mu           sync.Mutex
	store        *AnchorStore
	applier      *Applier
	node         Node
	latest       *Vec3
	transform    *Transform2D
	lastErr      error
	sessionID    string
	newSessionID func() string
	observers    []Observer
	logger       *zap.Logger
}

// NewController creates a controller for the given plan anchors and target node.
func NewController(plan PlanAnchors, node Node, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:        NewAnchorStore(plan),
		applier:      NewApplier(),
		node:         node,
		newSessionID: func() string { return uuid.Must(uuid.NewV7()).String() },
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sessionID = c.newSessionID()
	return c
}

// Subscribe registers an observer for controller events.
func (c *Controller) Subscribe(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// Node returns the target node.
func (c *Controller) Node() Node {
	return c.node
}

// UpdateHit records the latest hit-test result. nil means no surface is found, which is
// distinct from a hit at the origin. Anchors are never touched here.
func (c *Controller) UpdateHit(pos *Vec3) {
	c.mu.Lock()
	wasTracking := c.latest != nil
	if pos == nil {
		c.latest = nil
	} else {
		hit := *pos
		c.latest = &hit
	}
	changed := wasTracking != (c.latest != nil)
	var ev Event
	if changed {
		ev = c.event(EventTracking)
		c.logger.Debug("tracking state changed", zap.Stringer("state", ev.Snapshot.State))
	}
	c.mu.Unlock()

	if changed {
		c.notify(ev)
	}
}

// Set captures the current hit as the named anchor. While idle it reports
// ErrNoCurrentHit and leaves the store unchanged. Once both anchors exist the alignment
// is solved and applied; a degenerate pair is reported and the node keeps its pose.
func (c *Controller) Set(target AnchorTarget) (Outcome, error) {
	if target != B1 && target != B2 {
		return Outcome{}, fmt.Errorf("set anchor: %w: %q", ErrUnknownTarget, target)
	}

	c.mu.Lock()
	outcome, ev, err := c.set(target)
	c.mu.Unlock()

	c.notify(ev)
	return outcome, err
}

func (c *Controller) set(target AnchorTarget) (Outcome, Event, error) {
	outcome := Outcome{Target: target}

	if c.latest == nil {
		c.lastErr = ErrNoCurrentHit
		outcome.Completion = c.store.Completion()
		c.logger.Warn("set ignored: no current hit", zap.String("target", string(target)))
		return outcome, c.event(EventFailed), fmt.Errorf("set %s: %w", target, ErrNoCurrentHit)
	}

	pos := *c.latest
	outcome.Position = pos

	both, err := c.store.SetCaptured(target, pos)
	if err != nil {
		return outcome, c.event(EventFailed), err
	}
	outcome.Completion = c.store.Completion()
	c.logger.Info("anchor captured",
		zap.String("session", c.sessionID),
		zap.String("target", string(target)),
		zap.Stringer("position", pos))

	if !both {
		c.lastErr = nil
		return outcome, c.event(EventAnchor), nil
	}

	b1, _ := c.store.B1()
	b2, _ := c.store.B2()
	t, err := SolveAnchors(c.store.Plan(), b1.Horizontal(), b2.Horizontal())
	if err != nil {
		c.lastErr = err
		c.logger.Warn("alignment rejected", zap.String("session", c.sessionID), zap.Error(err))
		return outcome, c.event(EventFailed), fmt.Errorf("set %s: %w", target, err)
	}

	pose := c.applier.Apply(c.node, t)
	c.transform = &t
	c.lastErr = nil
	outcome.Transform = &t
	outcome.Pose = &pose
	c.logger.Info("alignment applied",
		zap.String("session", c.sessionID),
		zap.Float64("scale", t.Scale),
		zap.Float64("yawDegrees", t.YawDegrees()),
		zap.Stringer("position", t.Translation))

	return outcome, c.event(EventApplied), nil
}

// Reset clears the captured anchors and starts a new session. The plan anchors, the
// last applied transform and the node pose are left as they are.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.store.Reset()
	c.lastErr = nil
	c.sessionID = c.newSessionID()
	ev := c.event(EventReset)
	c.logger.Info("capture session reset", zap.String("session", c.sessionID))
	c.mu.Unlock()

	c.notify(ev)
}

// Snapshot returns a consistent copy of the controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Transform returns the last applied transform, if any.
func (c *Controller) Transform() (Transform2D, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transform == nil {
		return Transform2D{}, false
	}
	return *c.transform, true
}

func (c *Controller) snapshot() Snapshot {
	s := Snapshot{
		SessionID:  c.sessionID,
		State:      StateIdle,
		Completion: c.store.Completion(),
		Plan:       c.store.Plan(),
	}
	if c.latest != nil {
		hit := *c.latest
		s.State = StateTracking
		s.LatestHit = &hit
	}
	if b1, ok := c.store.B1(); ok {
		s.B1 = &b1
	}
	if b2, ok := c.store.B2(); ok {
		s.B2 = &b2
	}
	if c.transform != nil {
		t := *c.transform
		s.Transform = &t
		if s.LatestHit != nil {
			p := t.Inverse(*s.LatestHit)
			s.HitOnPlan = &p
		}
	}
	if c.lastErr != nil {
		s.Error = c.lastErr.Error()
	}
	s.Status = statusLine(s.Completion, s.Transform, c.lastErr)
	return s
}

func (c *Controller) event(kind EventKind) Event {
	return Event{Kind: kind, Snapshot: c.snapshot()}
}

func (c *Controller) notify(ev Event) {
	if ev.Kind == "" {
		return
	}
	c.mu.Lock()
	observers := make([]Observer, len(c.observers))
	copy(observers, c.observers)
	c.mu.Unlock()

	for _, o := range observers {
		o(ev)
	}
}

func statusLine(completion Completion, t *Transform2D, lastErr error) string {
	switch {
	case errors.Is(lastErr, ErrNoCurrentHit):
		return ErrNoCurrentHit.Error()
	case errors.Is(lastErr, ErrDegenerateInput):
		return lastErr.Error()
	}
	switch completion {
	case CompletionOneSet:
		return StatusAwaitingSecondAnchor
	case CompletionBothSet:
		if t != nil {
			return t.String()
		}
	}
	return StatusAwaitingAnchors
}
