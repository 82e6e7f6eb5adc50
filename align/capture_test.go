package align

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("session-%d", n)
	}
}

func newTestController(t *testing.T, plan PlanAnchors, opts ...ControllerOption) (*Controller, *SceneNode) {
	t.Helper()
	node := NewSceneNode("plan")
	opts = append([]ControllerOption{WithSessionIDs(sequentialIDs())}, opts...)
	return NewController(plan, node, opts...), node
}

var unitPlan = PlanAnchors{A1: Point2{X: 0, Z: 0}, A2: Point2{X: 1, Z: 0}}

func capture(t *testing.T, c *Controller, target AnchorTarget, at Vec3) (Outcome, error) {
	t.Helper()
	c.UpdateHit(&at)
	return c.Set(target)
}

func TestController_Initial(t *testing.T) {
	c, node := newTestController(t, unitPlan)

	s := c.Snapshot()
	assert.Equal(t, "session-1", s.SessionID)
	assert.Equal(t, StateIdle, s.State)
	assert.Equal(t, CompletionNone, s.Completion)
	assert.Nil(t, s.LatestHit)
	assert.Nil(t, s.Transform)
	assert.Equal(t, StatusAwaitingAnchors, s.Status)
	assert.Equal(t, unitPlan, s.Plan)
	assert.Equal(t, IdentityPose(), node.Pose())
	assert.Same(t, node, c.Node())
}

func TestController_SetWhileIdle(t *testing.T) {
	c, node := newTestController(t, unitPlan)

	_, err := c.Set(B1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoCurrentHit))

	s := c.Snapshot()
	assert.Equal(t, CompletionNone, s.Completion)
	assert.Nil(t, s.B1)
	assert.Equal(t, "no current hit", s.Status)
	assert.Equal(t, IdentityPose(), node.Pose())

	// A surface that was lost again also counts as idle.
	c.UpdateHit(&Vec3{X: 1})
	c.UpdateHit(nil)
	_, err = c.Set(B2)
	assert.ErrorIs(t, err, ErrNoCurrentHit)
	assert.Nil(t, c.Snapshot().B2)
}

func TestController_UnknownTarget(t *testing.T) {
	c, _ := newTestController(t, unitPlan)
	c.UpdateHit(&Vec3{})
	_, err := c.Set(AnchorTarget("B3"))
	assert.ErrorIs(t, err, ErrUnknownTarget)
	assert.Equal(t, CompletionNone, c.Snapshot().Completion)
}

func TestController_HitAtOriginIsTracking(t *testing.T) {
	c, _ := newTestController(t, unitPlan)
	c.UpdateHit(&Vec3{})

	s := c.Snapshot()
	assert.Equal(t, StateTracking, s.State)
	require.NotNil(t, s.LatestHit)

	out, err := c.Set(B1)
	require.NoError(t, err)
	assert.Equal(t, Vec3{}, out.Position)
	assert.Equal(t, CompletionOneSet, out.Completion)
}

func TestController_UpdateHitCopiesInput(t *testing.T) {
	c, _ := newTestController(t, unitPlan)
	hit := Vec3{X: 1, Y: 2, Z: 3}
	c.UpdateHit(&hit)
	hit.X = 100

	out, err := c.Set(B1)
	require.NoError(t, err)
	assert.Equal(t, Vec3{X: 1, Y: 2, Z: 3}, out.Position)
}

func TestController_FirstAnchorLeavesNodeAlone(t *testing.T) {
	c, node := newTestController(t, unitPlan)

	out, err := capture(t, c, B1, Vec3{X: 2, Z: 2})
	require.NoError(t, err)
	assert.Nil(t, out.Transform)
	assert.Nil(t, out.Pose)
	assert.Equal(t, StatusAwaitingSecondAnchor, c.Snapshot().Status)
	assert.Equal(t, IdentityPose(), node.Pose())
}

func TestController_SolvesAndApplies(t *testing.T) {
	c, node := newTestController(t, unitPlan)

	_, err := capture(t, c, B1, Vec3{X: 2, Y: 0.1, Z: 2})
	require.NoError(t, err)
	out, err := capture(t, c, B2, Vec3{X: 2, Y: -0.2, Z: 5})
	require.NoError(t, err)

	require.NotNil(t, out.Transform)
	assert.InDelta(t, 3.0, out.Transform.Scale, tolerance)
	assert.InDelta(t, math.Pi/2, out.Transform.Yaw, tolerance)
	assert.Equal(t, CompletionBothSet, out.Completion)

	pose := node.Pose()
	require.NotNil(t, out.Pose)
	assert.Equal(t, *out.Pose, pose)
	assert.InDelta(t, 3.0, pose.Scale.X, tolerance)
	assert.Equal(t, 1.0, pose.Scale.Y)
	assert.InDelta(t, 3.0, pose.Scale.Z, tolerance)
	assertVec3Near(t, Vec3{X: 2, Y: 0, Z: 2}, pose.Position, "captured heights are ignored")

	s := c.Snapshot()
	assert.Equal(t, "scale=3.000, yaw=90.0°, pos=(2.000, 0.000, 2.000)", s.Status)
	assert.Empty(t, s.Error)

	tr, ok := c.Transform()
	require.True(t, ok)
	assert.Equal(t, *out.Transform, tr)
}

func TestController_OrderIndependent(t *testing.T) {
	p1 := Vec3{X: 1, Z: -3}
	p2 := Vec3{X: 4, Z: 7}

	forward, _ := newTestController(t, unitPlan)
	_, err := capture(t, forward, B1, p1)
	require.NoError(t, err)
	_, err = capture(t, forward, B2, p2)
	require.NoError(t, err)

	reverse, _ := newTestController(t, unitPlan)
	_, err = capture(t, reverse, B2, p2)
	require.NoError(t, err)
	_, err = capture(t, reverse, B1, p1)
	require.NoError(t, err)

	a, _ := forward.Transform()
	b, _ := reverse.Transform()
	assert.Equal(t, a, b)
	assert.Equal(t, forward.Node().Pose(), reverse.Node().Pose())
}

func TestController_DegenerateKeepsPreviousPose(t *testing.T) {
	c, node := newTestController(t, unitPlan)
	_, err := capture(t, c, B1, Vec3{X: 2, Z: 2})
	require.NoError(t, err)
	_, err = capture(t, c, B2, Vec3{X: 2, Z: 5})
	require.NoError(t, err)
	before := node.Pose()
	beforeT, _ := c.Transform()

	_, err = capture(t, c, B2, Vec3{X: 2, Y: 1, Z: 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDegenerateInput))

	assert.Equal(t, before, node.Pose())
	afterT, ok := c.Transform()
	require.True(t, ok)
	assert.Equal(t, beforeT, afterT)

	s := c.Snapshot()
	assert.Contains(t, s.Status, "degenerate input")
	assert.Equal(t, s.Status, s.Error)
	require.NotNil(t, s.B2)
	assert.Equal(t, Vec3{X: 2, Y: 1, Z: 2}, *s.B2, "the rejected anchor is still stored")

	// Moving B2 away again recovers.
	_, err = capture(t, c, B2, Vec3{X: 2, Z: 8})
	require.NoError(t, err)
	assert.Empty(t, c.Snapshot().Error)
	assert.NotEqual(t, before, node.Pose())
}

func TestController_DegenerateFromScratch(t *testing.T) {
	c, node := newTestController(t, unitPlan)
	_, err := capture(t, c, B1, Vec3{})
	require.NoError(t, err)
	_, err = capture(t, c, B2, Vec3{})
	require.ErrorIs(t, err, ErrDegenerateInput)

	assert.Equal(t, IdentityPose(), node.Pose())
	_, ok := c.Transform()
	assert.False(t, ok)
}

func TestController_Reset(t *testing.T) {
	c, node := newTestController(t, unitPlan)
	_, _ = capture(t, c, B1, Vec3{X: 2, Z: 2})
	_, _ = capture(t, c, B2, Vec3{X: 2, Z: 5})
	applied := node.Pose()

	c.Reset()

	s := c.Snapshot()
	assert.Equal(t, "session-2", s.SessionID)
	assert.Equal(t, CompletionNone, s.Completion)
	assert.Nil(t, s.B1)
	assert.Nil(t, s.B2)
	assert.Equal(t, StatusAwaitingAnchors, s.Status)
	assert.Equal(t, unitPlan, s.Plan)
	assert.Equal(t, StateTracking, s.State, "reset does not drop the current hit")
	assert.Equal(t, applied, node.Pose())

	_, err := c.Set(B1)
	require.NoError(t, err)
	assert.Equal(t, CompletionOneSet, c.Snapshot().Completion)
}

func TestController_HitOnPlan(t *testing.T) {
	c, _ := newTestController(t, unitPlan)
	_, _ = capture(t, c, B1, Vec3{X: 2, Z: 2})
	_, _ = capture(t, c, B2, Vec3{X: 2, Z: 5})

	c.UpdateHit(&Vec3{X: 2, Y: 0.3, Z: 5})
	s := c.Snapshot()
	require.NotNil(t, s.HitOnPlan)
	assert.InDelta(t, 1.0, s.HitOnPlan.X, tolerance)
	assert.InDelta(t, 0.0, s.HitOnPlan.Z, tolerance)

	c.UpdateHit(nil)
	assert.Nil(t, c.Snapshot().HitOnPlan)
}

func TestController_Events(t *testing.T) {
	c, _ := newTestController(t, unitPlan)

	var mu sync.Mutex
	var kinds []EventKind
	c.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, ev.Kind)
		// Observers run outside the lock and may read back.
		_ = c.Snapshot()
	})

	c.UpdateHit(&Vec3{X: 2, Z: 2})
	c.UpdateHit(&Vec3{X: 2.1, Z: 2}) // still tracking: no event
	_, _ = c.Set(B1)
	c.UpdateHit(&Vec3{X: 2, Z: 5})
	_, _ = c.Set(B2)
	c.UpdateHit(nil)
	_, _ = c.Set(B1)
	c.Reset()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventKind{
		EventTracking,
		EventAnchor,
		EventApplied,
		EventTracking,
		EventFailed,
		EventReset,
	}, kinds)
}

func TestController_AppliedEventCarriesTransform(t *testing.T) {
	c, _ := newTestController(t, unitPlan)
	var last Event
	c.Subscribe(func(ev Event) { last = ev })

	_, _ = capture(t, c, B1, Vec3{X: 2, Z: 2})
	_, _ = capture(t, c, B2, Vec3{X: 2, Z: 5})

	assert.Equal(t, EventApplied, last.Kind)
	require.NotNil(t, last.Snapshot.Transform)
	assert.InDelta(t, 3.0, last.Snapshot.Transform.Scale, tolerance)
}

func TestController_UniformApplier(t *testing.T) {
	c, node := newTestController(t, unitPlan, WithApplier(&Applier{VerticalScale: VerticalScaleUniform}))
	_, _ = capture(t, c, B1, Vec3{X: 0, Z: 0})
	_, err := capture(t, c, B2, Vec3{X: 0, Z: 2})
	require.NoError(t, err)

	assert.InDelta(t, 2.0, node.Pose().Scale.Y, tolerance)
}

func TestController_Logs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c, _ := newTestController(t, unitPlan, WithLogger(zap.New(core)))

	_, _ = c.Set(B1)
	_, _ = capture(t, c, B1, Vec3{X: 2, Z: 2})
	_, _ = capture(t, c, B2, Vec3{X: 2, Z: 5})

	assert.Equal(t, 1, logs.FilterMessage("set ignored: no current hit").Len())
	assert.Equal(t, 2, logs.FilterMessage("anchor captured").Len())
	applied := logs.FilterMessage("alignment applied").All()
	require.Len(t, applied, 1)
	assert.Equal(t, "session-1", applied[0].ContextMap()["session"])
}

func TestController_DefaultSessionIDIsUUID(t *testing.T) {
	c := NewController(unitPlan, NewSceneNode("plan"))
	id := c.Snapshot().SessionID
	assert.Len(t, id, 36)
	c.Reset()
	assert.NotEqual(t, id, c.Snapshot().SessionID)
}

func TestController_ConcurrentUse(t *testing.T) {
	c, _ := newTestController(t, unitPlan)
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				hit := Vec3{X: float64(i), Z: float64(j)}
				c.UpdateHit(&hit)
				if j%2 == 0 {
					_, _ = c.Set(B1)
				} else {
					_, _ = c.Set(B2)
				}
				_ = c.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	s := c.Snapshot()
	assert.Equal(t, CompletionBothSet, s.Completion)
	assert.Equal(t, StateTracking, s.State)
}
