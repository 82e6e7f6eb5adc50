package align

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tolerance = 1e-6

func assertVec3Near(t *testing.T, want, got Vec3, msgAndArgs ...interface{}) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, tolerance, msgAndArgs...)
	assert.InDelta(t, want.Y, got.Y, tolerance, msgAndArgs...)
	assert.InDelta(t, want.Z, got.Z, tolerance, msgAndArgs...)
}

func TestSolve_QuarterTurnTripleScale(t *testing.T) {
	a1, a2 := Point2{X: 0, Z: 0}, Point2{X: 1, Z: 0}
	b1, b2 := Point2{X: 2, Z: 2}, Point2{X: 2, Z: 5}

	tr, err := Solve(a1, a2, b1, b2)
	require.NoError(t, err)

	assert.InDelta(t, 3.0, tr.Scale, tolerance)
	assert.InDelta(t, math.Pi/2, tr.Yaw, tolerance)
	assert.InDelta(t, 90.0, tr.YawDegrees(), 1e-9)
	assertVec3Near(t, Vec3{X: 2, Y: 0, Z: 2}, tr.Apply(a1))
	assertVec3Near(t, Vec3{X: 2, Y: 0, Z: 5}, tr.Apply(a2))
	assert.Equal(t, "scale=3.000, yaw=90.0°, pos=(2.000, 0.000, 2.000)", tr.String())
}

func TestSolve_Degenerate(t *testing.T) {
	tests := []struct {
		name           string
		a1, a2, b1, b2 Point2
	}{
		{
			name: "captured anchors coincide",
			a1:   Point2{X: 0, Z: 0}, a2: Point2{X: 1, Z: 0},
			b1: Point2{X: 0, Z: 0}, b2: Point2{X: 0, Z: 0},
		},
		{
			name: "plan anchors coincide",
			a1:   Point2{X: 3, Z: 4}, a2: Point2{X: 3, Z: 4},
			b1: Point2{X: 0, Z: 0}, b2: Point2{X: 1, Z: 1},
		},
		{
			name: "captured baseline below epsilon",
			a1:   Point2{X: 0, Z: 0}, a2: Point2{X: 1, Z: 0},
			b1: Point2{X: 1, Z: 1}, b2: Point2{X: 1 + 1e-7, Z: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := Solve(tt.a1, tt.a2, tt.b1, tt.b2)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDegenerateInput), "got %v", err)
			assert.Equal(t, Transform2D{}, tr)
		})
	}
}

func TestSolve_BaselineJustAboveEpsilon(t *testing.T) {
	_, err := Solve(Point2{}, Point2{X: 1}, Point2{}, Point2{X: 2e-6})
	assert.NoError(t, err)
}

func TestSolve_ViewerAnchors(t *testing.T) {
	// The viewer's plan: A1 = 1500 mm along x, A2 at the drawing origin.
	pa := PlanAnchors{A1: Point2{X: 1.5}, A2: Point2{}}
	b1 := Point2{X: 0, Z: 0}
	b2 := Point2{X: 0, Z: 1.5}

	tr, err := SolveAnchors(pa, b1, b2)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, tr.Scale, tolerance)
	assert.InDelta(t, -90.0, tr.YawDegrees(), 1e-9)
	assertVec3Near(t, Vec3{X: 0, Z: 0}, tr.Apply(pa.A1))
	assertVec3Near(t, Vec3{X: 0, Z: 1.5}, tr.Apply(pa.A2))
}

func TestSolve_YawIsNotWrapped(t *testing.T) {
	// vA points at ~+170°, vB at ~-170°: raw difference is -340°.
	a1 := Point2{}
	a2 := Point2{X: math.Cos(170 * math.Pi / 180), Z: math.Sin(170 * math.Pi / 180)}
	b1 := Point2{}
	b2 := Point2{X: math.Cos(-170 * math.Pi / 180), Z: math.Sin(-170 * math.Pi / 180)}

	tr, err := Solve(a1, a2, b1, b2)
	require.NoError(t, err)

	assert.InDelta(t, -340*math.Pi/180, tr.Yaw, 1e-9)
	assert.InDelta(t, 20.0, tr.YawDegrees(), 1e-9)
	assertVec3Near(t, Vec3{X: b2.X, Z: b2.Z}, tr.Apply(a2))
}

func TestSolve_MapsBothAnchors(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	randPoint := func() Point2 {
		return Point2{X: rng.Float64()*100 - 50, Z: rng.Float64()*100 - 50}
	}

	checked := 0
	for checked < 500 {
		a1, a2, b1, b2 := randPoint(), randPoint(), randPoint(), randPoint()
		if Distance(a1, a2) < 0.1 || Distance(b1, b2) < 0.1 {
			continue
		}
		checked++

		tr, err := Solve(a1, a2, b1, b2)
		require.NoError(t, err)

		assert.Greater(t, tr.Scale, 0.0)
		assert.InDelta(t, Distance(b1, b2)/Distance(a1, a2), tr.Scale, 1e-9)
		assertVec3Near(t, Vec3{X: b1.X, Z: b1.Z}, tr.Apply(a1), "T(A1) for %v->%v", a1, b1)
		assertVec3Near(t, Vec3{X: b2.X, Z: b2.Z}, tr.Apply(a2), "T(A2) for %v->%v", a2, b2)
	}
}

func TestSolve_Deterministic(t *testing.T) {
	a1, a2 := Point2{X: 1, Z: 2}, Point2{X: -3, Z: 7}
	b1, b2 := Point2{X: 10, Z: -1}, Point2{X: 4, Z: 4}

	first, err := Solve(a1, a2, b1, b2)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Solve(a1, a2, b1, b2)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestTransform2D_InverseRoundTrip(t *testing.T) {
	tr, err := Solve(Point2{X: 1, Z: 1}, Point2{X: 4, Z: 5}, Point2{X: -2, Z: 3}, Point2{X: 8, Z: -1})
	require.NoError(t, err)

	for _, p := range []Point2{{X: 0, Z: 0}, {X: 1, Z: 1}, {X: -7.5, Z: 2.25}} {
		back := tr.Inverse(tr.Apply(p))
		assert.InDelta(t, p.X, back.X, tolerance)
		assert.InDelta(t, p.Z, back.Z, tolerance)
	}
}

func TestTransform2D_MatrixMatchesApply(t *testing.T) {
	tr := Transform2D{Scale: 2.5, Yaw: 0.7, Translation: Vec3{X: -1, Z: 4}}
	p := Point2{X: 3, Z: -2}

	viaMatrix := TransformPoint(p, tr.Matrix())
	direct := tr.Apply(p)

	assert.InDelta(t, direct.X, viaMatrix.X, 1e-12)
	assert.InDelta(t, direct.Z, viaMatrix.Z, 1e-12)
}
