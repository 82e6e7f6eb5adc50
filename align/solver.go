package align

import (
	"fmt"
	"math"
)

// Epsilon is the shortest usable baseline, in plan or real-space units.
const Epsilon = 1e-6

// Solve computes the similarity transform that maps plan anchors a1, a2 onto the
// captured positions b1, b2 on the horizontal plane.
//
// b1 is the origin correspondence: the translation is chosen so that a1 lands exactly on
// b1. b2 only fixes direction and length; with four constraints and four degrees of
// freedom it lands on a2 as well. Heights are ignored and the returned translation has
// Y = 0.
func Solve(a1, a2, b1, b2 Point2) (Transform2D, error) {
	lenA := Distance(a1, a2)
	lenB := Distance(b1, b2)
	if lenA < Epsilon {
		return Transform2D{}, fmt.Errorf("%w: plan baseline |A2-A1| = %g", ErrDegenerateInput, lenA)
	}
	if lenB < Epsilon {
		return Transform2D{}, fmt.Errorf("%w: captured baseline |B2-B1| = %g", ErrDegenerateInput, lenB)
	}

	vA := a2.Sub(a1)
	vB := b2.Sub(b1)

	scale := lenB / lenA
	yaw := math.Atan2(vB.Z, vB.X) - math.Atan2(vA.Z, vA.X)

	// translation = B1 - R(yaw) * (scale * A1)
	moved := rotateYaw(a1.Scale(scale), yaw)

	return Transform2D{
		Scale: scale,
		Yaw:   yaw,
		Translation: Vec3{
			X: b1.X - moved.X,
			Z: b1.Z - moved.Z,
		},
	}, nil
}

// SolveAnchors is Solve with the plan pair taken from pa.
func SolveAnchors(pa PlanAnchors, b1, b2 Point2) (Transform2D, error) {
	return Solve(pa.A1, pa.A2, b1, b2)
}
