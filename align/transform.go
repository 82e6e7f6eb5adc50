package align

import (
	"math"

	"github.com/paulmach/orb/planar"
)

// AffineMatrix for horizontal-plane transforms: x' = ax + bz + tx, z' = cx + dz + tz
type AffineMatrix struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	Tx float64 `json:"tx"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	Tz float64 `json:"tz"`
}

// Identity returns an identity matrix (no transformation)
func Identity() AffineMatrix {
	return AffineMatrix{A: 1, B: 0, Tx: 0, C: 0, D: 1, Tz: 0}
}

// TransformPoint applies an affine transform to a point
// x' = a*x + b*z + tx
// z' = c*x + d*z + tz
func TransformPoint(p Point2, m AffineMatrix) Point2 {
	return Point2{
		X: m.A*p.X + m.B*p.Z + m.Tx,
		Z: m.C*p.X + m.D*p.Z + m.Tz,
	}
}

// MultiplyMatrices composes two affine transforms: result = m1 * m2
// Applying result is equivalent to applying m2 first, then m1
func MultiplyMatrices(m1, m2 AffineMatrix) AffineMatrix {
	return AffineMatrix{
		A:  m1.A*m2.A + m1.B*m2.C,
		B:  m1.A*m2.B + m1.B*m2.D,
		Tx: m1.A*m2.Tx + m1.B*m2.Tz + m1.Tx,
		C:  m1.C*m2.A + m1.D*m2.C,
		D:  m1.C*m2.B + m1.D*m2.D,
		Tz: m1.C*m2.Tx + m1.D*m2.Tz + m1.Tz,
	}
}

// InvertMatrix computes the inverse of an affine transform
// Returns identity if matrix is singular (determinant ~= 0)
func InvertMatrix(m AffineMatrix) AffineMatrix {
	det := m.A*m.D - m.B*m.C
	if math.Abs(det) < 1e-12 {
		return Identity()
	}

	invDet := 1.0 / det
	return AffineMatrix{
		A:  m.D * invDet,
		B:  -m.B * invDet,
		Tx: (m.B*m.Tz - m.D*m.Tx) * invDet,
		C:  -m.C * invDet,
		D:  m.A * invDet,
		Tz: (m.C*m.Tx - m.A*m.Tz) * invDet,
	}
}

// Translation creates a translation-only transform
func Translation(tx, tz float64) AffineMatrix {
	return AffineMatrix{A: 1, B: 0, Tx: tx, C: 0, D: 1, Tz: tz}
}

// Rotation creates a yaw rotation (radians) around the origin, turning +X toward +Z
func Rotation(angle float64) AffineMatrix {
	cos := math.Cos(angle)
	sin := math.Sin(angle)
	return AffineMatrix{A: cos, B: -sin, Tx: 0, C: sin, D: cos, Tz: 0}
}

// Scale creates a scaling transform
func Scale(sx, sz float64) AffineMatrix {
	return AffineMatrix{A: sx, B: 0, Tx: 0, C: 0, D: sz, Tz: 0}
}

// rotateYaw rotates a horizontal point by yaw radians about the vertical axis.
// Same convention as Rotation: atan2(z, x) of the result grows by yaw.
func rotateYaw(p Point2, yaw float64) Point2 {
	cos := math.Cos(yaw)
	sin := math.Sin(yaw)
	return Point2{
		X: p.X*cos - p.Z*sin,
		Z: p.X*sin + p.Z*cos,
	}
}

// NormalizeYawDegrees wraps an angle in degrees into (-180, 180].
// Presentation only; the solver never wraps yaw.
func NormalizeYawDegrees(degrees float64) float64 {
	degrees = math.Mod(degrees, 360)
	if degrees <= -180 {
		degrees += 360
	} else if degrees > 180 {
		degrees -= 360
	}
	return degrees
}

// Distance calculates Euclidean distance between two horizontal points
func Distance(p1, p2 Point2) float64 {
	return planar.Distance(p1.Orb(), p2.Orb())
}
