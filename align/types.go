package align

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
)

// Point2 is a horizontal-plane coordinate. Height is never part of the alignment math.
type Point2 struct {
	X float64 `yaml:"x" json:"x"`
	Z float64 `yaml:"z" json:"z"`
}

// Sub returns p - q
func (p Point2) Sub(q Point2) Point2 {
	return Point2{X: p.X - q.X, Z: p.Z - q.Z}
}

// Scale returns p scaled by s around the origin
func (p Point2) Scale(s float64) Point2 {
	return Point2{X: p.X * s, Z: p.Z * s}
}

// Orb converts the point to an orb.Point (x, z) for planar geometry helpers.
func (p Point2) Orb() orb.Point {
	return orb.Point{p.X, p.Z}
}

// Vec3 is a position in real-world tracking space (y up).
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Horizontal drops the vertical component.
func (v Vec3) Horizontal() Point2 {
	return Point2{X: v.X, Z: v.Z}
}

// String formats the vector the way the viewer status line does.
func (v Vec3) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", v.X, v.Y, v.Z)
}

// PlanAnchors are the two fixed plan-space correspondence points.
type PlanAnchors struct {
	A1 Point2 `json:"a1"`
	A2 Point2 `json:"a2"`
}

// AnchorTarget names one of the two captured real-space anchors.
type AnchorTarget string

const (
	B1 AnchorTarget = "B1"
	B2 AnchorTarget = "B2"
)

// ParseAnchorTarget accepts "B1"/"B2" in any case.
func ParseAnchorTarget(s string) (AnchorTarget, error) {
	switch AnchorTarget(strings.ToUpper(strings.TrimSpace(s))) {
	case B1:
		return B1, nil
	case B2:
		return B2, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTarget, s)
}

// Transform2D is a similarity transform from plan space onto the real-space floor:
// uniform horizontal scale, rotation about the vertical axis, then translation.
type Transform2D struct {
	Scale       float64 `json:"scale"`
	Yaw         float64 `json:"yawRadians"`
	Translation Vec3    `json:"translation"`
}

// Apply maps a plan point into real space. The result's height is Translation.Y.
func (t Transform2D) Apply(p Point2) Vec3 {
	r := rotateYaw(p.Scale(t.Scale), t.Yaw)
	return Vec3{X: r.X + t.Translation.X, Y: t.Translation.Y, Z: r.Z + t.Translation.Z}
}

// Matrix returns the horizontal part of the transform as an affine matrix over (x, z).
func (t Transform2D) Matrix() AffineMatrix {
	return MultiplyMatrices(
		Translation(t.Translation.X, t.Translation.Z),
		MultiplyMatrices(Rotation(t.Yaw), Scale(t.Scale, t.Scale)),
	)
}

// Inverse maps a real-space position back onto the plan.
func (t Transform2D) Inverse(v Vec3) Point2 {
	return TransformPoint(v.Horizontal(), InvertMatrix(t.Matrix()))
}

// YawDegrees returns the yaw wrapped to (-180, 180] for display.
func (t Transform2D) YawDegrees() float64 {
	return NormalizeYawDegrees(t.Yaw * 180 / math.Pi)
}

// String renders the operator status line, e.g.
// "scale=3.000, yaw=90.0°, pos=(2.000, 0.000, 2.000)".
func (t Transform2D) String() string {
	return fmt.Sprintf("scale=%.3f, yaw=%.1f°, pos=%s", t.Scale, t.YawDegrees(), t.Translation)
}

// Quaternion is a rotation in (x, y, z, w) order.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Pose is the absolute placement of a scene node. Orientation is restricted to yaw;
// pitch and roll do not exist in this representation.
type Pose struct {
	Scale    Vec3    `json:"scale"`
	Yaw      float64 `json:"yawRadians"`
	Position Vec3    `json:"position"`
}

// IdentityPose is the pose of an untransformed node.
func IdentityPose() Pose {
	return Pose{Scale: Vec3{X: 1, Y: 1, Z: 1}}
}

// Map places a node-local point into the parent frame: scale, then yaw, then translate.
func (p Pose) Map(local Vec3) Vec3 {
	h := rotateYaw(Point2{X: local.X * p.Scale.X, Z: local.Z * p.Scale.Z}, p.Yaw)
	return Vec3{
		X: h.X + p.Position.X,
		Y: local.Y*p.Scale.Y + p.Position.Y,
		Z: h.Z + p.Position.Z,
	}
}

// Quaternion returns the pose orientation for a right-handed, y-up engine.
// The yaw turns +X toward +Z, which is a negative rotation about +Y there.
func (p Pose) Quaternion() Quaternion {
	half := -p.Yaw / 2
	return Quaternion{Y: math.Sin(half), W: math.Cos(half)}
}
