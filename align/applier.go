package align

import (
	"fmt"
	"sync"
)

// VerticalScaleMode selects the scale factor applied along the up axis.
type VerticalScaleMode string

const (
	// VerticalScaleFlat keeps the vertical scale at 1. A floor drawing has no height.
	VerticalScaleFlat VerticalScaleMode = "flat"
	// VerticalScaleUniform stretches the up axis by the horizontal scale as well.
	VerticalScaleUniform VerticalScaleMode = "uniform"
)

// HeightMode selects the vertical position written by the applier.
type HeightMode string

const (
	// HeightZero uses the transform translation as-is (y = 0).
	HeightZero HeightMode = "zero"
	// HeightKeep preserves the node's current vertical offset.
	HeightKeep HeightMode = "keep"
)

// Node is the scene target the alignment is written to.
type Node interface {
	Pose() Pose
	SetPose(Pose)
}

// Applier writes a Transform2D onto a Node as an absolute pose.
type Applier struct {
	VerticalScale VerticalScaleMode
	Height        HeightMode
}

// NewApplier returns an applier with the default policy: vertical scale 1, height 0.
func NewApplier() *Applier {
	return &Applier{VerticalScale: VerticalScaleFlat, Height: HeightZero}
}

// Validate checks the policy values.
func (ap *Applier) Validate() error {
	switch ap.VerticalScale {
	case "", VerticalScaleFlat, VerticalScaleUniform:
	default:
		return fmt.Errorf("unknown vertical scale mode %q", ap.VerticalScale)
	}
	switch ap.Height {
	case "", HeightZero, HeightKeep:
	default:
		return fmt.Errorf("unknown height mode %q", ap.Height)
	}
	return nil
}

// Pose computes the pose t would give a node currently at current.
func (ap *Applier) Pose(current Pose, t Transform2D) Pose {
	vertical := 1.0
	if ap.VerticalScale == VerticalScaleUniform {
		vertical = t.Scale
	}

	position := t.Translation
	if ap.Height == HeightKeep {
		position.Y = current.Position.Y
	}

	return Pose{
		Scale:    Vec3{X: t.Scale, Y: vertical, Z: t.Scale},
		Yaw:      t.Yaw,
		Position: position,
	}
}

// Apply assigns the pose for t to node and returns it. The assignment is absolute, so
// applying the same transform twice leaves the node where one call did.
func (ap *Applier) Apply(node Node, t Transform2D) Pose {
	pose := ap.Pose(node.Pose(), t)
	node.SetPose(pose)
	return pose
}

// SceneNode is an in-memory Node, used as the plan root when no engine is attached.
type SceneNode struct {
	mu   sync.RWMutex
	name string
	pose Pose
}

// NewSceneNode creates a node at the identity pose.
func NewSceneNode(name string) *SceneNode {
	return &SceneNode{name: name, pose: IdentityPose()}
}

// Name returns the node name.
func (n *SceneNode) Name() string {
	return n.name
}

// Pose returns a copy of the current pose.
func (n *SceneNode) Pose() Pose {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.pose
}

// SetPose replaces the pose.
func (n *SceneNode) SetPose(p Pose) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pose = p
}
