package align

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// AlignmentRecord is an exported alignment: the correspondences and the transform
// solved from them.
type AlignmentRecord struct {
	Plan      string      `json:"plan,omitempty"`
	Anchors   PlanAnchors `json:"anchors"`
	B1        Vec3        `json:"b1"`
	B2        Vec3        `json:"b2"`
	Transform Transform2D `json:"transform"`
	Status    string      `json:"status"`
	CreatedAt int64       `json:"createdAt"`
}

// NewAlignmentRecord solves the correspondences and wraps the result in a record.
func NewAlignmentRecord(plan string, anchors PlanAnchors, b1, b2 Vec3) (*AlignmentRecord, error) {
	t, err := SolveAnchors(anchors, b1.Horizontal(), b2.Horizontal())
	if err != nil {
		return nil, err
	}
	return &AlignmentRecord{
		Plan:      plan,
		Anchors:   anchors,
		B1:        b1,
		B2:        b2,
		Transform: t,
		Status:    t.String(),
	}, nil
}

// Residuals returns how far T(A1) and T(A2) land from the recorded B1 and B2 on the
// horizontal plane.
func (r *AlignmentRecord) Residuals() (float64, float64) {
	return horizontalDistance(r.Transform.Apply(r.Anchors.A1), r.B1),
		horizontalDistance(r.Transform.Apply(r.Anchors.A2), r.B2)
}

// LoadAlignment loads an alignment record from a JSON file
func LoadAlignment(path string) (*AlignmentRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading alignment file: %w", err)
	}

	var rec AlignmentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing alignment file: %w", err)
	}

	return &rec, nil
}

// SaveAlignment writes an alignment record to a JSON file
func SaveAlignment(path string, rec *AlignmentRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating alignment directory: %w", err)
	}

	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling alignment record: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing alignment file: %w", err)
	}

	return nil
}

func horizontalDistance(a, b Vec3) float64 {
	return Distance(a.Horizontal(), b.Horizontal())
}
