package scene

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"poseplanner.ai/internal/geom"
)

var ErrMalformedDescriptor = errors.New("malformed object descriptor")

// FloorType is excluded from legality accounting.
const FloorType = "Floor"

// ObjectDescriptor is an immutable per-step snapshot of one scene object.
type ObjectDescriptor struct {
	ID         string       `json:"object_id"`
	Type       string       `json:"object_type"`
	Name       string       `json:"name,omitempty"`
	Position   geom.Point3D `json:"position"`
	FacingYaw  float64      `json:"facing_yaw"`
	BoxSize    geom.Point3D `json:"bbox_size"`
	BoxCenter  geom.Point3D `json:"bbox_center"`
	Visible    bool         `json:"visible"`
	Receptacle bool         `json:"receptacle"`
	Openable   bool         `json:"openable"`
	IsOpen     bool         `json:"is_open,omitempty"`
	Toggleable bool         `json:"toggleable,omitempty"`
	IsToggled  bool         `json:"is_toggled,omitempty"`
	Contents   []string     `json:"receptacle_contents,omitempty"`
}

func (o ObjectDescriptor) Volume() float64 {
	return o.BoxSize.X * o.BoxSize.Y * o.BoxSize.Z
}

// SurfaceArea is the largest face of the bounding box.
func (o ObjectDescriptor) SurfaceArea() float64 {
	s := o.BoxSize
	return math.Max(s.X*s.Y, math.Max(s.X*s.Z, s.Y*s.Z))
}

// LowestPoint is the bottom of the bounding box.
func (o ObjectDescriptor) LowestPoint() float64 {
	return o.BoxCenter.Y - o.BoxSize.Y/2
}

func (o ObjectDescriptor) Contains(objectID string) bool {
	for _, id := range o.Contents {
		if id == objectID {
			return true
		}
	}
	return false
}

// ContentTypes returns the type prefix of every contained object id ("Apple|1|2" -> "Apple").
func (o ObjectDescriptor) ContentTypes() []string {
	out := make([]string, 0, len(o.Contents))
	for _, id := range o.Contents {
		out = append(out, TypeOfID(id))
	}
	return out
}

func TypeOfID(id string) string {
	if i := strings.IndexByte(id, '|'); i >= 0 {
		return id[:i]
	}
	return id
}

func (o ObjectDescriptor) Validate() error {
	if strings.TrimSpace(o.ID) == "" {
		return fmt.Errorf("%w: empty object id", ErrMalformedDescriptor)
	}
	if strings.TrimSpace(o.Type) == "" {
		return fmt.Errorf("%w: %s: empty object type", ErrMalformedDescriptor, o.ID)
	}
	for _, v := range []float64{
		o.Position.X, o.Position.Y, o.Position.Z, o.FacingYaw,
		o.BoxCenter.X, o.BoxCenter.Y, o.BoxCenter.Z,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s: non-finite coordinate", ErrMalformedDescriptor, o.ID)
		}
	}
	for _, v := range []float64{o.BoxSize.X, o.BoxSize.Y, o.BoxSize.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s: bad bounding box size", ErrMalformedDescriptor, o.ID)
		}
	}
	return nil
}

// CandidatePose is a simulator-reported position the agent could occupy,
// optionally with the facing yaw the simulator suggests for it.
type CandidatePose struct {
	Position geom.Point3D `json:"position"`
	Yaw      float64      `json:"yaw,omitempty"`
	HasYaw   bool         `json:"has_yaw,omitempty"`
}

func Candidates(points []geom.Point3D) []CandidatePose {
	out := make([]CandidatePose, 0, len(points))
	for _, p := range points {
		out = append(out, CandidatePose{Position: p})
	}
	return out
}

// AgentPose is the agent/camera part of the scene metadata.
type AgentPose struct {
	Position       geom.Point3D  `json:"position"`
	Rotation       geom.Rotation `json:"rotation"`
	Horizon        float64       `json:"camera_horizon"`
	Standing       bool          `json:"is_standing"`
	CameraPosition geom.Point3D  `json:"camera_position"`
	HeldObjectID   string        `json:"held_object_id,omitempty"`
}

// CameraTilt is the upward camera pitch; the simulator horizon is positive looking down.
func (a AgentPose) CameraTilt() float64 { return -a.Horizon }

// Metadata is the full scene snapshot returned by every simulator call.
type Metadata struct {
	Objects      []ObjectDescriptor `json:"objects"`
	Agent        AgentPose          `json:"agent"`
	SceneBounds  []geom.Point3D     `json:"scene_bounds,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
	FrameRef     string             `json:"frame_ref,omitempty"`
}

func (m Metadata) Validate() error {
	seen := make(map[string]struct{}, len(m.Objects))
	for _, o := range m.Objects {
		if err := o.Validate(); err != nil {
			return err
		}
		if _, dup := seen[o.ID]; dup {
			return fmt.Errorf("%w: duplicate object id %s", ErrMalformedDescriptor, o.ID)
		}
		seen[o.ID] = struct{}{}
	}
	return nil
}

func (m Metadata) Object(id string) (ObjectDescriptor, bool) {
	for _, o := range m.Objects {
		if o.ID == id {
			return o, true
		}
	}
	return ObjectDescriptor{}, false
}

func (m Metadata) IsVisible(id string) bool {
	o, ok := m.Object(id)
	return ok && o.Visible
}

// Corners returns the four floor-plan corners used for initial placement
// (indices 2, 3, 6, 7 of the 8-point scene bound).
func (m Metadata) Corners() ([4]geom.Point3D, bool) {
	var out [4]geom.Point3D
	if len(m.SceneBounds) < 8 {
		return out, false
	}
	out[0] = m.SceneBounds[2]
	out[1] = m.SceneBounds[3]
	out[2] = m.SceneBounds[6]
	out[3] = m.SceneBounds[7]
	return out, true
}
