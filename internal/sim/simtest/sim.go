// Package simtest is a deterministic in-memory simulator. Tests drive it
// directly; cmd/simserver exposes it over websocket.
package simtest

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/zyedidia/generic/mapset"

	"poseplanner.ai/internal/geom"
	"poseplanner.ai/internal/scene"
	"poseplanner.ai/internal/sim"
)

const (
	EyeStanding  = 1.5
	EyeCrouching = 0.9

	// Horizon range accepted by Look/Teleport (positive looks down).
	MinHorizon = -30
	MaxHorizon = 60

	gridEpsilon = 1e-6
)

type Sim struct {
	mu sync.Mutex

	objects   []scene.ObjectDescriptor
	agent     scene.AgentPose
	bounds    []geom.Point3D
	reachable []geom.Point3D
	poses     map[string][]scene.CandidatePose

	blocked          mapset.Set[geom.Point3D]
	hideWhenCrouched mapset.Set[string]
	hideWhenStanding mapset.Set[string]

	frames int
	calls  []string
}

type Config struct {
	Objects   []scene.ObjectDescriptor
	Agent     scene.AgentPose
	Bounds    []geom.Point3D
	Reachable []geom.Point3D
	// Poses are the interactable poses per object id. Objects without an
	// entry get every reachable position as a candidate.
	Poses map[string][]scene.CandidatePose
}

func New(cfg Config) *Sim {
	s := &Sim{
		objects:          append([]scene.ObjectDescriptor(nil), cfg.Objects...),
		agent:            cfg.Agent,
		bounds:           append([]geom.Point3D(nil), cfg.Bounds...),
		reachable:        append([]geom.Point3D(nil), cfg.Reachable...),
		poses:            map[string][]scene.CandidatePose{},
		blocked:          mapset.New[geom.Point3D](),
		hideWhenCrouched: mapset.New[string](),
		hideWhenStanding: mapset.New[string](),
	}
	for id, ps := range cfg.Poses {
		s.poses[id] = append([]scene.CandidatePose(nil), ps...)
	}
	s.placeCamera()
	return s
}

// Block makes teleports and moves onto p fail.
func (s *Sim) Block(points ...geom.Point3D) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.blocked.Put(p)
	}
}

// HideWhenCrouched makes the object invisible while the agent crouches.
func (s *Sim) HideWhenCrouched(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.hideWhenCrouched.Put(id)
	}
}

// HideWhenStanding makes the object invisible while the agent stands.
func (s *Sim) HideWhenStanding(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.hideWhenStanding.Put(id)
	}
}

// Calls lists every command received, formatted as "op arg...".
func (s *Sim) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *Sim) Agent() scene.AgentPose {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agent
}

func (s *Sim) record(format string, args ...any) {
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func (s *Sim) placeCamera() {
	eye := EyeCrouching
	if s.agent.Standing {
		eye = EyeStanding
	}
	s.agent.CameraPosition = geom.Point3D{X: s.agent.Position.X, Y: s.agent.Position.Y + eye, Z: s.agent.Position.Z}
}

func (s *Sim) metadataLocked(errMsg string) scene.Metadata {
	enclosed := mapset.New[string]()
	for _, o := range s.objects {
		if o.Openable && !o.IsOpen {
			for _, id := range o.Contents {
				enclosed.Put(id)
			}
		}
	}
	objs := make([]scene.ObjectDescriptor, len(s.objects))
	for i, o := range s.objects {
		o.Contents = append([]string(nil), o.Contents...)
		if enclosed.Has(o.ID) {
			o.Visible = false
		}
		if o.Visible {
			if s.agent.Standing && s.hideWhenStanding.Has(o.ID) {
				o.Visible = false
			}
			if !s.agent.Standing && s.hideWhenCrouched.Has(o.ID) {
				o.Visible = false
			}
		}
		objs[i] = o
	}
	return scene.Metadata{
		Objects:      objs,
		Agent:        s.agent,
		SceneBounds:  append([]geom.Point3D(nil), s.bounds...),
		ErrorMessage: errMsg,
	}
}

func (s *Sim) result(ok bool, errMsg string) sim.Result {
	if ok {
		errMsg = ""
	}
	return sim.Result{Success: ok, ErrorMessage: errMsg, Metadata: s.metadataLocked(errMsg)}
}

func (s *Sim) objectIndex(id string) int {
	for i := range s.objects {
		if s.objects[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Sim) onGrid(p geom.Point3D) (geom.Point3D, bool) {
	for _, r := range s.reachable {
		if math.Abs(r.X-p.X) < gridEpsilon && math.Abs(r.Z-p.Z) < gridEpsilon {
			return r, true
		}
	}
	return geom.Point3D{}, false
}

func (s *Sim) ReachablePositions(ctx context.Context) ([]geom.Point3D, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("reachable")
	return append([]geom.Point3D(nil), s.reachable...), nil
}

func (s *Sim) InteractablePoses(ctx context.Context, objectID string) ([]scene.CandidatePose, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("poses %s", objectID)
	if s.objectIndex(objectID) < 0 {
		return nil, &sim.BadArgumentError{Op: "poses", Reason: "unknown object " + objectID}
	}
	if ps, ok := s.poses[objectID]; ok {
		return append([]scene.CandidatePose(nil), ps...), nil
	}
	return scene.Candidates(s.reachable), nil
}

func (s *Sim) Teleport(ctx context.Context, pos geom.Point3D, rot geom.Rotation, horizon float64, standing bool) (sim.Result, error) {
	if err := ctx.Err(); err != nil {
		return sim.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("teleport %.2f,%.2f,%.2f yaw=%g horizon=%g standing=%v", pos.X, pos.Y, pos.Z, rot.Y, horizon, standing)
	if s.blocked.Has(pos) {
		return s.result(false, "position blocked"), nil
	}
	if _, ok := s.onGrid(pos); !ok {
		return s.result(false, "position not reachable"), nil
	}
	if horizon < MinHorizon || horizon > MaxHorizon {
		return s.result(false, "horizon out of range"), nil
	}
	s.agent.Position = pos
	s.agent.Rotation = geom.Rotation{Y: geom.NormalizeDegrees(rot.Y)}
	s.agent.Horizon = horizon
	s.agent.Standing = standing
	s.placeCamera()
	return s.result(true, ""), nil
}

func (s *Sim) Rotate(ctx context.Context, dir sim.Direction, degrees float64) (sim.Result, error) {
	if err := ctx.Err(); err != nil {
		return sim.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("rotate %s %g", dir, degrees)
	switch dir {
	case sim.DirLeft:
		s.agent.Rotation.Y = geom.NormalizeDegrees(s.agent.Rotation.Y - degrees)
	case sim.DirRight:
		s.agent.Rotation.Y = geom.NormalizeDegrees(s.agent.Rotation.Y + degrees)
	default:
		return sim.Result{}, &sim.BadArgumentError{Op: "rotate", Reason: "bad direction " + string(dir)}
	}
	return s.result(true, ""), nil
}

func (s *Sim) Look(ctx context.Context, dir sim.Direction, degrees float64) (sim.Result, error) {
	if err := ctx.Err(); err != nil {
		return sim.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("look %s %g", dir, degrees)
	h := s.agent.Horizon
	switch dir {
	case sim.DirUp:
		h -= degrees
	case sim.DirDown:
		h += degrees
	default:
		return sim.Result{}, &sim.BadArgumentError{Op: "look", Reason: "bad direction " + string(dir)}
	}
	if h < MinHorizon-gridEpsilon || h > MaxHorizon+gridEpsilon {
		return s.result(false, "camera out of range"), nil
	}
	s.agent.Horizon = h
	return s.result(true, ""), nil
}

func (s *Sim) Stand(ctx context.Context) (sim.Result, error) {
	return s.posture(ctx, true)
}

func (s *Sim) Crouch(ctx context.Context) (sim.Result, error) {
	return s.posture(ctx, false)
}

func (s *Sim) posture(ctx context.Context, standing bool) (sim.Result, error) {
	if err := ctx.Err(); err != nil {
		return sim.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if standing {
		s.record("stand")
	} else {
		s.record("crouch")
	}
	s.agent.Standing = standing
	s.placeCamera()
	return s.result(true, ""), nil
}

// Move steps relative to the agent's heading. The destination must be a
// reachable grid position that is not blocked.
func (s *Sim) Move(ctx context.Context, dir sim.Direction, meters float64) (sim.Result, error) {
	if err := ctx.Err(); err != nil {
		return sim.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("move %s %g", dir, meters)

	heading := s.agent.Rotation.Y
	switch dir {
	case sim.DirAhead:
	case sim.DirBack:
		heading += 180
	case sim.DirRight:
		heading += 90
	case sim.DirLeft:
		heading -= 90
	default:
		return sim.Result{}, &sim.BadArgumentError{Op: "move", Reason: "bad direction " + string(dir)}
	}
	rad := heading * math.Pi / 180
	next := geom.Point3D{
		X: s.agent.Position.X + meters*math.Sin(rad),
		Y: s.agent.Position.Y,
		Z: s.agent.Position.Z + meters*math.Cos(rad),
	}
	p, ok := s.onGrid(next)
	if !ok || s.blocked.Has(p) {
		return s.result(false, "move blocked"), nil
	}
	s.agent.Position = p
	s.placeCamera()
	return s.result(true, ""), nil
}

func (s *Sim) Interact(ctx context.Context, kind sim.Interaction, objectID string) (sim.Result, error) {
	if err := ctx.Err(); err != nil {
		return sim.Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("%s %s", kind, objectID)
	if !kind.Valid() {
		return sim.Result{}, &sim.BadArgumentError{Op: "interact", Reason: "bad interaction " + string(kind)}
	}
	i := s.objectIndex(objectID)
	if i < 0 {
		return s.result(false, "unknown object "+objectID), nil
	}
	if !s.metadataLocked("").Objects[i].Visible {
		return s.result(false, objectID+" is not visible"), nil
	}
	o := &s.objects[i]
	switch kind {
	case sim.InteractPickup:
		if s.agent.HeldObjectID != "" {
			return s.result(false, "hand is full"), nil
		}
		s.agent.HeldObjectID = o.ID
		for j := range s.objects {
			s.objects[j].Contents = without(s.objects[j].Contents, o.ID)
		}
	case sim.InteractPut:
		if s.agent.HeldObjectID == "" {
			return s.result(false, "nothing held"), nil
		}
		if !o.Receptacle {
			return s.result(false, objectID+" is not a receptacle"), nil
		}
		if o.Openable && !o.IsOpen {
			return s.result(false, objectID+" is closed"), nil
		}
		o.Contents = append(o.Contents, s.agent.HeldObjectID)
		s.agent.HeldObjectID = ""
	case sim.InteractOpen, sim.InteractClose:
		if !o.Openable {
			return s.result(false, objectID+" is not openable"), nil
		}
		o.IsOpen = kind == sim.InteractOpen
	case sim.InteractToggleOn, sim.InteractToggleOff:
		if !o.Toggleable {
			return s.result(false, objectID+" is not toggleable"), nil
		}
		o.IsToggled = kind == sim.InteractToggleOn
	}
	return s.result(true, ""), nil
}

func (s *Sim) Scene(ctx context.Context) (scene.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return scene.Metadata{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadataLocked(""), nil
}

func (s *Sim) Frame(ctx context.Context, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	s.record("frame %s", label)
	return fmt.Sprintf("frame-%04d-%s", s.frames, label), nil
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

var _ sim.Simulator = (*Sim)(nil)
