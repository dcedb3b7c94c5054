// Package align fine-tunes camera pitch, heading and posture after the agent
// has arrived next to an object. Every command is best effort: a failed look,
// rotate or posture change is logged and the agent keeps its current pose.
package align

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"

	"poseplanner.ai/internal/geom"
	"poseplanner.ai/internal/scene"
	"poseplanner.ai/internal/sim"
)

var ErrUnknownObject = errors.New("align: object not in scene")

// angleEpsilon is the smallest look/rotate delta worth sending.
const angleEpsilon = 1e-6

type Config struct {
	// Simulator camera tilt range, degrees, positive up.
	MinTilt float64
	MaxTilt float64
	// Crouch when the eye is more than this above the object's lowest point.
	CrouchMargin float64
}

func DefaultConfig() Config {
	return Config{MinTilt: -60, MaxTilt: 30, CrouchMargin: 0.44}
}

type Aligner struct {
	cfg    Config
	logger *log.Logger
}

// New aligns with cfg; a zero Config means DefaultConfig.
func New(cfg Config, logger *log.Logger) *Aligner {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Aligner{cfg: cfg, logger: logger}
}

// Outcome describes what the aligner asked for and where the agent ended up.
type Outcome struct {
	TargetTilt float64  `json:"target_tilt"`
	TargetYaw  float64  `json:"target_yaw"`
	Standing   bool     `json:"standing"`
	Visible    bool     `json:"visible"`
	ViewSkip   bool     `json:"view_skipped,omitempty"`
	Failures   []string `json:"failures,omitempty"`
}

// Align orients the agent toward objectID starting from md, the metadata
// after arrival. When standing is non-nil the pose came from a known override:
// its recorded posture is copied and the view is left as teleported.
// Only transport errors are returned.
func (a *Aligner) Align(ctx context.Context, s sim.Simulator, md scene.Metadata, objectID string, standing *bool) (scene.Metadata, Outcome, error) {
	obj, ok := md.Object(objectID)
	if !ok {
		return md, Outcome{}, fmt.Errorf("%w: %s", ErrUnknownObject, objectID)
	}
	var out Outcome
	st := &step{a: a, sim: s, md: md, out: &out}

	if standing == nil {
		if err := st.view(ctx, obj); err != nil {
			return st.md, out, err
		}
	} else {
		out.ViewSkip = true
		out.TargetTilt = md.Agent.CameraTilt()
		out.TargetYaw = md.Agent.Rotation.Y
	}
	if err := st.height(ctx, obj, standing); err != nil {
		return st.md, out, err
	}
	out.Standing = st.md.Agent.Standing
	out.Visible = st.md.IsVisible(objectID)
	return st.md, out, nil
}

// step threads the latest metadata through a sequence of commands.
type step struct {
	a   *Aligner
	sim sim.Simulator
	md  scene.Metadata
	out *Outcome
}

func (st *step) apply(op string, res sim.Result, err error) error {
	if err != nil {
		return fmt.Errorf("align %s: %w", op, err)
	}
	if !res.Success {
		st.out.Failures = append(st.out.Failures, op+": "+res.ErrorMessage)
		st.a.logger.Printf("align: %s failed: %s", op, res.ErrorMessage)
		return nil
	}
	st.md = res.Metadata
	return nil
}

func (st *step) view(ctx context.Context, obj scene.ObjectDescriptor) error {
	cfg := st.a.cfg
	yaw, pitch := geom.LookAngles(st.md.Agent.CameraPosition, obj.BoxCenter)

	tilt := geom.Clamp(pitch, cfg.MinTilt, cfg.MaxTilt)
	st.out.TargetTilt = tilt
	if delta := tilt - st.md.Agent.CameraTilt(); math.Abs(delta) > angleEpsilon {
		dir := sim.DirUp
		if delta < 0 {
			dir = sim.DirDown
		}
		res, err := st.sim.Look(ctx, dir, math.Abs(delta))
		if err := st.apply(fmt.Sprintf("look %s %.1f", dir, math.Abs(delta)), res, err); err != nil {
			return err
		}
	}

	snapped := geom.SnapToOctant(geom.NormalizeDegrees(yaw))
	st.out.TargetYaw = snapped
	if turn := geom.DeltaDegrees(st.md.Agent.Rotation.Y, snapped); math.Abs(turn) > angleEpsilon {
		dir := sim.DirRight
		if turn < 0 {
			dir = sim.DirLeft
		}
		res, err := st.sim.Rotate(ctx, dir, math.Abs(turn))
		if err := st.apply(fmt.Sprintf("rotate %s %.1f", dir, math.Abs(turn)), res, err); err != nil {
			return err
		}
	}
	return nil
}

func (st *step) height(ctx context.Context, obj scene.ObjectDescriptor, override *bool) error {
	if override != nil {
		return st.posture(ctx, *override)
	}
	crouch := st.md.Agent.CameraPosition.Y > obj.LowestPoint()+st.a.cfg.CrouchMargin
	if err := st.posture(ctx, !crouch); err != nil {
		return err
	}
	if !st.md.IsVisible(obj.ID) && !st.md.Agent.Standing {
		return st.posture(ctx, true)
	}
	return nil
}

func (st *step) posture(ctx context.Context, standing bool) error {
	if st.md.Agent.Standing == standing {
		return nil
	}
	if standing {
		res, err := st.sim.Stand(ctx)
		return st.apply("stand", res, err)
	}
	res, err := st.sim.Crouch(ctx)
	return st.apply("crouch", res, err)
}
