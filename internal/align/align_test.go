package align

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"poseplanner.ai/internal/geom"
	"poseplanner.ai/internal/scene"
	"poseplanner.ai/internal/sim"
	"poseplanner.ai/internal/sim/simtest"
)

func arrive(t *testing.T, s *simtest.Sim, pos geom.Point3D, yaw, horizon float64) scene.Metadata {
	t.Helper()
	res, err := s.Teleport(context.Background(), pos, geom.Yaw(yaw), horizon, true)
	if err != nil || !res.Success {
		t.Fatalf("teleport: err=%v res=%+v", err, res.ErrorMessage)
	}
	return res.Metadata
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestAlign_PitchUpThenCrouch(t *testing.T) {
	s := simtest.New(simtest.Kitchen())
	md := arrive(t, s, geom.Point3D{X: 2, Z: 3.5}, 0, 60)

	md, out, err := New(DefaultConfig(), nil).Align(context.Background(), s, md, "Fridge|1", nil)
	if err != nil {
		t.Fatalf("align: %v", err)
	}
	wantTilt := math.Asin(-0.6/math.Sqrt(0.85)) * 180 / math.Pi
	if !near(out.TargetTilt, wantTilt) {
		t.Fatalf("target tilt=%v want %v", out.TargetTilt, wantTilt)
	}
	if !near(md.Agent.Horizon, -wantTilt) {
		t.Fatalf("horizon=%v want %v", md.Agent.Horizon, -wantTilt)
	}
	if out.TargetYaw != 0 || md.Agent.Rotation.Y != 0 {
		t.Fatalf("yaw changed: target=%v agent=%v", out.TargetYaw, md.Agent.Rotation.Y)
	}
	if out.Standing || md.Agent.Standing {
		t.Fatalf("expected crouch for a fridge whose bottom is on the floor")
	}
	if !out.Visible {
		t.Fatalf("fridge should stay visible")
	}
	calls := s.Calls()
	if last := calls[len(calls)-1]; last != "crouch" {
		t.Fatalf("last call=%q", last)
	}
	for _, c := range calls {
		if strings.HasPrefix(c, "rotate") {
			t.Fatalf("unexpected rotate: %v", calls)
		}
	}
}

func TestAlign_RotatesToSnappedYaw(t *testing.T) {
	s := simtest.New(simtest.Kitchen())
	md := arrive(t, s, geom.Point3D{X: 3.5, Z: 1.5}, 0, 0)

	md, out, err := New(DefaultConfig(), nil).Align(context.Background(), s, md, "Microwave|1", nil)
	if err != nil {
		t.Fatalf("align: %v", err)
	}
	if out.TargetYaw != 90 || md.Agent.Rotation.Y != 90 {
		t.Fatalf("yaw target=%v agent=%v want 90", out.TargetYaw, md.Agent.Rotation.Y)
	}
	if out.TargetTilt >= 0 {
		t.Fatalf("expected to look down at the microwave, tilt=%v", out.TargetTilt)
	}
}

func TestAlign_ForceStandWhenCrouchHidesObject(t *testing.T) {
	s := simtest.New(simtest.Kitchen())
	s.HideWhenCrouched("Fridge|1")
	md := arrive(t, s, geom.Point3D{X: 2, Z: 3.5}, 0, 60)

	md, out, err := New(DefaultConfig(), nil).Align(context.Background(), s, md, "Fridge|1", nil)
	if err != nil {
		t.Fatalf("align: %v", err)
	}
	if !md.Agent.Standing || !out.Standing || !out.Visible {
		t.Fatalf("expected final stand with fridge visible: %+v", out)
	}
	calls := s.Calls()
	if n := len(calls); n < 2 || calls[n-2] != "crouch" || calls[n-1] != "stand" {
		t.Fatalf("calls=%v", calls)
	}
}

func TestAlign_OverrideCopiesPostureOnly(t *testing.T) {
	s := simtest.New(simtest.Kitchen())
	md := arrive(t, s, geom.Point3D{X: 2, Z: 3.5}, 180, 30)
	before := len(s.Calls())

	standing := false
	md, out, err := New(DefaultConfig(), nil).Align(context.Background(), s, md, "Fridge|1", &standing)
	if err != nil {
		t.Fatalf("align: %v", err)
	}
	calls := s.Calls()[before:]
	if len(calls) != 1 || calls[0] != "crouch" {
		t.Fatalf("calls=%v want [crouch]", calls)
	}
	if !out.ViewSkip || md.Agent.Horizon != 30 || md.Agent.Rotation.Y != 180 {
		t.Fatalf("view should be untouched: %+v agent=%+v", out, md.Agent)
	}

	before = len(s.Calls())
	if _, _, err := New(DefaultConfig(), nil).Align(context.Background(), s, md, "Fridge|1", &standing); err != nil {
		t.Fatalf("align: %v", err)
	}
	if extra := s.Calls()[before:]; len(extra) != 0 {
		t.Fatalf("posture already matches, calls=%v", extra)
	}
}

type stuckCamera struct{ *simtest.Sim }

func (stuckCamera) Look(context.Context, sim.Direction, float64) (sim.Result, error) {
	return sim.Result{Success: false, ErrorMessage: "camera jammed"}, nil
}

func TestAlign_FailuresAreNotFatal(t *testing.T) {
	base := simtest.New(simtest.Kitchen())
	md := arrive(t, base, geom.Point3D{X: 3.5, Z: 1.5}, 0, 0)

	md, out, err := New(DefaultConfig(), nil).Align(context.Background(), stuckCamera{base}, md, "Microwave|1", nil)
	if err != nil {
		t.Fatalf("align: %v", err)
	}
	if len(out.Failures) != 1 || !strings.Contains(out.Failures[0], "camera jammed") {
		t.Fatalf("failures=%v", out.Failures)
	}
	if md.Agent.Horizon != 0 {
		t.Fatalf("horizon should be unchanged, got %v", md.Agent.Horizon)
	}
	if md.Agent.Rotation.Y != 90 {
		t.Fatalf("rotation should still be applied, got %v", md.Agent.Rotation.Y)
	}
}

func TestAlign_UnknownObject(t *testing.T) {
	s := simtest.New(simtest.Kitchen())
	md, _ := s.Scene(context.Background())
	_, _, err := New(DefaultConfig(), nil).Align(context.Background(), s, md, "Sofa|9", nil)
	if !errors.Is(err, ErrUnknownObject) {
		t.Fatalf("err=%v want ErrUnknownObject", err)
	}
}
