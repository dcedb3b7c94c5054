package simtest

import (
	"context"
	"testing"

	"poseplanner.ai/internal/geom"
	"poseplanner.ai/internal/sim"
)

func TestTeleportAndMove(t *testing.T) {
	ctx := context.Background()
	s := New(Kitchen())

	blocked := geom.Point3D{X: 1, Z: 1}
	s.Block(blocked)
	res, err := s.Teleport(ctx, blocked, geom.Yaw(90), 0, true)
	if err != nil {
		t.Fatalf("teleport: %v", err)
	}
	if res.Success {
		t.Fatalf("expected blocked teleport to fail")
	}
	if res, _ := s.Teleport(ctx, geom.Point3D{X: 2.2, Z: 2}, geom.Yaw(0), 0, true); res.Success {
		t.Fatalf("expected off-grid teleport to fail")
	}

	if res, _ := s.Move(ctx, sim.DirAhead, 0.5); !res.Success {
		t.Fatalf("move ahead failed: %s", res.ErrorMessage)
	}
	if p := s.Agent().Position; p != (geom.Point3D{X: 2, Z: 2.5}) {
		t.Fatalf("position after ahead=%+v", p)
	}
	if res, _ := s.Move(ctx, sim.DirRight, 0.5); !res.Success {
		t.Fatalf("move right failed: %s", res.ErrorMessage)
	}
	if p := s.Agent().Position; p != (geom.Point3D{X: 2.5, Z: 2.5}) {
		t.Fatalf("position after right=%+v", p)
	}

	// Off the edge of the grid.
	if _, err := s.Teleport(ctx, geom.Point3D{X: 3.5, Z: 3.5}, geom.Yaw(0), 0, true); err != nil {
		t.Fatalf("teleport: %v", err)
	}
	if res, _ := s.Move(ctx, sim.DirAhead, 0.5); res.Success {
		t.Fatalf("expected move off grid to fail")
	}
}

func TestContainedObjectsHiddenUntilOpened(t *testing.T) {
	ctx := context.Background()
	s := New(Kitchen())

	md, _ := s.Scene(ctx)
	if md.IsVisible("Egg|1") {
		t.Fatalf("egg inside closed fridge should be hidden")
	}
	if res, _ := s.Interact(ctx, sim.InteractPickup, "Egg|1"); res.Success {
		t.Fatalf("pickup of hidden egg should fail")
	}
	if res, _ := s.Interact(ctx, sim.InteractOpen, "Fridge|1"); !res.Success {
		t.Fatalf("open fridge: %s", res.ErrorMessage)
	}
	res, _ := s.Interact(ctx, sim.InteractPickup, "Egg|1")
	if !res.Success {
		t.Fatalf("pickup egg: %s", res.ErrorMessage)
	}
	if res.Metadata.Agent.HeldObjectID != "Egg|1" {
		t.Fatalf("held=%q", res.Metadata.Agent.HeldObjectID)
	}
	fridge, _ := res.Metadata.Object("Fridge|1")
	if fridge.Contains("Egg|1") {
		t.Fatalf("egg should have left the fridge")
	}
	if res, _ := s.Interact(ctx, sim.InteractPut, "Microwave|1"); res.Success {
		t.Fatalf("put into closed microwave should fail")
	}
}

func TestPostureChangesVisibilityAndEye(t *testing.T) {
	ctx := context.Background()
	s := New(Kitchen())
	s.HideWhenCrouched("Apple|1")

	res, _ := s.Crouch(ctx)
	if res.Metadata.IsVisible("Apple|1") {
		t.Fatalf("apple should be hidden while crouched")
	}
	if got := res.Metadata.Agent.CameraPosition.Y; got != EyeCrouching {
		t.Fatalf("eye=%v want %v", got, EyeCrouching)
	}
	res, _ = s.Stand(ctx)
	if !res.Metadata.IsVisible("Apple|1") {
		t.Fatalf("apple should be visible while standing")
	}
}

func TestLookRange(t *testing.T) {
	ctx := context.Background()
	s := New(Kitchen())
	if res, _ := s.Look(ctx, sim.DirDown, 60); !res.Success {
		t.Fatalf("look down 60 should succeed")
	}
	if res, _ := s.Look(ctx, sim.DirDown, 10); res.Success {
		t.Fatalf("look down past 60 should fail")
	}
	if _, err := s.Look(ctx, sim.DirLeft, 10); err == nil {
		t.Fatalf("expected bad direction error")
	}
}
