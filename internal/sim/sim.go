// Package sim defines the synchronous simulator surface the planner drives.
//
// Every call blocks until the simulator has applied the command and returns
// the full updated scene. Callers never issue overlapping requests.
package sim

import (
	"context"
	"fmt"

	"poseplanner.ai/internal/geom"
	"poseplanner.ai/internal/scene"
)

type Direction string

const (
	DirLeft  Direction = "left"
	DirRight Direction = "right"
	DirUp    Direction = "up"
	DirDown  Direction = "down"
	DirAhead Direction = "ahead"
	DirBack  Direction = "back"
)

func (d Direction) Valid() bool {
	switch d {
	case DirLeft, DirRight, DirUp, DirDown, DirAhead, DirBack:
		return true
	}
	return false
}

// Interaction is an object-directed manipulation.
type Interaction string

const (
	InteractPickup    Interaction = "pickup"
	InteractPut       Interaction = "put"
	InteractOpen      Interaction = "open"
	InteractClose     Interaction = "close"
	InteractToggleOn  Interaction = "toggle_on"
	InteractToggleOff Interaction = "toggle_off"
)

func (i Interaction) Valid() bool {
	switch i {
	case InteractPickup, InteractPut, InteractOpen, InteractClose, InteractToggleOn, InteractToggleOff:
		return true
	}
	return false
}

// Result is what every mutating call returns. A false Success is an expected
// outcome (blocked move, failed pickup), not an error.
type Result struct {
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     scene.Metadata `json:"metadata"`
}

// Simulator is the opaque RPC surface consumed by the planning session.
// Errors are reserved for transport or protocol faults.
type Simulator interface {
	ReachablePositions(ctx context.Context) ([]geom.Point3D, error)
	InteractablePoses(ctx context.Context, objectID string) ([]scene.CandidatePose, error)
	Teleport(ctx context.Context, pos geom.Point3D, rot geom.Rotation, horizon float64, standing bool) (Result, error)
	Rotate(ctx context.Context, dir Direction, degrees float64) (Result, error)
	Look(ctx context.Context, dir Direction, degrees float64) (Result, error)
	Stand(ctx context.Context) (Result, error)
	Crouch(ctx context.Context) (Result, error)
	Move(ctx context.Context, dir Direction, meters float64) (Result, error)
	Interact(ctx context.Context, kind Interaction, objectID string) (Result, error)
	Scene(ctx context.Context) (scene.Metadata, error)
	// Frame asks the image-capture collaborator for a frame and returns its opaque reference.
	Frame(ctx context.Context, label string) (string, error)
}

// BadArgumentError is returned by simulators for malformed commands.
type BadArgumentError struct {
	Op, Reason string
}

func (e *BadArgumentError) Error() string {
	return fmt.Sprintf("sim %s: %s", e.Op, e.Reason)
}
