package session

import (
	"context"
	"fmt"

	"poseplanner.ai/internal/sim"
)

var interactionFor = map[ActionKind]sim.Interaction{
	ActionPickup: sim.InteractPickup,
	ActionPut:    sim.InteractPut,
	ActionOpen:   sim.InteractOpen,
	ActionClose:  sim.InteractClose,
}

func (s *Session) doInteract(ctx context.Context, d Decision, r *StepResult) error {
	obj, ok := s.resolve(d.Target)
	if !ok {
		r.Message = "no object of type " + d.Target
		return nil
	}
	r.ObjectID = obj.ID

	kind, ok := interactionFor[d.Kind]
	if d.Kind == ActionToggle {
		kind, ok = sim.InteractToggleOn, true
		if obj.IsToggled {
			kind = sim.InteractToggleOff
		}
	}
	if !ok {
		return fmt.Errorf("%w: %s is not an interaction", ErrUnknownAction, d.Kind)
	}

	res, err := s.sim.Interact(ctx, kind, obj.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	if err := s.observe(res.Metadata); err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	r.Success = res.Success
	r.Message = res.ErrorMessage
	if !res.Success {
		s.logger.Printf("session %s: %s %s failed: %s", s.id, kind, obj.ID, res.ErrorMessage)
	}
	return s.frame(ctx, r, string(kind))
}

// doObserve looks around in quarter turns, capturing a frame after each of
// the first three, and the fourth turn restores the original heading.
func (s *Session) doObserve(ctx context.Context, _ Decision, r *StepResult) error {
	turns := int(360 / s.cfg.ObserveTurn)
	r.Success = true
	for i := 0; i < turns; i++ {
		res, err := s.sim.Rotate(ctx, sim.DirLeft, s.cfg.ObserveTurn)
		if err != nil {
			return fmt.Errorf("rotate: %w", err)
		}
		if err := s.observe(res.Metadata); err != nil {
			return fmt.Errorf("rotate: %w", err)
		}
		if !res.Success {
			r.Success = false
			r.Message = res.ErrorMessage
		}
		if i == turns-1 {
			break
		}
		s.refreshLegal()
		if err := s.frame(ctx, r, fmt.Sprintf("observe-%d", i)); err != nil {
			return err
		}
	}
	return nil
}

// doMoveForward steps ahead. When blocked it side-steps: toward the side
// that ends closer to a visible related object, else whichever side is free,
// else back, else turning right and then around.
func (s *Session) doMoveForward(ctx context.Context, _ Decision, r *StepResult) error {
	dist := s.cfg.MoveDistance
	ok, err := s.move(ctx, sim.DirAhead, dist)
	if err != nil || ok {
		r.Success = ok
		return s.finishMove(ctx, r, err)
	}

	if len(s.related) > 0 {
		ok, err = s.sideStepToward(ctx, dist)
	} else {
		ok, err = s.firstMove(ctx, dist, sim.DirRight, sim.DirLeft)
	}
	if err != nil || ok {
		r.Success = ok
		return s.finishMove(ctx, r, err)
	}

	if ok, err = s.move(ctx, sim.DirBack, dist); err != nil || ok {
		r.Success = ok
		return s.finishMove(ctx, r, err)
	}
	if ok, err = s.turnAndMove(ctx, sim.DirRight, 90, dist); err != nil || ok {
		r.Success = ok
		return s.finishMove(ctx, r, err)
	}
	ok, err = s.turnAndMove(ctx, sim.DirLeft, 180, dist)
	r.Success = ok
	if err == nil && !ok {
		r.Message = "every direction is blocked"
	}
	return s.finishMove(ctx, r, err)
}

func (s *Session) finishMove(ctx context.Context, r *StepResult, err error) error {
	if err != nil {
		return err
	}
	return s.frame(ctx, r, "move")
}

func (s *Session) move(ctx context.Context, dir sim.Direction, meters float64) (bool, error) {
	res, err := s.sim.Move(ctx, dir, meters)
	if err != nil {
		return false, fmt.Errorf("move %s: %w", dir, err)
	}
	if err := s.observe(res.Metadata); err != nil {
		return false, fmt.Errorf("move %s: %w", dir, err)
	}
	return res.Success, nil
}

func (s *Session) firstMove(ctx context.Context, meters float64, dirs ...sim.Direction) (bool, error) {
	for _, d := range dirs {
		ok, err := s.move(ctx, d, meters)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (s *Session) turnAndMove(ctx context.Context, dir sim.Direction, degrees, meters float64) (bool, error) {
	res, err := s.sim.Rotate(ctx, dir, degrees)
	if err != nil {
		return false, fmt.Errorf("rotate: %w", err)
	}
	if err := s.observe(res.Metadata); err != nil {
		return false, fmt.Errorf("rotate: %w", err)
	}
	return s.move(ctx, sim.DirAhead, meters)
}

var opposite = map[sim.Direction]sim.Direction{sim.DirRight: sim.DirLeft, sim.DirLeft: sim.DirRight}

// sideStepToward probes right then left, stepping back after each probe, and
// commits to the side that left the agent nearest a visible related object.
func (s *Session) sideStepToward(ctx context.Context, meters float64) (bool, error) {
	type probe struct {
		dir     sim.Direction
		dist    float64
		visible bool
	}
	var free []probe
	for _, dir := range []sim.Direction{sim.DirRight, sim.DirLeft} {
		ok, err := s.move(ctx, dir, meters)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		d, vis := s.nearestRelated()
		free = append(free, probe{dir: dir, dist: d, visible: vis})
		if _, err := s.move(ctx, opposite[dir], meters); err != nil {
			return false, err
		}
	}
	if len(free) == 0 {
		return false, nil
	}
	best := free[0]
	for _, p := range free[1:] {
		if p.visible && (!best.visible || p.dist < best.dist) {
			best = p
		}
	}
	return s.move(ctx, best.dir, meters)
}

func (s *Session) doEnd(_ context.Context, _ Decision, r *StepResult) error {
	s.ended = true
	r.Success = true
	return nil
}
