package session

import (
	"context"
	"fmt"

	"github.com/zyedidia/generic/mapset"

	"poseplanner.ai/internal/geom"
	"poseplanner.ai/internal/planner"
)

// ControllerState is the retry/exclusion state machine position.
type ControllerState int

const (
	StatePlanning ControllerState = iota
	StateAttempting
	StateSuccess
	StateExhausted
)

func (s ControllerState) String() string {
	switch s {
	case StatePlanning:
		return "planning"
	case StateAttempting:
		return "attempting"
	case StateSuccess:
		return "success"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("ControllerState(%d)", int(s))
	}
}

// planFunc proposes a pose given the positions that already failed.
type planFunc func(ctx context.Context, excluded planner.Excluded) (planner.PlanResult, error)

// target describes one teleport-driven move.
type target struct {
	horizon float64
	// budget caps planned attempts; each failure removes one candidate.
	budget int
	plan   planFunc
}

func (s *Session) resetExcluded() {
	s.excluded = mapset.New[geom.Point3D]()
}

// ExcludedCount is the number of positions that failed during the current navigation.
func (s *Session) ExcludedCount() int { return s.excluded.Size() }

// attempt teleports to p and records the outcome. A failed position joins the
// excluded set.
func (s *Session) attempt(ctx context.Context, out *NavOutcome, p planner.PlanResult, horizon float64, standing bool) (bool, error) {
	res, err := s.sim.Teleport(ctx, p.Position, p.Rotation, horizon, standing)
	if err != nil {
		return false, fmt.Errorf("teleport: %w", err)
	}
	entry := AttemptEntry{
		SessionID: s.id,
		Step:      s.steps,
		ObjectID:  out.ObjectID,
		Attempt:   len(out.Attempts) + 1,
		Position:  p.Position,
		Rotation:  p.Rotation,
		Horizon:   horizon,
		Source:    p.Source,
		Success:   res.Success,
		Error:     res.ErrorMessage,
	}
	out.Attempts = append(out.Attempts, entry)
	for _, l := range s.attemptLoggers {
		_ = l.WriteAttempt(entry)
	}
	if err := s.observe(res.Metadata); err != nil {
		return false, fmt.Errorf("teleport: %w", err)
	}
	if !res.Success {
		s.excluded.Put(p.Position)
		s.logger.Printf("session %s: teleport to %+v failed: %s", s.id, p.Position, res.ErrorMessage)
	}
	return res.Success, nil
}

// retry drives Planning -> Attempting until a teleport succeeds, the planner
// runs dry or the budget is spent. out.Status is always set on a nil error.
func (s *Session) retry(ctx context.Context, out *NavOutcome, t target) error {
	state := StatePlanning
	planned := 0
	var current planner.PlanResult
	for {
		switch state {
		case StatePlanning:
			if planned > 0 && planned >= t.budget {
				state = StateExhausted
				continue
			}
			p, err := t.plan(ctx, s.excluded)
			if err != nil {
				return err
			}
			if !p.Found {
				if planned == 0 {
					out.Status = NavNoCandidates
					out.Excluded = s.excluded.Size()
					return nil
				}
				state = StateExhausted
				continue
			}
			current = p
			planned++
			state = StateAttempting
		case StateAttempting:
			ok, err := s.attempt(ctx, out, current, t.horizon, true)
			if err != nil {
				return err
			}
			if ok {
				out.Plan = current
				state = StateSuccess
			} else {
				state = StatePlanning
			}
		case StateSuccess:
			out.Status = NavSuccess
			out.Excluded = s.excluded.Size()
			return nil
		case StateExhausted:
			out.Status = NavExhausted
			out.Excluded = s.excluded.Size()
			return nil
		}
	}
}
