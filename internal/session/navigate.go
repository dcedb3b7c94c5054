package session

import (
	"context"
	"fmt"

	"poseplanner.ai/internal/geom"
	"poseplanner.ai/internal/planner"
	"poseplanner.ai/internal/scene"
)

// resolve maps a target (object type or object id) to an object in the
// current scene. Pinned ids win over the first object of that type in the
// initial snapshot.
func (s *Session) resolve(target string) (scene.ObjectDescriptor, bool) {
	if o, ok := s.md.Object(target); ok {
		return o, true
	}
	typ := scene.TypeOfID(target)
	for _, id := range s.targetIDs[typ] {
		if o, ok := s.md.Object(id); ok {
			return o, true
		}
	}
	for _, o := range s.initial.Objects {
		if o.Type != typ {
			continue
		}
		if cur, ok := s.md.Object(o.ID); ok {
			return cur, true
		}
	}
	return scene.ObjectDescriptor{}, false
}

// redirect sends navigation aimed at an always-open receptacle to the related
// object it holds, so the agent stands where it can reach that object.
func (s *Session) redirect(obj scene.ObjectDescriptor) scene.ObjectDescriptor {
	if !obj.Receptacle || obj.Openable {
		return obj
	}
	for _, id := range s.related {
		if !obj.Contains(id) {
			continue
		}
		if inner, ok := s.md.Object(id); ok {
			return inner
		}
	}
	return obj
}

// Navigate moves the agent next to obj: a known override first, then the
// planner with retry and exclusion, then view and height alignment.
func (s *Session) Navigate(ctx context.Context, obj scene.ObjectDescriptor) (NavOutcome, error) {
	out := NavOutcome{ObjectID: obj.ID}
	s.resetExcluded()

	var standing *bool
	if pose, ok := s.overrides[obj.ID]; ok {
		p := planner.PlanResult{Found: true, Position: pose.Position, Rotation: pose.Rotation, Source: planner.SourceOverride}
		ok, err := s.attempt(ctx, &out, p, pose.Horizon, pose.Standing)
		if err != nil {
			return out, err
		}
		if ok {
			out.Status = NavSuccess
			out.Plan = p
			out.UsedOverride = true
			st := pose.Standing
			standing = &st
		} else {
			s.logger.Printf("session %s: override pose for %s failed, planning instead", s.id, obj.ID)
		}
	}

	if out.Status != NavSuccess {
		cands, err := s.sim.InteractablePoses(ctx, obj.ID)
		if err != nil {
			return out, fmt.Errorf("interactable poses: %w", err)
		}
		err = s.retry(ctx, &out, target{
			horizon: s.cfg.NavigateHorizon,
			budget:  s.budget(len(cands)),
			plan: func(_ context.Context, excluded planner.Excluded) (planner.PlanResult, error) {
				return s.planner.Plan(cands, obj, excluded), nil
			},
		})
		if err != nil {
			return out, err
		}
	}
	if out.Status != NavSuccess {
		s.logger.Printf("session %s: navigate %s: %s after %d attempts", s.id, obj.ID, out.Status, len(out.Attempts))
		return out, nil
	}

	md, ao, err := s.aligner.Align(ctx, s.sim, s.md, obj.ID, standing)
	if verr := s.observe(md); verr != nil {
		return out, fmt.Errorf("align: %w", verr)
	}
	if err != nil {
		return out, err
	}
	out.Align = &ao
	return out, nil
}

func (s *Session) budget(candidates int) int {
	if s.cfg.MaxAttempts > 0 && s.cfg.MaxAttempts < candidates {
		return s.cfg.MaxAttempts
	}
	return candidates
}

func (s *Session) doNavigate(ctx context.Context, d Decision, r *StepResult) error {
	obj, ok := s.resolve(d.Target)
	if !ok {
		r.Message = "no object of type " + d.Target
		return nil
	}
	obj = s.redirect(obj)
	r.ObjectID = obj.ID

	out, err := s.Navigate(ctx, obj)
	r.Navigation = &out
	if err != nil {
		return err
	}
	r.Success = out.Status == NavSuccess
	if !r.Success {
		r.Message = string(out.Status)
		return nil
	}
	if cur, ok := s.md.Object(obj.ID); ok && cur.Receptacle && len(cur.Contents) > 0 {
		s.container = cur.ID
	}
	return s.frame(ctx, r, "navigate")
}

// doInit places the agent at the reachable position nearest a floor corner.
// Reachable positions are queried again before every retry.
func (s *Session) doInit(ctx context.Context, _ Decision, r *StepResult) error {
	corners, ok := s.md.Corners()
	if !ok {
		r.Message = "scene bounds unavailable"
		return nil
	}
	reachable, err := s.sim.ReachablePositions(ctx)
	if err != nil {
		return fmt.Errorf("reachable positions: %w", err)
	}
	s.resetExcluded()
	out := NavOutcome{}
	first := true
	err = s.retry(ctx, &out, target{
		horizon: s.cfg.InitHorizon,
		budget:  s.budget(len(reachable)),
		plan: func(ctx context.Context, excluded planner.Excluded) (planner.PlanResult, error) {
			if !first {
				var err error
				if reachable, err = s.sim.ReachablePositions(ctx); err != nil {
					return planner.PlanResult{}, fmt.Errorf("reachable positions: %w", err)
				}
			}
			first = false
			return planner.PlanCorner(reachable, corners, excluded), nil
		},
	})
	r.Navigation = &out
	if err != nil {
		return err
	}
	r.Success = out.Status == NavSuccess
	if !r.Success {
		r.Message = string(out.Status)
		return nil
	}
	return s.frame(ctx, r, "init")
}

// PlanFor exposes the pure planning step for an object with the session's
// current exclusions, without moving the agent.
func (s *Session) PlanFor(cands []scene.CandidatePose, obj scene.ObjectDescriptor) planner.PlanResult {
	return s.planner.Plan(cands, obj, s.excluded)
}

func (s *Session) frame(ctx context.Context, r *StepResult, label string) error {
	ref, err := s.sim.Frame(ctx, fmt.Sprintf("%d-%s", r.Step, label))
	if err != nil {
		return fmt.Errorf("frame: %w", err)
	}
	r.Frames = append(r.Frames, ref)
	return nil
}

// nearestRelated is the planar distance from the agent to the closest visible
// related object, and false when none is visible.
func (s *Session) nearestRelated() (float64, bool) {
	best, found := 0.0, false
	for _, id := range s.related {
		o, ok := s.md.Object(id)
		if !ok || !o.Visible {
			continue
		}
		d := geom.PlanarDistance(s.state.Position, o.BoxCenter)
		if !found || d < best {
			best, found = d, true
		}
	}
	return best, found
}
