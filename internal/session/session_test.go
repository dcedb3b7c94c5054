package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"poseplanner.ai/internal/align"
	"poseplanner.ai/internal/geom"
	"poseplanner.ai/internal/overrides"
	"poseplanner.ai/internal/planner"
	"poseplanner.ai/internal/scene"
	"poseplanner.ai/internal/sim"
	"poseplanner.ai/internal/sim/simtest"
)

type memLog struct {
	sessions []SessionEntry
	steps    []StepEntry
	attempts []AttemptEntry
}

func (m *memLog) WriteSession(e SessionEntry) error { m.sessions = append(m.sessions, e); return nil }
func (m *memLog) WriteStep(e StepEntry) error       { m.steps = append(m.steps, e); return nil }
func (m *memLog) WriteAttempt(e AttemptEntry) error { m.attempts = append(m.attempts, e); return nil }

var box = scene.ObjectDescriptor{
	ID: "Box|1", Type: "Box",
	Position: geom.Point3D{X: 2, Z: 2}, FacingYaw: 180,
	BoxCenter: geom.Point3D{X: 2, Y: 0.2, Z: 2}, BoxSize: geom.Point3D{X: 0.5, Y: 0.4, Z: 0.25},
	Visible: true,
}

func boxSim(points ...geom.Point3D) *simtest.Sim {
	return simtest.New(simtest.Config{
		Objects:   []scene.ObjectDescriptor{box},
		Agent:     scene.AgentPose{Position: points[len(points)-1], Standing: true},
		Reachable: points,
		Poses:     map[string][]scene.CandidatePose{"Box|1": scene.Candidates(points)},
	})
}

func newSession(t *testing.T, s *simtest.Sim, mutate func(*Options)) (*Session, *memLog) {
	t.Helper()
	rec := &memLog{}
	opts := Options{
		TaskID:         "t1",
		Config:         DefaultConfig(),
		Planner:        planner.DefaultConfig(),
		Align:          align.DefaultConfig(),
		NavigableSeed:  []string{"Box"},
		SessionLoggers: []SessionLogger{rec},
		StepLoggers:    []StepLogger{rec},
		AttemptLoggers: []AttemptLogger{rec},
	}
	if mutate != nil {
		mutate(&opts)
	}
	ss, err := New(context.Background(), s, opts)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return ss, rec
}

func step(t *testing.T, ss *Session, text string) StepResult {
	t.Helper()
	d, err := ParseDecision(text)
	if err != nil {
		t.Fatalf("parse %q: %v", text, err)
	}
	r, err := ss.Step(context.Background(), d)
	if err != nil {
		t.Fatalf("step %q: %v", text, err)
	}
	return r
}

func attemptedPositions(out *NavOutcome) []geom.Point3D {
	var ps []geom.Point3D
	for _, a := range out.Attempts {
		ps = append(ps, a.Position)
	}
	return ps
}

var (
	p201 = geom.Point3D{X: 2, Z: 1}
	p203 = geom.Point3D{X: 2, Z: 3}
	p002 = geom.Point3D{Z: 2}
)

func TestNavigate_SmallObjectPicksFrontClosest(t *testing.T) {
	s := boxSim(p201, p203, p002)
	ss, _ := newSession(t, s, nil)

	r := step(t, ss, "navigate to Box")
	if !r.Success || r.Navigation == nil {
		t.Fatalf("navigate failed: %+v", r)
	}
	if got := attemptedPositions(r.Navigation); len(got) != 1 || got[0] != p201 {
		t.Fatalf("attempts=%v want [%v]", got, p201)
	}
	if r.Navigation.Plan.Rotation.Y != 0 || r.Navigation.Plan.Source != planner.SourceFront {
		t.Fatalf("plan=%+v", r.Navigation.Plan)
	}
	if r.Navigation.Align == nil {
		t.Fatalf("alignment did not run")
	}
}

func TestNavigate_RetryMovesToRemainingPoint(t *testing.T) {
	s := boxSim(p201, p002)
	s.Block(p201)
	ss, rec := newSession(t, s, nil)

	r := step(t, ss, "navigate to Box")
	if !r.Success {
		t.Fatalf("navigate failed: %+v", r.Navigation)
	}
	got := attemptedPositions(r.Navigation)
	if len(got) != 2 || got[0] != p201 || got[1] != p002 {
		t.Fatalf("attempts=%v want [%v %v]", got, p201, p002)
	}
	if len(rec.attempts) != 2 || rec.attempts[0].Success || !rec.attempts[1].Success {
		t.Fatalf("recorded attempts=%+v", rec.attempts)
	}
	if ss.State().Position != p002 {
		t.Fatalf("agent at %+v", ss.State().Position)
	}
}

func TestNavigate_ExcludedGrowsByOnePerFailure(t *testing.T) {
	s := boxSim(p201, p203, p002)
	s.Block(p201, p203)
	ss, _ := newSession(t, s, nil)

	r := step(t, ss, "navigate to Box")
	if !r.Success {
		t.Fatalf("navigate failed: %+v", r.Navigation)
	}
	got := attemptedPositions(r.Navigation)
	if len(got) != 3 || got[0] != p201 || got[1] != p203 || got[2] != p002 {
		t.Fatalf("attempts=%v", got)
	}
	if r.Navigation.Excluded != 2 || ss.ExcludedCount() != 2 {
		t.Fatalf("excluded=%d/%d want 2", r.Navigation.Excluded, ss.ExcludedCount())
	}
	seen := map[geom.Point3D]bool{}
	for _, p := range got {
		if seen[p] {
			t.Fatalf("position %v attempted twice", p)
		}
		seen[p] = true
	}
}

func TestNavigate_Exhausted(t *testing.T) {
	s := boxSim(p201, p203, p002)
	s.Block(p201, p203, p002)
	ss, _ := newSession(t, s, nil)

	r := step(t, ss, "navigate to Box")
	if r.Success || r.Navigation.Status != NavExhausted {
		t.Fatalf("status=%v success=%v", r.Navigation.Status, r.Success)
	}
	if len(r.Navigation.Attempts) != 3 || r.Navigation.Excluded != 3 {
		t.Fatalf("attempts=%d excluded=%d", len(r.Navigation.Attempts), r.Navigation.Excluded)
	}
	if r.Navigation.Align != nil {
		t.Fatalf("alignment must not run after exhaustion")
	}
}

func TestNavigate_NoCandidates(t *testing.T) {
	s := simtest.New(simtest.Config{
		Objects:   []scene.ObjectDescriptor{box},
		Agent:     scene.AgentPose{Position: p002, Standing: true},
		Reachable: []geom.Point3D{p002},
		Poses:     map[string][]scene.CandidatePose{"Box|1": {}},
	})
	ss, _ := newSession(t, s, nil)

	r := step(t, ss, "navigate to Box")
	if r.Success || r.Navigation.Status != NavNoCandidates || len(r.Navigation.Attempts) != 0 {
		t.Fatalf("navigation=%+v", r.Navigation)
	}
}

func TestNavigate_OverrideUsedDirectly(t *testing.T) {
	s := boxSim(p201, p203, p002)
	ss, _ := newSession(t, s, func(o *Options) {
		o.Overrides = map[string]overrides.Pose{
			"Box|1": {Position: p203, Rotation: geom.Yaw(180), Horizon: 30, Standing: false},
		}
	})

	r := step(t, ss, "navigate to Box")
	if !r.Success || !r.Navigation.UsedOverride {
		t.Fatalf("navigation=%+v", r.Navigation)
	}
	if r.Navigation.Plan.Source != planner.SourceOverride || len(r.Navigation.Attempts) != 1 {
		t.Fatalf("navigation=%+v", r.Navigation)
	}
	for _, c := range s.Calls() {
		if strings.HasPrefix(c, "poses") || strings.HasPrefix(c, "look") || strings.HasPrefix(c, "rotate") {
			t.Fatalf("override should bypass planning and view alignment, got %q", c)
		}
	}
	st := ss.State()
	if st.Position != p203 || st.Standing || st.CameraTilt != -30 {
		t.Fatalf("agent=%+v", st)
	}
}

func TestNavigate_OverrideFailureFallsBackToPlanning(t *testing.T) {
	s := boxSim(p201, p203, p002)
	ss, _ := newSession(t, s, func(o *Options) {
		o.Overrides = map[string]overrides.Pose{
			"Box|1": {Position: geom.Point3D{X: 9, Z: 9}, Rotation: geom.Yaw(90), Horizon: 0, Standing: true},
		}
	})

	r := step(t, ss, "navigate to Box")
	if !r.Success || r.Navigation.UsedOverride {
		t.Fatalf("navigation=%+v", r.Navigation)
	}
	got := r.Navigation.Attempts
	if len(got) != 2 || got[0].Source != planner.SourceOverride || got[0].Success || got[1].Position != p201 {
		t.Fatalf("attempts=%+v", got)
	}
}

func TestPlanFor_Idempotent(t *testing.T) {
	s := boxSim(p201, p203, p002)
	ss, _ := newSession(t, s, nil)
	cands := scene.Candidates([]geom.Point3D{p201, p203, p002})
	a := ss.PlanFor(cands, box)
	b := ss.PlanFor(cands, box)
	if a != b || !a.Found || a.Position != p201 {
		t.Fatalf("plans differ or wrong: %+v %+v", a, b)
	}
}

func TestStep_RejectsIllegalTargets(t *testing.T) {
	s := boxSim(p201, p203, p002)
	ss, rec := newSession(t, s, nil)
	before := len(s.Calls())

	r := step(t, ss, "navigate to Sofa")
	if r.Success || !strings.Contains(r.Rejected, "legal navigation") {
		t.Fatalf("result=%+v", r)
	}
	r = step(t, ss, "pickup Sofa")
	if r.Success || !strings.Contains(r.Rejected, "legal interaction") {
		t.Fatalf("result=%+v", r)
	}
	if extra := s.Calls()[before:]; len(extra) != 0 {
		t.Fatalf("rejected steps reached the simulator: %v", extra)
	}
	if ss.Steps() != 2 || len(rec.steps) != 2 {
		t.Fatalf("steps=%d recorded=%d", ss.Steps(), len(rec.steps))
	}
}

func TestStep_BudgetAndEnd(t *testing.T) {
	s := simtest.New(simtest.Kitchen())
	ss, rec := newSession(t, s, func(o *Options) { o.Config.MaxSteps = 2 })

	step(t, ss, "observe")
	step(t, ss, "observe")
	if _, err := ss.Step(context.Background(), Decision{Kind: ActionObserve}); !errors.Is(err, ErrStepBudget) {
		t.Fatalf("err=%v want ErrStepBudget", err)
	}

	ss, rec = newSession(t, simtest.New(simtest.Kitchen()), nil)
	r := step(t, ss, "end")
	if !r.Success || !ss.Ended() {
		t.Fatalf("end did not end the session")
	}
	if _, err := ss.Step(context.Background(), Decision{Kind: ActionObserve}); !errors.Is(err, ErrEnded) {
		t.Fatalf("err=%v want ErrEnded", err)
	}
	if n := len(rec.sessions); n != 2 || !rec.sessions[1].Ended || rec.sessions[1].Steps != 1 {
		t.Fatalf("session entries=%+v", rec.sessions)
	}
}

func TestObserve_FourQuarterTurnsThreeFrames(t *testing.T) {
	s := simtest.New(simtest.Kitchen())
	ss, _ := newSession(t, s, nil)
	start := ss.State().Rotation.Y

	r := step(t, ss, "observe")
	if !r.Success || len(r.Frames) != 3 {
		t.Fatalf("result=%+v", r)
	}
	rotates := 0
	for _, c := range s.Calls() {
		if c == "rotate left 90" {
			rotates++
		}
	}
	if rotates != 4 {
		t.Fatalf("rotates=%d want 4", rotates)
	}
	if ss.State().Rotation.Y != start {
		t.Fatalf("heading %v not restored to %v", ss.State().Rotation.Y, start)
	}
}

func TestInit_CornerWithRetry(t *testing.T) {
	s := simtest.New(simtest.Kitchen())
	ss, _ := newSession(t, s, nil)

	r := step(t, ss, "init")
	if !r.Success {
		t.Fatalf("init failed: %+v", r.Navigation)
	}
	if st := ss.State(); st.Position != (geom.Point3D{X: 3.5, Z: 0.5}) || st.Rotation.Y != 315 {
		t.Fatalf("agent=%+v", st)
	}

	s = simtest.New(simtest.Kitchen())
	s.Block(geom.Point3D{X: 3.5, Z: 0.5})
	ss, _ = newSession(t, s, nil)
	r = step(t, ss, "init")
	if !r.Success || len(r.Navigation.Attempts) != 2 {
		t.Fatalf("navigation=%+v", r.Navigation)
	}
	if st := ss.State(); st.Position != (geom.Point3D{X: 0.5, Z: 0.5}) || st.Rotation.Y != 45 {
		t.Fatalf("agent=%+v", st)
	}
	queries := 0
	for _, c := range s.Calls() {
		if c == "reachable" {
			queries++
		}
	}
	if queries != 2 {
		t.Fatalf("reachable queried %d times, want 2", queries)
	}
}

func TestKitchen_OpenContainerUnlocksContents(t *testing.T) {
	s := simtest.New(simtest.Kitchen())
	ss, _ := newSession(t, s, nil)

	if r := step(t, ss, "pickup Egg"); r.Rejected == "" {
		t.Fatalf("egg should not be interactable yet: %+v", r)
	}
	if r := step(t, ss, "navigate to Fridge"); !r.Success {
		t.Fatalf("navigate fridge: %+v", r.Navigation)
	}
	if ss.CurrentContainer() != "Fridge|1" {
		t.Fatalf("container=%q", ss.CurrentContainer())
	}
	if r := step(t, ss, "open Fridge"); !r.Success {
		t.Fatalf("open fridge: %+v", r)
	}
	r := step(t, ss, "pickup Egg")
	if !r.Success || r.ObjectID != "Egg|1" {
		t.Fatalf("pickup egg: %+v", r)
	}
	if ss.State().HeldObjectID != "Egg|1" {
		t.Fatalf("held=%q", ss.State().HeldObjectID)
	}
}

func TestToggleFollowsState(t *testing.T) {
	s := simtest.New(simtest.Kitchen())
	ss, _ := newSession(t, s, nil)

	step(t, ss, "toggle Microwave")
	step(t, ss, "toggle Microwave")
	var toggles []string
	for _, c := range s.Calls() {
		if strings.HasPrefix(c, "toggle") {
			toggles = append(toggles, c)
		}
	}
	if len(toggles) != 2 || toggles[0] != "toggle_on Microwave|1" || toggles[1] != "toggle_off Microwave|1" {
		t.Fatalf("toggles=%v", toggles)
	}
}

func TestNavigate_RedirectsToRelatedObjectOnOpenReceptacle(t *testing.T) {
	s := simtest.New(simtest.Kitchen())
	ss, _ := newSession(t, s, func(o *Options) { o.Related = []string{"Apple|1"} })

	r := step(t, ss, "navigate to CounterTop")
	if !r.Success || r.ObjectID != "Apple|1" {
		t.Fatalf("result=%+v", r)
	}
}

func TestMoveForward_Fallbacks(t *testing.T) {
	ctx := context.Background()

	s := simtest.New(simtest.Kitchen())
	ss, _ := newSession(t, s, nil)
	if r := step(t, ss, "move forward"); !r.Success || ss.State().Position != (geom.Point3D{X: 2, Z: 2.5}) {
		t.Fatalf("plain move: %+v at %+v", r, ss.State().Position)
	}

	// Facing the back wall with no related objects: the right side wins.
	s = simtest.New(simtest.Kitchen())
	_, _ = s.Teleport(ctx, geom.Point3D{X: 2, Z: 3.5}, geom.Yaw(0), 0, true)
	ss, _ = newSession(t, s, nil)
	if r := step(t, ss, "move forward"); !r.Success || ss.State().Position != (geom.Point3D{X: 2.5, Z: 3.5}) {
		t.Fatalf("side step: %+v at %+v", r, ss.State().Position)
	}

	// With a related apple by the door, the left side ends closer to it.
	s = simtest.New(simtest.Kitchen())
	_, _ = s.Teleport(ctx, geom.Point3D{X: 2, Z: 3.5}, geom.Yaw(0), 0, true)
	ss, _ = newSession(t, s, func(o *Options) { o.Related = []string{"Apple|1"} })
	if r := step(t, ss, "move forward"); !r.Success || ss.State().Position != (geom.Point3D{X: 1.5, Z: 3.5}) {
		t.Fatalf("toward related: %+v at %+v", r, ss.State().Position)
	}

	// Boxed into the corner.
	s = simtest.New(simtest.Kitchen())
	_, _ = s.Teleport(ctx, geom.Point3D{X: 3.5, Z: 3.5}, geom.Yaw(0), 0, true)
	s.Block(geom.Point3D{X: 3, Z: 3.5}, geom.Point3D{X: 3.5, Z: 3})
	ss, _ = newSession(t, s, nil)
	r := step(t, ss, "move forward")
	if r.Success || r.Message == "" {
		t.Fatalf("expected failure: %+v", r)
	}
	if ss.State().Position != (geom.Point3D{X: 3.5, Z: 3.5}) {
		t.Fatalf("agent moved to %+v", ss.State().Position)
	}
}

func TestParseDecision(t *testing.T) {
	cases := []struct {
		in     string
		kind   ActionKind
		target string
	}{
		{"navigate to Fridge", ActionNavigateTo, "Fridge"},
		{"  pickup Egg ", ActionPickup, "Egg"},
		{"put in Microwave", ActionPut, "Microwave"},
		{"put Microwave", ActionPut, "Microwave"},
		{"toggle Microwave", ActionToggle, "Microwave"},
		{"open Fridge", ActionOpen, "Fridge"},
		{"close Fridge", ActionClose, "Fridge"},
		{"observe", ActionObserve, ""},
		{"move forward", ActionMoveForward, ""},
		{"End", ActionEnd, ""},
		{"init", ActionInit, ""},
	}
	for _, c := range cases {
		d, err := ParseDecision(c.in)
		if err != nil {
			t.Fatalf("%q: %v", c.in, err)
		}
		if d.Kind != c.kind || d.Target != c.target {
			t.Fatalf("%q: got %v/%q want %v/%q", c.in, d.Kind, d.Target, c.kind, c.target)
		}
	}
	for _, bad := range []string{"fly to Moon", "pickup", "opened Fridge", ""} {
		if _, err := ParseDecision(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}

func TestHandlerTableIsComplete(t *testing.T) {
	for k := ActionKind(0); k < numActionKinds; k++ {
		if handlers[k] == nil {
			t.Fatalf("no handler for %v", k)
		}
		if actionSpecs[k].name == "" {
			t.Fatalf("no name for %d", int(k))
		}
	}
}

func TestNew_ZeroOptionsUseDefaults(t *testing.T) {
	ctx := context.Background()
	ss, err := New(ctx, boxSim(p201, p203, p002), Options{NavigableSeed: []string{"Box"}})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	out, err := ss.Navigate(ctx, box)
	if err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if out.Status != NavSuccess || out.Plan.Source != planner.SourceFront || out.Plan.Position != p201 {
		t.Fatalf("outcome=%+v", out)
	}
	def := align.DefaultConfig()
	if out.Align == nil || out.Align.TargetTilt >= 0 || out.Align.TargetTilt < def.MinTilt {
		t.Fatalf("align=%+v want a downward tilt within [%v, %v]", out.Align, def.MinTilt, def.MaxTilt)
	}

	k, err := New(ctx, simtest.New(simtest.Kitchen()), Options{})
	if err != nil {
		t.Fatalf("new kitchen session: %v", err)
	}
	if r := step(t, k, "observe"); !r.Success || len(r.Frames) != 3 {
		t.Fatalf("observe=%+v", r)
	}
}

func TestConfig_PartialFieldsFilled(t *testing.T) {
	got := Config{MaxSteps: 5, NavigateHorizon: 30}.withDefaults()
	def := DefaultConfig()
	if got.MaxSteps != 5 || got.NavigateHorizon != 30 || got.MoveDistance != def.MoveDistance || got.ObserveTurn != def.ObserveTurn {
		t.Fatalf("config=%+v", got)
	}
}

// duplicatingSim reports every object twice after a teleport.
type duplicatingSim struct{ *simtest.Sim }

func (d duplicatingSim) Teleport(ctx context.Context, pos geom.Point3D, rot geom.Rotation, horizon float64, standing bool) (sim.Result, error) {
	res, err := d.Sim.Teleport(ctx, pos, rot, horizon, standing)
	if err != nil || len(res.Metadata.Objects) == 0 {
		return res, err
	}
	objs := append([]scene.ObjectDescriptor(nil), res.Metadata.Objects...)
	res.Metadata.Objects = append(objs, objs[0])
	return res, nil
}

func TestNavigate_MalformedMetadataIsFault(t *testing.T) {
	ctx := context.Background()
	ss, err := New(ctx, duplicatingSim{boxSim(p201, p002)}, Options{NavigableSeed: []string{"Box"}})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, err := ss.Navigate(ctx, box); !errors.Is(err, scene.ErrMalformedDescriptor) {
		t.Fatalf("err=%v want ErrMalformedDescriptor", err)
	}
	if n := len(ss.Metadata().Objects); n != 1 {
		t.Fatalf("adopted malformed metadata: %d objects", n)
	}
}
