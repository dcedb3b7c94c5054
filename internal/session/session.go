// Package session owns one agent's planning session: its state, the
// excluded-position set of the current navigation, the legal-action tallies
// and the step budget. A session is single-threaded; callers must not invoke
// Step concurrently.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/zyedidia/generic/mapset"

	"poseplanner.ai/internal/align"
	"poseplanner.ai/internal/geom"
	"poseplanner.ai/internal/legal"
	"poseplanner.ai/internal/overrides"
	"poseplanner.ai/internal/planner"
	"poseplanner.ai/internal/scene"
	"poseplanner.ai/internal/sim"
)

var (
	ErrStepBudget = errors.New("step budget exhausted")
	ErrEnded      = errors.New("session ended")
)

type Config struct {
	MaxSteps        int
	NavigateHorizon float64
	InitHorizon     float64
	MoveDistance    float64
	ObserveTurn     float64
	// MaxAttempts caps teleports per navigation; 0 allows one per candidate.
	MaxAttempts int
}

func DefaultConfig() Config {
	return Config{MaxSteps: 20, NavigateHorizon: 60, MoveDistance: 0.5, ObserveTurn: 90}
}

// withDefaults fills the fields a session cannot run without. A zero Config
// is DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c == (Config{}) {
		return def
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = def.MaxSteps
	}
	if c.MoveDistance <= 0 {
		c.MoveDistance = def.MoveDistance
	}
	if c.ObserveTurn <= 0 || c.ObserveTurn > 360 {
		c.ObserveTurn = def.ObserveTurn
	}
	return c
}

// AgentState mirrors the agent pose reported by the simulator.
type AgentState struct {
	Position     geom.Point3D  `json:"position"`
	Rotation     geom.Rotation `json:"rotation"`
	CameraTilt   float64       `json:"camera_tilt"`
	Standing     bool          `json:"standing"`
	HeldObjectID string        `json:"held_object_id,omitempty"`
}

type Options struct {
	TaskID  string
	Config  Config
	Planner planner.Config
	Align   align.Config
	// Overrides are consulted before planning, keyed by object id.
	Overrides map[string]overrides.Pose
	// NavigableSeed pre-populates the legal navigation vocabulary.
	NavigableSeed []string
	// TargetIDs pins object types to specific object ids.
	TargetIDs map[string][]string
	// Related are the task's object ids; they drive receptacle redirection and
	// the side-step choice of move forward.
	Related []string

	SessionLoggers []SessionLogger
	StepLoggers    []StepLogger
	AttemptLoggers []AttemptLogger
	Logger         *log.Logger
}

type Session struct {
	id     string
	taskID string
	cfg    Config

	sim        sim.Simulator
	planner    *planner.Planner
	aligner    *align.Aligner
	classifier *legal.Classifier
	overrides  map[string]overrides.Pose
	targetIDs  map[string][]string
	related    []string

	sessionLoggers []SessionLogger
	stepLoggers    []StepLogger
	attemptLoggers []AttemptLogger
	logger         *log.Logger

	startedAt time.Time
	initial   scene.Metadata
	md        scene.Metadata
	state     AgentState
	excluded  mapset.Set[geom.Point3D]
	container string
	steps     int
	ended     bool
}

// New snapshots the scene and classifies it once so the first step already
// has a legal vocabulary.
func New(ctx context.Context, s sim.Simulator, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	cfg := opts.Config.withDefaults()
	md, err := s.Scene(ctx)
	if err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}
	ss := &Session{
		id:             uuid.NewString(),
		taskID:         opts.TaskID,
		cfg:            cfg,
		sim:            s,
		planner:        planner.New(opts.Planner),
		aligner:        align.New(opts.Align, logger),
		classifier:     legal.NewClassifier(opts.NavigableSeed),
		overrides:      opts.Overrides,
		targetIDs:      opts.TargetIDs,
		related:        opts.Related,
		sessionLoggers: opts.SessionLoggers,
		stepLoggers:    opts.StepLoggers,
		attemptLoggers: opts.AttemptLoggers,
		logger:         logger,
		startedAt:      time.Now().UTC(),
		initial:        md,
		excluded:       mapset.New[geom.Point3D](),
	}
	if ss.overrides == nil {
		ss.overrides = map[string]overrides.Pose{}
	}
	if err := ss.observe(md); err != nil {
		return nil, err
	}
	ss.refreshLegal()
	ss.writeSession()
	logger.Printf("session %s: started task=%q objects=%d overrides=%d", ss.id, ss.taskID, len(md.Objects), len(ss.overrides))
	return ss, nil
}

func (s *Session) ID() string               { return s.id }
func (s *Session) State() AgentState        { return s.state }
func (s *Session) Metadata() scene.Metadata { return s.md }
func (s *Session) Steps() int               { return s.steps }
func (s *Session) Ended() bool              { return s.ended }
func (s *Session) CurrentContainer() string { return s.container }

func (s *Session) Classifier() *legal.Classifier { return s.classifier }

// Vocabulary is the accumulated legal navigation and interaction types.
func (s *Session) Vocabulary() (navigations, interactions []string) {
	return s.classifier.Vocabulary()
}

// observe adopts the latest simulator metadata. Malformed descriptors are
// refused and the previous metadata is kept.
func (s *Session) observe(md scene.Metadata) error {
	if err := md.Validate(); err != nil {
		return err
	}
	s.md = md
	a := md.Agent
	s.state = AgentState{
		Position:     a.Position,
		Rotation:     a.Rotation,
		CameraTilt:   a.CameraTilt(),
		Standing:     a.Standing,
		HeldObjectID: a.HeldObjectID,
	}
	return nil
}

func (s *Session) refreshLegal() {
	var contents []string
	if s.container != "" {
		if c, ok := s.md.Object(s.container); ok {
			contents = c.ContentTypes()
		}
	}
	s.classifier.Update(s.md.Objects, s.state.Position, contents)
}

// StepResult reports one executed decision.
type StepResult struct {
	Step         int
	Decision     Decision
	ObjectID     string
	Success      bool
	Rejected     string
	Message      string
	Navigation   *NavOutcome
	Frames       []string
	Navigations  []string
	Interactions []string
}

type handler func(s *Session, ctx context.Context, d Decision, r *StepResult) error

var handlers = [numActionKinds]handler{
	ActionInit:        (*Session).doInit,
	ActionNavigateTo:  (*Session).doNavigate,
	ActionPickup:      (*Session).doInteract,
	ActionPut:         (*Session).doInteract,
	ActionToggle:      (*Session).doInteract,
	ActionOpen:        (*Session).doInteract,
	ActionClose:       (*Session).doInteract,
	ActionObserve:     (*Session).doObserve,
	ActionMoveForward: (*Session).doMoveForward,
	ActionEnd:         (*Session).doEnd,
}

// Step executes one decision. Illegal targets are rejected in the result,
// not returned as errors; errors are transport faults, an exhausted budget or
// a finished session.
func (s *Session) Step(ctx context.Context, d Decision) (StepResult, error) {
	if s.ended {
		return StepResult{}, ErrEnded
	}
	if s.steps >= s.cfg.MaxSteps {
		return StepResult{}, ErrStepBudget
	}
	if !d.Kind.Valid() {
		return StepResult{}, fmt.Errorf("%w: %d", ErrUnknownAction, int(d.Kind))
	}
	s.steps++
	r := StepResult{Step: s.steps, Decision: d}

	if reason := s.checkLegal(d); reason != "" {
		r.Rejected = reason
	} else if err := handlers[d.Kind](s, ctx, d, &r); err != nil {
		return r, fmt.Errorf("step %d %s: %w", s.steps, d, err)
	}

	s.refreshLegal()
	r.Navigations, r.Interactions = s.classifier.Vocabulary()
	s.writeStep(r)
	if s.ended {
		s.writeSession()
	}
	return r, nil
}

func (s *Session) checkLegal(d Decision) string {
	rule := actionSpecs[d.Kind]
	switch {
	case rule.navigation && !s.classifier.Navigable.Has(s.targetType(d.Target)):
		return fmt.Sprintf("%s is not a legal navigation", d.Target)
	case rule.interaction && !s.classifier.Interactable.Has(s.targetType(d.Target)):
		return fmt.Sprintf("%s is not a legal interaction", d.Target)
	}
	return ""
}

func (s *Session) targetType(target string) string {
	if o, ok := s.md.Object(target); ok {
		return o.Type
	}
	return scene.TypeOfID(target)
}

func (s *Session) writeSession() {
	e := SessionEntry{
		SessionID: s.id,
		TaskID:    s.taskID,
		StartedAt: s.startedAt.Format(time.RFC3339Nano),
		Steps:     s.steps,
		Ended:     s.ended,
	}
	if s.ended {
		e.EndedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	for _, l := range s.sessionLoggers {
		_ = l.WriteSession(e)
	}
}

func (s *Session) writeStep(r StepResult) {
	e := StepEntry{
		SessionID:    s.id,
		Step:         r.Step,
		Time:         time.Now().UTC().Format(time.RFC3339Nano),
		Action:       r.Decision.Kind.String(),
		Target:       r.Decision.Target,
		ObjectID:     r.ObjectID,
		Success:      r.Success,
		Rejected:     r.Rejected,
		Message:      r.Message,
		Navigation:   r.Navigation,
		Frames:       r.Frames,
		Navigations:  r.Navigations,
		Interactions: r.Interactions,
		Agent:        s.state,
	}
	for _, l := range s.stepLoggers {
		_ = l.WriteStep(e)
	}
}

// Close records the end of the session if End was never stepped.
func (s *Session) Close() {
	if s.ended {
		return
	}
	s.ended = true
	s.writeSession()
}
