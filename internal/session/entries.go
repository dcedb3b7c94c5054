package session

import (
	"poseplanner.ai/internal/align"
	"poseplanner.ai/internal/geom"
	"poseplanner.ai/internal/planner"
)

// SessionEntry is written when a session starts and again when it ends.
type SessionEntry struct {
	SessionID string `json:"session_id"`
	TaskID    string `json:"task_id,omitempty"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at,omitempty"`
	Steps     int    `json:"steps"`
	Ended     bool   `json:"ended"`
}

type StepEntry struct {
	SessionID    string      `json:"session_id"`
	Step         int         `json:"step"`
	Time         string      `json:"time"`
	Action       string      `json:"action"`
	Target       string      `json:"target,omitempty"`
	ObjectID     string      `json:"object_id,omitempty"`
	Success      bool        `json:"success"`
	Rejected     string      `json:"rejected,omitempty"`
	Message      string      `json:"message,omitempty"`
	Navigation   *NavOutcome `json:"navigation,omitempty"`
	Frames       []string    `json:"frames,omitempty"`
	Navigations  []string    `json:"legal_navigations"`
	Interactions []string    `json:"legal_interactions"`
	Agent        AgentState  `json:"agent"`
}

type AttemptEntry struct {
	SessionID string         `json:"session_id"`
	Step      int            `json:"step"`
	ObjectID  string         `json:"object_id,omitempty"`
	Attempt   int            `json:"attempt"`
	Position  geom.Point3D   `json:"position"`
	Rotation  geom.Rotation  `json:"rotation"`
	Horizon   float64        `json:"horizon"`
	Source    planner.Source `json:"source"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
}

type SessionLogger interface {
	WriteSession(entry SessionEntry) error
}

type StepLogger interface {
	WriteStep(entry StepEntry) error
}

type AttemptLogger interface {
	WriteAttempt(entry AttemptEntry) error
}

// NavStatus is the terminal state of one navigation.
type NavStatus string

const (
	NavSuccess      NavStatus = "success"
	NavExhausted    NavStatus = "exhausted"
	NavNoCandidates NavStatus = "no_candidates"
)

// NavOutcome is the explicit result of a navigation; failures are values, not errors.
type NavOutcome struct {
	Status       NavStatus          `json:"status"`
	ObjectID     string             `json:"object_id"`
	Plan         planner.PlanResult `json:"plan"`
	Attempts     []AttemptEntry     `json:"attempts,omitempty"`
	Excluded     int                `json:"excluded"`
	UsedOverride bool               `json:"used_override,omitempty"`
	Align        *align.Outcome     `json:"align,omitempty"`
}
