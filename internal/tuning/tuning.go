package tuning

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"poseplanner.ai/internal/align"
	"poseplanner.ai/internal/planner"
	"poseplanner.ai/internal/session"
)

type Tuning struct {
	Planner PlannerTuning `yaml:"planner"`
	Align   AlignTuning   `yaml:"align"`
	Session SessionTuning `yaml:"session"`
}

type PlannerTuning struct {
	InteractionRadius     float64   `yaml:"interaction_radius"`
	Tolerances            []float64 `yaml:"tolerances"`
	LineGap               float64   `yaml:"line_gap"`
	SelectRadius          float64   `yaml:"select_radius"`
	SmallMaxVolume        float64   `yaml:"small_max_volume"`
	SmallMaxSurface       float64   `yaml:"small_max_surface"`
	MediumMaxVolume       float64   `yaml:"medium_max_volume"`
	MediumMaxSurface      float64   `yaml:"medium_max_surface"`
	RelaxRadiusOnFallback bool      `yaml:"relax_radius_on_fallback"`
}

type AlignTuning struct {
	MinTilt      float64 `yaml:"min_tilt"`
	MaxTilt      float64 `yaml:"max_tilt"`
	CrouchMargin float64 `yaml:"crouch_margin"`
}

type SessionTuning struct {
	MaxSteps        int     `yaml:"max_steps"`
	NavigateHorizon float64 `yaml:"navigate_horizon"`
	InitHorizon     float64 `yaml:"init_horizon"`
	MoveDistance    float64 `yaml:"move_distance"`
	ObserveTurn     float64 `yaml:"observe_turn"`
	// MaxAttempts caps teleport attempts per navigation; 0 means one per candidate.
	MaxAttempts int `yaml:"max_attempts"`
}

func Defaults() Tuning {
	p := planner.DefaultConfig()
	a := align.DefaultConfig()
	return Tuning{
		Planner: PlannerTuning{
			InteractionRadius:     p.InteractionRadius,
			Tolerances:            append([]float64(nil), p.Tolerances...),
			LineGap:               p.LineGap,
			SelectRadius:          p.SelectRadius,
			SmallMaxVolume:        p.SmallMaxVolume,
			SmallMaxSurface:       p.SmallMaxSurface,
			MediumMaxVolume:       p.MediumMaxVolume,
			MediumMaxSurface:      p.MediumMaxSurface,
			RelaxRadiusOnFallback: p.RelaxRadiusOnFallback,
		},
		Align: AlignTuning{
			MinTilt:      a.MinTilt,
			MaxTilt:      a.MaxTilt,
			CrouchMargin: a.CrouchMargin,
		},
		Session: SessionTuning{
			MaxSteps:        20,
			NavigateHorizon: 60,
			InitHorizon:     0,
			MoveDistance:    0.5,
			ObserveTurn:     90,
		},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	p := t.Planner
	if p.InteractionRadius <= 0 || p.SelectRadius <= 0 {
		return errors.New("planner radii must be > 0")
	}
	if len(p.Tolerances) == 0 {
		return errors.New("planner.tolerances must not be empty")
	}
	for i, tol := range p.Tolerances {
		if tol <= 0 {
			return fmt.Errorf("planner.tolerances[%d] must be > 0", i)
		}
		if i > 0 && tol <= p.Tolerances[i-1] {
			return errors.New("planner.tolerances must be strictly increasing")
		}
	}
	if p.LineGap < 0 {
		return errors.New("planner.line_gap must be >= 0")
	}
	if p.SmallMaxVolume > p.MediumMaxVolume || p.SmallMaxSurface > p.MediumMaxSurface {
		return errors.New("planner small bucket must not exceed medium bucket")
	}
	if t.Align.MinTilt >= t.Align.MaxTilt {
		return errors.New("align.min_tilt must be < align.max_tilt")
	}
	if t.Session.MaxSteps <= 0 {
		return errors.New("session.max_steps must be > 0")
	}
	if t.Session.MoveDistance <= 0 || t.Session.ObserveTurn <= 0 {
		return errors.New("session move_distance and observe_turn must be > 0")
	}
	if t.Session.MaxAttempts < 0 {
		return errors.New("session.max_attempts must be >= 0")
	}
	return nil
}

func (t Tuning) PlannerConfig() planner.Config {
	p := t.Planner
	return planner.Config{
		InteractionRadius:     p.InteractionRadius,
		Tolerances:            append([]float64(nil), p.Tolerances...),
		LineGap:               p.LineGap,
		SelectRadius:          p.SelectRadius,
		SmallMaxVolume:        p.SmallMaxVolume,
		SmallMaxSurface:       p.SmallMaxSurface,
		MediumMaxVolume:       p.MediumMaxVolume,
		MediumMaxSurface:      p.MediumMaxSurface,
		RelaxRadiusOnFallback: p.RelaxRadiusOnFallback,
	}
}

func (t Tuning) AlignConfig() align.Config {
	return align.Config{MinTilt: t.Align.MinTilt, MaxTilt: t.Align.MaxTilt, CrouchMargin: t.Align.CrouchMargin}
}

func (t Tuning) SessionConfig() session.Config {
	st := t.Session
	return session.Config{
		MaxSteps:        st.MaxSteps,
		NavigateHorizon: st.NavigateHorizon,
		InitHorizon:     st.InitHorizon,
		MoveDistance:    st.MoveDistance,
		ObserveTurn:     st.ObserveTurn,
		MaxAttempts:     st.MaxAttempts,
	}
}
