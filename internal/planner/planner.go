package planner

import (
	"poseplanner.ai/internal/geom"
	"poseplanner.ai/internal/scene"
)

// Source names the strategy that produced a plan.
type Source string

const (
	SourceFront          Source = "front"
	SourceBack           Source = "back"
	SourceSide           Source = "side"
	SourceNearest        Source = "nearest"
	SourceNearestRelaxed Source = "nearest_relaxed"
	SourceCorner         Source = "corner"
	SourceOverride       Source = "override"
)

// PlanResult is a target pose. Found=false means no viable pose.
// A found Position is always one of the candidates handed to the planner.
type PlanResult struct {
	Found    bool          `json:"found"`
	Position geom.Point3D  `json:"position"`
	Rotation geom.Rotation `json:"rotation"`
	Source   Source        `json:"source,omitempty"`
}

func NotFound() PlanResult { return PlanResult{} }

type Planner struct {
	cfg Config
}

// New plans with cfg; an unset Config means DefaultConfig.
func New(cfg Config) *Planner {
	if cfg.IsZero() {
		cfg = DefaultConfig()
	}
	if len(cfg.Tolerances) == 0 {
		cfg.Tolerances = DefaultConfig().Tolerances
	}
	return &Planner{cfg: cfg}
}

func (p *Planner) Config() Config { return p.cfg }

// Input is what every strategy sees for one planning call.
type Input struct {
	Object scene.ObjectDescriptor
	// Open holds every non-excluded candidate.
	Open []scene.CandidatePose
	// Near is Open restricted to the interaction radius.
	Near      []scene.CandidatePose
	Partition Partition
}

// Strategy proposes a pose or declines.
type Strategy func(in Input) (PlanResult, bool)

// FirstOf runs strategies in order and returns the first proposal.
func FirstOf(in Input, strategies ...Strategy) PlanResult {
	for _, s := range strategies {
		if r, ok := s(in); ok {
			return r
		}
	}
	return NotFound()
}

// Plan computes where to stand to interact with obj. It is pure: the same
// candidates, object and exclusions always give the same result.
func (p *Planner) Plan(cands []scene.CandidatePose, obj scene.ObjectDescriptor, excluded Excluded) PlanResult {
	in := p.Prepare(cands, obj, excluded)
	strategies := []Strategy{p.front, p.back, p.sides, nearest}
	if p.cfg.RelaxRadiusOnFallback {
		strategies = append(strategies, nearestRelaxed)
	}
	return FirstOf(in, strategies...)
}

func (p *Planner) Prepare(cands []scene.CandidatePose, obj scene.ObjectDescriptor, excluded Excluded) Input {
	open := Eligible(cands, excluded, obj.Position, 0)
	near := Eligible(open, nil, obj.Position, p.cfg.InteractionRadius)
	return Input{
		Object:    obj,
		Open:      open,
		Near:      near,
		Partition: p.Partition(near, obj),
	}
}

func (p *Planner) front(in Input) (PlanResult, bool) {
	return p.fromSet(in.Partition.Front, in.Object, in.Partition.FrontYaw, SourceFront)
}

func (p *Planner) back(in Input) (PlanResult, bool) {
	return p.fromSet(in.Partition.Back, in.Object, in.Partition.BackYaw, SourceBack)
}

func (p *Planner) sides(in Input) (PlanResult, bool) {
	for _, s := range in.Partition.Sides {
		if r, ok := p.fromSet(s.Poses, in.Object, s.Yaw, SourceSide); ok {
			return r, true
		}
	}
	return PlanResult{}, false
}

func (p *Planner) fromSet(set []scene.CandidatePose, obj scene.ObjectDescriptor, yaw float64, src Source) (PlanResult, bool) {
	if len(set) == 0 {
		return PlanResult{}, false
	}
	c, ok := p.Select(set, obj)
	if !ok {
		return PlanResult{}, false
	}
	return PlanResult{Found: true, Position: c.Position, Rotation: geom.Yaw(yaw), Source: src}, true
}

func nearest(in Input) (PlanResult, bool) {
	return nearestOf(in.Near, in.Object.Position, SourceNearest)
}

func nearestRelaxed(in Input) (PlanResult, bool) {
	return nearestOf(in.Open, in.Object.Position, SourceNearestRelaxed)
}

func nearestOf(set []scene.CandidatePose, target geom.Point3D, src Source) (PlanResult, bool) {
	c, ok := Nearest(set, target)
	if !ok {
		return PlanResult{}, false
	}
	return PlanResult{Found: true, Position: c.Position, Rotation: candidateRotation(c), Source: src}, true
}

func candidateRotation(c scene.CandidatePose) geom.Rotation {
	if c.HasYaw {
		return geom.Yaw(c.Yaw)
	}
	return geom.Yaw(0)
}

// PlanNearest is the plain nearest-position strategy for open-area moves: the
// non-excluded candidate closest to target, with its own yaw (or 0).
func PlanNearest(cands []scene.CandidatePose, target geom.Point3D, excluded Excluded) PlanResult {
	r, _ := nearestOf(Eligible(cands, excluded, target, 0), target, SourceNearest)
	return r
}
