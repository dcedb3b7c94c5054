package planner

import (
	"math"
	"sort"

	"poseplanner.ai/internal/geom"
	"poseplanner.ai/internal/scene"
)

// Scored is a candidate annotated with its facing-line and planar distances.
type Scored struct {
	Pose         scene.CandidatePose
	LineDistance float64
	Distance     float64
}

// ScoreByLine keeps the candidates whose distance to the object's facing line
// is within LineGap of the best one, sorted by planar distance to the object.
func (p *Planner) ScoreByLine(set []scene.CandidatePose, obj scene.ObjectDescriptor) []Scored {
	if len(set) == 0 {
		return nil
	}
	all := make([]Scored, 0, len(set))
	minLine := math.Inf(1)
	for _, c := range set {
		s := Scored{
			Pose:         c,
			LineDistance: geom.PerpendicularDistanceToFacingLine(c.Position, obj.Position, obj.FacingYaw),
			Distance:     geom.PlanarDistance(c.Position, obj.Position),
		}
		if s.LineDistance < minLine {
			minLine = s.LineDistance
		}
		all = append(all, s)
	}

	limit := minLine + p.cfg.LineGap
	kept := all[:0]
	for _, s := range all {
		if s.LineDistance <= limit {
			kept = append(kept, s)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Distance < kept[j].Distance })
	return kept
}

// Select picks one pose out of a front/back/side set by object size bucket.
// Small objects take the nearest pose; medium ones the median line-scored pose
// within SelectRadius; large ones the farthest line-scored pose within SelectRadius.
func (p *Planner) Select(set []scene.CandidatePose, obj scene.ObjectDescriptor) (scene.CandidatePose, bool) {
	switch p.cfg.Classify(obj.Volume(), obj.SurfaceArea()) {
	case BucketSmall:
		return Nearest(set, obj.Position)

	case BucketMedium:
		near := p.withinSelectRadius(p.ScoreByLine(set, obj))
		if len(near) == 0 {
			return scene.CandidatePose{}, false
		}
		return near[len(near)/2].Pose, true

	default:
		near := p.withinSelectRadius(p.ScoreByLine(set, obj))
		if len(near) == 0 {
			return scene.CandidatePose{}, false
		}
		best := near[0]
		for _, s := range near[1:] {
			if s.Distance > best.Distance {
				best = s
			}
		}
		return best.Pose, true
	}
}

func (p *Planner) withinSelectRadius(scored []Scored) []Scored {
	out := scored[:0:0]
	for _, s := range scored {
		if s.Distance <= p.cfg.SelectRadius {
			out = append(out, s)
		}
	}
	return out
}

// Nearest returns the first candidate with the smallest planar distance to target.
func Nearest(set []scene.CandidatePose, target geom.Point3D) (scene.CandidatePose, bool) {
	if len(set) == 0 {
		return scene.CandidatePose{}, false
	}
	best := set[0]
	bestD := geom.PlanarDistance(best.Position, target)
	for _, c := range set[1:] {
		if d := geom.PlanarDistance(c.Position, target); d < bestD {
			best, bestD = c, d
		}
	}
	return best, true
}
