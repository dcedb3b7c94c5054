package planner

import (
	"math"

	"poseplanner.ai/internal/geom"
	"poseplanner.ai/internal/scene"
)

// tolEpsilon absorbs float noise in |a-b| <= tol comparisons on 0.1 m grids.
const tolEpsilon = 1e-9

// Excluded reports positions that must not be proposed again.
type Excluded interface {
	Has(p geom.Point3D) bool
}

type band int

const (
	bandNone band = iota
	bandX         // |candidate.x - object.x| <= tol
	bandZ         // |candidate.z - object.z| <= tol
)

// region is a strict sign test of (candidate - object) on x and z; 0 leaves the axis free.
type region struct{ sx, sz int }

func (r region) contains(c, o geom.Point3D) bool {
	if r.sx != 0 && sign(c.X-o.X) != r.sx {
		return false
	}
	if r.sz != 0 && sign(c.Z-o.Z) != r.sz {
		return false
	}
	return true
}

// facingYaw is the yaw that looks from a diagonal region back at the object.
func (r region) facingYaw() float64 {
	switch r {
	case region{+1, +1}:
		return 225
	case region{+1, -1}:
		return 315
	case region{-1, +1}:
		return 135
	default:
		return 45
	}
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

type octantRule struct {
	band     band
	front    region
	frontYaw float64
	back     region
	backYaw  float64
}

var octantRules = map[float64]octantRule{
	0:   {band: bandX, front: region{sz: +1}, frontYaw: 180, back: region{sz: -1}, backYaw: 0},
	45:  {front: region{+1, +1}, frontYaw: 225, back: region{-1, -1}, backYaw: 45},
	90:  {band: bandZ, front: region{sx: +1}, frontYaw: 270, back: region{sx: -1}, backYaw: 90},
	135: {front: region{+1, -1}, frontYaw: 315, back: region{-1, +1}, backYaw: 135},
	180: {band: bandX, front: region{sz: -1}, frontYaw: 0, back: region{sz: +1}, backYaw: 180},
	225: {front: region{-1, -1}, frontYaw: 45, back: region{+1, +1}, backYaw: 225},
	270: {band: bandZ, front: region{sx: -1}, frontYaw: 90, back: region{sx: +1}, backYaw: 270},
	315: {front: region{-1, +1}, frontYaw: 135, back: region{+1, -1}, backYaw: 315},
}

var quadrants = [...]region{{+1, +1}, {+1, -1}, {-1, +1}, {-1, -1}}

// SideSet is a diagonal quadrant that is neither front nor back.
type SideSet struct {
	Poses []scene.CandidatePose
	Yaw   float64
}

// Partition is the front/back split of the candidates around an object.
type Partition struct {
	Octant   float64
	Front    []scene.CandidatePose
	FrontYaw float64
	Back     []scene.CandidatePose
	BackYaw  float64
	// Sides is only populated for diagonal facings.
	Sides []SideSet
	// Tolerance is the band width that admitted candidates for axis-aligned
	// facings; 0 when no band applied or nothing fell inside the widest band.
	Tolerance float64
}

// Eligible drops excluded positions and, when radius > 0, positions farther
// than radius from center. Order is preserved.
func Eligible(cands []scene.CandidatePose, excluded Excluded, center geom.Point3D, radius float64) []scene.CandidatePose {
	out := make([]scene.CandidatePose, 0, len(cands))
	for _, c := range cands {
		if excluded != nil && excluded.Has(c.Position) {
			continue
		}
		if radius > 0 && geom.PlanarDistance(c.Position, center) > radius {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Partition classifies already-eligible candidates as front or back of obj.
func (p *Planner) Partition(cands []scene.CandidatePose, obj scene.ObjectDescriptor) Partition {
	oct := geom.SnapToOctant(obj.FacingYaw)
	rule := octantRules[oct]
	out := Partition{Octant: oct, FrontYaw: rule.frontYaw, BackYaw: rule.backYaw}
	o := obj.Position

	pool := cands
	if rule.band != bandNone {
		pool = nil
		for _, tol := range p.cfg.Tolerances {
			pool = inBand(cands, o, rule.band, tol)
			if len(pool) > 0 {
				out.Tolerance = tol
				break
			}
		}
	}

	for _, c := range pool {
		switch {
		case rule.front.contains(c.Position, o):
			out.Front = append(out.Front, c)
		case rule.back.contains(c.Position, o):
			out.Back = append(out.Back, c)
		}
	}

	if rule.band == bandNone {
		for _, q := range sideOrder(rule) {
			var set SideSet
			set.Yaw = q.facingYaw()
			for _, c := range pool {
				if q.contains(c.Position, o) {
					set.Poses = append(set.Poses, c)
				}
			}
			out.Sides = append(out.Sides, set)
		}
	}
	return out
}

func inBand(cands []scene.CandidatePose, o geom.Point3D, b band, tol float64) []scene.CandidatePose {
	var out []scene.CandidatePose
	for _, c := range cands {
		var d float64
		if b == bandX {
			d = math.Abs(c.Position.X - o.X)
		} else {
			d = math.Abs(c.Position.Z - o.Z)
		}
		if d <= tol+tolEpsilon {
			out = append(out, c)
		}
	}
	return out
}

// sideOrder lists the two remaining quadrants, the one sharing the front's x side first.
func sideOrder(rule octantRule) []region {
	var first, second []region
	for _, q := range quadrants {
		if q == rule.front || q == rule.back {
			continue
		}
		if q.sx == rule.front.sx {
			first = append(first, q)
		} else {
			second = append(second, q)
		}
	}
	return append(first, second...)
}
