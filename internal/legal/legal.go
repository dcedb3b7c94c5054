// Package legal decides which object types the agent may currently navigate
// to or interact with, and keeps the running per-type tallies that form the
// agent's action vocabulary.
package legal

import (
	"poseplanner.ai/internal/geom"
	"poseplanner.ai/internal/scene"
)

const (
	// Objects below this volume only qualify through the proximity ladder.
	smallVolume = 0.01
	// Larger objects whose volume/distance ratio is at or below this also fall back to the ladder.
	rateFloor = 0.02
)

// rung is one clause of the proximity ladder. Clauses are tried in order.
type rung struct {
	minSurface  float64
	minVolume   float64
	maxDistance float64
}

var ladder = [...]rung{
	{minSurface: 0.5, maxDistance: 10},
	{minSurface: 0.15, maxDistance: 4},
	{minSurface: 0.08, maxDistance: 2.5},
	{minVolume: 0.005, maxDistance: 2},
	{minVolume: 0.001, maxDistance: 1.5},
	{maxDistance: 1},
}

func (r rung) admits(volume, surface, distance float64) bool {
	if r.minSurface > 0 && !(surface > r.minSurface) {
		return false
	}
	if r.minVolume > 0 && !(volume > r.minVolume) {
		return false
	}
	return distance < r.maxDistance
}

func closeEnough(volume, surface, distance float64) bool {
	for _, r := range ladder {
		if r.admits(volume, surface, distance) {
			return true
		}
	}
	return false
}

// Navigable applies the visibility, size and proximity rules.
func Navigable(visible bool, volume, surface, distance float64) bool {
	if !visible {
		return false
	}
	if volume < smallVolume {
		return closeEnough(volume, surface, distance)
	}
	if Rate(volume, distance) <= rateFloor {
		return closeEnough(volume, surface, distance)
	}
	return true
}

// Rate is volume per metre of distance; 0 when the agent stands on the object.
func Rate(volume, distance float64) float64 {
	if distance == 0 {
		return 0
	}
	return volume / distance
}

type Assessment struct {
	ObjectID    string  `json:"object_id"`
	ObjectType  string  `json:"object_type"`
	Visible     bool    `json:"visible"`
	Volume      float64 `json:"volume"`
	SurfaceArea float64 `json:"surface_area"`
	Distance    float64 `json:"distance"`
	Rate        float64 `json:"rate"`
	Navigable   bool    `json:"navigable"`
}

// Assess measures obj from the agent's position; distance is planar to the
// bounding-box center.
func Assess(obj scene.ObjectDescriptor, agent geom.Point3D) Assessment {
	v := obj.Volume()
	s := obj.SurfaceArea()
	d := geom.PlanarDistance(obj.BoxCenter, agent)
	return Assessment{
		ObjectID:    obj.ID,
		ObjectType:  obj.Type,
		Visible:     obj.Visible,
		Volume:      v,
		SurfaceArea: s,
		Distance:    d,
		Rate:        Rate(v, d),
		Navigable:   Navigable(obj.Visible, v, s, d),
	}
}
