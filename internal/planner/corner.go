package planner

import (
	"math"

	"poseplanner.ai/internal/geom"
)

// cornerYaws face into the room from each of the four floor corners.
var cornerYaws = [4]float64{225, 315, 135, 45}

// PlanCorner picks the reachable position closest to any of the four scene
// corners and faces it into the room. No interaction radius applies. Ties keep
// the earlier corner, then the earlier position.
func PlanCorner(reachable []geom.Point3D, corners [4]geom.Point3D, excluded Excluded) PlanResult {
	best := math.Inf(1)
	var (
		target geom.Point3D
		index  = -1
	)
	for i, corner := range corners {
		for _, p := range reachable {
			if excluded != nil && excluded.Has(p) {
				continue
			}
			if d := geom.PlanarDistance(p, corner); d < best {
				best, target, index = d, p, i
			}
		}
	}
	if index < 0 {
		return NotFound()
	}
	return PlanResult{Found: true, Position: target, Rotation: geom.Yaw(cornerYaws[index]), Source: SourceCorner}
}
