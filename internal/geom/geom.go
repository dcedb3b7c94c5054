package geom

import (
	"math"

	"github.com/golang/geo/r3"
)

// Point3D is a world coordinate. Y is vertical; planning happens on the x/z plane.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Rotation holds Euler angles in degrees. Only Y (yaw) is planned.
type Rotation struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func Yaw(deg float64) Rotation { return Rotation{Y: deg} }

func (p Point3D) Vector() r3.Vector { return r3.Vector{X: p.X, Y: p.Y, Z: p.Z} }

func FromVector(v r3.Vector) Point3D { return Point3D{X: v.X, Y: v.Y, Z: v.Z} }

// Octants are the snap targets for facing directions. 360 folds back to 0.
var Octants = [...]float64{0, 45, 90, 135, 180, 225, 270, 315, 360}

// SnapToOctant rounds angle to the nearest multiple of 45 in [0,315].
// The input is rounded to whole degrees first; ties keep the lower octant.
func SnapToOctant(angle float64) float64 {
	a := math.Round(angle)
	best := Octants[0]
	bestDiff := math.Abs(a - best)
	for _, o := range Octants[1:] {
		if d := math.Abs(a - o); d < bestDiff {
			best, bestDiff = o, d
		}
	}
	if best == 360 {
		return 0
	}
	return best
}

// NormalizeDegrees maps any angle into [0,360).
func NormalizeDegrees(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}

// DeltaDegrees returns the signed shortest turn from -> to in (-180,180].
func DeltaDegrees(from, to float64) float64 {
	d := NormalizeDegrees(to - from)
	if d > 180 {
		d -= 360
	}
	return d
}

func PlanarDistance(a, b Point3D) float64 {
	dx := a.X - b.X
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dz*dz)
}

// PerpendicularDistanceToFacingLine measures how far p lies from the line
// through center with slope -tan(yaw). The implicit form is A*x + B*z + C = 0
// with A=1, B=-tan(yaw), C=-center.x - B*center.z, evaluated with the point's
// coordinates swapped (A*z0 + B*x0 + C), which is how simulator candidates
// are scored against an object's facing.
func PerpendicularDistanceToFacingLine(p, center Point3D, yawDeg float64) float64 {
	const a = 1.0
	b := -math.Tan(yawDeg * math.Pi / 180)
	c := -center.X - b*center.Z
	return math.Abs(a*p.Z+b*p.X+c) / math.Sqrt(a*a+b*b)
}

// YawToward is the yaw (degrees, [0,360)) an agent at from must face to look at to.
func YawToward(from, to Point3D) float64 {
	return NormalizeDegrees(math.Atan2(to.X-from.X, to.Z-from.Z) * 180 / math.Pi)
}

// LookAngles returns the yaw and pitch (degrees) of the unit vector from eye to target.
// Yaw is atan2(vx, vz) and may be negative; pitch is asin(vy), positive upward.
func LookAngles(eye, target Point3D) (yaw, pitch float64) {
	v := target.Vector().Sub(eye.Vector()).Normalize()
	yaw = math.Atan2(v.X, v.Z) * 180 / math.Pi
	pitch = math.Asin(clamp(v.Y, -1, 1)) * 180 / math.Pi
	return yaw, pitch
}

func Clamp(v, lo, hi float64) float64 { return clamp(v, lo, hi) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
