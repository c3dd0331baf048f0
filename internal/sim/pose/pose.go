package pose

import "math"

// Vec3 is a world-space position in meters.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// HorizontalDistance ignores the vertical axis.
func HorizontalDistance(a, b Vec3) float64 {
	dx := a.X - b.X
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dz*dz)
}

// Pose is a location plus an optional facing. A pose without a yaw matches any
// facing under every comparer.
type Pose struct {
	Pos    Vec3    `json:"pos"`
	Yaw    float64 `json:"yaw,omitempty"` // degrees, meaningful only when HasYaw
	HasYaw bool    `json:"has_yaw,omitempty"`
}

// At returns a facing-agnostic pose.
func At(p Vec3) Pose {
	return Pose{Pos: p}
}

// Facing returns a pose that also constrains yaw.
func Facing(p Vec3, yawDeg float64) Pose {
	return Pose{Pos: p, Yaw: normYaw(yawDeg), HasYaw: true}
}

func normYaw(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// YawDelta returns the absolute angular distance between two yaws in [0,180].
func YawDelta(a, b float64) float64 {
	d := math.Abs(normYaw(a) - normYaw(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}
