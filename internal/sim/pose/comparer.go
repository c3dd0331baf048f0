package pose

// Comparer is a tolerance-based approximate-equality check between poses.
// The horizontal and vertical axes have independent tolerances because actors
// typically stand on a surface near a target rather than exactly on it.
type Comparer struct {
	DistanceTol float64 // horizontal meters
	VerticalTol float64 // vertical meters
	AngleTolDeg float64 // yaw degrees
}

// DefaultComparer matches the stock tuning shipped in configs/tuning.yaml.
func DefaultComparer() Comparer {
	return Comparer{DistanceTol: 0.5, VerticalTol: 1.0, AngleTolDeg: 15}
}

func (c Comparer) Equal(a, b Pose) bool {
	if HorizontalDistance(a.Pos, b.Pos) > c.DistanceTol {
		return false
	}
	dy := a.Pos.Y - b.Pos.Y
	if dy < 0 {
		dy = -dy
	}
	if dy > c.VerticalTol {
		return false
	}
	if a.HasYaw && b.HasYaw && YawDelta(a.Yaw, b.Yaw) > c.AngleTolDeg {
		return false
	}
	return true
}
