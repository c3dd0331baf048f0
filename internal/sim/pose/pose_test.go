package pose

import "testing"

func TestComparer_HorizontalTolerance(t *testing.T) {
	c := Comparer{DistanceTol: 0.5, VerticalTol: 1.0, AngleTolDeg: 15}
	a := At(Vec3{X: 0, Y: 0, Z: 0})
	if !c.Equal(a, At(Vec3{X: 0.3, Y: 0, Z: 0.3})) {
		t.Fatalf("expected poses within 0.5m horizontal to be equal")
	}
	if c.Equal(a, At(Vec3{X: 0.6, Y: 0, Z: 0})) {
		t.Fatalf("expected poses 0.6m apart to differ")
	}
}

func TestComparer_VerticalOffsetIsSeparate(t *testing.T) {
	c := Comparer{DistanceTol: 0.5, VerticalTol: 1.0, AngleTolDeg: 15}
	a := At(Vec3{})
	if !c.Equal(a, At(Vec3{Y: 0.9})) {
		t.Fatalf("expected 0.9m vertical offset to pass with VerticalTol=1.0")
	}
	if c.Equal(a, At(Vec3{Y: 1.2})) {
		t.Fatalf("expected 1.2m vertical offset to fail")
	}
}

func TestComparer_YawWraparound(t *testing.T) {
	c := DefaultComparer()
	a := Facing(Vec3{}, 359)
	b := Facing(Vec3{}, 5)
	if !c.Equal(a, b) {
		t.Fatalf("expected 359 vs 5 degrees to be within 15 degree tolerance")
	}
	if c.Equal(a, Facing(Vec3{}, 180)) {
		t.Fatalf("expected opposite facings to differ")
	}
}

func TestComparer_MissingYawMatchesAnyFacing(t *testing.T) {
	c := DefaultComparer()
	if !c.Equal(At(Vec3{}), Facing(Vec3{}, 90)) {
		t.Fatalf("pose without yaw must match any facing")
	}
}

func TestYawDelta(t *testing.T) {
	if got := YawDelta(-10, 10); got != 20 {
		t.Fatalf("YawDelta(-10,10)=%v want 20", got)
	}
	if got := YawDelta(350, 10); got != 20 {
		t.Fatalf("YawDelta(350,10)=%v want 20", got)
	}
}
