package geo

import (
	"math"
	"testing"
)

func TestDistanceMetersCoincidentPoints(t *testing.T) {
	points := [][2]float64{
		{0, 0},
		{27.7172, 85.3240},
		{-33.8688, 151.2093},
		{89.9, -179.9},
	}
	for _, p := range points {
		if d := DistanceMeters(p[0], p[1], p[0], p[1]); d > 1e-6 {
			t.Errorf("DistanceMeters(%v, %v, same) = %v, want ~0", p[0], p[1], d)
		}
	}
}

func TestDistanceMetersSymmetric(t *testing.T) {
	pairs := [][4]float64{
		{27.7172, 85.3240, 27.7000, 85.3200},
		{51.5074, -0.1278, 48.8566, 2.3522},
		{-1.2921, 36.8219, 59.9139, 10.7522},
	}
	for _, p := range pairs {
		ab := DistanceMeters(p[0], p[1], p[2], p[3])
		ba := DistanceMeters(p[2], p[3], p[0], p[1])
		if math.Abs(ab-ba) > 1e-9 {
			t.Errorf("asymmetric distance: %v vs %v", ab, ba)
		}
	}
}

func TestDistanceMetersKathmanduFixture(t *testing.T) {
	// Reference haversine value for two points in Kathmandu.
	d := DistanceMeters(27.7172, 85.3240, 27.7000, 85.3200)
	if d < 1880 || d > 1980 {
		t.Errorf("DistanceMeters = %v m, want ~1930 m +/- 50 m", d)
	}
}

func TestBearingCardinalDirections(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
	}{
		{"due north", 0, 0, 1, 0, 0},
		{"due east", 0, 0, 0, 1, 90},
		{"due south", 1, 0, 0, 0, 180},
		{"due west", 0, 1, 0, 0, 270},
	}
	for _, tt := range tests {
		got := Bearing(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
		if math.Abs(got-tt.want) > 0.01 {
			t.Errorf("%s: Bearing = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestBearingNormalized(t *testing.T) {
	for _, p := range [][4]float64{
		{10, 20, -30, -40},
		{50, 50, 50.1, 49.9},
		{-80, 170, -79, -170},
	} {
		b := Bearing(p[0], p[1], p[2], p[3])
		if b < 0 || b >= 360 {
			t.Errorf("Bearing(%v) = %v, want [0, 360)", p, b)
		}
	}
}
