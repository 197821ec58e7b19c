package geo

import "tracking-service/internal/model"

// IsSignificant reports whether a candidate sample moved far enough from the
// previously accepted one to be worth processing. The first sample of a
// session (prev == nil) is always significant. The threshold is inclusive:
// a delta exactly at thresholdM counts as movement.
//
// This is the defense against GPS jitter flooding downstream stores with
// redundant writes.
func IsSignificant(prev *model.Position, candidate model.Position, thresholdM float64) bool {
	if prev == nil {
		return true
	}
	return DistanceMeters(prev.Latitude, prev.Longitude, candidate.Latitude, candidate.Longitude) >= thresholdM
}
