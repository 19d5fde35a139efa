// README: Position sample, source tags, and cache entry definitions.
package geoloc

import (
	"errors"
	"time"

	"pilgrim/internal/types"
)

// Source tags where a resolved position came from.
type Source string

const (
	SourceLiveGPS   Source = "live-gps"
	SourceNetwork   Source = "network"
	SourceEstimated Source = "estimated"
	SourceCached    Source = "cached"
	SourcePreloaded Source = "preloaded"
)

var (
	// ErrGeolocationUnavailable means no positioning primitive is wired at all.
	ErrGeolocationUnavailable = errors.New("geolocation unavailable")
	// ErrNoValidPosition means every acquisition attempt produced an invalid
	// or missing sample.
	ErrNoValidPosition = errors.New("no valid position")
	// ErrCacheUnavailable means the durable storage tier failed; callers
	// degrade rather than propagate it.
	ErrCacheUnavailable = errors.New("location cache storage unavailable")
)

// Sample is one immutable position reading. Constructed once by the
// acquisition engine or the fallback resolver and never mutated after.
type Sample struct {
	Lat               float64    `json:"lat"`
	Lng               float64    `json:"lng"`
	AccuracyM         float64    `json:"accuracy_m"`
	AltitudeM         *float64   `json:"altitude_m,omitempty"`
	AltitudeAccuracyM *float64   `json:"altitude_accuracy_m,omitempty"`
	HeadingDeg        *float64   `json:"heading_deg,omitempty"`
	SpeedMps          *float64   `json:"speed_mps,omitempty"`
	Timestamp         time.Time  `json:"timestamp"`
}

// Point returns the coordinate pair of the sample.
func (s Sample) Point() types.Point {
	return types.Point{Lat: s.Lat, Lng: s.Lng}
}

// Age reports how long ago the sample was acquired.
func (s Sample) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}

// Entry wraps a Sample in the location cache with its provenance.
type Entry struct {
	Sample     Sample    `json:"sample"`
	Source     Source    `json:"source"`
	InsertedAt time.Time `json:"inserted_at"`
}

// Resolved is the output of the fallback resolver: a best-effort position,
// where it came from, and how much to trust it (0..1).
type Resolved struct {
	Sample     Sample
	Source     Source
	Confidence float64
}
