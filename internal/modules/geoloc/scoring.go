// README: Cache-selection scoring and cached-position confidence formulas.
package geoloc

import (
	"math"
	"time"
)

const (
	accuracyWeight = 0.6
	recencyWeight  = 0.4
	recencyWindow  = 24 * time.Hour

	cachedConfidenceBase  = 0.8
	cachedConfidenceFloor = 0.3
	// confidence lost per minute of entry age
	cachedConfidenceDecay = 0.01
)

// accuracyQuality maps a reported accuracy radius (meters) to (0,1]; smaller
// radii score higher. Sub-meter readings are clamped so the weight never
// exceeds 1.
func accuracyQuality(accuracyM float64) float64 {
	return 1 / math.Max(accuracyM, 1)
}

// recencyDecay falls linearly from 1 to 0 over the 24h window.
func recencyDecay(age time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	d := 1 - age.Seconds()/recencyWindow.Seconds()
	if d < 0 {
		return 0
	}
	return d
}

// entryScore ranks cache entries for "best cached position" selection.
func entryScore(e Entry, now time.Time) float64 {
	return accuracyWeight*accuracyQuality(e.Sample.AccuracyM) +
		recencyWeight*recencyDecay(now.Sub(e.InsertedAt))
}

// cachedConfidence is the trust assigned to a cache hit: starts at 0.8 and
// loses 0.01 per minute of age, floored at 0.3.
func cachedConfidence(age time.Duration) float64 {
	c := cachedConfidenceBase - age.Minutes()*cachedConfidenceDecay
	return math.Max(cachedConfidenceFloor, c)
}

// ConfidenceFor reports the confidence attached to a sample served under
// src. Live readings carry the full live confidence; cached ones decay
// with the sample's age.
func ConfidenceFor(src Source, age time.Duration) float64 {
	if src == SourceCached {
		return cachedConfidence(age)
	}
	return confidenceLive
}
