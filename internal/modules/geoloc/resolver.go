// README: Offline fallback resolver: live GPS → network → cached → estimated → emergency.
package geoloc

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"pilgrim/internal/types"
)

const (
	confidenceLive      = 0.9
	confidenceNetwork   = 0.7
	confidenceEstimated = 0.4
	confidenceEmergency = 0.2

	networkLocateBudget = 5 * time.Second
	liveAcquireBudget   = 10 * time.Second

	// estimateJitterDeg ≈ 11 m of latitude; simulates plausible movement
	// around the previous estimate.
	estimateJitterDeg = 0.0001

	estimatedAccuracyM = 500
	emergencyAccuracyM = 50000
)

// ErrNoReferencePoints means the centroid estimate has nothing to work with.
var ErrNoReferencePoints = errors.New("no reference points configured")

// ReferencePoint is a named anchor used for the weighted-centroid estimate.
// Weights across the configured set sum to 1.
type ReferencePoint struct {
	Name   string
	Point  types.Point
	Weight float64
}

// NetworkLocator is the coarse IP/network positioning tier.
type NetworkLocator interface {
	Locate(ctx context.Context) (Sample, error)
}

// ConnectivityProbe answers "are we online right now".
type ConnectivityProbe interface {
	Online(ctx context.Context) bool
}

// HTTPProbe checks connectivity with a HEAD request against a lightweight
// endpoint, the server-side analog of navigator.onLine.
type HTTPProbe struct {
	URL    string
	Client *http.Client
}

func NewHTTPProbe(url string) *HTTPProbe {
	return &HTTPProbe{URL: url, Client: &http.Client{Timeout: 2 * time.Second}}
}

func (p *HTTPProbe) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Resolver implements the fallback chain. Resolve never fails: it always
// hands back a position with a source tag and a confidence score so callers
// can tell the user "estimated" from "precise".
type Resolver struct {
	engine *Engine
	cache  *Cache
	probe  ConnectivityProbe
	refs   []ReferencePoint

	// emergency is the hardcoded last-resort coordinate.
	emergency types.Point

	now func() time.Time

	mu           sync.Mutex
	locator      NetworkLocator
	lastEstimate *Sample
}

func NewResolver(engine *Engine, cache *Cache, probe ConnectivityProbe, refs []ReferencePoint, emergency types.Point) *Resolver {
	return &Resolver{
		engine:    engine,
		cache:     cache,
		probe:     probe,
		refs:      refs,
		emergency: emergency,
		now:       time.Now,
	}
}

// SetLocator installs the network-location tier once it has initialised.
func (r *Resolver) SetLocator(l NetworkLocator) {
	r.mu.Lock()
	r.locator = l
	r.mu.Unlock()
}

// Resolve walks the priority chain and returns the first tier that yields a
// position. Every result except the emergency one is written back into the
// cache under its source tag.
func (r *Resolver) Resolve(ctx context.Context) Resolved {
	online := r.probe != nil && r.probe.Online(ctx)

	if online && r.engine != nil {
		actx, cancel := context.WithTimeout(ctx, liveAcquireBudget)
		s, src, err := r.engine.Acquire(actx, AcquireOptions{HighAccuracy: true, Timeout: liveAcquireBudget})
		cancel()
		if err == nil && src == SourceLiveGPS {
			// the engine already cached the sample as live-gps
			return Resolved{Sample: s, Source: SourceLiveGPS, Confidence: confidenceLive}
		}
		// a degraded (cached) engine result falls through: the cache tier
		// below will surface it under its honest source and confidence
		if err != nil {
			log.Printf("geoloc: live acquisition unavailable, falling back: %v", err)
		}
	}

	if online {
		r.mu.Lock()
		locator := r.locator
		r.mu.Unlock()
		if locator != nil {
			nctx, cancel := context.WithTimeout(ctx, networkLocateBudget)
			s, err := locator.Locate(nctx)
			cancel()
			if err == nil {
				if r.cache != nil {
					r.cache.Add(ctx, s, SourceNetwork)
				}
				return Resolved{Sample: s, Source: SourceNetwork, Confidence: confidenceNetwork}
			}
			log.Printf("geoloc: network locate failed, falling back: %v", err)
		}
	}

	if r.cache != nil {
		if e, ok := r.cache.Best(r.now()); ok {
			conf := cachedConfidence(r.now().Sub(e.InsertedAt))
			r.cache.Add(ctx, e.Sample, SourceCached)
			return Resolved{Sample: e.Sample, Source: SourceCached, Confidence: conf}
		}
	}

	s, err := r.estimate()
	if err != nil {
		return Resolved{
			Sample: Sample{
				Lat:       r.emergency.Lat,
				Lng:       r.emergency.Lng,
				AccuracyM: emergencyAccuracyM,
				Timestamp: r.now(),
			},
			Source:     SourceEstimated,
			Confidence: confidenceEmergency,
		}
	}
	if r.cache != nil {
		r.cache.Add(ctx, s, SourceEstimated)
	}
	return Resolved{Sample: s, Source: SourceEstimated, Confidence: confidenceEstimated}
}

// estimate perturbs the previous estimate by a small jitter when one exists,
// otherwise synthesises a weighted centroid over the reference points.
func (r *Resolver) estimate() (Sample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lastEstimate != nil {
		s := Sample{
			Lat:       r.lastEstimate.Lat + (rand.Float64()-0.5)*2*estimateJitterDeg,
			Lng:       r.lastEstimate.Lng + (rand.Float64()-0.5)*2*estimateJitterDeg,
			AccuracyM: estimatedAccuracyM,
			Timestamp: r.now(),
		}
		r.lastEstimate = &s
		return s, nil
	}

	if len(r.refs) == 0 {
		return Sample{}, ErrNoReferencePoints
	}
	var lat, lng, total float64
	for _, ref := range r.refs {
		lat += ref.Point.Lat * ref.Weight
		lng += ref.Point.Lng * ref.Weight
		total += ref.Weight
	}
	if total <= 0 {
		return Sample{}, ErrNoReferencePoints
	}
	s := Sample{
		Lat:       lat / total,
		Lng:       lng / total,
		AccuracyM: estimatedAccuracyM,
		Timestamp: r.now(),
	}
	r.lastEstimate = &s
	return s, nil
}
