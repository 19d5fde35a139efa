// README: GPS acquisition engine: multi-attempt refinement, validity filtering, watch mode.
package geoloc

import (
	"context"
	"log"
	"sync"
	"time"

	"pilgrim/internal/types"
)

const (
	maxAcquireAttempts = 3
	accuracyCeilingM   = 100
	accuracyWindowSize = 10
)

// watchRetryDelay is a var so tests can compress the restart backoff.
var watchRetryDelay = 5 * time.Second

// retryBaseDelay is a var so tests can compress the backoff.
var retryBaseDelay = time.Second

// retryDelay grows with the attempt number so the second retry backs off
// longer than the first.
func retryDelay(attempt int) time.Duration {
	return time.Duration(attempt) * retryBaseDelay
}

// Region is the plausibility bounding box for raw readings.
type Region struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// Contains reports whether p falls inside the region.
func (r Region) Contains(p types.Point) bool {
	return p.Lat >= r.MinLat && p.Lat <= r.MaxLat &&
		p.Lng >= r.MinLng && p.Lng <= r.MaxLng
}

// Engine wraps the raw positioning primitive with retry/refinement logic and
// owns the single continuous-tracking watch.
type Engine struct {
	provider Provider
	cache    *Cache
	region   Region

	// onAccuracyImproved, when set, fires each time a watch update carries a
	// strictly better accuracy than the previous accepted one.
	onAccuracyImproved func(prev, curr float64)

	// watchMu serializes the watch lifecycle (start, stop, restart) so
	// stop+register+record is atomic and at most one provider watch ever
	// exists. Separate from mu: update callbacks take mu while a lifecycle
	// operation may be blocked in the provider.
	watchMu sync.Mutex

	mu          sync.Mutex
	current     *Sample
	accuracyLog []float64

	watchID     WatchID
	watchActive bool
	watchCancel context.CancelFunc
	watchAccM   float64
}

func NewEngine(provider Provider, cache *Cache, region Region) *Engine {
	return &Engine{provider: provider, cache: cache, region: region}
}

// SetAccuracyImprovedFunc registers the watch-mode notification hook.
func (e *Engine) SetAccuracyImprovedFunc(fn func(prev, curr float64)) {
	e.mu.Lock()
	e.onAccuracyImproved = fn
	e.mu.Unlock()
}

// valid rejects readings far outside the expected region or with an accuracy
// radius above the hard ceiling. Such samples are treated as noise, not as
// valid-but-poor readings.
func (e *Engine) valid(s Sample) bool {
	if s.AccuracyM < 0 || s.AccuracyM > accuracyCeilingM {
		return false
	}
	return e.region.Contains(s.Point())
}

// Acquire obtains one position, retrying up to three times. With a desired
// accuracy set it keeps the best sample seen and retries until the target is
// met or attempts run out, then returns the best. Provider errors on the
// final attempt degrade to the last-known position when one exists; the
// returned Source tells the two apart (SourceLiveGPS vs SourceCached) so
// callers never present a stale fix as a fresh one.
func (e *Engine) Acquire(ctx context.Context, opts AcquireOptions) (Sample, Source, error) {
	if e.provider == nil {
		return Sample{}, "", ErrGeolocationUnavailable
	}

	var best *Sample
	var lastErr error

	for attempt := 1; attempt <= maxAcquireAttempts; attempt++ {
		s, err := e.provider.CurrentPosition(ctx, opts)
		if err != nil {
			lastErr = err
			if attempt < maxAcquireAttempts {
				if werr := sleep(ctx, retryDelay(attempt)); werr != nil {
					return Sample{}, "", werr
				}
				continue
			}
			break
		}

		if !e.valid(s) {
			if attempt < maxAcquireAttempts {
				if werr := sleep(ctx, retryDelay(attempt)); werr != nil {
					return Sample{}, "", werr
				}
			}
			continue
		}

		if best == nil || s.AccuracyM < best.AccuracyM {
			cp := s
			best = &cp
		}

		if opts.DesiredAccuracyM <= 0 || s.AccuracyM <= opts.DesiredAccuracyM {
			e.accept(ctx, s)
			return s, SourceLiveGPS, nil
		}

		// target not met: keep refining on the remaining attempts
		if attempt < maxAcquireAttempts {
			if werr := sleep(ctx, retryDelay(attempt)); werr != nil {
				return Sample{}, "", werr
			}
		}
	}

	if best != nil {
		e.accept(ctx, *best)
		return *best, SourceLiveGPS, nil
	}

	if lastErr != nil {
		if last, ok := e.lastKnown(); ok {
			log.Printf("geoloc: acquisition failed (%v), serving last-known position", lastErr)
			return last, SourceCached, nil
		}
		return Sample{}, "", lastErr
	}
	return Sample{}, "", ErrNoValidPosition
}

// accept records a successful reading: cache it, extend the rolling accuracy
// window, remember it as the current fix.
func (e *Engine) accept(ctx context.Context, s Sample) {
	if e.cache != nil {
		e.cache.Add(ctx, s, SourceLiveGPS)
	}
	e.mu.Lock()
	cp := s
	e.current = &cp
	e.accuracyLog = append(e.accuracyLog, s.AccuracyM)
	if len(e.accuracyLog) > accuracyWindowSize {
		e.accuracyLog = e.accuracyLog[1:]
	}
	e.mu.Unlock()
}

// AverageAccuracy reports the mean accuracy over the rolling window of the
// last accepted readings; ok is false before any reading was accepted.
func (e *Engine) AverageAccuracy() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.accuracyLog) == 0 {
		return 0, false
	}
	var sum float64
	for _, a := range e.accuracyLog {
		sum += a
	}
	return sum / float64(len(e.accuracyLog)), true
}

// StartWatch begins continuous tracking. An already-active watch is stopped
// first, so at most one watch exists per engine.
func (e *Engine) StartWatch(opts AcquireOptions) error {
	if e.provider == nil {
		return ErrGeolocationUnavailable
	}
	e.watchMu.Lock()
	defer e.watchMu.Unlock()
	e.stopWatchLocked()

	ctx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.watchActive = true
	e.watchCancel = cancel
	e.watchAccM = 0
	e.mu.Unlock()

	id := e.provider.WatchPosition(opts, func(s Sample, err error) {
		if err != nil {
			e.scheduleWatchRestart(ctx, opts)
			return
		}
		e.handleWatchUpdate(ctx, s)
	})

	e.mu.Lock()
	e.watchID = id
	e.mu.Unlock()
	return nil
}

// StopWatch clears the active watch and cancels any pending scheduled
// restart. Idempotent: stopping with no active watch is a no-op.
func (e *Engine) StopWatch() {
	e.watchMu.Lock()
	defer e.watchMu.Unlock()
	e.stopWatchLocked()
}

// stopWatchLocked is StopWatch's body; the caller holds watchMu.
func (e *Engine) stopWatchLocked() {
	e.mu.Lock()
	active := e.watchActive
	id := e.watchID
	cancel := e.watchCancel
	e.watchActive = false
	e.watchCancel = nil
	e.mu.Unlock()

	if !active {
		return
	}
	if cancel != nil {
		cancel()
	}
	e.provider.ClearWatch(id)
}

// WatchActive reports whether a watch is currently running.
func (e *Engine) WatchActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.watchActive
}

func (e *Engine) handleWatchUpdate(ctx context.Context, s Sample) {
	if !e.valid(s) {
		return
	}

	e.mu.Lock()
	if !e.watchActive {
		e.mu.Unlock()
		return
	}
	prev := e.watchAccM
	e.watchAccM = s.AccuracyM
	improved := prev > 0 && s.AccuracyM < prev
	notify := e.onAccuracyImproved
	e.mu.Unlock()

	if improved && notify != nil {
		notify(prev, s.AccuracyM)
	}
	e.accept(ctx, s)
}

// scheduleWatchRestart re-registers the provider watch after a delay. The
// timer is bound to the watch context, so StopWatch cancels a pending
// restart before it can fire and revive state.
func (e *Engine) scheduleWatchRestart(ctx context.Context, opts AcquireOptions) {
	go func() {
		t := time.NewTimer(watchRetryDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		e.watchMu.Lock()
		defer e.watchMu.Unlock()
		// The watch this retry belonged to may have been stopped or replaced
		// while the timer ran or while we waited for the lifecycle lock.
		if ctx.Err() != nil {
			return
		}

		e.mu.Lock()
		old := e.watchID
		e.mu.Unlock()

		e.provider.ClearWatch(old)
		id := e.provider.WatchPosition(opts, func(s Sample, err error) {
			if err != nil {
				e.scheduleWatchRestart(ctx, opts)
				return
			}
			e.handleWatchUpdate(ctx, s)
		})

		e.mu.Lock()
		e.watchID = id
		e.mu.Unlock()
	}()
}

// Current returns the engine's current fix, falling back to the cache's
// last-known sample. The Source distinguishes a fresh fix (SourceLiveGPS)
// from the cached fallback (SourceCached); ok is false when neither exists.
func (e *Engine) Current() (Sample, Source, bool) {
	e.mu.Lock()
	cur := e.current
	e.mu.Unlock()
	if cur != nil {
		return *cur, SourceLiveGPS, true
	}
	s, ok := e.lastKnown()
	return s, SourceCached, ok
}

func (e *Engine) lastKnown() (Sample, bool) {
	if e.cache == nil {
		return Sample{}, false
	}
	return e.cache.LastKnown()
}

// DistanceTo returns the Haversine distance in meters from the current (or
// last-known) position to p; ok is false with no position yet.
func (e *Engine) DistanceTo(p types.Point) (float64, bool) {
	s, _, ok := e.Current()
	if !ok {
		return 0, false
	}
	return DistanceM(s.Point(), p), true
}

// IsWithinRange reports whether the current position lies within radiusM of
// p. Returns false when no position is available.
func (e *Engine) IsWithinRange(p types.Point, radiusM float64) bool {
	d, ok := e.DistanceTo(p)
	return ok && d <= radiusM
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
