// README: Positioning primitive contract mirroring getCurrentPosition/watchPosition.
package geoloc

import (
	"context"
	"errors"
	"time"
)

// Provider errors, mapped from the browser geolocation error codes.
var (
	ErrPermissionDenied    = errors.New("geolocation permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrAcquireTimeout      = errors.New("position acquisition timed out")
)

// AcquireOptions mirror the geolocation primitive's options.
type AcquireOptions struct {
	HighAccuracy bool
	// Timeout bounds one primitive call, not the whole multi-attempt acquire.
	Timeout time.Duration
	// MaximumAge allows serving a reading no older than this without waiting
	// for a fresh one. Zero demands a fresh reading.
	MaximumAge time.Duration
	// DesiredAccuracyM, when > 0, makes the engine keep retrying until a
	// sample at or below this accuracy radius arrives or attempts run out.
	DesiredAccuracyM float64
}

// WatchID identifies one active continuous-tracking subscription.
type WatchID int64

// Provider is the raw positioning primitive the engine wraps. The shipped
// implementation is Feed (device-reported readings); tests substitute stubs.
type Provider interface {
	// CurrentPosition returns one reading, honoring opts.MaximumAge and
	// opts.Timeout. Blocking calls must respect ctx cancellation.
	CurrentPosition(ctx context.Context, opts AcquireOptions) (Sample, error)

	// WatchPosition registers fn for every subsequent reading (or error)
	// until ClearWatch. Multiple watches may coexist at the provider level;
	// the engine enforces its own single-active-watch rule on top.
	WatchPosition(opts AcquireOptions, fn func(Sample, error)) WatchID

	// ClearWatch removes a watch; unknown ids are ignored.
	ClearWatch(id WatchID)
}
