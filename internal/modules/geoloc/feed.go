// README: Push-fed position provider; devices report raw readings over HTTP.
package geoloc

import (
	"context"
	"time"
)

// Feed is the shipped Provider: the client device POSTs its raw geolocation
// readings and Feed hands them to whoever is waiting. A fresh-enough last
// reading satisfies CurrentPosition immediately; otherwise the call blocks
// until the next report or the options timeout.
type Feed struct {
	reports chan reportReq
	waiters chan waiterReq
	clears  chan WatchID
	watches chan watchReq
	done    <-chan struct{}
}

type reportReq struct {
	sample Sample
}

type waiterReq struct {
	maxAge time.Duration
	reply  chan waiterReply
}

type waiterReply struct {
	sample  Sample
	ok      bool        // satisfied from the retained last reading
	pending chan Sample // otherwise: wait here for the next report
}

type watchReq struct {
	fn    func(Sample, error)
	reply chan WatchID
}

// NewFeed starts the feed's coordinating goroutine. It runs until ctx ends.
func NewFeed(ctx context.Context) *Feed {
	f := &Feed{
		reports: make(chan reportReq),
		waiters: make(chan waiterReq),
		clears:  make(chan WatchID),
		watches: make(chan watchReq),
		done:    ctx.Done(),
	}
	go f.loop(ctx)
	return f
}

// loop owns all feed state; access is serialized through channels.
func (f *Feed) loop(ctx context.Context) {
	var (
		last     *Sample
		pending  []chan Sample
		watching = map[WatchID]func(Sample, error){}
		nextID   WatchID = 1
	)
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-f.reports:
			s := r.sample
			last = &s
			for _, ch := range pending {
				ch <- s
			}
			pending = pending[:0]
			for _, fn := range watching {
				fn(s, nil)
			}
		case w := <-f.waiters:
			if last != nil && (w.maxAge <= 0 || time.Since(last.Timestamp) <= w.maxAge) {
				w.reply <- waiterReply{sample: *last, ok: true}
				continue
			}
			ch := make(chan Sample, 1)
			pending = append(pending, ch)
			w.reply <- waiterReply{pending: ch}
		case w := <-f.watches:
			id := nextID
			nextID++
			watching[id] = w.fn
			w.reply <- id
		case id := <-f.clears:
			delete(watching, id)
		}
	}
}

// Report feeds one raw reading into the provider. The caller validates JSON
// shape only; plausibility filtering is the engine's job.
func (f *Feed) Report(s Sample) {
	select {
	case f.reports <- reportReq{sample: s}:
	case <-f.done:
	}
}

// CurrentPosition implements Provider. MaximumAge == 0 always waits for a
// fresh report; a zero Timeout defaults to 10s so a silent device cannot
// hang callers forever.
func (f *Feed) CurrentPosition(ctx context.Context, opts AcquireOptions) (Sample, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	reply := make(chan waiterReply, 1)
	select {
	case f.waiters <- waiterReq{maxAge: opts.MaximumAge, reply: reply}:
	case <-f.done:
		return Sample{}, ErrPositionUnavailable
	case <-ctx.Done():
		return Sample{}, ctx.Err()
	}

	r := <-reply
	if r.ok {
		return r.sample, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s := <-r.pending:
		return s, nil
	case <-timer.C:
		return Sample{}, ErrAcquireTimeout
	case <-ctx.Done():
		return Sample{}, ctx.Err()
	}
}

// WatchPosition implements Provider.
func (f *Feed) WatchPosition(_ AcquireOptions, fn func(Sample, error)) WatchID {
	reply := make(chan WatchID, 1)
	select {
	case f.watches <- watchReq{fn: fn, reply: reply}:
		return <-reply
	case <-f.done:
		return 0
	}
}

// ClearWatch implements Provider.
func (f *Feed) ClearWatch(id WatchID) {
	select {
	case f.clears <- id:
	case <-f.done:
	}
}
