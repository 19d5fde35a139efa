// README: Dependency-ordered, timeout-bounded, partial-failure-tolerant startup sequencing.
package bootstrap

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Orchestrator runs every registered service's initializer strictly
// sequentially in topological order, racing each against its timeout budget.
// Non-critical failures are recorded and skipped over; a critical failure
// aborts the run. Initialize is idempotent after completion and concurrent
// callers collapse onto the single in-flight run.
type Orchestrator struct {
	reg *Registry

	group singleflight.Group

	mu     sync.Mutex
	order  []string
	steps  []*Step
	result *Result
}

func NewOrchestrator(reg *Registry) *Orchestrator {
	return &Orchestrator{reg: reg}
}

// Initialize runs (or returns the cached result of) the orchestration.
// Only registry configuration errors (cycles, unknown dependencies) are
// returned as errors; service failures live inside the Result.
func (o *Orchestrator) Initialize(ctx context.Context) (*Result, error) {
	o.mu.Lock()
	if o.result != nil {
		res := o.result
		o.mu.Unlock()
		return res, nil
	}
	o.mu.Unlock()

	v, err, _ := o.group.Do("initialize", func() (interface{}, error) {
		return o.run(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// RestartFailedServices resets failed steps to pending and re-runs the pass
// over steps that are not yet completed. Calling it with nothing failing is
// a no-op that returns the cached result.
func (o *Orchestrator) RestartFailedServices(ctx context.Context) (*Result, error) {
	o.mu.Lock()
	anyFailed := false
	for _, s := range o.steps {
		if s.Status == StatusFailed {
			anyFailed = true
			s.Status = StatusPending
			s.Progress = 0
			s.StartedAt = nil
			s.FinishedAt = nil
			s.Err = nil
		}
	}
	if !anyFailed && o.result != nil {
		res := o.result
		o.mu.Unlock()
		return res, nil
	}
	o.result = nil
	o.mu.Unlock()

	v, err, _ := o.group.Do("initialize", func() (interface{}, error) {
		return o.run(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// Ready reports whether a run has completed successfully; the HTTP layer
// gates domain routes on this.
func (o *Orchestrator) Ready() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result != nil && o.result.Success
}

// Progress computes a side-effect-free snapshot for polling consumers. Steps
// are value copies; mutating them cannot touch orchestrator state.
func (o *Orchestrator) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()

	p := Progress{Steps: make([]Step, 0, len(o.steps))}
	completed := 0
	for _, s := range o.steps {
		p.Steps = append(p.Steps, *s)
		if s.Status == StatusCompleted {
			completed++
		}
		if p.CurrentStep == "" && s.Status == StatusRunning {
			p.CurrentStep = s.Name
		}
	}
	if p.CurrentStep == "" {
		for _, s := range o.steps {
			if s.Status == StatusPending {
				p.CurrentStep = s.Name
				break
			}
		}
	}
	if len(o.steps) > 0 {
		p.OverallPercent = float64(completed) / float64(len(o.steps)) * 100
	}
	return p
}

// run executes one orchestration pass. Completed steps from a previous pass
// are left untouched; everything else runs in topological order.
func (o *Orchestrator) run(ctx context.Context) (*Result, error) {
	started := time.Now()

	o.mu.Lock()
	if o.steps == nil {
		order, err := o.reg.TopologicalOrder()
		if err != nil {
			o.mu.Unlock()
			return nil, err
		}
		o.order = order
		o.steps = make([]*Step, 0, len(order))
		for _, id := range order {
			d, _ := o.reg.Get(id)
			o.steps = append(o.steps, &Step{ID: d.ID, Name: d.Name, Status: StatusPending})
		}
	}
	steps := o.steps
	o.mu.Unlock()

	success := true
	aborted := false

	for _, step := range steps {
		if aborted {
			break
		}
		o.mu.Lock()
		if step.Status == StatusCompleted {
			o.mu.Unlock()
			continue
		}
		now := time.Now()
		step.Status = StatusRunning
		step.StartedAt = &now
		step.FinishedAt = nil
		step.Err = nil
		o.mu.Unlock()

		d, _ := o.reg.Get(step.ID)
		log.Printf("bootstrap: initializing %s", d.Name)
		err := runInit(ctx, d)

		o.mu.Lock()
		done := time.Now()
		step.FinishedAt = &done
		if err != nil {
			step.Status = StatusFailed
			step.Err = err
			if d.Critical {
				success = false
				aborted = true
				log.Printf("bootstrap: critical service %s failed, aborting: %v", d.Name, err)
			} else {
				log.Printf("bootstrap: non-critical service %s failed, continuing: %v", d.Name, err)
			}
		} else {
			step.Status = StatusCompleted
			step.Progress = 100
		}
		o.mu.Unlock()
	}

	o.mu.Lock()
	res := &Result{
		Success: success,
		Elapsed: time.Since(started),
	}
	for _, s := range steps {
		res.Steps = append(res.Steps, *s)
		if s.Status == StatusFailed {
			res.FailedServices = append(res.FailedServices, s.Name)
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", s.Name, s.Err))
		}
	}
	o.result = res
	o.mu.Unlock()
	return res, nil
}

// runInit races one initializer against its timeout budget. The done channel
// is buffered so a late finisher cannot leak a blocked goroutine.
func runInit(ctx context.Context, d Descriptor) error {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.Service.Init(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return &TimeoutError{Service: d.Name, Budget: d.Timeout}
		}
		return ctx.Err()
	}
}
