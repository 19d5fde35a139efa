// README: Service descriptors, initialization steps, and orchestration errors.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCircularDependency is a fatal registry configuration error: the
	// dependency graph contains a cycle (or a self-loop).
	ErrCircularDependency = errors.New("circular service dependency")
	// ErrUnknownDependency means a descriptor names a dependency id that was
	// never registered.
	ErrUnknownDependency = errors.New("unknown service dependency")
	// ErrDuplicateService means the same id was registered twice.
	ErrDuplicateService = errors.New("duplicate service id")
)

// TimeoutError marks an initializer that exceeded its configured budget.
type TimeoutError struct {
	Service string
	Budget  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("service %q timed out after %s", e.Service, e.Budget)
}

// Initializer is the capability every registered service implements. No
// reflective method lookup: registration hands over this interface directly.
type Initializer interface {
	Init(ctx context.Context) error
}

// InitFunc adapts a plain function to Initializer.
type InitFunc func(ctx context.Context) error

func (f InitFunc) Init(ctx context.Context) error { return f(ctx) }

// Descriptor declares one orchestrated subsystem.
type Descriptor struct {
	ID        string
	Name      string
	DependsOn []string
	// Critical services abort the whole run on failure; non-critical ones
	// only produce a warning.
	Critical bool
	Timeout  time.Duration
	Service  Initializer
}

// Status of one initialization step. Legal transitions:
// pending → running → completed | failed, and failed → pending via retry.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Step tracks one service through an orchestration run. Mutated in place by
// the orchestrator; consumers only ever see copies.
type Step struct {
	ID         string
	Name       string
	Status     Status
	Progress   int
	StartedAt  *time.Time
	FinishedAt *time.Time
	Err        error
}

// Result aggregates one orchestration run.
type Result struct {
	Success bool
	Elapsed time.Duration
	// Steps is a snapshot taken when the run ended.
	Steps []Step
	// FailedServices holds display names of failed steps.
	FailedServices []string
	// Warnings carries one message per failed step.
	Warnings []string
}

// Progress is a side-effect-free snapshot for polling consumers.
type Progress struct {
	OverallPercent float64
	CurrentStep    string
	Steps          []Step
}
