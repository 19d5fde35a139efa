package bootstrap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func noopInit(ctx context.Context) error { return nil }

func neverResolves(ctx context.Context) error {
	<-make(chan struct{})
	return nil
}

func reg(t *testing.T, descriptors ...Descriptor) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, d := range descriptors {
		if d.Service == nil {
			d.Service = InitFunc(noopInit)
		}
		if err := r.Register(d); err != nil {
			t.Fatalf("register %s: %v", d.ID, err)
		}
	}
	return r
}

func indexOf(order []string, id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}

func TestTopologicalOrder_DependenciesFirst(t *testing.T) {
	r := reg(t,
		Descriptor{ID: "c", DependsOn: []string{"b"}},
		Descriptor{ID: "a"},
		Descriptor{ID: "b", DependsOn: []string{"a"}},
		Descriptor{ID: "d", DependsOn: []string{"a", "c"}},
	)
	order, err := r.TopologicalOrder()
	if err != nil {
		t.Fatalf("topological order: %v", err)
	}
	if len(order) != 4 {
		t.Fatalf("order has %d entries, want 4", len(order))
	}
	deps := map[string][]string{"b": {"a"}, "c": {"b"}, "d": {"a", "c"}}
	for id, ds := range deps {
		for _, dep := range ds {
			if indexOf(order, dep) >= indexOf(order, id) {
				t.Errorf("order %v places %s after its dependent %s", order, dep, id)
			}
		}
	}
}

func TestTopologicalOrder_RegistrationOrderTieBreak(t *testing.T) {
	r := reg(t,
		Descriptor{ID: "x"},
		Descriptor{ID: "y"},
		Descriptor{ID: "z"},
	)
	order, err := r.TopologicalOrder()
	if err != nil {
		t.Fatalf("topological order: %v", err)
	}
	want := []string{"x", "y", "z"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want registration order %v", order, want)
		}
	}
}

func TestTopologicalOrder_CycleDetected(t *testing.T) {
	r := reg(t,
		Descriptor{ID: "a", DependsOn: []string{"b"}},
		Descriptor{ID: "b", DependsOn: []string{"a"}},
	)
	done := make(chan error, 1)
	go func() {
		_, err := r.TopologicalOrder()
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, ErrCircularDependency) {
			t.Fatalf("err = %v, want ErrCircularDependency", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cycle detection hung instead of failing")
	}
}

func TestTopologicalOrder_SelfLoopDetected(t *testing.T) {
	r := reg(t, Descriptor{ID: "a", DependsOn: []string{"a"}})
	if _, err := r.TopologicalOrder(); !errors.Is(err, ErrCircularDependency) {
		t.Fatalf("err = %v, want ErrCircularDependency", err)
	}
}

func TestTopologicalOrder_UnknownDependency(t *testing.T) {
	r := reg(t, Descriptor{ID: "a", DependsOn: []string{"ghost"}})
	if _, err := r.TopologicalOrder(); !errors.Is(err, ErrUnknownDependency) {
		t.Fatalf("err = %v, want ErrUnknownDependency", err)
	}
}

func TestRegister_DuplicateRejected(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Descriptor{ID: "a", Service: InitFunc(noopInit)}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(Descriptor{ID: "a", Service: InitFunc(noopInit)}); !errors.Is(err, ErrDuplicateService) {
		t.Fatalf("err = %v, want ErrDuplicateService", err)
	}
}

func TestInitialize_NonCriticalTimeoutDoesNotHang(t *testing.T) {
	var order []string
	var mu sync.Mutex
	record := func(id string) InitFunc {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		}
	}

	r := reg(t,
		Descriptor{ID: "first", Service: record("first")},
		Descriptor{ID: "stuck", Timeout: 30 * time.Millisecond, Service: InitFunc(neverResolves)},
		Descriptor{ID: "after", Service: record("after")},
	)
	o := NewOrchestrator(r)

	res, err := o.Initialize(context.Background())
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !res.Success {
		t.Error("expected success despite non-critical timeout")
	}

	var stuck Step
	for _, s := range res.Steps {
		if s.ID == "stuck" {
			stuck = s
		}
	}
	if stuck.Status != StatusFailed {
		t.Errorf("stuck step status = %s, want failed", stuck.Status)
	}
	var te *TimeoutError
	if !errors.As(stuck.Err, &te) {
		t.Errorf("stuck step err = %v, want TimeoutError", stuck.Err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[1] != "after" {
		t.Errorf("executed %v, want the service after the stuck one to run", order)
	}
}

func TestInitialize_CriticalTimeoutAbortsRun(t *testing.T) {
	ran := false
	r := reg(t,
		Descriptor{ID: "gate", Critical: true, Timeout: 30 * time.Millisecond, Service: InitFunc(neverResolves)},
		Descriptor{ID: "after", Service: InitFunc(func(ctx context.Context) error {
			ran = true
			return nil
		})},
	)
	o := NewOrchestrator(r)

	res, err := o.Initialize(context.Background())
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if res.Success {
		t.Error("expected failure after critical timeout")
	}
	if ran {
		t.Error("service after the critical failure must not start")
	}
	for _, s := range res.Steps {
		if s.ID == "after" && s.Status != StatusPending {
			t.Errorf("later step status = %s, want pending", s.Status)
		}
	}
}

func TestInitialize_IdempotentAfterSuccess(t *testing.T) {
	calls := 0
	r := reg(t, Descriptor{ID: "a", Service: InitFunc(func(ctx context.Context) error {
		calls++
		return nil
	})})
	o := NewOrchestrator(r)

	first, err := o.Initialize(context.Background())
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	second, err := o.Initialize(context.Background())
	if err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	if calls != 1 {
		t.Errorf("initializer ran %d times, want 1", calls)
	}
	if first != second {
		t.Error("expected the cached result to be returned")
	}
}

func TestInitialize_ConcurrentCallsShareOneRun(t *testing.T) {
	var calls int32
	var mu sync.Mutex
	r := reg(t, Descriptor{ID: "slow", Timeout: time.Second, Service: InitFunc(func(ctx context.Context) error {
		mu.Lock()
		calls++
		mu.Unlock()
		time.Sleep(50 * time.Millisecond)
		return nil
	})})
	o := NewOrchestrator(r)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.Initialize(context.Background()); err != nil {
				t.Errorf("initialize: %v", err)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("initializer ran %d times under concurrency, want 1", calls)
	}
}

func TestRestartFailedServices(t *testing.T) {
	attempts := 0
	r := reg(t,
		Descriptor{ID: "ok"},
		Descriptor{ID: "flaky", Service: InitFunc(func(ctx context.Context) error {
			attempts++
			if attempts == 1 {
				return errors.New("transient")
			}
			return nil
		})},
	)
	o := NewOrchestrator(r)

	res, err := o.Initialize(context.Background())
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if len(res.FailedServices) != 1 {
		t.Fatalf("failed services = %v, want one", res.FailedServices)
	}

	res, err = o.RestartFailedServices(context.Background())
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !res.Success || len(res.FailedServices) != 0 {
		t.Fatalf("after restart: success=%v failed=%v", res.Success, res.FailedServices)
	}
	if attempts != 2 {
		t.Errorf("flaky ran %d times, want 2 (completed steps never re-run)", attempts)
	}
}

func TestRestartFailedServices_Idempotent(t *testing.T) {
	calls := 0
	r := reg(t, Descriptor{ID: "a", Service: InitFunc(func(ctx context.Context) error {
		calls++
		return nil
	})})
	o := NewOrchestrator(r)

	if _, err := o.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := o.RestartFailedServices(context.Background()); err != nil {
			t.Fatalf("restart %d: %v", i, err)
		}
	}
	if calls != 1 {
		t.Errorf("initializer ran %d times, want 1 (restart with nothing failed is a no-op)", calls)
	}
}

func TestProgressSnapshot(t *testing.T) {
	release := make(chan struct{})
	r := reg(t,
		Descriptor{ID: "a", Name: "A Service"},
		Descriptor{ID: "b", Name: "B Service", Timeout: 5 * time.Second, Service: InitFunc(func(ctx context.Context) error {
			<-release
			return nil
		})},
		Descriptor{ID: "c", Name: "C Service"},
	)
	o := NewOrchestrator(r)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.Initialize(context.Background())
	}()

	// wait until b is running
	deadline := time.After(2 * time.Second)
	for {
		p := o.Progress()
		if p.CurrentStep == "B Service" {
			if p.OverallPercent < 33 || p.OverallPercent > 34 {
				t.Errorf("overall percent = %v, want ~33.3 with 1 of 3 done", p.OverallPercent)
			}
			// mutating the snapshot must not touch orchestrator state
			p.Steps[0].Status = StatusFailed
			break
		}
		select {
		case <-deadline:
			t.Fatal("never observed the running step")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	close(release)
	<-done

	p := o.Progress()
	if p.OverallPercent != 100 {
		t.Errorf("final percent = %v, want 100", p.OverallPercent)
	}
	if p.Steps[0].Status != StatusCompleted {
		t.Error("snapshot mutation leaked into orchestrator state")
	}
}

// The canonical logger/security/analytics startup scenario.
func TestInitialize_LoggerSecurityAnalyticsScenario(t *testing.T) {
	r := reg(t,
		Descriptor{ID: "logger", Name: "Logger Service", Critical: true},
		Descriptor{ID: "security", Name: "Security Service", DependsOn: []string{"logger"}, Critical: true},
		Descriptor{ID: "analytics", Name: "Analytics Service", DependsOn: []string{"logger", "security"},
			Timeout: time.Millisecond, Service: InitFunc(neverResolves)},
	)

	order, err := r.TopologicalOrder()
	if err != nil {
		t.Fatalf("topological order: %v", err)
	}
	want := []string{"logger", "security", "analytics"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}

	o := NewOrchestrator(r)
	res, err := o.Initialize(context.Background())
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !res.Success {
		t.Error("expected success: only a non-critical service failed")
	}
	if len(res.FailedServices) != 1 || res.FailedServices[0] != "Analytics Service" {
		t.Errorf("failed services = %v, want [Analytics Service]", res.FailedServices)
	}
	var analytics Step
	for _, s := range res.Steps {
		if s.ID == "analytics" {
			analytics = s
		}
	}
	if analytics.Status != StatusFailed {
		t.Errorf("analytics status = %s, want failed", analytics.Status)
	}
	var te *TimeoutError
	if !errors.As(analytics.Err, &te) {
		t.Fatalf("analytics err = %v, want TimeoutError", analytics.Err)
	}
	if te.Budget != time.Millisecond {
		t.Errorf("timeout budget = %v, want 1ms", te.Budget)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("warnings = %v, want one entry", res.Warnings)
	}
}
