package shutdown

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"postforge/logging"
)

func testLogger(t *testing.T) *logging.Logger {
	return logging.FromZap(zaptest.NewLogger(t))
}

func TestRegistry_Order(t *testing.T) {
	r := NewRegistry()
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) Func {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	r.Register("database", PriorityDatabase, record("database"))
	r.Register("http", PriorityHTTP, record("http"))
	r.Register("browser", PriorityBrowser, record("browser"))
	r.Register("jobs", PriorityJobs, record("jobs"))
	r.Register("job store", PriorityJobStore, record("job store"))

	want := []string{"http", "jobs", "browser", "job store", "database"}
	if got := strings.Join(r.Names(), ","); got != strings.Join(want, ",") {
		t.Errorf("Names() = %s", got)
	}
	if errs := r.Shutdown(context.Background()); len(errs) != 0 {
		t.Fatalf("Shutdown() errors = %v", errs)
	}
	if got := strings.Join(order, ","); got != strings.Join(want, ",") {
		t.Errorf("execution order = %s", got)
	}

	r.Register("late", 0, record("late"))
	if r.Count() != 5 {
		t.Errorf("Count() = %d after late registration", r.Count())
	}
	if errs := r.Shutdown(context.Background()); errs != nil {
		t.Errorf("second Shutdown() = %v", errs)
	}
}

func TestRegistry_CollectsErrors(t *testing.T) {
	r := NewRegistry()
	ran := 0
	r.Register("a", 1, func(context.Context) error { ran++; return errors.New("boom") })
	r.Register("b", 2, func(context.Context) error { ran++; return nil })
	r.Register("c", 3, func(context.Context) error { ran++; return errors.New("bang") })

	errs := r.Shutdown(context.Background())
	if ran != 3 {
		t.Errorf("ran %d functions, want 3", ran)
	}
	if len(errs) != 2 || errs[0].Error() != "a: boom" || errs[1].Error() != "c: bang" {
		t.Errorf("errs = %v", errs)
	}
}

func TestOperationTracker(t *testing.T) {
	tr := NewOperationTracker()
	if !tr.Start() {
		t.Fatal("Start() on open tracker = false")
	}
	if tr.ActiveCount() != 1 {
		t.Errorf("ActiveCount() = %d", tr.ActiveCount())
	}
	tr.Close()
	if tr.Start() {
		t.Error("Start() after Close = true")
	}
	short, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := tr.Wait(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want deadline exceeded", err)
	}
	go tr.Done()
	if err := tr.Wait(context.Background()); err != nil {
		t.Errorf("Wait() = %v", err)
	}
	if !tr.IsClosed() || tr.ActiveCount() != 0 {
		t.Errorf("closed = %v active = %d", tr.IsClosed(), tr.ActiveCount())
	}
}

func TestOperationTracker_WaitWhenIdle(t *testing.T) {
	tr := NewOperationTracker()
	if err := tr.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() on idle tracker = %v", err)
	}
	if tr.Start() {
		t.Error("Wait should close the tracker")
	}
}

func TestSignalCounter(t *testing.T) {
	forced := 0
	c := NewSignalCounter(2, func() { forced++ })
	if c.Increment() != 1 || forced != 0 {
		t.Fatalf("first signal forced = %d", forced)
	}
	if c.Increment() != 2 || forced != 1 {
		t.Fatalf("second signal forced = %d", forced)
	}
	if c.Count() != 2 {
		t.Errorf("Count() = %d", c.Count())
	}
}

func TestManager_ShutdownSequence(t *testing.T) {
	m := NewManager(testLogger(t), WithTimeout(2*time.Second))

	var order []string
	m.Register("database", PriorityDatabase, func(context.Context) error {
		order = append(order, "database")
		return nil
	})
	m.Register("jobs", PriorityJobs, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("cleanup context has no deadline")
		}
		order = append(order, "jobs")
		return nil
	})

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = m.Track(context.Background(), func(context.Context) error {
			close(started)
			<-release
			order = append(order, "request")
			return nil
		})
	}()
	<-started

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	if err := m.Shutdown(); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	if got := strings.Join(order, ","); got != "request,jobs,database" {
		t.Errorf("order = %s", got)
	}
	if m.Context().Err() == nil {
		t.Error("context not cancelled")
	}
	if !m.IsShuttingDown() {
		t.Error("IsShuttingDown() = false")
	}
	if err := m.Track(context.Background(), func(context.Context) error { return nil }); !errors.Is(err, ErrTrackerClosed) {
		t.Errorf("Track after shutdown = %v", err)
	}
	if err := m.Shutdown(); err != nil {
		t.Errorf("second Shutdown() = %v", err)
	}
}

func TestManager_ShutdownReportsErrors(t *testing.T) {
	m := NewManager(testLogger(t), WithTimeout(time.Second))
	m.Register("database", PriorityDatabase, func(context.Context) error { return errors.New("locked") })

	err := m.Shutdown()
	if err == nil || !strings.Contains(err.Error(), "database: locked") {
		t.Errorf("Shutdown() = %v", err)
	}
}

func TestManager_TriggerAndForce(t *testing.T) {
	exitCode := -1
	m := NewManager(testLogger(t), WithExit(func(code int) { exitCode = code }))
	m.Trigger()
	select {
	case <-m.Context().Done():
	default:
		t.Fatal("Trigger did not cancel the context")
	}

	m.signals.Increment()
	m.signals.Increment()
	if exitCode != 1 {
		t.Errorf("exit code = %d, want 1", exitCode)
	}
}

func TestCleanupTempFiles(t *testing.T) {
	root := t.TempDir()
	postDir := filepath.Join(root, "2026-03-14", "req-1")
	if err := os.MkdirAll(postDir, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]bool{
		filepath.Join(postDir, ".tmp-123"):    false,
		filepath.Join(root, ".tmp-abc"):       false,
		filepath.Join(postDir, "post.png"):    true,
		filepath.Join(postDir, "caption.txt"): true,
	}
	for path := range files {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := CleanupTempFiles(testLogger(t), root)(context.Background()); err != nil {
		t.Fatalf("cleanup returned %v", err)
	}
	for path, keep := range files {
		_, err := os.Stat(path)
		if keep && err != nil {
			t.Errorf("%s removed", path)
		}
		if !keep && !os.IsNotExist(err) {
			t.Errorf("%s still present", path)
		}
	}

	if err := CleanupTempFiles(testLogger(t), filepath.Join(root, "missing"))(context.Background()); err != nil {
		t.Errorf("cleanup of missing dir returned %v", err)
	}
}
