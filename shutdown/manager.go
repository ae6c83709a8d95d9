package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"postforge/logging"
)

// DefaultTimeout bounds the whole shutdown sequence.
const DefaultTimeout = 60 * time.Second

// Manager ties signal handling, in-flight request tracking and the cleanup
// registry together.
//
//	m := shutdown.NewManager(logger)
//	m.Register("job tracker", shutdown.PriorityJobs, tracker.Shutdown)
//	m.Register("database", shutdown.PriorityDatabase, func(context.Context) error { return database.Close() })
//	m.Start()
//	<-m.Context().Done()
//	err := m.Shutdown()
type Manager struct {
	logger  *logging.Logger
	timeout time.Duration
	exit    func(code int)

	mu       sync.Mutex
	started  bool
	shutdown bool

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *OperationTracker
	registry *Registry
	signals  *SignalCounter
	sigChan  chan os.Signal
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout replaces DefaultTimeout.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) { m.timeout = timeout }
}

// WithExit replaces os.Exit for the forced path.
func WithExit(exit func(code int)) ManagerOption {
	return func(m *Manager) { m.exit = exit }
}

// NewManager returns a Manager. A second signal exits the process with code 1.
func NewManager(logger *logging.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		logger:   logger.Named("shutdown"),
		timeout:  DefaultTimeout,
		exit:     os.Exit,
		ctx:      ctx,
		cancel:   cancel,
		tracker:  NewOperationTracker(),
		registry: NewRegistry(),
		sigChan:  make(chan os.Signal, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.signals = NewSignalCounter(2, func() {
		m.logger.Warn("second signal received, forcing exit")
		m.exit(1)
	})
	return m
}

// Context is cancelled when the first signal arrives or Trigger is called.
func (m *Manager) Context() context.Context { return m.ctx }

// Tracker exposes the in-flight operation tracker to HTTP middleware.
func (m *Manager) Tracker() *OperationTracker { return m.tracker }

// Register adds a cleanup function. See the Priority constants.
func (m *Manager) Register(name string, priority int, fn Func) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("registered shutdown handler", zap.String("name", name), zap.Int("priority", priority))
}

// Start listens for SIGINT and SIGTERM. Repeated calls are no-ops.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range m.sigChan {
			if m.signals.Increment() == 1 {
				m.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
				m.cancel()
			}
		}
	}()
}

// Trigger starts shutdown without a signal, as the service manager does on
// Stop.
func (m *Manager) Trigger() { m.cancel() }

// Shutdown rejects new operations, waits for in-flight ones, then runs the
// cleanup functions within whatever remains of the timeout. Later calls
// return nil.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	started := m.started
	m.mu.Unlock()

	m.cancel()
	begin := time.Now()
	m.logger.Info("shutting down",
		zap.Duration("timeout", m.timeout),
		zap.Strings("handlers", m.registry.Names()))

	waitCtx, cancelWait := context.WithTimeout(context.Background(), m.timeout)
	if err := m.tracker.Wait(waitCtx); err != nil {
		m.logger.Warn("in-flight operations did not finish",
			zap.Int64("remaining", m.tracker.ActiveCount()))
	}
	cancelWait()

	remaining := m.timeout - time.Since(begin)
	if remaining < time.Second {
		remaining = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), remaining)
	defer cancel()

	errs := m.registry.Shutdown(ctx)
	for _, err := range errs {
		m.logger.Error("cleanup failed", zap.Error(err))
	}

	if started {
		signal.Stop(m.sigChan)
		close(m.sigChan)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	m.logger.Info("shutdown complete", zap.Duration("elapsed", time.Since(begin)))
	return nil
}

// Track runs fn as an in-flight operation. It returns ErrTrackerClosed
// without calling fn once shutdown has begun.
func (m *Manager) Track(ctx context.Context, fn func(context.Context) error) error {
	if !m.tracker.Start() {
		return ErrTrackerClosed
	}
	defer m.tracker.Done()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

// IsShuttingDown reports whether Shutdown has begun.
func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown
}

// RegisteredHandlers lists cleanup functions in execution order.
func (m *Manager) RegisteredHandlers() []string {
	return m.registry.Names()
}
