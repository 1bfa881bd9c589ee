// Package process provides process lifecycle utilities
package process

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/cspack/cspack/pkg/logger"
)

// ShutdownSignals are the signals that stop a long-running command
var ShutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}

// Manager turns shutdown signals into context cancellation and runs
// registered handlers once, in reverse registration order
type Manager struct {
	logger           logger.Logger
	shutdownHandlers []func()
	mu               sync.Mutex
	once             sync.Once
}

// NewManager creates a new process manager
func NewManager(log logger.Logger) *Manager {
	return &Manager{logger: log}
}

// RegisterShutdownHandler adds a shutdown handler
func (m *Manager) RegisterShutdownHandler(handler func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHandlers = append(m.shutdownHandlers, handler)
}

// WithShutdown returns a context that is cancelled when parent is done or
// a shutdown signal arrives. The returned stop function releases the
// signal subscription and runs the shutdown handlers.
func (m *Manager) WithShutdown(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, ShutdownSignals...)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigChan:
			m.logger.Info("Received signal, shutting down", logger.WithField("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		case <-done:
		}
	}()

	stop := func() {
		m.once.Do(func() {
			signal.Stop(sigChan)
			close(done)
			cancel()
			m.handleShutdown()
		})
	}
	return ctx, stop
}

func (m *Manager) handleShutdown() {
	m.mu.Lock()
	handlers := make([]func(), len(m.shutdownHandlers))
	copy(handlers, m.shutdownHandlers)
	m.mu.Unlock()

	for i := len(handlers) - 1; i >= 0; i-- {
		handlers[i]()
	}
}
