package service

import (
	"context"
	"errors"
	"sync"

	"github.com/optract/optract/libs/log"
)

var (
	// ErrAlreadyStarted is returned when somebody tries to start an already
	// running service.
	ErrAlreadyStarted = errors.New("already started")
	// ErrAlreadyStopped is returned when somebody tries to stop an already
	// stopped service.
	ErrAlreadyStopped = errors.New("already stopped")
	// ErrNotStarted is returned when somebody tries to stop a not running
	// service.
	ErrNotStarted = errors.New("not started")
)

// Service is a long running component of the node: the gossip layer, the
// round observer, the block synchronizer.
type Service interface {
	// Start runs the service until the context terminates. Starting a
	// running or stopped service is an error.
	Start(context.Context) error

	// Stop halts the service before its context ends.
	Stop() error

	IsRunning() bool
	String() string

	// Wait blocks until the service is stopped.
	Wait()
}

// Implementation is the hook set a BaseService drives.
type Implementation interface {
	// OnStart is called once by Start. A returned error leaves the service
	// unstarted so Start may be retried.
	OnStart(context.Context) error

	// OnStop is called once, either by Stop or when the start context ends.
	OnStop()
}

// BaseService tracks the lifecycle of an Implementation. Embed it and pass
// the embedding value as impl:
//
//	type Observer struct {
//		service.BaseService
//		...
//	}
//
//	func NewObserver(logger log.Logger) *Observer {
//		o := &Observer{}
//		o.BaseService = *service.NewBaseService(logger, "Observer", o)
//		return o
//	}
type BaseService struct {
	logger log.Logger
	name   string
	impl   Implementation

	mtx     sync.Mutex
	started bool
	stopped bool
	quit    chan struct{}
}

// NewBaseService creates a new BaseService. A nil logger discards output.
func NewBaseService(logger log.Logger, name string, impl Implementation) *BaseService {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &BaseService{
		logger: logger,
		name:   name,
		impl:   impl,
		quit:   make(chan struct{}),
	}
}

// Start calls OnStart and arranges for OnStop to run when ctx is canceled.
func (bs *BaseService) Start(ctx context.Context) error {
	bs.mtx.Lock()
	switch {
	case bs.stopped:
		bs.mtx.Unlock()
		bs.logger.Error("not starting service; already stopped", "service", bs.name)
		return ErrAlreadyStopped
	case bs.started:
		bs.mtx.Unlock()
		return ErrAlreadyStarted
	}
	bs.started = true
	bs.mtx.Unlock()

	bs.logger.Info("starting service", "service", bs.name)
	if err := bs.impl.OnStart(ctx); err != nil {
		bs.mtx.Lock()
		bs.started = false
		bs.mtx.Unlock()
		return err
	}

	go func() {
		select {
		case <-bs.quit:
		case <-ctx.Done():
			if err := bs.Stop(); err != nil && !errors.Is(err, ErrAlreadyStopped) {
				bs.logger.Error("stopping service", "service", bs.name, "err", err)
				return
			}
			bs.logger.Info("stopped service", "service", bs.name)
		}
	}()

	return nil
}

// Stop calls OnStop and releases waiters.
func (bs *BaseService) Stop() error {
	bs.mtx.Lock()
	switch {
	case bs.stopped:
		bs.mtx.Unlock()
		return ErrAlreadyStopped
	case !bs.started:
		bs.mtx.Unlock()
		bs.logger.Error("not stopping service; not started yet", "service", bs.name)
		return ErrNotStarted
	}
	bs.stopped = true
	bs.mtx.Unlock()

	bs.logger.Info("stopping service", "service", bs.name)
	bs.impl.OnStop()
	close(bs.quit)
	return nil
}

// IsRunning reports whether the service was started and not yet stopped.
func (bs *BaseService) IsRunning() bool {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()
	return bs.started && !bs.stopped
}

// Wait blocks until the service is stopped.
func (bs *BaseService) Wait() { <-bs.quit }

// Quit is closed once the service stops.
func (bs *BaseService) Quit() <-chan struct{} { return bs.quit }

func (bs *BaseService) String() string { return bs.name }
