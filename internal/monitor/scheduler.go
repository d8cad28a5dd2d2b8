package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/momentum-mod/livestreams/internal/domain"
)

// Reconciler is what the Scheduler drives; *Engine implements it.
type Reconciler interface {
	Connect(ctx context.Context) error
	Rebuild(ctx context.Context) error
	Reconcile(ctx context.Context) (Outcome, error)
}

// Scheduler fires a reconciliation pass on a fixed interval, starting
// immediately, and on demand. Overlapping timer runs are suppressed by gocron's
// singleton mode; manual triggers queue on the engine's gate.
type Scheduler struct {
	logger   *zap.Logger
	engine   Reconciler
	interval time.Duration
	notify   func(error)

	mu   sync.Mutex
	cron *gocron.Scheduler
	ctx  context.Context
}

type SchedulerOption func(*Scheduler)

// WithNotifier reports pass failures and recovered panics to an error tracker.
func WithNotifier(fn func(error)) SchedulerOption {
	return func(s *Scheduler) {
		s.notify = fn
	}
}

func NewScheduler(logger *zap.Logger, engine Reconciler, interval time.Duration, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		logger:   logger,
		engine:   engine,
		interval: interval,
		notify:   func(error) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start connects, rebuilds the store and starts the timer. A failed rebuild is
// not fatal: the first pass rebuilds again.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.engine.Connect(ctx); err != nil {
		return err
	}

	if err := s.engine.Rebuild(ctx); err != nil {
		s.logger.Warn("failed to rebuild announcement store on start", zap.Error(err))
	}

	return s.startTimer(ctx)
}

// Stop halts the timer. A pass already running is left to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cron != nil && s.cron.IsRunning()
}

// Trigger runs a pass now, waiting for any pass in flight to finish first.
func (s *Scheduler) Trigger(ctx context.Context) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reconciliation pass panicked: %v", r)
			s.logger.Error("recovered from panic in manual pass", zap.Any("panic", r))
			s.notify(err)
		}
	}()

	s.logger.Info("manual reconciliation triggered")
	return s.engine.Reconcile(ctx)
}

// Reconnect re-resolves the channel, rebuilds the store and restarts the timer.
func (s *Scheduler) Reconnect(ctx context.Context) error {
	s.logger.Info("reconnecting")
	s.Stop()

	s.mu.Lock()
	runCtx := s.ctx
	s.mu.Unlock()
	if runCtx == nil {
		runCtx = ctx
	}

	if err := s.engine.Connect(ctx); err != nil {
		s.logger.Error("failed to reconnect", zap.Error(err))
		// Keep polling; the channel will be resolved on the next reconnect.
		_ = s.startTimer(runCtx)
		return err
	}

	if err := s.engine.Rebuild(ctx); err != nil {
		s.logger.Warn("failed to rebuild announcement store on reconnect", zap.Error(err))
	}

	return s.startTimer(runCtx)
}

func (s *Scheduler) startTimer(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	cron := gocron.NewScheduler(time.UTC)
	if _, err := cron.Every(s.interval).SingletonMode().StartImmediately().Do(s.run, ctx); err != nil {
		return fmt.Errorf("failed to schedule reconciliation: %w", err)
	}
	cron.StartAsync()

	s.cron = cron
	s.ctx = ctx

	s.logger.Info("started stream monitor", zap.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recovered from panic in scheduled pass", zap.Any("panic", r))
			s.notify(fmt.Errorf("reconciliation pass panicked: %v", r))
		}
	}()

	// Provider outages and passes held off by another process are expected and
	// retried next tick.
	_, err := s.engine.Reconcile(ctx)
	if err == nil || ctx.Err() != nil {
		return
	}
	if errors.Is(err, domain.ErrProviderUnavailable) || errors.Is(err, domain.ErrBusy) {
		return
	}
	s.notify(err)
}
