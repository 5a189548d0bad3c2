package listener

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"bidintake/internal/pipeline"
	"bidintake/internal/runlock"
)

type Runner interface {
	RunOnce(ctx context.Context) (pipeline.RunResult, error)
}

type Options struct {
	Interval   time.Duration
	RunTimeout time.Duration
	RunOnStart bool
}

type Status struct {
	Started        bool       `json:"started"`
	Running        bool       `json:"running"`
	Interval       string     `json:"interval"`
	Runs           int        `json:"runs"`
	LastRunAt      *time.Time `json:"lastRunAt,omitempty"`
	LastFinishedAt *time.Time `json:"lastFinishedAt,omitempty"`
	LastTrigger    string     `json:"lastTrigger,omitempty"`
	LastFetched    int        `json:"lastFetched"`
	LastCreated    int        `json:"lastCreated"`
	LastError      string     `json:"lastError,omitempty"`
}

// Service runs the pipeline on a fixed interval and on demand. All runs go
// through one gate, so at most one is in flight.
type Service struct {
	runner Runner
	gate   runlock.Gate
	opts   Options
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	status Status
}

func NewService(runner Runner, gate runlock.Gate, opts Options, logger *zap.Logger) *Service {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	return &Service{
		runner: runner,
		gate:   gate,
		opts:   opts,
		logger: logger.Named("listener"),
		status: Status{Interval: opts.Interval.String()},
	}
}

// Run blocks, firing a run every interval until ctx is done. Ticks that find
// a run in flight are skipped.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("listener started", zap.Duration("interval", s.opts.Interval))
	if s.opts.RunOnStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("listener stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("listener already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.status.Started = true

	go func() {
		defer close(done)
		_ = s.Run(runCtx)
	}()
	return nil
}

// Stop cancels the schedule and waits for an in-flight scheduled run to end.
// That run is not cancelled; only the run timeout bounds it.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.status.Started = false
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Trigger runs the pipeline now, waiting for the gate until ctx ends. The
// run itself is detached from ctx and bounded by the run timeout only.
func (s *Service) Trigger(ctx context.Context) (pipeline.RunResult, error) {
	release, err := s.gate.Acquire(ctx)
	if err != nil {
		return pipeline.RunResult{}, err
	}
	defer release()
	return s.execute(context.WithoutCancel(ctx), "manual")
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// tick starts a scheduled run unless one is already in flight. It reports
// whether a run happened.
func (s *Service) tick(ctx context.Context) (pipeline.RunResult, bool) {
	release, err := s.gate.TryAcquire(ctx)
	if errors.Is(err, runlock.ErrBusy) {
		s.logger.Info("scheduled run skipped, previous run still in progress")
		return pipeline.RunResult{}, false
	}
	if err != nil {
		s.logger.Error("acquiring run lock", zap.Error(err))
		return pipeline.RunResult{}, false
	}
	defer release()
	result, _ := s.execute(context.WithoutCancel(ctx), "schedule")
	return result, true
}

func (s *Service) execute(ctx context.Context, trigger string) (pipeline.RunResult, error) {
	if s.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RunTimeout)
		defer cancel()
	}

	started := time.Now().UTC()
	s.mu.Lock()
	s.status.Running = true
	s.status.LastRunAt = &started
	s.status.LastTrigger = trigger
	s.mu.Unlock()

	result, err := s.runner.RunOnce(ctx)

	finished := time.Now().UTC()
	s.mu.Lock()
	s.status.Running = false
	s.status.Runs++
	s.status.LastFinishedAt = &finished
	s.status.LastFetched = result.Fetched
	s.status.LastCreated = len(result.Bids)
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("ingestion run failed", zap.String("trigger", trigger), zap.Error(err))
	}
	return result, err
}
