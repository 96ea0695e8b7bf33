package poller

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tonbuy-alerts/internal/observability"
)

// Service is a long-running component started by the Supervisor.
// Run must block until ctx is cancelled; returning earlier is a fault.
type Service struct {
	Name string
	Run  func(ctx context.Context) error
}

// SupervisorOptions configures a Supervisor.
type SupervisorOptions struct {
	Backoff      time.Duration // initial restart delay, default 5s
	MaxBackoff   time.Duration // default 60s
	HealthyAfter time.Duration // uptime that resets the delay, default 1m
	Logger       *zap.Logger
}

// Supervisor runs a set of services and restarts all of them after any one
// fails or panics.
type Supervisor struct {
	services     []Service
	backoff      time.Duration
	maxBackoff   time.Duration
	healthyAfter time.Duration
	logger       *zap.Logger
}

// NewSupervisor creates a supervisor for services.
func NewSupervisor(services []Service, opts SupervisorOptions) *Supervisor {
	s := &Supervisor{
		services:     services,
		backoff:      opts.Backoff,
		maxBackoff:   opts.MaxBackoff,
		healthyAfter: opts.HealthyAfter,
		logger:       opts.Logger,
	}
	if s.backoff <= 0 {
		s.backoff = 5 * time.Second
	}
	if s.maxBackoff <= 0 {
		s.maxBackoff = 60 * time.Second
	}
	if s.maxBackoff < s.backoff {
		s.maxBackoff = s.backoff
	}
	if s.healthyAfter <= 0 {
		s.healthyAfter = time.Minute
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("supervisor")
	return s
}

// Run starts the services and keeps restarting them until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	delay := s.backoff
	for {
		started := time.Now()
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if time.Since(started) >= s.healthyAfter {
			delay = s.backoff
		}
		observability.RecordRestart()
		s.logger.Error("service fault, restarting",
			zap.Error(err),
			zap.Duration("backoff", delay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > s.maxBackoff {
			delay = s.maxBackoff
		}
	}
}

func (s *Supervisor) runOnce(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range s.services {
		svc := svc
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%s panicked: %v", svc.Name, r)
				}
			}()
			if err := svc.Run(gctx); err != nil {
				return fmt.Errorf("%s: %w", svc.Name, err)
			}
			if gctx.Err() == nil {
				return fmt.Errorf("%s exited", svc.Name)
			}
			return nil
		})
	}
	return g.Wait()
}
