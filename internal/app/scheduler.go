package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"alertrules/internal/buffer"
	"alertrules/internal/processor"

	"golang.org/x/sync/errgroup"
)

// Scheduler periodically runs the delayed processor over projects with buffered work.
type Scheduler struct {
	buffer      buffer.Buffer
	delayed     *processor.DelayedProcessor
	interval    time.Duration
	batch       int
	concurrency int
	logger      *slog.Logger
}

// NewScheduler creates delayed batch scheduler.
// Params: buffer, delayed processor, tick interval, projects per tick, and parallel projects.
// Returns: scheduler ready for Run.
func NewScheduler(buf buffer.Buffer, delayed *processor.DelayedProcessor, interval time.Duration, batch, concurrency int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Scheduler{
		buffer:      buf,
		delayed:     delayed,
		interval:    interval,
		batch:       batch,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run ticks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("delayed tick failed", "error", err.Error())
			}
		}
	}
}

// RunOnce processes up to batch pending projects, oldest first.
// Params: context.
// Returns: processor reports in pending order, or pending-list error.
func (s *Scheduler) RunOnce(ctx context.Context) ([]processor.Report, error) {
	projects, err := s.buffer.PendingProjects(ctx, s.batch)
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, nil
	}

	reports := make([]processor.Report, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, projectID := range projects {
		i, projectID := i, projectID
		g.Go(func() error {
			reports[i] = s.delayed.ProcessProject(gctx, projectID)
			return nil
		})
	}
	_ = g.Wait()
	s.logger.Debug("delayed tick done", "projects", len(projects))
	return reports, ctx.Err()
}
