// Package scheduler drives the periodic refresh in watch mode. The
// baseline entry points stay short-lived; this is the one long-running
// loop, and it only exists when the watch command asks for it.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type Job func(ctx context.Context) error

type Scheduler struct {
	cron *cron.Cron
}

func New() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// Add registers a job under a cron expression ("@every 6h" or the
// standard five-field form). Each run gets its own bounded context.
func (s *Scheduler) Add(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		start := time.Now()
		slog.Info("[Scheduler] job starting", slog.String("job", name))
		if err := job(ctx); err != nil {
			slog.Error("[Scheduler] job failed",
				slog.String("job", name),
				slog.String("error", err.Error()))
			return
		}
		slog.Info("[Scheduler] job finished",
			slog.String("job", name),
			slog.Duration("took", time.Since(start)))
	})
	if err != nil {
		return err
	}
	slog.Info("[Scheduler] job added",
		slog.String("job", name),
		slog.String("schedule", spec))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
