package service

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"
)

// CronJob runs a task on every tick of a cron expression.
type CronJob struct {
	name   string
	expr   string
	task   func(ctx context.Context) error
	logger zerolog.Logger
}

// NewCronJob validates expr and returns a job ready to Start.
func NewCronJob(name, expr string, task func(ctx context.Context) error, logger zerolog.Logger) (*CronJob, error) {
	if !gronx.IsValid(expr) {
		return nil, fmt.Errorf("invalid cron expression for %s: %q", name, expr)
	}
	return &CronJob{
		name:   name,
		expr:   expr,
		task:   task,
		logger: logger.With().Str("component", "cron").Str("job", name).Logger(),
	}, nil
}

// Next returns the first tick strictly after the given instant.
func (j *CronJob) Next(after time.Time) (time.Time, error) {
	return gronx.NextTickAfter(j.expr, after, false)
}

// RunOnce executes the task immediately.
func (j *CronJob) RunOnce(ctx context.Context) {
	started := time.Now()
	if err := j.task(ctx); err != nil {
		j.logger.Error().Err(err).Msg("cron run failed")
		return
	}
	j.logger.Debug().Dur("took", time.Since(started)).Msg("cron run completed")
}

// Start runs the job in the background until ctx is cancelled.
func (j *CronJob) Start(ctx context.Context) {
	j.logger.Info().Str("cron", j.expr).Msg("cron job started")
	go j.loop(ctx)
}

func (j *CronJob) loop(ctx context.Context) {
	for {
		next, err := j.Next(time.Now())
		if err != nil {
			j.logger.Error().Err(err).Msg("failed to compute next tick")
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			j.RunOnce(ctx)
		case <-ctx.Done():
			timer.Stop()
			j.logger.Info().Msg("cron job stopping")
			return
		}
	}
}
