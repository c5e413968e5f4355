package discovery

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/cafespot/internal/scheduler"
)

// Watch polls fn every interval on sched while a screen is focused. The
// returned stop func removes the job and cancels an in-flight poll; it is
// safe to call more than once.
func Watch(ctx context.Context, sched *scheduler.Service, name string, interval time.Duration, fn func(context.Context) error) (stop func(), err error) {
	ctx, cancel := context.WithCancel(ctx)
	job, err := sched.AddIntervalJob(name, interval, func() {
		if ctx.Err() != nil {
			return
		}
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Str("job_name", name).Msg("Poll failed")
		}
	})
	if err != nil {
		cancel()
		return nil, err
	}
	return func() {
		cancel()
		sched.RemoveJob(job.ID())
	}, nil
}
