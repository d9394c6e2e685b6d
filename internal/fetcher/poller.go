package fetcher

import (
	"context"
	"fmt"

	"compass_sync/internal/logger"

	"github.com/robfig/cron/v3"
)

// StartPolling выполняет run сразу и затем по cron-расписанию schedule, пока не отменён ctx.
// Очередной запуск пропускается, если предыдущий ещё не завершился.
func StartPolling(ctx context.Context, schedule string, run func(context.Context)) error {
	log := logger.Log.WithFields(logger.Fields{
		"service":  "poller",
		"schedule": schedule,
	})

	cronLog := cron.PrintfLogger(log)
	c := cron.New(cron.WithChain(cron.Recover(cronLog)))
	job := cron.NewChain(cron.SkipIfStillRunning(cronLog)).Then(cron.FuncJob(func() {
		log.Info("Starting new polling cycle")
		run(ctx)
	}))
	// Первый запуск и запуски по расписанию идут через одну обёртку,
	// поэтому никогда не выполняются одновременно.
	if _, err := c.AddJob(schedule, job); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	c.Start()
	first := make(chan struct{})
	go func() {
		defer close(first)
		job.Run()
	}()

	<-ctx.Done()
	log.Info("Stopping poller by context")
	<-c.Stop().Done()
	<-first
	return nil
}
