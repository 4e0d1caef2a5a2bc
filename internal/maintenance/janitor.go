package maintenance

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Hygienist is the store surface the janitor sweeps.
type Hygienist interface {
	HygienePass()
}

// Janitor runs the daily notification hygiene pass for long-lived agent
// sessions: records older than a day are marked read so the reload-time
// pass is not the only thing keeping the collection tidy.
type Janitor struct {
	scheduler      *cron.Cron
	store          Hygienist
	logger         *zap.Logger
	runImmediately bool
	jobID          cron.EntryID
}

// NewJanitor creates a janitor for the given store.
func NewJanitor(store Hygienist, runImmediately bool, logger *zap.Logger) *Janitor {
	return &Janitor{
		scheduler:      cron.New(),
		store:          store,
		logger:         logger,
		runImmediately: runImmediately,
	}
}

// Start schedules the daily hygiene job and starts the scheduler.
func (j *Janitor) Start() error {
	var err error
	j.jobID, err = j.scheduler.AddFunc("@daily", func() {
		j.logger.Debug("Running daily notification hygiene pass")
		j.store.HygienePass()
	})
	if err != nil {
		return fmt.Errorf("scheduling hygiene job: %w", err)
	}

	j.scheduler.Start()

	if j.runImmediately {
		j.store.HygienePass()
	}

	return nil
}

// Stop halts the scheduler. A pass already running completes.
func (j *Janitor) Stop() {
	ctx := j.scheduler.Stop()
	<-ctx.Done()
}
