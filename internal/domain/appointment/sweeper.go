package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper runs SweepCompleted on a cron schedule.
type Sweeper struct {
	cron   *cron.Cron
	svc    *Service
	logger zerolog.Logger
}

// NewSweeper parses a standard five-field cron spec such as "5 0 * * *".
func NewSweeper(svc *Service, spec string, logger zerolog.Logger) (*Sweeper, error) {
	sw := &Sweeper{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		svc:    svc,
		logger: logger.With().Str("component", "sweeper").Logger(),
	}
	if _, err := sw.cron.AddFunc(spec, sw.run); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return sw, nil
}

func (sw *Sweeper) run() {
	n, err := sw.svc.SweepCompleted(context.Background())
	if err != nil {
		sw.logger.Error().Err(err).Msg("completion sweep failed")
		return
	}
	sw.logger.Debug().Int("completed", n).Msg("completion sweep finished")
}

func (sw *Sweeper) Start() {
	sw.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish.
func (sw *Sweeper) Stop() {
	<-sw.cron.Stop().Done()
}
