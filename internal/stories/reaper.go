package stories

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Reaper runs Reap on a cron schedule.
type Reaper struct {
	svc       *Service
	retention time.Duration
	log       logrus.FieldLogger
	cron      *cron.Cron
}

// NewReaper validates the schedule up front. Standard five-field specs and
// descriptors such as "@hourly" are accepted.
func NewReaper(svc *Service, schedule string, retention time.Duration, log logrus.FieldLogger) (*Reaper, error) {
	r := &Reaper{
		svc:       svc,
		retention: retention,
		log:       log,
		cron:      cron.New(),
	}

	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("invalid story reap schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *Reaper) Start() {
	r.cron.Start()
}

// Stop prevents further runs and waits for a running one to finish.
func (r *Reaper) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (r *Reaper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := r.svc.Reap(ctx, r.retention)
	if err != nil {
		r.log.WithError(err).Error("story reaper failed")
		return
	}
	if removed > 0 {
		r.log.WithField("removed", removed).Info("reaped expired stories")
	}
}
