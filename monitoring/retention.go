package monitoring

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Retention periodically prunes old readings on a cron schedule.
type Retention struct {
	cron    *cron.Cron
	service *HeartRateService
	keep    time.Duration
	logger  *zap.Logger
}

// NewRetention schedules pruning of readings older than days. schedule is
// a standard cron expression or descriptor such as "@daily".
func NewRetention(service *HeartRateService, days int, schedule string, loc *time.Location, logger *zap.Logger) (*Retention, error) {
	if days <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", days)
	}
	if loc == nil {
		loc = time.Local
	}
	r := &Retention{
		cron:    cron.New(cron.WithLocation(loc)),
		service: service,
		keep:    time.Duration(days) * 24 * time.Hour,
		logger:  logger,
	}
	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("add retention job %q: %w", schedule, err)
	}
	return r, nil
}

func (r *Retention) Start() {
	r.cron.Start()
}

// Stop waits for a running prune to finish.
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Retention) run() {
	if _, err := r.service.Prune(r.keep); err != nil {
		r.logger.Error("retention prune failed", zap.Error(err))
	}
}
