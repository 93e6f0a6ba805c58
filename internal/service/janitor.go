package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bgbye/bgbye/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Janitor periodically purges idle sessions and their payloads.
type Janitor struct {
	svc  SessionService
	ttl  time.Duration
	cron *cron.Cron
	log  logger.Logger
}

// NewJanitor schedules PurgeExpired on a cron expression such as "@every 10m".
func NewJanitor(svc SessionService, ttl time.Duration, schedule string, log logger.Logger) (*Janitor, error) {
	if log == nil {
		log = logger.NewNop()
	}
	j := &Janitor{
		svc: svc,
		ttl: ttl,
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		log: log,
	}
	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start runs the schedule in the background.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and waits for a running sweep or ctx.
func (j *Janitor) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce purges immediately.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	return j.svc.PurgeExpired(ctx, j.ttl)
}

func (j *Janitor) sweep() {
	n, err := j.RunOnce(context.Background())
	if err != nil {
		j.log.Errorf("session purge failed: %v", err)
		return
	}
	if n > 0 {
		j.log.Infof("purged %d idle sessions", n)
	}
}
