package processor

import (
	"context"
	"time"

	"github.com/bgbye/bgbye/internal/domain/models"
	"github.com/bgbye/bgbye/pkg/logger"
)

const statusFailureMessage = "Error: Failed to get status update"

// Job identifies a remote video job.
type Job struct {
	Method  models.Method
	BaseURL string
	ID      string
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	// Interval is the delay between polls while the job is processing
	Interval time.Duration

	// Clock drives the delay; nil uses the wall clock
	Clock Clock

	Metrics Metrics
	Logger  logger.Logger
}

// DefaultPollerOptions returns the standard four second cadence on the wall clock.
func DefaultPollerOptions() PollerOptions {
	return PollerOptions{
		Interval: 4 * time.Second,
		Clock:    RealClock(),
		Metrics:  NopMetrics(),
		Logger:   logger.NewNop(),
	}
}

// Poller drives a video job from submitted to a terminal state.
type Poller struct {
	source   StatusSource
	interval time.Duration
	clock    Clock
	metrics  Metrics
	log      logger.Logger
}

// NewPoller creates a poller reading job status from source.
func NewPoller(source StatusSource, options PollerOptions) *Poller {
	d := DefaultPollerOptions()
	if options.Interval <= 0 {
		options.Interval = d.Interval
	}
	if options.Clock == nil {
		options.Clock = d.Clock
	}
	if options.Metrics == nil {
		options.Metrics = d.Metrics
	}
	if options.Logger == nil {
		options.Logger = d.Logger
	}
	return &Poller{
		source:   source,
		interval: options.Interval,
		clock:    options.Clock,
		metrics:  options.Metrics,
		log:      options.Logger,
	}
}

// Run polls once immediately and then every interval while the job is
// processing. It returns the terminal status. A status fetch failure is
// terminal and is never retried. The only error returned is ctx's.
func (p *Poller) Run(ctx context.Context, job Job, obs VideoObserver, notifier Notifier) (models.JobStatus, error) {
	log := p.log.WithFields(logger.Fields{"method": job.Method, "job_id": job.ID})

	for {
		status, err := p.source.Status(ctx, job.BaseURL, job.ID)
		if err != nil {
			if ctx.Err() != nil {
				return models.JobStatus{State: models.JobProcessing}, ctx.Err()
			}
			log.Errorf("status fetch failed: %v", err)
			p.metrics.ObservePoll(job.Method, models.JobError)
			notifier.Notify(ctx, models.LevelError, job.Method, statusFailureMessage)
			obs.OnFailed(ctx, job.Method, statusFailureMessage)
			return models.JobStatus{State: models.JobError, Message: statusFailureMessage}, nil
		}
		p.metrics.ObservePoll(job.Method, status.State)

		switch status.State {
		case models.JobComplete:
			status.Progress = 100
			log.Infof("video job complete")
			obs.OnComplete(ctx, job.Method, status.Payload)
			return *status, nil

		case models.JobError:
			log.Warnf("video job failed: %s", status.Message)
			notifier.Notify(ctx, models.LevelError, job.Method, "Error processing video: "+status.Message)
			obs.OnFailed(ctx, job.Method, "Error: "+status.Message)
			return *status, nil

		default:
			log.Debugf("video job at %.0f%%", status.Progress)
			obs.OnProgress(ctx, job.Method, status.Progress, status.Message)
		}

		select {
		case <-ctx.Done():
			return *status, ctx.Err()
		case <-p.clock.After(p.interval):
		}
	}
}
