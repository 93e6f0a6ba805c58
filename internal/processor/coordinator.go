package processor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bgbye/bgbye/internal/domain/models"
	"github.com/bgbye/bgbye/pkg/logger"
)

// CoordinatorOptions configures a Coordinator.
type CoordinatorOptions struct {
	// Concurrency caps image requests in flight per submission
	Concurrency int

	// Guard, when set, rejects overlong videos before upload
	Guard *FrameGuard

	Metrics Metrics
	Logger  logger.Logger
}

// DefaultCoordinatorOptions returns the standard ceiling of three requests.
func DefaultCoordinatorOptions() CoordinatorOptions {
	return CoordinatorOptions{
		Concurrency: 3,
		Metrics:     NopMetrics(),
		Logger:      logger.NewNop(),
	}
}

// Coordinator fans an asset out to the selected back-ends.
type Coordinator struct {
	backend     Backend
	resolver    Resolver
	poller      *Poller
	guard       *FrameGuard
	concurrency int
	metrics     Metrics
	log         logger.Logger

	inFlight  atomic.Int32
	peak      atomic.Int32
	submitted atomic.Int64
	failed    atomic.Int64
	videos    atomic.Int64
	rejected  atomic.Int64
}

// NewCoordinator creates a coordinator. poller may be nil when videos are not handled.
func NewCoordinator(backend Backend, resolver Resolver, poller *Poller, options CoordinatorOptions) *Coordinator {
	d := DefaultCoordinatorOptions()
	if options.Concurrency <= 0 {
		options.Concurrency = d.Concurrency
	}
	if options.Metrics == nil {
		options.Metrics = d.Metrics
	}
	if options.Logger == nil {
		options.Logger = d.Logger
	}
	return &Coordinator{
		backend:     backend,
		resolver:    resolver,
		poller:      poller,
		guard:       options.Guard,
		concurrency: options.Concurrency,
		metrics:     options.Metrics,
		log:         options.Logger,
	}
}

// Concurrency returns the per-submission request ceiling.
func (c *Coordinator) Concurrency() int {
	return c.concurrency
}

// ResolveAll checks that every method can be submitted and returns the base
// URLs. Nothing is dispatched when any method fails to resolve.
func (c *Coordinator) ResolveAll(methods []models.Method) (map[models.Method]string, error) {
	if len(methods) == 0 {
		return nil, ErrNoMethods
	}
	urls := make(map[models.Method]string, len(methods))
	for _, m := range methods {
		u, err := c.resolver.BaseURL(m)
		if err != nil {
			return nil, err
		}
		urls[m] = u
	}
	return urls, nil
}

// SubmitImage sends the image to every method, keeping at most Concurrency
// requests in flight. Each method settles independently; a failure marks only
// that method and raises one notification. Outcomes are returned in settle
// order. The returned error covers input validation only.
func (c *Coordinator) SubmitImage(ctx context.Context, asset *models.Asset, methods []models.Method, obs ImageObserver, notifier Notifier) ([]Outcome, error) {
	if asset == nil || asset.Kind != models.KindImage {
		return nil, fmt.Errorf("%w: image submission needs an image asset", ErrWrongAssetKind)
	}
	methods = models.UniqueMethods(methods)
	urls, err := c.ResolveAll(methods)
	if err != nil {
		return nil, err
	}

	limiter := NewLimiter(c.concurrency)
	outcomes := make([]Outcome, 0, len(methods))

	var (
		wg       sync.WaitGroup
		settleMu sync.Mutex
	)
	settle := func(out Outcome) {
		settleMu.Lock()
		defer settleMu.Unlock()

		outcomes = append(outcomes, out)
		if out.Err != nil {
			c.failed.Add(1)
			c.log.WithFields(logger.Fields{"method": out.Method}).Errorf("image submission failed: %v", out.Err)
			if ctx.Err() == nil {
				notifier.Notify(ctx, models.LevelError, out.Method, fmt.Sprintf("Error processing image with %s", out.Method))
			}
		}
		obs.OnSettled(ctx, out)
	}

	for _, m := range methods {
		wg.Add(1)
		go func(m models.Method, baseURL string) {
			defer wg.Done()
			settle(c.submitOne(ctx, limiter, asset, m, baseURL))
		}(m, urls[m])
	}
	wg.Wait()

	c.log.Debugf("image fan-out finished: %d methods, peak concurrency %d", len(methods), limiter.Peak())
	return outcomes, nil
}

func (c *Coordinator) submitOne(ctx context.Context, limiter *Limiter, asset *models.Asset, m models.Method, baseURL string) Outcome {
	if err := limiter.Acquire(ctx); err != nil {
		return Outcome{Method: m, Err: err}
	}
	defer limiter.Release()

	c.enter()
	defer c.leave()

	start := time.Now()
	payload, err := c.backend.RemoveBackground(ctx, baseURL, asset, m)
	elapsed := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.submitted.Add(1)
	c.metrics.ObserveSubmission(m, models.KindImage, outcome, elapsed)

	return Outcome{Method: m, Payload: payload, Err: err, Elapsed: elapsed}
}

// SubmitVideo runs the frame guard, uploads the video to a single method and
// follows the resulting job until it is terminal. Guard rejections and upload
// failures raise exactly one notification and are returned as errors.
func (c *Coordinator) SubmitVideo(ctx context.Context, asset *models.Asset, method models.Method, obs VideoObserver, notifier Notifier) (models.JobStatus, error) {
	if asset == nil || asset.Kind != models.KindVideo {
		return models.JobStatus{}, fmt.Errorf("%w: video submission needs a video asset", ErrWrongAssetKind)
	}
	if c.poller == nil {
		return models.JobStatus{}, fmt.Errorf("video processing is not configured")
	}
	baseURL, err := c.resolver.BaseURL(method)
	if err != nil {
		return models.JobStatus{}, err
	}

	if c.guard != nil {
		if err := c.guard.Check(ctx, asset); err != nil {
			c.rejected.Add(1)
			msg := guardMessage(err)
			c.log.WithFields(logger.Fields{"method": method, "filename": asset.Filename}).Warnf("video rejected: %v", err)
			notifier.Notify(ctx, models.LevelError, method, msg)
			obs.OnFailed(ctx, method, msg)
			return models.JobStatus{State: models.JobError, Message: msg}, err
		}
	}

	c.enter()
	start := time.Now()
	jobID, err := c.backend.SubmitVideo(ctx, baseURL, asset, method)
	c.leave()
	c.submitted.Add(1)
	c.videos.Add(1)
	if err != nil {
		c.failed.Add(1)
		c.metrics.ObserveSubmission(method, models.KindVideo, "failure", time.Since(start))
		c.log.WithFields(logger.Fields{"method": method}).Errorf("video submission failed: %v", err)
		msg := fmt.Sprintf("Error processing video with %s", method)
		notifier.Notify(ctx, models.LevelError, method, msg)
		obs.OnFailed(ctx, method, msg)
		return models.JobStatus{State: models.JobError, Message: msg}, err
	}
	c.metrics.ObserveSubmission(method, models.KindVideo, "success", time.Since(start))

	obs.OnJobSubmitted(ctx, method, jobID)
	return c.poller.Run(ctx, Job{Method: method, BaseURL: baseURL, ID: jobID}, obs, notifier)
}

func (c *Coordinator) enter() {
	n := c.inFlight.Add(1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	c.metrics.SetInFlight(int(n))
}

func (c *Coordinator) leave() {
	c.metrics.SetInFlight(int(c.inFlight.Add(-1)))
}

// Stats returns coordinator statistics across all submissions
func (c *Coordinator) Stats() map[string]interface{} {
	return map[string]interface{}{
		"concurrency":    c.concurrency,
		"inFlight":       c.inFlight.Load(),
		"peakInFlight":   c.peak.Load(),
		"submitted":      c.submitted.Load(),
		"failed":         c.failed.Load(),
		"videos":         c.videos.Load(),
		"rejectedVideos": c.rejected.Load(),
		"frameGuard":     c.guard != nil,
	}
}
