package processor

import (
	"context"
	"errors"
	"time"

	"github.com/bgbye/bgbye/internal/domain/models"
)

var (
	// ErrNoMethods is returned when a submission names no methods
	ErrNoMethods = errors.New("no methods selected")

	// ErrWrongAssetKind is returned when an asset is routed to the wrong pipeline
	ErrWrongAssetKind = errors.New("wrong asset kind")
)

// Backend is the set of inference calls the processor relies on.
type Backend interface {
	RemoveBackground(ctx context.Context, baseURL string, asset *models.Asset, method models.Method) (*models.Payload, error)
	SubmitVideo(ctx context.Context, baseURL string, asset *models.Asset, method models.Method) (string, error)
	StatusSource
}

// StatusSource fetches the status of a remote video job.
type StatusSource interface {
	Status(ctx context.Context, baseURL, jobID string) (*models.JobStatus, error)
}

// Resolver maps a method to the base URL of its back-end.
type Resolver interface {
	BaseURL(m models.Method) (string, error)
}

// Notifier surfaces a user-visible message.
type Notifier interface {
	Notify(ctx context.Context, level models.NotificationLevel, method models.Method, message string)
}

// Metrics receives processing measurements.
type Metrics interface {
	ObserveSubmission(method models.Method, kind models.AssetKind, outcome string, elapsed time.Duration)
	SetInFlight(n int)
	ObservePoll(method models.Method, state models.JobState)
}

// Outcome is the settled result of one image request.
type Outcome struct {
	Method  models.Method
	Payload *models.Payload
	Err     error
	Elapsed time.Duration
}

// ImageObserver is told about each method as it settles. Calls are serialised
// and arrive in settle order.
type ImageObserver interface {
	OnSettled(ctx context.Context, outcome Outcome)
}

// VideoObserver follows a video job through its life cycle.
type VideoObserver interface {
	OnJobSubmitted(ctx context.Context, method models.Method, jobID string)
	OnProgress(ctx context.Context, method models.Method, progress float64, message string)
	OnComplete(ctx context.Context, method models.Method, payload *models.Payload)
	OnFailed(ctx context.Context, method models.Method, message string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveSubmission(models.Method, models.AssetKind, string, time.Duration) {}
func (nopMetrics) SetInFlight(int)                                                         {}
func (nopMetrics) ObservePoll(models.Method, models.JobState)                              {}

// NopMetrics discards all measurements.
func NopMetrics() Metrics { return nopMetrics{} }
