package service

import (
	"time"

	"github.com/bgbye/bgbye/internal/domain/models"
	"github.com/bgbye/bgbye/internal/processor"
	"github.com/bgbye/bgbye/pkg/metrics"
)

// PrometheusRecorder feeds processor measurements into the metrics service.
type PrometheusRecorder struct {
	metrics metrics.MetricsService
}

var _ processor.Metrics = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder creates a recorder on top of m.
func NewPrometheusRecorder(m metrics.MetricsService) *PrometheusRecorder {
	return &PrometheusRecorder{metrics: m}
}

func (r *PrometheusRecorder) ObserveSubmission(method models.Method, kind models.AssetKind, outcome string, elapsed time.Duration) {
	labels := map[string]string{
		"method":  string(method),
		"kind":    string(kind),
		"outcome": outcome,
	}
	r.metrics.IncrementCounter("submissions_total", labels)
	r.metrics.ObserveHistogram("submission_duration_seconds", elapsed.Seconds(), labels)
}

func (r *PrometheusRecorder) SetInFlight(n int) {
	r.metrics.SetGauge("backend_requests_in_flight", float64(n), nil)
}

func (r *PrometheusRecorder) ObservePoll(method models.Method, state models.JobState) {
	r.metrics.IncrementCounter("video_polls_total", map[string]string{
		"method": string(method),
		"state":  string(state),
	})
}

// ObserveNotification counts user-visible notifications.
func (r *PrometheusRecorder) ObserveNotification(level models.NotificationLevel) {
	r.metrics.IncrementCounter("notifications_total", map[string]string{"level": string(level)})
}
