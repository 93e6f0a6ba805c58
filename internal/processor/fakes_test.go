package processor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bgbye/bgbye/internal/domain/models"
)

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After advances virtual time and fires immediately.
func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

type fakeResolver map[models.Method]string

func (r fakeResolver) BaseURL(m models.Method) (string, error) {
	u, ok := r[m]
	if !ok {
		return "", models.ErrUnknownMethod
	}
	return u, nil
}

type statusStep struct {
	status *models.JobStatus
	err    error
}

type fakeBackend struct {
	mu sync.Mutex

	// image behaviour
	imageFn    func(ctx context.Context, m models.Method) (*models.Payload, error)
	imageCalls []models.Method

	// video behaviour
	submitErr   error
	videoCalls  int
	steps       []statusStep
	statusCalls int
}

func (b *fakeBackend) RemoveBackground(ctx context.Context, baseURL string, asset *models.Asset, m models.Method) (*models.Payload, error) {
	b.mu.Lock()
	b.imageCalls = append(b.imageCalls, m)
	fn := b.imageFn
	b.mu.Unlock()
	if fn != nil {
		return fn(ctx, m)
	}
	return &models.Payload{ContentType: "image/png", Data: []byte(string(m))}, nil
}

func (b *fakeBackend) SubmitVideo(ctx context.Context, baseURL string, asset *models.Asset, m models.Method) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.videoCalls++
	if b.submitErr != nil {
		return "", b.submitErr
	}
	return "job-1", nil
}

func (b *fakeBackend) Status(ctx context.Context, baseURL, jobID string) (*models.JobStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.statusCalls >= len(b.steps) {
		b.statusCalls++
		return nil, errors.New("no more scripted statuses")
	}
	step := b.steps[b.statusCalls]
	b.statusCalls++
	if step.err != nil {
		return nil, step.err
	}
	s := *step.status
	return &s, nil
}

func (b *fakeBackend) ImageCalls() []models.Method {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Method(nil), b.imageCalls...)
}

type notice struct {
	level   models.NotificationLevel
	method  models.Method
	message string
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) Notify(ctx context.Context, level models.NotificationLevel, m models.Method, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{level, m, message})
}

func (n *recordingNotifier) All() []notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notice(nil), n.notices...)
}

type recordingObserver struct {
	mu        sync.Mutex
	settled   []Outcome
	jobID     string
	progress  []float64
	messages  []string
	completed *models.Payload
	failed    []string
}

func (o *recordingObserver) OnSettled(ctx context.Context, out Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.settled = append(o.settled, out)
}

func (o *recordingObserver) OnJobSubmitted(ctx context.Context, m models.Method, jobID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.jobID = jobID
}

func (o *recordingObserver) OnProgress(ctx context.Context, m models.Method, progress float64, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = append(o.progress, progress)
	o.messages = append(o.messages, message)
}

func (o *recordingObserver) OnComplete(ctx context.Context, m models.Method, payload *models.Payload) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = append(o.progress, 100)
	o.completed = payload
}

func (o *recordingObserver) OnFailed(ctx context.Context, m models.Method, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, message)
}

type fixedProber struct {
	seconds float64
	err     error
}

func (p fixedProber) Duration(ctx context.Context, asset *models.Asset) (float64, error) {
	return p.seconds, p.err
}

func processing(progress float64, message string) statusStep {
	return statusStep{status: &models.JobStatus{State: models.JobProcessing, Progress: progress, Message: message}}
}

func complete(data string) statusStep {
	return statusStep{status: &models.JobStatus{
		State:   models.JobComplete,
		Payload: &models.Payload{ContentType: "video/webm", Data: []byte(data)},
	}}
}

func jobError(message string) statusStep {
	return statusStep{status: &models.JobStatus{State: models.JobError, Message: message}}
}
