package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/bgbye/bgbye/internal/domain/events"
	"github.com/bgbye/bgbye/internal/domain/models"
	"github.com/bgbye/bgbye/internal/processor"
	"github.com/bgbye/bgbye/internal/storage/memory"
	"github.com/stretchr/testify/require"
)

var testMethods = []models.MethodInfo{
	{Name: "bria", DisplayName: "Bria RMBG1.4", ShortName: "Bria"},
	{Name: "u2net", DisplayName: "U2Net", ShortName: "U2Net"},
	{Name: "ormbg", DisplayName: "Open RMBG", ShortName: "ORMBG"},
	{Name: "offline", DisplayName: "Offline", ShortName: "Off"},
}

// fakeClock advances by the requested delay whenever After is called.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.Advance(d)
	return ch
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// scriptedBackend answers image requests through imageFn and video jobs
// through a fixed list of statuses.
type scriptedBackend struct {
	mu       sync.Mutex
	imageFn  func(ctx context.Context, m models.Method) (*models.Payload, error)
	statuses []*models.JobStatus
	statusFn func(ctx context.Context) (*models.JobStatus, error)
	videoErr error
	videos   int
	polls    int
}

func (b *scriptedBackend) RemoveBackground(ctx context.Context, baseURL string, asset *models.Asset, m models.Method) (*models.Payload, error) {
	return b.imageFn(ctx, m)
}

func (b *scriptedBackend) SubmitVideo(ctx context.Context, baseURL string, asset *models.Asset, m models.Method) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.videos++
	if b.videoErr != nil {
		return "", b.videoErr
	}
	return "job-1", nil
}

func (b *scriptedBackend) Status(ctx context.Context, baseURL, jobID string) (*models.JobStatus, error) {
	if b.statusFn != nil {
		return b.statusFn(ctx)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.polls >= len(b.statuses) {
		return nil, errors.New("no more statuses")
	}
	st := b.statuses[b.polls]
	b.polls++
	return st, nil
}

func (b *scriptedBackend) videoCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.videos
}

type fixedProber float64

func (p fixedProber) Duration(context.Context, *models.Asset) (float64, error) {
	return float64(p), nil
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) handle(ctx context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, e := range l.events {
		out[i] = e.EventType
	}
	return out
}

type harness struct {
	svc     *DefaultSessionService
	repo    *memory.MemoryRepository
	backend *scriptedBackend
	clock   *fakeClock
	events  *eventLog
}

type harnessSettings struct {
	coordinator processor.CoordinatorOptions
	defaults    func(*models.Registry) []models.Method
}

type harnessOption func(*harnessSettings)

func withGuard(seconds float64) harnessOption {
	return func(s *harnessSettings) {
		s.coordinator.Guard = &processor.FrameGuard{MaxFrames: 250, FPS: 24, Prober: fixedProber(seconds)}
	}
}

// withDefaults derives the default selection from the harness registry.
func withDefaults(fn func(*models.Registry) []models.Method) harnessOption {
	return func(s *harnessSettings) {
		s.defaults = fn
	}
}

func newHarness(t *testing.T, backend *scriptedBackend, opts ...harnessOption) *harness {
	t.Helper()
	clock := newFakeClock()
	registry := models.NewRegistry(testMethods, map[models.Method]string{
		"bria":  "http://bria",
		"u2net": "http://u2net",
		"ormbg": "http://ormbg",
	})

	poller := processor.NewPoller(backend, processor.PollerOptions{Interval: 4 * time.Second, Clock: clock})
	settings := harnessSettings{
		coordinator: processor.CoordinatorOptions{Concurrency: 3},
		defaults: func(*models.Registry) []models.Method {
			return []models.Method{"bria", "ormbg"}
		},
	}
	for _, o := range opts {
		o(&settings)
	}
	coord := processor.NewCoordinator(backend, registry, poller, settings.coordinator)

	repo := memory.NewMemoryRepository()
	log := &eventLog{}
	bus := events.NewEventBus()
	bus.Subscribe(events.AllEvents, log.handle)

	svc := NewSessionService(repo, repo, repo, coord, registry, ServiceOptions{
		DismissAfter:   4 * time.Second,
		DefaultMethods: settings.defaults(registry),
		Clock:          clock,
		Events:         bus,
	})
	t.Cleanup(func() {
		require.NoError(t, svc.Shutdown(context.Background()))
	})
	return &harness{svc: svc, repo: repo, backend: backend, clock: clock, events: log}
}

// pngBytes is a 2x2 cut-out with one opaque pixel.
func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 0xff, A: 0xff})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func imageUpload(t *testing.T) Upload {
	return Upload{Filename: "cat.photo.png", ContentType: "image/png", Data: pngBytes(t)}
}

func videoUpload() Upload {
	return Upload{Filename: "clip.mp4", ContentType: "video/mp4", Data: []byte("mp4 bytes")}
}

func okImage(t *testing.T) func(context.Context, models.Method) (*models.Payload, error) {
	data := pngBytes(t)
	return func(context.Context, models.Method) (*models.Payload, error) {
		return &models.Payload{ContentType: "image/png", Data: data}, nil
	}
}
