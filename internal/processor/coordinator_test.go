package processor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bgbye/bgbye/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tenMethods = []models.Method{
	"bria", "inspyrenet", "u2net", "tracer", "basnet",
	"deeplab", "u2net_human_seg", "ormbg", "isnet-general-use", "isnet-anime",
}

func resolverFor(methods ...models.Method) fakeResolver {
	r := fakeResolver{}
	for _, m := range methods {
		r[m] = "http://" + string(m)
	}
	return r
}

func imageAsset() *models.Asset {
	return &models.Asset{Filename: "cat.png", ContentType: "image/png", Kind: models.KindImage, Data: []byte("png")}
}

func videoAsset() *models.Asset {
	return &models.Asset{Filename: "clip.mp4", ContentType: "video/mp4", Kind: models.KindVideo, Data: []byte("mp4")}
}

func TestSubmitImage_CeilingOfThree(t *testing.T) {
	// Setup
	var current, peak atomic.Int32
	started := make(chan models.Method, len(tenMethods))
	release := make(chan struct{})
	backend := &fakeBackend{imageFn: func(ctx context.Context, m models.Method) (*models.Payload, error) {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		started <- m
		<-release
		current.Add(-1)
		return &models.Payload{ContentType: "image/png", Data: []byte(m)}, nil
	}}
	coord := NewCoordinator(backend, resolverFor(tenMethods...), nil, CoordinatorOptions{Concurrency: 3})
	obs := &recordingObserver{}
	notifier := &recordingNotifier{}

	done := make(chan []Outcome)
	go func() {
		out, err := coord.SubmitImage(context.Background(), imageAsset(), tenMethods, obs, notifier)
		assert.NoError(t, err)
		done <- out
	}()

	// Test: exactly three requests start, a fourth waits for a free permit
	for i := 0; i < 3; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("expected three requests in flight")
		}
	}
	select {
	case m := <-started:
		t.Fatalf("fourth request %s started before a permit was released", m)
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	// Verify
	var outcomes []Outcome
	select {
	case outcomes = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("submission did not finish")
	}
	assert.Len(t, outcomes, len(tenMethods))
	assert.Equal(t, int32(3), peak.Load())
	assert.Len(t, obs.settled, len(tenMethods))
	assert.Empty(t, notifier.All())
	assert.Equal(t, int32(3), coord.Stats()["peakInFlight"])
}

func TestSubmitImage_FailureIsolation(t *testing.T) {
	// Setup
	methods := []models.Method{"u2net", "basnet", "tracer"}
	backend := &fakeBackend{imageFn: func(ctx context.Context, m models.Method) (*models.Payload, error) {
		if m == "basnet" {
			return nil, errors.New("connection refused")
		}
		return &models.Payload{ContentType: "image/png", Data: []byte(m)}, nil
	}}
	coord := NewCoordinator(backend, resolverFor(methods...), nil, DefaultCoordinatorOptions())
	obs := &recordingObserver{}
	notifier := &recordingNotifier{}

	// Test
	outcomes, err := coord.SubmitImage(context.Background(), imageAsset(), methods, obs, notifier)

	// Verify
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	byMethod := map[models.Method]Outcome{}
	for _, o := range outcomes {
		byMethod[o.Method] = o
	}
	assert.Error(t, byMethod["basnet"].Err)
	assert.NotNil(t, byMethod["u2net"].Payload)
	assert.NotNil(t, byMethod["tracer"].Payload)

	notices := notifier.All()
	require.Len(t, notices, 1)
	assert.Equal(t, models.LevelError, notices[0].level)
	assert.Equal(t, models.Method("basnet"), notices[0].method)
	assert.Equal(t, "Error processing image with basnet", notices[0].message)
}

func TestSubmitImage_DuplicateMethodsDispatchOnce(t *testing.T) {
	// Setup
	backend := &fakeBackend{}
	coord := NewCoordinator(backend, resolverFor("u2net", "tracer"), nil, DefaultCoordinatorOptions())

	// Test
	outcomes, err := coord.SubmitImage(context.Background(), imageAsset(),
		[]models.Method{"u2net", "tracer", "u2net"}, &recordingObserver{}, &recordingNotifier{})

	// Verify
	require.NoError(t, err)
	assert.Len(t, outcomes, 2)
	assert.ElementsMatch(t, []models.Method{"u2net", "tracer"}, backend.ImageCalls())
}

func TestSubmitImage_ValidatesBeforeDispatch(t *testing.T) {
	tests := []struct {
		name    string
		asset   *models.Asset
		methods []models.Method
		wantErr error
	}{
		{"no methods", imageAsset(), nil, ErrNoMethods},
		{"unknown method", imageAsset(), []models.Method{"u2net", "magic"}, models.ErrUnknownMethod},
		{"video asset", videoAsset(), []models.Method{"u2net"}, ErrWrongAssetKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{}
			coord := NewCoordinator(backend, resolverFor("u2net"), nil, DefaultCoordinatorOptions())

			_, err := coord.SubmitImage(context.Background(), tt.asset, tt.methods, &recordingObserver{}, &recordingNotifier{})

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, backend.ImageCalls())
		})
	}
}

func newVideoCoordinator(backend *fakeBackend, clock Clock, guard *FrameGuard) *Coordinator {
	poller := NewPoller(backend, PollerOptions{Interval: 4 * time.Second, Clock: clock})
	return NewCoordinator(backend, resolverFor("ormbg"), poller, CoordinatorOptions{Guard: guard})
}

func TestSubmitVideo_ProgressThenComplete(t *testing.T) {
	// Setup
	backend := &fakeBackend{steps: []statusStep{
		processing(10, "Starting"),
		processing(55, "Processing frames"),
		complete("webm"),
	}}
	clock := newFakeClock()
	coord := newVideoCoordinator(backend, clock, nil)
	obs := &recordingObserver{}
	notifier := &recordingNotifier{}

	// Test
	status, err := coord.SubmitVideo(context.Background(), videoAsset(), "ormbg", obs, notifier)

	// Verify
	require.NoError(t, err)
	assert.Equal(t, models.JobComplete, status.State)
	assert.Equal(t, float64(100), status.Progress)
	assert.Equal(t, "job-1", obs.jobID)
	assert.Equal(t, []float64{10, 55, 100}, obs.progress)
	assert.Equal(t, []string{"Starting", "Processing frames"}, obs.messages)
	require.NotNil(t, obs.completed)
	assert.Equal(t, "video/webm", obs.completed.ContentType)
	assert.Equal(t, []time.Duration{4 * time.Second, 4 * time.Second}, clock.Waits())
	assert.Equal(t, 3, backend.statusCalls)
	assert.Empty(t, notifier.All())
}

func TestSubmitVideo_GuardRejectsWithoutRequest(t *testing.T) {
	tests := []struct {
		name    string
		prober  fixedProber
		message string
	}{
		{
			name:    "too long",
			prober:  fixedProber{seconds: 11},
			message: "Video too long (264 estimated frames). Maximum allowed: 250 frames.",
		},
		{
			name:    "unreadable",
			prober:  fixedProber{err: errors.New("moov atom not found")},
			message: "Invalid video. Please select another video file.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			backend := &fakeBackend{}
			guard := &FrameGuard{MaxFrames: 250, FPS: 24, Prober: tt.prober}
			coord := newVideoCoordinator(backend, newFakeClock(), guard)
			obs := &recordingObserver{}
			notifier := &recordingNotifier{}

			// Test
			_, err := coord.SubmitVideo(context.Background(), videoAsset(), "ormbg", obs, notifier)

			// Verify
			assert.Error(t, err)
			assert.Equal(t, 0, backend.videoCalls)
			assert.Equal(t, 0, backend.statusCalls)
			notices := notifier.All()
			require.Len(t, notices, 1)
			assert.Equal(t, tt.message, notices[0].message)
			assert.Equal(t, []string{tt.message}, obs.failed)
		})
	}
}

func TestSubmitVideo_GuardAcceptsShortVideo(t *testing.T) {
	backend := &fakeBackend{steps: []statusStep{complete("webm")}}
	guard := &FrameGuard{MaxFrames: 250, FPS: 24, Prober: fixedProber{seconds: 10}}
	coord := newVideoCoordinator(backend, newFakeClock(), guard)

	status, err := coord.SubmitVideo(context.Background(), videoAsset(), "ormbg", &recordingObserver{}, &recordingNotifier{})

	require.NoError(t, err)
	assert.Equal(t, models.JobComplete, status.State)
	assert.Equal(t, 1, backend.videoCalls)
}

func TestSubmitVideo_UploadFailure(t *testing.T) {
	// Setup
	backend := &fakeBackend{submitErr: errors.New("502 bad gateway")}
	coord := newVideoCoordinator(backend, newFakeClock(), nil)
	obs := &recordingObserver{}
	notifier := &recordingNotifier{}

	// Test
	status, err := coord.SubmitVideo(context.Background(), videoAsset(), "ormbg", obs, notifier)

	// Verify
	assert.Error(t, err)
	assert.Equal(t, models.JobError, status.State)
	assert.Equal(t, 0, backend.statusCalls)
	assert.Len(t, notifier.All(), 1)
	assert.Len(t, obs.failed, 1)
}

func TestSubmitVideo_WrongKind(t *testing.T) {
	coord := newVideoCoordinator(&fakeBackend{}, newFakeClock(), nil)
	_, err := coord.SubmitVideo(context.Background(), imageAsset(), "ormbg", &recordingObserver{}, &recordingNotifier{})
	assert.ErrorIs(t, err, ErrWrongAssetKind)
}
