package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bgbye/bgbye/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoller_ErrorStatusStops(t *testing.T) {
	// Setup
	backend := &fakeBackend{steps: []statusStep{
		processing(20, ""),
		jobError("Video not found"),
		complete("never reached"),
	}}
	clock := newFakeClock()
	poller := NewPoller(backend, PollerOptions{Interval: 4 * time.Second, Clock: clock})
	obs := &recordingObserver{}
	notifier := &recordingNotifier{}

	// Test
	status, err := poller.Run(context.Background(), Job{Method: "ormbg", ID: "job-1"}, obs, notifier)

	// Verify
	require.NoError(t, err)
	assert.Equal(t, models.JobError, status.State)
	assert.Equal(t, 2, backend.statusCalls)
	assert.Equal(t, []string{"Error: Video not found"}, obs.failed)
	assert.Nil(t, obs.completed)
	notices := notifier.All()
	require.Len(t, notices, 1)
	assert.Equal(t, "Error processing video: Video not found", notices[0].message)
	assert.Len(t, clock.Waits(), 1)
}

func TestPoller_TransportFailureIsTerminal(t *testing.T) {
	// Setup
	backend := &fakeBackend{steps: []statusStep{
		processing(40, ""),
		{err: errors.New("connection reset")},
		processing(80, ""),
	}}
	poller := NewPoller(backend, PollerOptions{Clock: newFakeClock()})
	obs := &recordingObserver{}
	notifier := &recordingNotifier{}

	// Test
	status, err := poller.Run(context.Background(), Job{Method: "ormbg", ID: "job-1"}, obs, notifier)

	// Verify
	require.NoError(t, err)
	assert.Equal(t, models.JobError, status.State)
	assert.Equal(t, 2, backend.statusCalls)
	assert.Equal(t, []float64{40}, obs.progress)
	notices := notifier.All()
	require.Len(t, notices, 1)
	assert.Equal(t, "Error: Failed to get status update", notices[0].message)
}

func TestPoller_PollsImmediately(t *testing.T) {
	backend := &fakeBackend{steps: []statusStep{complete("webm")}}
	clock := newFakeClock()
	poller := NewPoller(backend, PollerOptions{Clock: clock})

	status, err := poller.Run(context.Background(), Job{Method: "ormbg", ID: "job-1"}, &recordingObserver{}, &recordingNotifier{})

	require.NoError(t, err)
	assert.Equal(t, models.JobComplete, status.State)
	assert.Empty(t, clock.Waits())
}

type blockingClock struct{}

func (blockingClock) Now() time.Time                         { return time.Time{} }
func (blockingClock) After(d time.Duration) <-chan time.Time { return make(chan time.Time) }

func TestPoller_StopsOnCancel(t *testing.T) {
	// Setup
	backend := &fakeBackend{steps: []statusStep{processing(5, "")}}
	poller := NewPoller(backend, PollerOptions{Clock: blockingClock{}})
	ctx, cancel := context.WithCancel(context.Background())
	notifier := &recordingNotifier{}

	done := make(chan error, 1)
	go func() {
		_, err := poller.Run(ctx, Job{Method: "ormbg", ID: "job-1"}, &recordingObserver{}, notifier)
		done <- err
	}()

	// Test
	time.Sleep(10 * time.Millisecond)
	cancel()

	// Verify
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
	assert.Empty(t, notifier.All())
}

func TestNewPoller_Defaults(t *testing.T) {
	p := NewPoller(&fakeBackend{}, PollerOptions{})
	assert.Equal(t, 4*time.Second, p.interval)
	assert.NotNil(t, p.clock)
}
