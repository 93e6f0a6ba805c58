package processor

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/bgbye/bgbye/internal/domain/models"
)

// ErrUnreadableVideo is returned when the video duration cannot be determined.
var ErrUnreadableVideo = errors.New("unreadable video metadata")

const unreadableVideoMessage = "Invalid video. Please select another video file."

// VideoTooLongError rejects a video whose estimated frame count exceeds the limit.
type VideoTooLongError struct {
	Frames int
	Max    int
}

func (e *VideoTooLongError) Error() string {
	return fmt.Sprintf("video too long: %d estimated frames, maximum %d", e.Frames, e.Max)
}

// EstimateFrames converts a duration into a frame count at the given rate, rounding up.
func EstimateFrames(seconds, fps float64) int {
	return int(math.Ceil(seconds * fps))
}

// FrameGuard rejects overlong videos locally, before any upload.
type FrameGuard struct {
	MaxFrames int
	FPS       float64
	Prober    DurationProber
}

// Check returns nil when the asset may be submitted.
func (g *FrameGuard) Check(ctx context.Context, asset *models.Asset) error {
	seconds, err := g.Prober.Duration(ctx, asset)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return fmt.Errorf("%w (%v)", ErrUnreadableVideo, err)
	}
	if frames := EstimateFrames(seconds, g.FPS); frames > g.MaxFrames {
		return &VideoTooLongError{Frames: frames, Max: g.MaxFrames}
	}
	return nil
}

// guardMessage is the user-facing text for a guard rejection.
func guardMessage(err error) string {
	var tooLong *VideoTooLongError
	if errors.As(err, &tooLong) {
		return fmt.Sprintf("Video too long (%d estimated frames). Maximum allowed: %d frames.", tooLong.Frames, tooLong.Max)
	}
	return unreadableVideoMessage
}
