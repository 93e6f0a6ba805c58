package models

type AssetKind string
type JobState string
type NotificationLevel string

const (
	// KindImage is any asset whose MIME type starts with image/
	KindImage AssetKind = "image"

	// KindVideo is any asset whose MIME type starts with video/
	KindVideo AssetKind = "video"
)

const (
	// JobProcessing indicates the back-end is still working on the video
	JobProcessing JobState = "processing"

	// JobComplete indicates the processed video payload has been received
	JobComplete JobState = "complete"

	// JobError indicates the job failed or its status could not be fetched
	JobError JobState = "error"
)

const (
	LevelError NotificationLevel = "error"
	LevelInfo  NotificationLevel = "info"
)

// Terminal reports whether polling must stop in this state.
func (s JobState) Terminal() bool {
	return s == JobComplete || s == JobError
}
