package dtos

import (
	"time"

	"github.com/bgbye/bgbye/internal/domain/models"
)

// AssetDTO describes the file loaded into a session
type AssetDTO struct {
	// Original filename
	Filename string `json:"filename"`

	// MIME type of the upload
	ContentType string `json:"contentType"`

	// Kind is image or video
	Kind models.AssetKind `json:"kind"`

	// Size in bytes
	Size int64 `json:"size"`

	// Handle of the original in the payload store
	Handle string `json:"handle"`
}

// ResultDTO is the settled result of one method
type ResultDTO struct {
	Method      models.Method `json:"method"`
	Handle      string        `json:"handle,omitempty"`
	ContentType string        `json:"contentType,omitempty"`
	Size        int64         `json:"size,omitempty"`
	Error       string        `json:"error,omitempty"`
	SettledAt   time.Time     `json:"settledAt"`
}

// VideoJobDTO reports the progress of a video job
type VideoJobDTO struct {
	Method   models.Method   `json:"method"`
	JobID    string          `json:"jobId,omitempty"`
	State    models.JobState `json:"state"`
	Progress float64         `json:"progress"`
	Message  string          `json:"message,omitempty"`
}

// NotificationDTO is a live user-visible message
type NotificationDTO struct {
	ID        string                   `json:"id"`
	Method    models.Method            `json:"method,omitempty"`
	Level     models.NotificationLevel `json:"level"`
	Message   string                   `json:"message"`
	ExpiresAt time.Time                `json:"expiresAt"`
}

// SessionDTO represents an upload slot for API responses
type SessionDTO struct {
	// Unique identifier for the session
	ID string `json:"id"`

	// Asset currently loaded, absent before the first upload
	Asset *AssetDTO `json:"asset,omitempty"`

	// Generation increments with every new asset
	Generation int64 `json:"generation"`

	// Selected methods of the last submission
	Selected []models.Method `json:"selected"`

	// Processing flags per method
	Processing map[models.Method]bool `json:"processing"`

	// Results per settled method
	Results map[models.Method]ResultDTO `json:"results"`

	// ActiveMethod is the result currently displayed
	ActiveMethod models.Method `json:"activeMethod,omitempty"`

	// Video job state for video assets
	Video *VideoJobDTO `json:"video,omitempty"`

	// Notifications that have not yet been dismissed
	Notifications []NotificationDTO `json:"notifications"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MethodDTO describes a registered method
type MethodDTO struct {
	Name        models.Method `json:"name"`
	DisplayName string        `json:"displayName"`
	ShortName   string        `json:"shortName"`
	SourceURL   string        `json:"sourceUrl"`

	// Available is false when no back-end URL is configured
	Available bool `json:"available"`

	// Default marks methods selected when a submission names none
	Default bool `json:"default"`
}

// SelectMethodDTO names a single method
type SelectMethodDTO struct {
	Method string `json:"method" validate:"required,method"`
}

// StartImageDTO names the methods to run against the current image
type StartImageDTO struct {
	Methods []string `json:"methods" validate:"omitempty,dive,method"`
}

// ThemeDTO is the persisted theme flag
type ThemeDTO struct {
	DarkMode bool `json:"darkMode"`
}
