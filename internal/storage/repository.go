package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bgbye/bgbye/internal/domain/models"
)

// Common errors
var (
	// ErrSessionNotFound is returned when a session cannot be found
	ErrSessionNotFound = errors.New("session not found")

	// ErrPayloadNotFound is returned when a payload handle is unknown or released
	ErrPayloadNotFound = errors.New("payload not found")

	// ErrInvalidSessionData is returned when session data is invalid
	ErrInvalidSessionData = errors.New("invalid session data")

	// ErrConcurrentModification is returned when an optimistic update keeps losing races
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// SessionRepository stores upload slots.
type SessionRepository interface {
	// Save stores a new session
	Save(ctx context.Context, session *models.Session) error

	// Get retrieves a session by ID
	Get(ctx context.Context, id string) (*models.Session, error)

	// Update applies fn to the stored session atomically and returns the
	// result. When fn returns an error nothing is written.
	Update(ctx context.Context, id string, fn func(s *models.Session) error) (*models.Session, error)

	// List returns every session, newest first
	List(ctx context.Context) ([]*models.Session, error)

	// Delete removes a session
	Delete(ctx context.Context, id string) error

	// FindOlderThan returns sessions last updated before cutoff
	FindOlderThan(ctx context.Context, cutoff time.Time) ([]*models.Session, error)
}

// PayloadStore holds binary payloads addressed by handle. A handle stays
// valid until it is released.
type PayloadStore interface {
	// PutPayload stores the payload, assigns its handle and returns it
	PutPayload(ctx context.Context, payload *models.Payload) (string, error)

	// GetPayload retrieves a payload by handle
	GetPayload(ctx context.Context, handle string) (*models.Payload, error)

	// ReleasePayloads frees the given handles; unknown handles are ignored
	ReleasePayloads(ctx context.Context, handles ...string) error

	// CountPayloads returns the number of live payloads
	CountPayloads(ctx context.Context) (int, error)
}

// PreferenceStore persists small user preferences such as the theme flag.
type PreferenceStore interface {
	// GetPreference returns the value and whether it was set
	GetPreference(ctx context.Context, key string) (string, bool, error)

	// SetPreference stores a value
	SetPreference(ctx context.Context, key, value string) error
}
