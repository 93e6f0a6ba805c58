package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bgbye/bgbye/internal/domain/models"
	"github.com/bgbye/bgbye/internal/storage"
	"github.com/bgbye/bgbye/pkg/utils"
)

// MemoryRepository implements the session, payload and preference stores in memory
type MemoryRepository struct {
	// Mutex for thread safety
	mu sync.RWMutex

	// Map of sessions by ID
	sessions map[string]*models.Session

	// Map of payloads by handle
	payloads map[string]*models.Payload

	// Preferences by key
	prefs map[string]string
}

var (
	_ storage.SessionRepository = (*MemoryRepository)(nil)
	_ storage.PayloadStore      = (*MemoryRepository)(nil)
	_ storage.PreferenceStore   = (*MemoryRepository)(nil)
)

// NewMemoryRepository creates a new in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*models.Session),
		payloads: make(map[string]*models.Payload),
		prefs:    make(map[string]string),
	}
}

// Save stores a new session
func (m *MemoryRepository) Save(ctx context.Context, session *models.Session) error {
	if session == nil {
		return fmt.Errorf("%w: session is nil", storage.ErrInvalidSessionData)
	}

	if session.ID == "" {
		return fmt.Errorf("%w: session ID is required", storage.ErrInvalidSessionData)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Store a deep copy to prevent external mutations
	m.sessions[session.ID] = session.Clone()

	return nil
}

// Get retrieves a session by ID
func (m *MemoryRepository) Get(ctx context.Context, id string) (*models.Session, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: session ID is required", storage.ErrInvalidSessionData)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, fmt.Errorf("%w: session with ID %s not found", storage.ErrSessionNotFound, id)
	}

	// Return a copy to prevent external mutations
	return session.Clone(), nil
}

// Update applies fn under the write lock
func (m *MemoryRepository) Update(ctx context.Context, id string, fn func(s *models.Session) error) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.sessions[id]
	if !exists {
		return nil, fmt.Errorf("%w: session with ID %s not found", storage.ErrSessionNotFound, id)
	}

	working := existing.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}

	m.sessions[id] = working.Clone()
	return working, nil
}

// List returns every session, newest first
func (m *MemoryRepository) List(ctx context.Context) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*models.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, s.Clone())
	}

	sortNewestFirst(result)
	return result, nil
}

// Delete removes a session
func (m *MemoryRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; !exists {
		return fmt.Errorf("%w: session with ID %s not found", storage.ErrSessionNotFound, id)
	}
	delete(m.sessions, id)
	return nil
}

// FindOlderThan returns sessions last updated before cutoff
func (m *MemoryRepository) FindOlderThan(ctx context.Context, cutoff time.Time) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*models.Session
	for _, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			result = append(result, s.Clone())
		}
	}
	return result, nil
}

// PutPayload stores a payload under a fresh handle
func (m *MemoryRepository) PutPayload(ctx context.Context, payload *models.Payload) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("payload is nil")
	}

	handle := utils.GenerateID()
	stored := *payload
	stored.Handle = handle
	stored.Data = append([]byte(nil), payload.Data...)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	m.payloads[handle] = &stored
	m.mu.Unlock()

	payload.Handle = handle
	return handle, nil
}

// GetPayload retrieves a payload by handle
func (m *MemoryRepository) GetPayload(ctx context.Context, handle string) (*models.Payload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, exists := m.payloads[handle]
	if !exists {
		return nil, fmt.Errorf("%w: %s", storage.ErrPayloadNotFound, handle)
	}
	out := *p
	return &out, nil
}

// ReleasePayloads frees payload handles
func (m *MemoryRepository) ReleasePayloads(ctx context.Context, handles ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, h := range handles {
		delete(m.payloads, h)
	}
	return nil
}

// CountPayloads returns the number of live payloads
func (m *MemoryRepository) CountPayloads(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.payloads), nil
}

// GetPreference returns a stored preference
func (m *MemoryRepository) GetPreference(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.prefs[key]
	return v, ok, nil
}

// SetPreference stores a preference
func (m *MemoryRepository) SetPreference(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[key] = value
	return nil
}

func sortNewestFirst(sessions []*models.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
}
