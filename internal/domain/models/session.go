package models

import (
	"time"
)

// SubmissionResult is the settled outcome of one method for the current asset.
type SubmissionResult struct {
	// Method that produced the result
	Method Method `json:"method"`

	// Handle of the processed payload, empty on failure
	Handle string `json:"handle,omitempty"`

	// ContentType of the processed payload
	ContentType string `json:"contentType,omitempty"`

	// Size of the processed payload in bytes
	Size int64 `json:"size,omitempty"`

	// Error is the failure marker; non-empty means the method failed
	Error string `json:"error,omitempty"`

	// SettledAt is when the request completed or failed
	SettledAt time.Time `json:"settledAt"`
}

// OK reports whether the result carries a usable payload.
func (r SubmissionResult) OK() bool {
	return r.Error == "" && r.Handle != ""
}

// JobStatus is one observation of a remote video job.
type JobStatus struct {
	State    JobState `json:"state"`
	Progress float64  `json:"progress"`
	Message  string   `json:"message,omitempty"`

	// Payload is set only when State is JobComplete
	Payload *Payload `json:"-"`
}

// VideoJob tracks the remote job created for a video asset.
type VideoJob struct {
	Method    Method    `json:"method"`
	JobID     string    `json:"jobId,omitempty"`
	State     JobState  `json:"state"`
	Progress  float64   `json:"progress"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Notification is a transient user-visible message.
type Notification struct {
	ID        string            `json:"id"`
	SessionID string            `json:"sessionId,omitempty"`
	Method    Method            `json:"method,omitempty"`
	Level     NotificationLevel `json:"level"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"createdAt"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// Active reports whether the notification is still visible at t.
func (n Notification) Active(t time.Time) bool {
	return t.Before(n.ExpiresAt)
}

// Session is a single upload slot: one asset and everything derived from it.
type Session struct {
	// Unique identifier for the session
	ID string `json:"id"`

	// Asset currently loaded in the slot, nil before the first upload
	Asset *Asset `json:"asset,omitempty"`

	// Generation increments with every new asset; late results carrying an
	// older generation are discarded
	Generation int64 `json:"generation"`

	// Selected is the method selection used for the last submission
	Selected []Method `json:"selected,omitempty"`

	// Results holds at most one settled result per method
	Results map[Method]SubmissionResult `json:"results"`

	// Processing is true for a method between dispatch and settle
	Processing map[Method]bool `json:"processing"`

	// ActiveMethod is the result currently displayed
	ActiveMethod Method `json:"activeMethod,omitempty"`

	// Video is set while or after a video asset was submitted
	Video *VideoJob `json:"video,omitempty"`

	// Notifications raised for this session, pruned once expired
	Notifications []Notification `json:"notifications,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewSession creates an empty slot.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:         id,
		Results:    make(map[Method]SubmissionResult),
		Processing: make(map[Method]bool),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Handles lists every payload handle the session references.
func (s *Session) Handles() []string {
	var out []string
	if s.Asset != nil && s.Asset.Handle != "" {
		out = append(out, s.Asset.Handle)
	}
	for _, r := range s.Results {
		if r.Handle != "" {
			out = append(out, r.Handle)
		}
	}
	return out
}

// Reset clears everything derived from the previous asset and installs the
// new one. The caller releases the handles returned beforehand.
func (s *Session) Reset(asset *Asset, now time.Time) {
	s.Asset = asset
	s.Generation++
	s.Selected = nil
	s.Results = make(map[Method]SubmissionResult)
	s.Processing = make(map[Method]bool)
	s.ActiveMethod = ""
	s.Video = nil
	s.UpdatedAt = now
}

// InFlight returns the methods currently marked as processing.
func (s *Session) InFlight() []Method {
	var out []Method
	for m, busy := range s.Processing {
		if busy {
			out = append(out, m)
		}
	}
	return out
}

// PruneNotifications drops notifications that expired before now.
func (s *Session) PruneNotifications(now time.Time) {
	kept := s.Notifications[:0]
	for _, n := range s.Notifications {
		if n.Active(now) {
			kept = append(kept, n)
		}
	}
	s.Notifications = kept
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Session) Clone() *Session {
	c := *s
	if s.Asset != nil {
		a := *s.Asset
		a.Data = nil
		c.Asset = &a
	}
	c.Selected = append([]Method(nil), s.Selected...)
	c.Results = make(map[Method]SubmissionResult, len(s.Results))
	for k, v := range s.Results {
		c.Results[k] = v
	}
	c.Processing = make(map[Method]bool, len(s.Processing))
	for k, v := range s.Processing {
		c.Processing[k] = v
	}
	if s.Video != nil {
		v := *s.Video
		c.Video = &v
	}
	c.Notifications = append([]Notification(nil), s.Notifications...)
	return &c
}
