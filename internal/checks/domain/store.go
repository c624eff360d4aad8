package domain

import "time"

// SessionBinding is a persisted session → check mapping for a job that was
// still running when it was recorded.
type SessionBinding struct {
	Session      SessionID
	Check        CheckID
	RegisteredAt time.Time
}

// SessionStore persists the client state needed to rediscover running jobs
// after a restart. Implementations may use SQLite or memory.
type SessionStore interface {
	// SaveSession records a running job. Saving an existing session id
	// replaces its check id.
	SaveSession(b SessionBinding) error

	// DeleteSession forgets a session. Unknown ids are not an error.
	DeleteSession(session SessionID) error

	// ListSessions returns all recorded bindings, oldest first.
	ListSessions() ([]SessionBinding, error)

	// SetSelected remembers the selected check id.
	SetSelected(id CheckID) error

	// Selected returns the remembered selection, or DraftID if none.
	Selected() (CheckID, error)

	// Close releases any resources held by the store.
	Close() error
}
