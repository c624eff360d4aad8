package sqlite

import (
	"time"

	"github.com/zjrosen/refcheck/internal/checks/domain"
)

// sessionModel is a row of the sessions table. Times are Unix seconds.
type sessionModel struct {
	SessionID    string
	CheckID      int64
	RegisteredAt int64
}

func toSessionModel(b domain.SessionBinding) sessionModel {
	registered := b.RegisteredAt
	if registered.IsZero() {
		registered = time.Now()
	}
	return sessionModel{
		SessionID:    string(b.Session),
		CheckID:      int64(b.Check),
		RegisteredAt: registered.Unix(),
	}
}

func (m sessionModel) toDomain() domain.SessionBinding {
	return domain.SessionBinding{
		Session:      domain.SessionID(m.SessionID),
		Check:        domain.CheckID(m.CheckID),
		RegisteredAt: time.Unix(m.RegisteredAt, 0),
	}
}
