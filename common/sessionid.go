package common

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// SessionID uniquely identifies one pipeline run (backup, restore, or verify).
// It names the session's log file.
type SessionID struct {
	id uuid.UUID
}

// NewSessionID generates a fresh random session identifier.
func NewSessionID() SessionID {
	return SessionID{id: uuid.New()}
}

func (s SessionID) String() string {
	return s.id.String()
}

func (s SessionID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.id.String() + `"`), nil
}

func (s *SessionID) UnmarshalJSON(b []byte) error {
	if len(b) < 2 {
		return errors.Errorf("invalid session id: %q", b)
	}
	parsed, err := uuid.Parse(string(b[1 : len(b)-1]))
	if err != nil {
		return errors.Wrap(err, "invalid session id")
	}
	s.id = parsed
	return nil
}

// ParseSessionID parses the canonical dashed hex representation.
func ParseSessionID(s string) (SessionID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return SessionID{}, errors.Wrap(err, "invalid session id")
	}
	return SessionID{id: id}, nil
}
