package authkit

import (
	"github.com/google/uuid"
)

// SessionUserKey is the session key holding the logged in user.
const SessionUserKey = "user"

// SessionUser is the only value the engine stores in a session.
type SessionUser struct {
	ID string `json:"id"`
}

// sessionUserID extracts a user id from a session value. Only {id} shaped
// values are accepted; anything else is treated as anonymous.
func sessionUserID(value any) (uuid.UUID, bool) {
	var raw string
	switch v := value.(type) {
	case SessionUser:
		raw = v.ID
	case *SessionUser:
		if v == nil {
			return uuid.Nil, false
		}
		raw = v.ID
	case map[string]any:
		if len(v) != 1 {
			return uuid.Nil, false
		}
		s, ok := v["id"].(string)
		if !ok {
			return uuid.Nil, false
		}
		raw = s
	case map[string]string:
		if len(v) != 1 {
			return uuid.Nil, false
		}
		s, ok := v["id"]
		if !ok {
			return uuid.Nil, false
		}
		raw = s
	default:
		return uuid.Nil, false
	}

	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// SessionUserID returns the id stored in the session, if any.
func SessionUserID(session Session) (uuid.UUID, bool) {
	if session == nil {
		return uuid.Nil, false
	}
	value, ok := session.Get(SessionUserKey)
	if !ok {
		return uuid.Nil, false
	}
	return sessionUserID(value)
}

func setSessionUser(session Session, user *User) {
	if session == nil {
		return
	}
	if user == nil {
		session.Set(SessionUserKey, nil)
		return
	}
	session.Set(SessionUserKey, SessionUser{ID: user.ID.String()})
}

func clearSessionUser(session Session) {
	setSessionUser(session, nil)
}
