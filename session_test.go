package authkit

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSessionUserID(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name  string
		value any
		ok    bool
	}{
		{name: "struct", value: SessionUser{ID: id.String()}, ok: true},
		{name: "pointer", value: &SessionUser{ID: id.String()}, ok: true},
		{name: "map any", value: map[string]any{"id": id.String()}, ok: true},
		{name: "map string", value: map[string]string{"id": id.String()}, ok: true},
		{name: "extra keys", value: map[string]any{"id": id.String(), "role": "admin"}, ok: false},
		{name: "non string id", value: map[string]any{"id": 42}, ok: false},
		{name: "wrong key", value: map[string]string{"uid": id.String()}, ok: false},
		{name: "bad uuid", value: SessionUser{ID: "nope"}, ok: false},
		{name: "nil uuid", value: SessionUser{ID: uuid.Nil.String()}, ok: false},
		{name: "nil pointer", value: (*SessionUser)(nil), ok: false},
		{name: "string", value: id.String(), ok: false},
		{name: "nil", value: nil, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := sessionUserID(tt.value)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, id, got)
			}
		})
	}
}

func TestSessionHelpers(t *testing.T) {
	session := newMemorySession()
	user := &User{ID: uuid.New()}

	_, ok := SessionUserID(session)
	assert.False(t, ok)

	setSessionUser(session, user)
	got, ok := SessionUserID(session)
	assert.True(t, ok)
	assert.Equal(t, user.ID, got)

	clearSessionUser(session)
	_, ok = SessionUserID(session)
	assert.False(t, ok)

	_, ok = SessionUserID(nil)
	assert.False(t, ok)
}
