package authkit

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Logger is the structured logger used across the package. Arguments after
// the message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Session is the external session storage. The engine only ever stores a
// SessionUser under SessionUserKey.
type Session interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// Config holds auth options
type Config interface {
	// GetRoute is the prefix the host mounts Dispatch under, e.g. "auth/".
	GetRoute() string
	GetRequireEmailConfirmation() bool
	GetAsyncNotifications() bool
	// GetSSOEmailDomain is used to synthesize emails for SSO identities
	// that do not carry one.
	GetSSOEmailDomain() string
	GetLocalLoginFallback() bool
}

// UserStore persists user records. Implementations must enforce uniqueness
// of username, email and sso_id, lower-case username and email on write and
// report validation failures as FieldErrors.
type UserStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)
	FindBySSOID(ctx context.Context, ssoID string) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	Insert(ctx context.Context, user *User, opts ...WriteOption) (*User, error)
	UpdateByID(ctx context.Context, id uuid.UUID, fields Fields, opts ...WriteOption) error
	// UpdateByActionToken applies fields to every row whose action_token is
	// one of tokens, in a single statement, and returns the ids of the
	// updated rows.
	UpdateByActionToken(ctx context.Context, tokens []string, fields Fields) ([]uuid.UUID, error)
	CountByField(ctx context.Context, field, value string) (int, error)
}

// Notifier delivers a named message template to a user.
type Notifier interface {
	Send(ctx context.Context, template string, recipient *User, params map[string]any) error
}

// LinkBuilder produces absolute URLs for links embedded in notifications.
type LinkBuilder interface {
	Build(path string, query url.Values) string
}

// WriteOption customizes a single store write.
type WriteOption func(*WriteOptions)

// WriteOptions is the resolved set of write options.
type WriteOptions struct {
	SkipValidation bool
}

// SkipValidation bypasses field rules. Used for writes whose values come from
// the engine itself (anonymization, SSO reconciliation).
func SkipValidation() WriteOption {
	return func(o *WriteOptions) {
		o.SkipValidation = true
	}
}

// ResolveWriteOptions applies opts over the defaults.
func ResolveWriteOptions(opts ...WriteOption) WriteOptions {
	options := WriteOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// Params carries query or body values of an Intent.
type Params map[string]any

// String returns the value under key as a trimmed string, or "".
func (p Params) String(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case []string:
		if len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
	}
	return ""
}

// Raw returns the untrimmed value under key.
func (p Params) Raw(key string) string {
	if p == nil {
		return ""
	}
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}
