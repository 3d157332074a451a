package authkit

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventRegistered             ActivityEventType = "auth.user.registered"
	ActivityEventEmailVerified          ActivityEventType = "auth.email.verified"
	ActivityEventLoginSuccess           ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure           ActivityEventType = "auth.login.failure"
	ActivityEventPasswordResetRequested ActivityEventType = "auth.password.reset_requested"
	ActivityEventPasswordResetSuccess   ActivityEventType = "auth.password.reset"
	ActivityEventPasswordChanged        ActivityEventType = "auth.password.changed"
	ActivityEventEmailChanged           ActivityEventType = "auth.email.changed"
	ActivityEventProfileUpdated         ActivityEventType = "auth.profile.updated"
	ActivityEventUnsubscribed           ActivityEventType = "auth.user.unsubscribed"
	ActivityEventBlocked                ActivityEventType = "auth.user.blocked"
	ActivityEventUnblocked              ActivityEventType = "auth.user.unblocked"
	ActivityEventSSOReconciled          ActivityEventType = "auth.sso.reconciled"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	FromKind   TokenKind
	ToKind     TokenKind
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
