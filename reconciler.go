package authkit

import (
	"context"
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// ExternalIdentity is an identity asserted by an SSO backend.
type ExternalIdentity struct {
	SSOID     string
	Username  string
	Email     string
	FirstName string
	LastName  string
}

func (i ExternalIdentity) fields() Fields {
	return Fields{
		FieldUsername:  strings.ToLower(strings.TrimSpace(i.Username)),
		FieldEmail:     strings.ToLower(strings.TrimSpace(i.Email)),
		FieldFirstName: i.FirstName,
		FieldLastName:  i.LastName,
	}
}

// validate checks the fields written with validation skipped. SSO emails
// may use a bare host such as "localhost", so only the mailbox shape is
// checked.
func (i ExternalIdentity) validate() error {
	fields := i.fields()
	out := fieldErrorsFrom(validation.Errors{
		FieldUsername: validation.Validate(fields[FieldUsername],
			validation.Required.Error(MessageRequired),
			validation.Length(1, maxNameLength).Error(MessageInvalid),
			validation.By(noAtSign),
		),
		FieldEmail: validation.Validate(fields[FieldEmail],
			validation.Required.Error(MessageRequired),
			validation.By(mailbox),
		),
	})
	if out == nil {
		return nil
	}
	return out
}

func mailbox(value interface{}) error {
	s, _ := value.(string)
	local, domain, ok := strings.Cut(s, "@")
	if !ok || local == "" || domain == "" || strings.ContainsAny(domain, "@ ") || strings.Contains(local, " ") {
		return errors.New(MessageInvalid)
	}
	return nil
}

// Reconciler merges external identities into the local store.
type Reconciler struct {
	store    UserStore
	activity ActivitySink
	logger   Logger
}

// NewReconciler returns a Reconciler backed by store.
func NewReconciler(store UserStore) *Reconciler {
	return &Reconciler{
		store:    store,
		activity: noopActivitySink{},
		logger:   defaultLogger(),
	}
}

func (r *Reconciler) WithActivitySink(sink ActivitySink) *Reconciler {
	r.activity = normalizeActivitySink(sink)
	return r
}

func (r *Reconciler) WithLogger(logger Logger) *Reconciler {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// GetOrRegisterUser returns the user linked to identity.SSOID, updating
// fields that differ, or inserts a new one. A concurrent insert of the
// same sso_id makes the loser retry as lookup then update.
func (r *Reconciler) GetOrRegisterUser(ctx context.Context, identity ExternalIdentity) (*User, error) {
	if strings.TrimSpace(identity.SSOID) == "" {
		return nil, ErrMissingSSOID
	}
	if err := identity.validate(); err != nil {
		return nil, err
	}

	const attempts = 2
	var lastErr error
	for i := 0; i < attempts; i++ {
		user, err := r.reconcile(ctx, identity)
		if err == nil {
			return user, nil
		}
		if !IsDuplicateColumn(err, FieldSSOID) {
			return nil, err
		}
		r.logger.Debug("sso insert lost race, retrying", "sso_id", identity.SSOID)
		lastErr = err
	}
	return nil, lastErr
}

func (r *Reconciler) reconcile(ctx context.Context, identity ExternalIdentity) (*User, error) {
	existing, err := r.store.FindBySSOID(ctx, identity.SSOID)
	switch {
	case err == nil:
		return r.update(ctx, existing, identity)
	case errors.Is(err, ErrUserNotFound):
		return r.insert(ctx, identity)
	default:
		return nil, err
	}
}

func (r *Reconciler) update(ctx context.Context, user *User, identity ExternalIdentity) (*User, error) {
	changed := Fields{}
	for key, value := range identity.fields() {
		current, _ := user.Value(key)
		if current != value {
			changed[key] = value
		}
	}

	if len(changed) == 0 {
		return user, nil
	}

	if err := r.store.UpdateByID(ctx, user.ID, changed, SkipValidation()); err != nil {
		return nil, err
	}
	user.Apply(changed)

	r.record(ctx, user, "updated")
	return user, nil
}

func (r *Reconciler) insert(ctx context.Context, identity ExternalIdentity) (*User, error) {
	user := &User{SSOID: identity.SSOID}
	user.Apply(identity.fields())
	// no local password: the backend stays the only way in.
	user.PasswordHash = ""
	if backend, _, ok := strings.Cut(identity.SSOID, ":"); ok {
		user.AddMetadata(MetadataSSOBackend, backend)
	}

	created, err := r.store.Insert(ctx, user, SkipValidation())
	if err != nil {
		return nil, err
	}

	r.record(ctx, created, "created")
	return created, nil
}

func (r *Reconciler) record(ctx context.Context, user *User, action string) {
	err := r.activity.Record(ctx, ActivityEvent{
		EventType:  ActivityEventSSOReconciled,
		UserID:     user.ID.String(),
		Metadata:   map[string]any{"action": action, "sso_id": user.SSOID},
		OccurredAt: time.Now(),
	})
	if err != nil {
		r.logger.Warn("activity sink failed", "event", string(ActivityEventSSOReconciled), "error", err)
	}
}
