package authkit

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// Fields accepted by Register.
var registrationFields = map[string]bool{
	FieldUsername:  true,
	FieldEmail:     true,
	FieldPassword:  true,
	FieldFirstName: true,
	FieldLastName:  true,
	FieldPhone:     true,
}

const anonymizedEmailDomain = "@example.com"

// Accounts runs the account state machine stored in User.ActionToken.
type Accounts struct {
	store    UserStore
	config   Config
	hasher   PasswordHasher
	notifier Notifier
	links    LinkBuilder
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewAccounts returns an Accounts with bcrypt hashing, the template
// notifier and relative links.
func NewAccounts(store UserStore, config Config) *Accounts {
	logger := defaultLogger()
	return &Accounts{
		store:    store,
		config:   config,
		hasher:   NewBcryptHasher(0),
		notifier: NewTemplateNotifier(nil).WithLogger(logger),
		links:    NewLinkBuilder(""),
		activity: noopActivitySink{},
		logger:   logger,
		now:      time.Now,
	}
}

func (a *Accounts) WithHasher(hasher PasswordHasher) *Accounts {
	if hasher != nil {
		a.hasher = hasher
	}
	return a
}

func (a *Accounts) WithNotifier(notifier Notifier) *Accounts {
	if notifier != nil {
		a.notifier = notifier
	}
	return a
}

func (a *Accounts) WithLinkBuilder(links LinkBuilder) *Accounts {
	if links != nil {
		a.links = links
	}
	return a
}

func (a *Accounts) WithActivitySink(sink ActivitySink) *Accounts {
	a.activity = normalizeActivitySink(sink)
	return a
}

func (a *Accounts) WithLogger(logger Logger) *Accounts {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// Hasher returns the configured password hasher.
func (a *Accounts) Hasher() PasswordHasher {
	return a.hasher
}

// RegisterOption customizes Register.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	useHashid bool
	silent    bool
}

// UseHashid derives the user id from the email address.
func UseHashid() RegisterOption {
	return func(o *registerOptions) {
		o.useHashid = true
	}
}

// WithoutNotification skips the verify_email message.
func WithoutNotification() RegisterOption {
	return func(o *registerOptions) {
		o.silent = true
	}
}

// RegisterResult is returned by Register. Nonce and Link are empty when
// email confirmation is disabled.
type RegisterResult struct {
	User  *User
	Nonce string
	Link  string
}

// Register creates a user. With email confirmation enabled the user starts
// with a pending-registration token and receives a verify_email message.
func (a *Accounts) Register(ctx context.Context, fields Fields, opts ...RegisterOption) (*RegisterResult, error) {
	options := registerOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	errs := FieldErrors{}
	for key := range fields {
		if !registrationFields[key] {
			errs[key] = MessageInvalid
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	password, _ := fields[FieldPassword].(string)
	if password == "" {
		return nil, FieldErrors{FieldPassword: MessageRequired}
	}

	user := &User{}
	user.Apply(fields)
	prepareUserDefaults(user)

	if options.useHashid && user.Email != "" {
		id, err := hashid.NewUUID(user.Email)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive user id")
		}
		user.ID = id
	}

	hash, err := a.hasher.Hash(password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	user.PasswordHash = hash

	result := &RegisterResult{}
	if a.requireConfirmation() {
		token, err := MintActionToken(KindPendingRegistration)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint action token")
		}
		user.ActionToken = token.String()
		result.Nonce = token.Nonce()
	}

	created, err := a.store.Insert(ctx, user)
	if err != nil {
		return nil, err
	}
	result.User = created

	a.record(ctx, ActivityEvent{
		EventType: ActivityEventRegistered,
		UserID:    created.ID.String(),
		ToKind:    created.Token().Kind,
	})

	if result.Nonce != "" {
		result.Link = a.link("verify_email", result.Nonce)
		if !options.silent {
			a.notify(ctx, TemplateVerifyEmail, created, map[string]any{"link": result.Link})
		}
	}

	return result, nil
}

// Login checks a local password. Account state is checked before the
// password so that pending and blocked accounts report their state.
func (a *Accounts) Login(ctx context.Context, identifier, secret string) (*User, error) {
	user, err := a.store.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			a.loginFailed(ctx, "", "unknown_user")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := CheckAccountState(user); err != nil {
		a.loginFailed(ctx, user.ID.String(), string(user.Token().Kind))
		return nil, err
	}

	if !a.hasher.Verify(secret, user.PasswordHash) {
		a.loginFailed(ctx, user.ID.String(), "password_mismatch")
		return nil, ErrInvalidCredentials
	}

	a.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    user.ID.String(),
	})

	return user, nil
}

// CheckAccountState returns the login error for the user's token, if any.
func CheckAccountState(user *User) error {
	switch user.Token().Kind {
	case KindPendingRegistration:
		return ErrRegistrationPending
	case KindAccountBlocked:
		return ErrAccountBlocked
	case KindGDPRUnsubscribed:
		return ErrInvalidCredentials
	}
	return nil
}

// VerifyEmail consumes a pending nonce and reports whether exactly one
// account was updated.
func (a *Accounts) VerifyEmail(ctx context.Context, nonce string) (bool, error) {
	if strings.TrimSpace(nonce) == "" {
		return false, nil
	}

	ids, err := a.store.UpdateByActionToken(ctx, pendingTokens(nonce), Fields{
		FieldActionToken: nil,
	})
	if err != nil {
		return false, err
	}

	if len(ids) == 1 {
		a.record(ctx, ActivityEvent{
			EventType: ActivityEventEmailVerified,
			UserID:    ids[0].String(),
			ToKind:    KindNone,
		})
	}

	return len(ids) == 1, nil
}

// ResetRequest is returned by RequestPasswordReset.
type ResetRequest struct {
	User  *User
	Nonce string
	Link  string
}

// RequestPasswordReset replaces the user's token with a new reset nonce,
// invalidating any link sent before. Unknown, blocked and unsubscribed
// accounts all fail with ErrUserNotFound.
func (a *Accounts) RequestPasswordReset(ctx context.Context, identifier string) (*ResetRequest, error) {
	user, err := a.store.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}

	from := user.Token()
	if from.IsBlocked() || from.IsGDPRUnsubscribed() {
		return nil, ErrUserNotFound
	}

	token, err := MintActionToken(KindResetPasswordRequest)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mint action token")
	}

	if err := a.store.UpdateByID(ctx, user.ID, Fields{
		FieldActionToken: token.String(),
	}, SkipValidation()); err != nil {
		return nil, err
	}
	user.ActionToken = token.String()

	req := &ResetRequest{
		User:  user,
		Nonce: token.Nonce(),
		Link:  a.link("api/reset_password", token.Nonce()),
	}

	a.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordResetRequested,
		UserID:    user.ID.String(),
		FromKind:  from.Kind,
		ToKind:    KindResetPasswordRequest,
	})

	a.notify(ctx, TemplateResetPassword, user, map[string]any{"link": req.Link})

	return req, nil
}

// ResetPassword sets a new password for the account holding nonce and clears
// its token in the same statement.
func (a *Accounts) ResetPassword(ctx context.Context, nonce, newSecret string) error {
	if newSecret == "" {
		return FieldErrors{FieldPassword: MessageRequired}
	}

	if strings.TrimSpace(nonce) == "" {
		return ErrTokenExpiredOrInvalid
	}

	hash, err := a.hasher.Hash(newSecret)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	ids, err := a.store.UpdateByActionToken(ctx, pendingTokens(nonce), Fields{
		FieldPasswordHash: hash,
		FieldActionToken:  nil,
	})
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		return ErrTokenExpiredOrInvalid
	}

	for _, id := range ids {
		a.record(ctx, ActivityEvent{
			EventType: ActivityEventPasswordResetSuccess,
			UserID:    id.String(),
			ToKind:    KindNone,
		})
	}

	return nil
}

// CheckOption customizes credential checks on account changes.
type CheckOption func(*checkOptions)

type checkOptions struct {
	skip bool
}

// SkipCredentialCheck disables the current password check, for admin flows.
func SkipCredentialCheck() CheckOption {
	return func(o *checkOptions) {
		o.skip = true
	}
}

func (a *Accounts) checkSecret(user *User, secret string, opts []CheckOption) error {
	options := checkOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.skip {
		return nil
	}
	if !a.hasher.Verify(secret, user.PasswordHash) {
		return FieldErrors{FieldPassword: MessageInvalid}
	}
	return nil
}

// ChangePassword replaces the password after checking the current one.
func (a *Accounts) ChangePassword(ctx context.Context, user *User, newSecret, oldSecret string, opts ...CheckOption) error {
	if user == nil {
		return ErrUnauthorized
	}

	if err := a.checkSecret(user, oldSecret, opts); err != nil {
		return err
	}

	if newSecret == "" {
		return FieldErrors{FieldPassword: MessageRequired}
	}

	hash, err := a.hasher.Hash(newSecret)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	if err := a.store.UpdateByID(ctx, user.ID, Fields{FieldPasswordHash: hash}); err != nil {
		return err
	}
	user.PasswordHash = hash

	a.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		UserID:    user.ID.String(),
	})

	return nil
}

// ChangeEmail replaces the email after checking the current password. The
// new address is validated for format and uniqueness.
func (a *Accounts) ChangeEmail(ctx context.Context, user *User, newEmail, oldSecret string, opts ...CheckOption) error {
	if user == nil {
		return ErrUnauthorized
	}

	if err := a.checkSecret(user, oldSecret, opts); err != nil {
		return err
	}

	if err := a.store.UpdateByID(ctx, user.ID, Fields{FieldEmail: newEmail}); err != nil {
		return err
	}
	user.Email = strings.ToLower(strings.TrimSpace(newEmail))

	a.record(ctx, ActivityEvent{
		EventType: ActivityEventEmailChanged,
		UserID:    user.ID.String(),
	})

	return nil
}

// UpdateProfile writes profile fields. If any field is unknown or not
// writable nothing is written and each offending field is reported.
func (a *Accounts) UpdateProfile(ctx context.Context, user *User, fields Fields) error {
	if user == nil {
		return ErrUnauthorized
	}

	errs := FieldErrors{}
	for key := range fields {
		spec, ok := LookupField(key)
		if !ok || !spec.Writable {
			errs[key] = MessageInvalid
		}
	}
	if len(errs) > 0 {
		return errs
	}

	if len(fields) == 0 {
		return nil
	}

	if err := a.store.UpdateByID(ctx, user.ID, fields); err != nil {
		return err
	}
	user.Apply(NormalizeFields(fields))

	a.record(ctx, ActivityEvent{
		EventType: ActivityEventProfileUpdated,
		UserID:    user.ID.String(),
	})

	return nil
}

// AnonymizedEmail is the address an unsubscribed email is replaced with.
func AnonymizedEmail(email string) string {
	sum := sha1.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:]) + anonymizedEmailDomain
}

// placeholderEmail keeps the anonymized digest and adds the account id, for
// addresses whose anonymized form is already held by an earlier account.
func placeholderEmail(anonymized string, id uuid.UUID) string {
	return strings.TrimSuffix(anonymized, anonymizedEmailDomain) + "+" + id.String() + anonymizedEmailDomain
}

// GDPRUnsubscribe anonymizes the account and sends the unsubscribe message
// to the original address. Unsubscribed accounts are left untouched.
func (a *Accounts) GDPRUnsubscribe(ctx context.Context, user *User) error {
	if user == nil {
		return ErrUnauthorized
	}

	from := user.Token()
	if from.IsGDPRUnsubscribed() {
		return nil
	}

	original := *user

	anonymized := AnonymizedEmail(user.Email)
	taken, err := a.store.CountByField(ctx, FieldEmail, anonymized)
	if err != nil {
		return err
	}
	if taken > 0 {
		anonymized = placeholderEmail(anonymized, user.ID)
	}

	fields := Fields{
		FieldEmail:        anonymized,
		FieldPasswordHash: "",
		FieldFirstName:    "",
		FieldLastName:     "",
		FieldPhone:        "",
		FieldSSOID:        nil,
		FieldActionToken:  GDPRUnsubscribedToken().String(),
	}

	err = a.store.UpdateByID(ctx, user.ID, fields, SkipValidation())
	if IsDuplicateColumn(err, FieldEmail) {
		// an earlier account with the same address was anonymized concurrently
		fields[FieldEmail] = placeholderEmail(AnonymizedEmail(user.Email), user.ID)
		err = a.store.UpdateByID(ctx, user.ID, fields, SkipValidation())
	}
	if err != nil {
		return err
	}
	user.Apply(NormalizeFields(fields))

	a.record(ctx, ActivityEvent{
		EventType: ActivityEventUnsubscribed,
		UserID:    user.ID.String(),
		FromKind:  from.Kind,
		ToKind:    KindGDPRUnsubscribed,
	})

	a.notify(ctx, TemplateUnsubscribe, &original, nil)

	return nil
}

// IsGDPRUnsubscribed reports whether email belongs to an anonymized account.
func (a *Accounts) IsGDPRUnsubscribed(ctx context.Context, email string) (bool, error) {
	n, err := a.store.CountByField(ctx, FieldEmail, AnonymizedEmail(email))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Block stores an account-blocked token, replacing any pending action.
func (a *Accounts) Block(ctx context.Context, id uuid.UUID, reason string) error {
	user, err := a.store.FindByID(ctx, id)
	if err != nil {
		return err
	}

	from := user.Token()
	if from.IsGDPRUnsubscribed() {
		return ErrUserNotFound
	}

	if err := a.store.UpdateByID(ctx, id, Fields{
		FieldActionToken: BlockedToken(reason).String(),
	}, SkipValidation()); err != nil {
		return err
	}

	a.record(ctx, ActivityEvent{
		EventType: ActivityEventBlocked,
		UserID:    id.String(),
		FromKind:  from.Kind,
		ToKind:    KindAccountBlocked,
		Metadata:  map[string]any{"reason": reason},
	})

	return nil
}

// Unblock clears an account-blocked token. Other tokens are left as is.
func (a *Accounts) Unblock(ctx context.Context, id uuid.UUID) error {
	user, err := a.store.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if !user.Token().IsBlocked() {
		return nil
	}

	if err := a.store.UpdateByID(ctx, id, Fields{
		FieldActionToken: nil,
	}, SkipValidation()); err != nil {
		return err
	}

	a.record(ctx, ActivityEvent{
		EventType: ActivityEventUnblocked,
		UserID:    id.String(),
		FromKind:  KindAccountBlocked,
		ToKind:    KindNone,
	})

	return nil
}

func (a *Accounts) requireConfirmation() bool {
	if a.config == nil {
		return true
	}
	return a.config.GetRequireEmailConfirmation()
}

func (a *Accounts) route() string {
	if a.config == nil {
		return ""
	}
	return a.config.GetRoute()
}

func (a *Accounts) link(path, nonce string) string {
	return a.links.Build(a.route()+path, url.Values{"token": {nonce}})
}

// notify never fails the caller, the transition is already committed.
func (a *Accounts) notify(ctx context.Context, template string, user *User, params map[string]any) {
	if a.notifier == nil {
		return
	}

	send := func(ctx context.Context) {
		if err := a.notifier.Send(ctx, template, user, params); err != nil {
			a.logger.Error("notification failed", "template", template, "user_id", user.ID.String(), "error", err)
		}
	}

	if a.config != nil && a.config.GetAsyncNotifications() {
		go send(context.WithoutCancel(ctx))
		return
	}
	send(ctx)
}

func (a *Accounts) loginFailed(ctx context.Context, userID, reason string) {
	a.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		UserID:    userID,
		Metadata:  map[string]any{"reason": reason},
	})
}

func (a *Accounts) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = a.now()
	}
	if err := a.activity.Record(ctx, event); err != nil {
		a.logger.Warn("activity sink failed", "event", string(event.EventType), "error", err)
	}
}
