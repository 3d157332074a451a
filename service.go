package authkit

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Intent is a single request handed to Dispatch by the host router.
type Intent struct {
	Path    string
	Method  string
	Query   Params
	Body    Params
	Session Session
}

var apiPaths = map[string]bool{
	"api/register":               true,
	"api/login":                  true,
	"api/logout":                 true,
	"api/profile":                true,
	"api/request_reset_password": true,
	"api/reset_password":         true,
	"api/change_password":        true,
	"api/change_email":           true,
	"api/update_profile":         true,
	"api/unsubscribe":            true,
}

// Service maps intents onto the account lifecycle, the reconciler and the
// plugin registry.
type Service struct {
	store      UserStore
	config     Config
	accounts   *Accounts
	reconciler *Reconciler
	plugins    *PluginRegistry
	logger     Logger
}

func NewService(store UserStore, config Config) *Service {
	return &Service{
		store:      store,
		config:     config,
		accounts:   NewAccounts(store, config),
		reconciler: NewReconciler(store),
		plugins:    NewPluginRegistry(),
		logger:     defaultLogger(),
	}
}

func (s *Service) WithLogger(logger Logger) *Service {
	if logger != nil {
		s.logger = logger
		s.accounts.WithLogger(logger)
		s.reconciler.WithLogger(logger)
	}
	return s
}

func (s *Service) WithHasher(hasher PasswordHasher) *Service {
	s.accounts.WithHasher(hasher)
	return s
}

func (s *Service) WithNotifier(notifier Notifier) *Service {
	s.accounts.WithNotifier(notifier)
	return s
}

func (s *Service) WithLinkBuilder(links LinkBuilder) *Service {
	s.accounts.WithLinkBuilder(links)
	return s
}

func (s *Service) WithActivitySink(sink ActivitySink) *Service {
	s.accounts.WithActivitySink(sink)
	s.reconciler.WithActivitySink(sink)
	return s
}

func (s *Service) Accounts() *Accounts {
	return s.accounts
}

func (s *Service) Reconciler() *Reconciler {
	return s.reconciler
}

func (s *Service) Plugins() *PluginRegistry {
	return s.plugins
}

func (s *Service) RegisterPlugin(p Plugin) error {
	return s.plugins.Register(p)
}

// CurrentUser loads the session user from the store. Anonymous sessions,
// stale ids and blocked or unsubscribed accounts all yield nil.
func (s *Service) CurrentUser(ctx context.Context, session Session) (*User, error) {
	id, ok := SessionUserID(session)
	if !ok {
		return nil, nil
	}

	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		if IsUserNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	token := user.Token()
	if token.IsBlocked() || token.IsGDPRUnsubscribed() {
		return nil, nil
	}

	return user, nil
}

// RequireUser returns the session user or an error outcome: 401 when there
// is no user, 403 when a condition rejects it.
func (s *Service) RequireUser(ctx context.Context, session Session, conditions ...func(*User) bool) (*User, *Outcome) {
	user, err := s.CurrentUser(ctx, session)
	if err != nil {
		return nil, s.fail(err)
	}
	if user == nil {
		return nil, OutcomeFromError(ErrUnauthorized)
	}
	for _, cond := range conditions {
		if cond != nil && !cond(user) {
			return nil, OutcomeFromError(ErrForbidden)
		}
	}
	return user, nil
}

// Dispatch handles one intent. Path is relative to the configured route,
// e.g. "api/login".
func (s *Service) Dispatch(ctx context.Context, in Intent) *Outcome {
	path := strings.Trim(in.Path, "/")
	method := strings.ToUpper(strings.TrimSpace(in.Method))
	if method == "" {
		method = http.MethodGet
	}

	switch {
	case strings.HasPrefix(path, "plugin/"):
		return s.plugins.Dispatch(ctx, s, strings.TrimPrefix(path, "plugin/"), in.Query, in.Body)
	case strings.HasPrefix(path, "api/"):
		return s.api(ctx, method, path, in)
	case path == "logout":
		clearSessionUser(in.Session)
		return Success(nil)
	case path == "verify_email":
		return s.verifyEmail(ctx, in)
	}

	return OutcomeFromError(ErrNotFound)
}

func (s *Service) api(ctx context.Context, method, path string, in Intent) *Outcome {
	if !apiPaths[path] {
		return OutcomeFromError(ErrNotFound)
	}

	switch method {
	case http.MethodGet:
		user, out := s.RequireUser(ctx, in.Session)
		if out != nil {
			return out
		}
		if path == "api/profile" {
			return Success(map[string]any{"user": SafeUser(user)})
		}
		return OutcomeFromError(ErrMethodNotAllowed)
	case http.MethodPost:
	default:
		return OutcomeFromError(ErrMethodNotAllowed)
	}

	body := in.Body

	switch path {
	case "api/register":
		fields, err := fieldsFromParams(body)
		if err != nil {
			return s.fail(err)
		}
		res, err := s.accounts.Register(ctx, fields)
		if err != nil {
			return s.fail(err)
		}
		return Success(map[string]any{"id": res.User.ID.String()})
	case "api/login":
		return s.login(ctx, in)
	case "api/request_reset_password":
		if _, err := s.accounts.RequestPasswordReset(ctx, identifierFrom(body)); err != nil {
			return s.fail(err)
		}
		return Success(nil)
	case "api/reset_password":
		token := body.String("token")
		if token == "" {
			token = in.Query.String("token")
		}
		if err := s.accounts.ResetPassword(ctx, token, body.Raw("new_password")); err != nil {
			return s.fail(err)
		}
		return Success(nil)
	case "api/profile":
		return OutcomeFromError(ErrMethodNotAllowed)
	}

	user, out := s.RequireUser(ctx, in.Session)
	if out != nil {
		return out
	}

	var err error
	switch path {
	case "api/logout":
		clearSessionUser(in.Session)
	case "api/unsubscribe":
		if err = s.accounts.GDPRUnsubscribe(ctx, user); err == nil {
			clearSessionUser(in.Session)
		}
	case "api/change_password":
		err = s.accounts.ChangePassword(ctx, user, body.Raw("new_password"), body.Raw("password"))
	case "api/change_email":
		err = s.accounts.ChangeEmail(ctx, user, body.String("new_email"), body.Raw("password"))
	case "api/update_profile":
		var fields Fields
		if fields, err = fieldsFromParams(body); err == nil {
			err = s.accounts.UpdateProfile(ctx, user, fields)
		}
	}

	if err != nil {
		return s.fail(err)
	}
	return Success(nil)
}

func (s *Service) login(ctx context.Context, in Intent) *Outcome {
	identifier := identifierFrom(in.Body)
	if identifier == "" {
		return OutcomeFromError(FieldErrors{"email": MessageRequired})
	}

	user, err := s.authenticate(ctx, identifier, in.Body.Raw("password"))
	if err != nil {
		return s.fail(err)
	}

	setSessionUser(in.Session, user)
	return Success(map[string]any{"user": SafeUser(user)})
}

// authenticate prefers a registered credential backend. Local passwords are
// only consulted when no backend is registered, or when fallback is enabled.
func (s *Service) authenticate(ctx context.Context, identifier, secret string) (*User, error) {
	backend, ok := s.plugins.CredentialBackend()
	if !ok {
		return s.accounts.Login(ctx, identifier, secret)
	}

	valid, err := backend.CheckCredentials(ctx, identifier, secret)
	if err != nil {
		s.logger.Warn("credential backend failed", "plugin", backend.Name(), "error", err)
		valid = false
	}

	if !valid {
		if s.config != nil && s.config.GetLocalLoginFallback() {
			return s.accounts.Login(ctx, identifier, secret)
		}
		s.accounts.loginFailed(ctx, "", "backend_rejected")
		return nil, ErrInvalidCredentials
	}

	identity := s.identityFor(ctx, backend, identifier)
	user, err := s.reconciler.GetOrRegisterUser(ctx, identity)
	if err != nil {
		return nil, err
	}

	if err := CheckAccountState(user); err != nil {
		s.accounts.loginFailed(ctx, user.ID.String(), string(user.Token().Kind))
		return nil, err
	}

	s.accounts.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    user.ID.String(),
		Metadata:  map[string]any{"backend": backend.Name()},
	})

	return user, nil
}

func (s *Service) identityFor(ctx context.Context, backend Plugin, identifier string) ExternalIdentity {
	normalized := strings.ToLower(strings.TrimSpace(identifier))
	domain := "localhost"
	if s.config != nil && s.config.GetSSOEmailDomain() != "" {
		domain = s.config.GetSSOEmailDomain()
	}

	identity := ExternalIdentity{
		SSOID:    backend.Name() + ":" + normalized,
		Username: normalized,
		Email:    normalized + "@" + domain,
	}
	// an email identifier is kept as the address; its local part becomes
	// the username.
	if local, _, ok := strings.Cut(normalized, "@"); ok {
		identity.Username = local
		identity.Email = normalized
	}

	resolver, ok := backend.(IdentityResolver)
	if !ok {
		return identity
	}

	resolved, err := resolver.ResolveIdentity(ctx, identifier)
	if err != nil {
		s.logger.Warn("identity lookup failed", "plugin", backend.Name(), "error", err)
		return identity
	}

	if resolved.SSOID == "" {
		resolved.SSOID = identity.SSOID
	}
	if resolved.Username == "" {
		resolved.Username = identity.Username
	}
	if resolved.Email == "" {
		resolved.Email = identity.Email
	}
	return resolved
}

func (s *Service) verifyEmail(ctx context.Context, in Intent) *Outcome {
	route := ""
	if s.config != nil {
		route = s.config.GetRoute()
	}

	ok, err := s.accounts.VerifyEmail(ctx, in.Query.String("token"))
	if err != nil {
		s.logger.Error("verify email failed", "error", err)
	}

	if ok {
		return RedirectTo("/" + route + "email_verified")
	}
	return RedirectTo("/" + route + "token_expired")
}

func (s *Service) fail(err error) *Outcome {
	out := OutcomeFromError(err)
	if out.Code >= http.StatusInternalServerError {
		s.logger.Error("auth request failed", "error", err)
	}
	return out
}

// IsUserNotFound reports whether err means the user does not exist.
func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

func identifierFrom(body Params) string {
	if v := body.String("email"); v != "" {
		return v
	}
	return body.String("username")
}

// fieldsFromParams trims every value except passwords. Values that are not
// strings are rejected rather than stored as "".
func fieldsFromParams(p Params) (Fields, error) {
	out := make(Fields, len(p))
	errs := FieldErrors{}
	for key, raw := range p {
		switch raw.(type) {
		case nil, string, []string:
		default:
			errs[key] = MessageInvalid
			continue
		}
		if key == FieldPassword {
			out[key] = p.Raw(key)
			continue
		}
		out[key] = p.String(key)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}
