// Package ldap is a credential backend that checks passwords against an
// LDAP directory with a search then bind.
package ldap

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"

	authkit "github.com/goliatone/go-authkit"
)

// Name is the plugin name, it makes the plugin a credential backend.
const Name = "ldap"

// Config holds directory options
type Config struct {
	URL                string
	BindDN             string
	BindPassword       string
	BaseDN             string
	UserFilter         string
	EmailAttribute     string
	FirstNameAttribute string
	LastNameAttribute  string
}

func (c Config) withDefaults() Config {
	if c.UserFilter == "" {
		c.UserFilter = "(uid=%s)"
	}
	if c.EmailAttribute == "" {
		c.EmailAttribute = "mail"
	}
	if c.FirstNameAttribute == "" {
		c.FirstNameAttribute = "givenName"
	}
	if c.LastNameAttribute == "" {
		c.LastNameAttribute = "sn"
	}
	return c
}

// Conn is the subset of *ldap.Conn used by the plugin.
type Conn interface {
	Bind(username, password string) error
	Search(req *goldap.SearchRequest) (*goldap.SearchResult, error)
	Close()
}

// Dialer opens a connection to url.
type Dialer func(ctx context.Context, url string) (Conn, error)

type ldapConn struct {
	*goldap.Conn
}

func (c ldapConn) Close() {
	c.Conn.Close()
}

func dialURL(_ context.Context, url string) (Conn, error) {
	conn, err := goldap.DialURL(url)
	if err != nil {
		return nil, err
	}
	return ldapConn{conn}, nil
}

// Option configures the plugin.
type Option func(*Plugin)

// WithDialer replaces the network dialer.
func WithDialer(d Dialer) Option {
	return func(p *Plugin) {
		if d != nil {
			p.dial = d
		}
	}
}

func WithLogger(logger authkit.Logger) Option {
	return func(p *Plugin) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Plugin implements authkit.Plugin and authkit.IdentityResolver.
type Plugin struct {
	config Config
	dial   Dialer
	logger authkit.Logger
}

var (
	_ authkit.Plugin           = (*Plugin)(nil)
	_ authkit.IdentityResolver = (*Plugin)(nil)
)

func New(config Config, opts ...Option) *Plugin {
	p := &Plugin{
		config: config.withDefaults(),
		dial:   dialURL,
		logger: authkit.NopLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *Plugin) Name() string {
	return Name
}

// CheckCredentials looks up the user entry and binds as it. A wrong
// password or an unknown user is reported as false without error.
func (p *Plugin) CheckCredentials(ctx context.Context, identifier, secret string) (bool, error) {
	username := normalizeUsername(identifier)
	if username == "" || secret == "" {
		return false, nil
	}

	conn, err := p.connect(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	entry, err := p.lookup(conn, username)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}

	if err := conn.Bind(entry.DN, secret); err != nil {
		if goldap.IsErrorWithCode(err, goldap.LDAPResultInvalidCredentials) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// ResolveIdentity reads the directory attributes of identifier.
func (p *Plugin) ResolveIdentity(ctx context.Context, identifier string) (authkit.ExternalIdentity, error) {
	username := normalizeUsername(identifier)

	conn, err := p.connect(ctx)
	if err != nil {
		return authkit.ExternalIdentity{}, err
	}
	defer conn.Close()

	entry, err := p.lookup(conn, username)
	if err != nil {
		return authkit.ExternalIdentity{}, err
	}
	if entry == nil {
		return authkit.ExternalIdentity{}, authkit.ErrUserNotFound
	}

	return authkit.ExternalIdentity{
		SSOID:     Name + ":" + username,
		Username:  username,
		Email:     strings.ToLower(entry.GetAttributeValue(p.config.EmailAttribute)),
		FirstName: entry.GetAttributeValue(p.config.FirstNameAttribute),
		LastName:  entry.GetAttributeValue(p.config.LastNameAttribute),
	}, nil
}

// HandleRequest serves plugin/ldap/status.
func (p *Plugin) HandleRequest(ctx context.Context, _ *authkit.Service, subPath string, _, _ authkit.Params) *authkit.Outcome {
	switch strings.Trim(subPath, "/") {
	case "status":
		conn, err := p.connect(ctx)
		if err != nil {
			p.logger.Warn("ldap unreachable", "url", p.config.URL, "error", err)
			return authkit.Failure(http.StatusServiceUnavailable, "directory unreachable", "LDAP_UNREACHABLE").
				With("plugin", Name).
				With("reachable", false)
		}
		conn.Close()
		return authkit.Success(map[string]any{"plugin": Name, "reachable": true})
	}
	return authkit.OutcomeFromError(authkit.ErrNotFound)
}

// connect dials and binds with the service account, if any.
func (p *Plugin) connect(ctx context.Context) (Conn, error) {
	conn, err := p.dial(ctx, p.config.URL)
	if err != nil {
		return nil, fmt.Errorf("ldap dial: %w", err)
	}

	if p.config.BindDN != "" {
		if err := conn.Bind(p.config.BindDN, p.config.BindPassword); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ldap service bind: %w", err)
		}
	}

	return conn, nil
}

// normalizeUsername matches the lower-cased username used in the sso id.
func normalizeUsername(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func (p *Plugin) lookup(conn Conn, username string) (*goldap.Entry, error) {
	req := goldap.NewSearchRequest(
		p.config.BaseDN,
		goldap.ScopeWholeSubtree,
		goldap.NeverDerefAliases,
		2,
		0,
		false,
		fmt.Sprintf(p.config.UserFilter, goldap.EscapeFilter(username)),
		[]string{"dn", p.config.EmailAttribute, p.config.FirstNameAttribute, p.config.LastNameAttribute},
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		if goldap.IsErrorWithCode(err, goldap.LDAPResultNoSuchObject) ||
			goldap.IsErrorWithCode(err, goldap.LDAPResultSizeLimitExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("ldap search: %w", err)
	}

	if len(res.Entries) != 1 {
		return nil, nil
	}
	return res.Entries[0], nil
}
