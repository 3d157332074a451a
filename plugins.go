package authkit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// Plugin is an identity backend registered under a name. Requests to
// plugin/<name>/<subpath> are forwarded to HandleRequest.
type Plugin interface {
	Name() string
	CheckCredentials(ctx context.Context, identifier, secret string) (bool, error)
	HandleRequest(ctx context.Context, svc *Service, subPath string, query, body Params) *Outcome
}

// IdentityResolver is implemented by plugins that can describe the identity
// behind a successful credential check.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, identifier string) (ExternalIdentity, error)
}

// Names of plugins that take over password checks, in order of preference.
var credentialBackends = []string{"pam", "ldap"}

// ErrDuplicatePlugin is returned when a name is registered twice.
var ErrDuplicatePlugin = goerrors.New("plugin already registered", goerrors.CategoryConflict).
	WithTextCode("DUPLICATE_PLUGIN").
	WithCode(goerrors.CodeConflict)

// PluginRegistry holds plugins by name. Plugins can be registered while
// requests are served; they are never removed.
type PluginRegistry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{plugins: map[string]Plugin{}}
}

// Register adds p under p.Name().
func (r *PluginRegistry) Register(p Plugin) error {
	if p == nil {
		return goerrors.New("plugin is nil", goerrors.CategoryBadInput)
	}

	name := strings.TrimSpace(p.Name())
	if name == "" || strings.Contains(name, "/") {
		return goerrors.New(fmt.Sprintf("invalid plugin name %q", p.Name()), goerrors.CategoryBadInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.plugins[name]; ok {
		return ErrDuplicatePlugin
	}
	r.plugins[name] = p
	return nil
}

func (r *PluginRegistry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// Names returns the registered names, sorted.
func (r *PluginRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CredentialBackend returns the plugin that owns password checks: "pam"
// if registered, else "ldap".
func (r *PluginRegistry) CredentialBackend() (Plugin, bool) {
	for _, name := range credentialBackends {
		if p, ok := r.Get(name); ok {
			return p, true
		}
	}
	return nil, false
}

// Dispatch forwards "<name>/<subpath>" to the named plugin.
func (r *PluginRegistry) Dispatch(ctx context.Context, svc *Service, path string, query, body Params) *Outcome {
	name, subPath, _ := strings.Cut(path, "/")
	p, ok := r.Get(name)
	if !ok {
		return OutcomeFromError(ErrNotFound)
	}

	out := p.HandleRequest(ctx, svc, subPath, query, body)
	if out == nil {
		return Success(nil)
	}
	return out
}
