package ldap

import (
	"context"
	"errors"
	"net/http"
	"testing"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authkit "github.com/goliatone/go-authkit"
)

type fakeDirectory struct {
	entries   map[string]*goldap.Entry
	passwords map[string]string
	binds     []string
	closed    int
	searchErr error
}

func (d *fakeDirectory) Bind(username, password string) error {
	d.binds = append(d.binds, username)
	if want, ok := d.passwords[username]; ok && want == password {
		return nil
	}
	return goldap.NewError(goldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))
}

func (d *fakeDirectory) Search(req *goldap.SearchRequest) (*goldap.SearchResult, error) {
	if d.searchErr != nil {
		return nil, d.searchErr
	}
	res := &goldap.SearchResult{}
	if entry, ok := d.entries[req.Filter]; ok {
		res.Entries = append(res.Entries, entry)
	}
	return res, nil
}

func (d *fakeDirectory) Close() {
	d.closed++
}

func newDirectory() *fakeDirectory {
	dn := "uid=alice,ou=people,dc=example,dc=com"
	return &fakeDirectory{
		entries: map[string]*goldap.Entry{
			"(uid=alice)": goldap.NewEntry(dn, map[string][]string{
				"mail":      {"Alice@Example.com"},
				"givenName": {"Alice"},
				"sn":        {"Liddell"},
			}),
		},
		passwords: map[string]string{
			dn:                           "wonderland",
			"cn=admin,dc=example,dc=com": "secret",
		},
	}
}

func newPlugin(dir *fakeDirectory) *Plugin {
	return New(Config{
		URL:          "ldap://directory:389",
		BindDN:       "cn=admin,dc=example,dc=com",
		BindPassword: "secret",
		BaseDN:       "dc=example,dc=com",
	}, WithDialer(func(context.Context, string) (Conn, error) {
		return dir, nil
	}))
}

func TestCheckCredentials(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		identifier string
		secret     string
		want       bool
	}{
		{name: "valid", identifier: "alice", secret: "wonderland", want: true},
		{name: "mixed case identifier", identifier: " Alice ", secret: "wonderland", want: true},
		{name: "wrong password", identifier: "alice", secret: "nope", want: false},
		{name: "unknown user", identifier: "bob", secret: "wonderland", want: false},
		{name: "empty secret", identifier: "alice", secret: "", want: false},
		{name: "empty identifier", identifier: "", secret: "wonderland", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := newPlugin(newDirectory()).CheckCredentials(ctx, tt.identifier, tt.secret)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestCheckCredentialsEscapesFilter(t *testing.T) {
	dir := newDirectory()
	ok, err := newPlugin(dir).CheckCredentials(context.Background(), "*)(uid=alice", "wonderland")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckCredentialsClosesConnection(t *testing.T) {
	dir := newDirectory()
	_, err := newPlugin(dir).CheckCredentials(context.Background(), "alice", "wonderland")
	require.NoError(t, err)
	assert.Equal(t, 1, dir.closed)
	assert.Equal(t, []string{"cn=admin,dc=example,dc=com", "uid=alice,ou=people,dc=example,dc=com"}, dir.binds)
}

func TestCheckCredentialsSearchFailure(t *testing.T) {
	dir := newDirectory()
	dir.searchErr = errors.New("boom")
	ok, err := newPlugin(dir).CheckCredentials(context.Background(), "alice", "wonderland")
	assert.False(t, ok)
	assert.ErrorContains(t, err, "ldap search")
}

func TestResolveIdentity(t *testing.T) {
	identity, err := newPlugin(newDirectory()).ResolveIdentity(context.Background(), "Alice")
	require.NoError(t, err)
	assert.Equal(t, authkit.ExternalIdentity{
		SSOID:     "ldap:alice",
		Username:  "alice",
		Email:     "alice@example.com",
		FirstName: "Alice",
		LastName:  "Liddell",
	}, identity)
}

func TestResolveIdentityUnknown(t *testing.T) {
	_, err := newPlugin(newDirectory()).ResolveIdentity(context.Background(), "bob")
	assert.ErrorIs(t, err, authkit.ErrUserNotFound)
}

func TestHandleRequest(t *testing.T) {
	ctx := context.Background()

	out := newPlugin(newDirectory()).HandleRequest(ctx, nil, "status", nil, nil)
	assert.True(t, out.OK())
	assert.Equal(t, true, out.Payload["reachable"])

	down := New(Config{URL: "ldap://nowhere"}, WithDialer(func(context.Context, string) (Conn, error) {
		return nil, errors.New("connection refused")
	}))
	out = down.HandleRequest(ctx, nil, "status", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, out.Code)
	assert.Equal(t, false, out.Payload["reachable"])

	out = newPlugin(newDirectory()).HandleRequest(ctx, nil, "unknown", nil, nil)
	assert.Equal(t, http.StatusNotFound, out.Code)
}
