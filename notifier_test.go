package authkit

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateNotifierRender(t *testing.T) {
	n := NewTemplateNotifier(nil)
	user := &User{FirstName: "Ann", Email: "ann@x.com"}

	subject, body, err := n.Render(TemplateVerifyEmail, user, map[string]any{
		"link": "https://example.org/auth/verify_email?token=a&b=c",
	})
	require.NoError(t, err)
	assert.Equal(t, "Confirm email", subject)
	assert.Equal(t, "Welcome Ann, click https://example.org/auth/verify_email?token=a&b=c to confirm your email", body)

	_, body, err = n.Render(TemplateUnsubscribe, user, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bye Ann, you have been erased from our system", body)

	_, _, err = n.Render("welcome", user, nil)
	assert.Error(t, err)
}

func TestTemplateNotifierSend(t *testing.T) {
	var got []string
	n := NewTemplateNotifier(SenderFunc(func(_ context.Context, to, subject, body string) error {
		got = append(got, to, subject, body)
		return nil
	})).WithMessages(map[string]Message{
		TemplateResetPassword: {Subject: "Reset for {{ username }}", Body: "{{ link|safe }}"},
	})

	user := &User{Username: "ann", Email: "ann@x.com"}
	require.NoError(t, n.Send(context.Background(), TemplateResetPassword, user, map[string]any{"link": "L"}))
	assert.Equal(t, []string{"ann@x.com", "Reset for ann", "L"}, got)

	assert.ErrorIs(t, n.Send(context.Background(), TemplateResetPassword, nil, nil), ErrUserNotFound)
}

func TestTemplateNotifierMockSend(t *testing.T) {
	n := NewTemplateNotifier(nil).WithLogger(NopLogger())
	assert.NoError(t, n.Send(context.Background(), TemplateVerifyEmail, &User{Email: "a@x.com"}, map[string]any{"link": "L"}))
}

func TestLinkBuilder(t *testing.T) {
	b := NewLinkBuilder("https://example.org/")
	assert.Equal(t, "https://example.org/auth/verify_email?token=abc", b.Build("auth/verify_email", url.Values{"token": {"abc"}}))
	assert.Equal(t, "https://example.org/auth/login", b.Build("/auth/login", nil))
	assert.Equal(t, "/auth/login", NewLinkBuilder("").Build("auth/login", nil))
}
