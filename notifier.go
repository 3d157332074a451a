package authkit

import (
	"context"
	"fmt"
	"sync"

	"github.com/flosch/pongo2/v6"
)

// Message templates sent by the account lifecycle.
const (
	TemplateVerifyEmail   = "verify_email"
	TemplateResetPassword = "reset_password"
	TemplateUnsubscribe   = "unsubscribe"
)

// Message is a subject/body pair rendered with pongo2. Templates receive the
// readable user fields plus every notification param, e.g. "link".
type Message struct {
	Subject string
	Body    string
}

// DefaultMessages returns the built in message catalogue.
func DefaultMessages() map[string]Message {
	return map[string]Message{
		TemplateVerifyEmail: {
			Subject: "Confirm email",
			Body:    "Welcome {{ first_name }}, click {{ link|safe }} to confirm your email",
		},
		TemplateResetPassword: {
			Subject: "Password reset",
			Body:    "Hello {{ first_name }}, click {{ link|safe }} to change password",
		},
		TemplateUnsubscribe: {
			Subject: "Unsubscribe confirmation",
			Body:    "Bye {{ first_name }}, you have been erased from our system",
		},
	}
}

// Sender is the delivery transport (SMTP, SMS gateway, push service).
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, to, subject, body string) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}

// TemplateNotifier renders the message catalogue and hands the result to a
// Sender. Without a Sender the rendered message is logged.
type TemplateNotifier struct {
	sender   Sender
	logger   Logger
	mu       sync.RWMutex
	messages map[string]Message
	compiled map[string][2]*pongo2.Template
}

var _ Notifier = (*TemplateNotifier)(nil)

// NewTemplateNotifier returns a notifier using DefaultMessages.
func NewTemplateNotifier(sender Sender) *TemplateNotifier {
	return &TemplateNotifier{
		sender:   sender,
		logger:   defaultLogger(),
		messages: DefaultMessages(),
		compiled: map[string][2]*pongo2.Template{},
	}
}

// WithMessages overrides catalogue entries.
func (n *TemplateNotifier) WithMessages(messages map[string]Message) *TemplateNotifier {
	n.mu.Lock()
	defer n.mu.Unlock()
	for name, msg := range messages {
		n.messages[name] = msg
		delete(n.compiled, name)
	}
	return n
}

func (n *TemplateNotifier) WithLogger(logger Logger) *TemplateNotifier {
	if logger != nil {
		n.logger = logger
	}
	return n
}

// Render produces the subject and body of a template.
func (n *TemplateNotifier) Render(template string, recipient *User, params map[string]any) (string, string, error) {
	tpls, err := n.templates(template)
	if err != nil {
		return "", "", err
	}

	ctx := pongo2.Context{}
	for k, v := range SafeUser(recipient) {
		ctx[k] = v
	}
	for k, v := range params {
		ctx[k] = v
	}

	subject, err := tpls[0].Execute(ctx)
	if err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", template, err)
	}

	body, err := tpls[1].Execute(ctx)
	if err != nil {
		return "", "", fmt.Errorf("render %s body: %w", template, err)
	}

	return subject, body, nil
}

// Send implements Notifier.
func (n *TemplateNotifier) Send(ctx context.Context, template string, recipient *User, params map[string]any) error {
	if recipient == nil {
		return ErrUserNotFound
	}

	subject, body, err := n.Render(template, recipient, params)
	if err != nil {
		return err
	}

	if n.sender == nil {
		n.logger.Info("mock send", "to", recipient.Email, "subject", subject, "body", body)
		return nil
	}

	return n.sender.Send(ctx, recipient.Email, subject, body)
}

func (n *TemplateNotifier) templates(name string) ([2]*pongo2.Template, error) {
	n.mu.RLock()
	tpls, ok := n.compiled[name]
	msg, known := n.messages[name]
	n.mu.RUnlock()

	if ok {
		return tpls, nil
	}

	if !known {
		return tpls, fmt.Errorf("unknown message template %q", name)
	}

	subject, err := pongo2.FromString(msg.Subject)
	if err != nil {
		return tpls, fmt.Errorf("compile %s subject: %w", name, err)
	}

	body, err := pongo2.FromString(msg.Body)
	if err != nil {
		return tpls, fmt.Errorf("compile %s body: %w", name, err)
	}

	tpls = [2]*pongo2.Template{subject, body}

	n.mu.Lock()
	n.compiled[name] = tpls
	n.mu.Unlock()

	return tpls, nil
}
