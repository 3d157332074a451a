package authkit

import (
	"strings"

	"github.com/google/uuid"
)

// TokenKind identifies the pending transition stored in an action token.
type TokenKind string

const (
	KindNone                 TokenKind = ""
	KindPendingRegistration  TokenKind = "pending-registration"
	KindResetPasswordRequest TokenKind = "reset-password-request"
	KindAccountBlocked       TokenKind = "account-blocked"
	KindGDPRUnsubscribed     TokenKind = "gdpr-unsubscribed"
	KindUnknown              TokenKind = "unknown"
)

const actionTokenSeparator = ":"

// ActionToken is the typed form of User.ActionToken. Value holds the nonce for
// pending kinds and the reason for blocked accounts.
type ActionToken struct {
	Kind  TokenKind
	Value string
}

// String returns the wire format stored on the user record.
func (t ActionToken) String() string {
	switch t.Kind {
	case KindNone, KindUnknown:
		return ""
	case KindGDPRUnsubscribed:
		return string(KindGDPRUnsubscribed)
	}
	return string(t.Kind) + actionTokenSeparator + t.Value
}

// Nonce returns the nonce of a pending token, or "".
func (t ActionToken) Nonce() string {
	if t.IsPending() {
		return t.Value
	}
	return ""
}

// IsPending reports whether the token carries a consumable nonce.
func (t ActionToken) IsPending() bool {
	return t.Kind == KindPendingRegistration || t.Kind == KindResetPasswordRequest
}

// IsBlocked reports whether the account is blocked.
func (t ActionToken) IsBlocked() bool {
	return t.Kind == KindAccountBlocked
}

// IsGDPRUnsubscribed reports whether the account was anonymized.
func (t ActionToken) IsGDPRUnsubscribed() bool {
	return t.Kind == KindGDPRUnsubscribed
}

// ParseActionToken decodes a stored token. Anything that does not match a
// known shape is KindUnknown, which callers treat as nothing pending.
func ParseActionToken(s string) ActionToken {
	if s == "" {
		return ActionToken{Kind: KindNone}
	}

	if s == string(KindGDPRUnsubscribed) {
		return ActionToken{Kind: KindGDPRUnsubscribed}
	}

	if s == string(KindAccountBlocked) {
		return ActionToken{Kind: KindAccountBlocked}
	}

	kind, value, found := strings.Cut(s, actionTokenSeparator)
	if !found {
		return ActionToken{Kind: KindUnknown}
	}

	switch TokenKind(kind) {
	case KindAccountBlocked:
		return ActionToken{Kind: KindAccountBlocked, Value: value}
	case KindPendingRegistration, KindResetPasswordRequest:
		if value == "" {
			return ActionToken{Kind: KindUnknown}
		}
		return ActionToken{Kind: TokenKind(kind), Value: value}
	}

	return ActionToken{Kind: KindUnknown}
}

// MintActionToken creates a pending token with a fresh nonce.
func MintActionToken(kind TokenKind) (ActionToken, error) {
	if kind != KindPendingRegistration && kind != KindResetPasswordRequest {
		return ActionToken{}, ErrInvalidTokenKind
	}

	nonce, err := uuid.NewRandom()
	if err != nil {
		return ActionToken{}, err
	}

	return ActionToken{Kind: kind, Value: nonce.String()}, nil
}

// BlockedToken returns the token for a blocked account.
func BlockedToken(reason string) ActionToken {
	return ActionToken{Kind: KindAccountBlocked, Value: reason}
}

// GDPRUnsubscribedToken returns the terminal token of an anonymized account.
func GDPRUnsubscribedToken() ActionToken {
	return ActionToken{Kind: KindGDPRUnsubscribed}
}

// MatchesPendingKind reports whether stored is exactly the token of kind
// carrying nonce.
func MatchesPendingKind(stored, nonce string, kind TokenKind) bool {
	if nonce == "" {
		return false
	}
	return stored == ActionToken{Kind: kind, Value: nonce}.String()
}

// pendingTokens lists every stored form a nonce may take.
func pendingTokens(nonce string) []string {
	return []string{
		ActionToken{Kind: KindResetPasswordRequest, Value: nonce}.String(),
		ActionToken{Kind: KindPendingRegistration, Value: nonce}.String(),
	}
}
