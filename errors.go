package authkit

import (
	"errors"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	TextCodeRegistrationPending   = "REGISTRATION_PENDING"
	TextCodeAccountBlocked        = "ACCOUNT_BLOCKED"
	TextCodeTokenExpiredOrInvalid = "TOKEN_EXPIRED_OR_INVALID"
	TextCodeNotFound              = "NOT_FOUND"
	TextCodeUnauthorized          = "UNAUTHORIZED"
	TextCodeForbidden             = "FORBIDDEN"
	TextCodeMethodNotAllowed      = "METHOD_NOT_ALLOWED"
	TextCodeUserNotFound          = "USER_NOT_FOUND"
	TextCodeDuplicateRecord       = "DUPLICATE_RECORD"
	TextCodeInvalidTokenKind      = "INVALID_TOKEN_KIND"
	TextCodeMissingSSOID          = "MISSING_SSO_ID"
	TextCodeEmptyPassword         = "EMPTY_PASSWORD"
	TextCodePasswordMismatch      = "PASSWORD_MISMATCH"
)

// ErrInvalidCredentials is returned for a missing user or a wrong secret.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrRegistrationPending is returned on login before email verification
var ErrRegistrationPending = goerrors.New("registration pending", goerrors.CategoryAuth).
	WithTextCode(TextCodeRegistrationPending).
	WithCode(goerrors.CodeForbidden)

// ErrAccountBlocked is returned on login for blocked accounts
var ErrAccountBlocked = goerrors.New("account blocked", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountBlocked).
	WithCode(goerrors.CodeForbidden)

// ErrTokenExpiredOrInvalid means the nonce did not match any pending token.
var ErrTokenExpiredOrInvalid = goerrors.New("invalid token, request expired", goerrors.CategoryBadInput).
	WithTextCode(TextCodeTokenExpiredOrInvalid).
	WithCode(goerrors.CodeBadRequest)

var ErrNotFound = goerrors.New("not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)

var ErrUnauthorized = goerrors.New("not authorized", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthorized).
	WithCode(goerrors.CodeUnauthorized)

var ErrForbidden = goerrors.New("forbidden", goerrors.CategoryAuth).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

var ErrMethodNotAllowed = goerrors.New("method not allowed", goerrors.CategoryBadInput).
	WithTextCode(TextCodeMethodNotAllowed)

// ErrUserNotFound is returned by stores and by flows that must not reveal
// why a user cannot be acted upon.
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrDuplicateRecord is the root of every unique constraint violation
var ErrDuplicateRecord = goerrors.New("duplicate record", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateRecord).
	WithCode(goerrors.CodeConflict)

var ErrInvalidTokenKind = goerrors.New("token kind does not carry a nonce", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTokenKind).
	WithCode(goerrors.CodeBadRequest)

var ErrMissingSSOID = goerrors.New("external identity has no sso id", goerrors.CategoryValidation).
	WithTextCode(TextCodeMissingSSOID).
	WithCode(goerrors.CodeBadRequest)

// ErrNoEmptyString empty password
var ErrNoEmptyString = goerrors.New("password can't be an empty string", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the error for password mismatch
var ErrMismatchedHashAndPassword = goerrors.New("password mismatch", goerrors.CategoryAuth).
	WithTextCode(TextCodePasswordMismatch).
	WithCode(goerrors.CodeUnauthorized)

// Field error messages.
const (
	MessageRequired = "required"
	MessageInvalid  = "invalid"
	MessageInUse    = "already in use"
)

// FieldErrors maps field names to a short message.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}
	return "validation errors: " + strings.Join(parts, "; ")
}

// Merge copies other into e, keeping existing entries.
func (e FieldErrors) Merge(other FieldErrors) FieldErrors {
	for k, v := range other {
		if _, ok := e[k]; !ok {
			e[k] = v
		}
	}
	return e
}

func fieldErrorsFrom(errs validation.Errors) FieldErrors {
	if len(errs) == 0 {
		return nil
	}
	out := FieldErrors{}
	for field, err := range errs {
		if err == nil {
			continue
		}
		out[field] = err.Error()
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// AsFieldErrors extracts validation errors from err.
func AsFieldErrors(err error) (FieldErrors, bool) {
	var fe FieldErrors
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// DuplicateError reports which unique column rejected a write.
type DuplicateError struct {
	Column string
	Err    error
}

func (e *DuplicateError) Error() string {
	if e.Column == "" {
		return ErrDuplicateRecord.Error()
	}
	return ErrDuplicateRecord.Error() + ": " + e.Column
}

func (e *DuplicateError) Unwrap() error {
	return ErrDuplicateRecord
}

// IsDuplicateColumn reports whether err is a unique violation on column.
func IsDuplicateColumn(err error, column string) bool {
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		return false
	}
	return dup.Column == column
}

var uniqueColumns = []string{FieldSSOID, FieldUsername, FieldEmail}

// duplicateFromDriver converts sqlite and postgres unique constraint
// failures into a DuplicateError.
func duplicateFromDriver(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") &&
		!strings.Contains(msg, "duplicate key value") {
		return err
	}

	dup := &DuplicateError{Err: err}
	for _, col := range uniqueColumns {
		if strings.Contains(msg, col) {
			dup.Column = col
			break
		}
	}
	return dup
}
