package authkit

import (
	"encoding/json"
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Outcome is the envelope returned by Dispatch. Payload keys are flattened
// into the JSON object next to status and code.
type Outcome struct {
	Status   string
	Code     int
	Message  string
	Reason   string
	Errors   map[string]string
	Payload  map[string]any
	Redirect string
}

// Success returns a 200 outcome.
func Success(payload map[string]any) *Outcome {
	return &Outcome{Status: StatusSuccess, Code: http.StatusOK, Payload: payload}
}

// Failure returns an error outcome.
func Failure(code int, message, reason string) *Outcome {
	return &Outcome{Status: StatusError, Code: code, Message: message, Reason: reason}
}

// RedirectTo returns a 303 outcome pointing at location.
func RedirectTo(location string) *Outcome {
	return &Outcome{Status: StatusSuccess, Code: http.StatusSeeOther, Redirect: location}
}

func (o *Outcome) OK() bool {
	return o != nil && o.Status == StatusSuccess
}

// With adds a payload entry.
func (o *Outcome) With(key string, value any) *Outcome {
	if o.Payload == nil {
		o.Payload = map[string]any{}
	}
	o.Payload[key] = value
	return o
}

// AsMap flattens the outcome the way it is serialized.
func (o *Outcome) AsMap() map[string]any {
	out := make(map[string]any, len(o.Payload)+5)
	for k, v := range o.Payload {
		out[k] = v
	}
	out["status"] = o.Status
	out["code"] = o.Code
	if o.Message != "" {
		out["message"] = o.Message
	}
	if o.Reason != "" {
		out["reason"] = o.Reason
	}
	if len(o.Errors) > 0 {
		out["errors"] = o.Errors
	}
	if o.Redirect != "" {
		out["redirect"] = o.Redirect
	}
	return out
}

func (o *Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.AsMap())
}

type errorMapping struct {
	target  error
	code    int
	message string
}

// Order matters, the first match wins.
var errorMappings = []errorMapping{
	{ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
	{ErrRegistrationPending, http.StatusForbidden, "registration is pending"},
	{ErrAccountBlocked, http.StatusForbidden, "account is blocked"},
	{ErrTokenExpiredOrInvalid, http.StatusBadRequest, "invalid token, request expired"},
	{ErrUserNotFound, http.StatusBadRequest, "invalid user"},
	{ErrNotFound, http.StatusNotFound, "not found"},
	{ErrUnauthorized, http.StatusUnauthorized, "not authorized"},
	{ErrForbidden, http.StatusForbidden, "forbidden"},
	{ErrMethodNotAllowed, http.StatusMethodNotAllowed, "method not allowed"},
	{ErrDuplicatePlugin, http.StatusConflict, "plugin already registered"},
}

// OutcomeFromError converts an engine error into an error outcome. Errors
// that are not part of the taxonomy become a generic 500.
func OutcomeFromError(err error) *Outcome {
	if err == nil {
		return Success(nil)
	}

	if fe, ok := AsFieldErrors(err); ok {
		out := Failure(http.StatusBadRequest, "validation errors", "VALIDATION_ERROR")
		out.Errors = map[string]string(fe)
		return out
	}

	var dup *DuplicateError
	if errors.As(err, &dup) {
		out := Failure(http.StatusBadRequest, "validation errors", TextCodeDuplicateRecord)
		if dup.Column != "" {
			out.Errors = map[string]string{dup.Column: MessageInUse}
		}
		return out
	}

	for _, m := range errorMappings {
		if isSentinel(err, m.target) {
			var reason string
			var rich *goerrors.Error
			if goerrors.As(m.target, &rich) {
				reason = rich.TextCode
			}
			return Failure(m.code, m.message, reason)
		}
	}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		switch rich.Category {
		case goerrors.CategoryValidation, goerrors.CategoryBadInput:
			return Failure(http.StatusBadRequest, rich.Message, rich.TextCode)
		case goerrors.CategoryNotFound:
			return Failure(http.StatusNotFound, "not found", rich.TextCode)
		case goerrors.CategoryAuth:
			return Failure(http.StatusUnauthorized, "not authorized", rich.TextCode)
		case goerrors.CategoryConflict:
			return Failure(http.StatusConflict, rich.Message, rich.TextCode)
		}
	}

	return Failure(http.StatusInternalServerError, "internal error", "")
}

// isSentinel walks the wrap chain comparing by identity, so sentinels that
// share a category stay distinct.
func isSentinel(err, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
