package authkit

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username      string         `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string         `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string         `bun:"password_hash" json:"-"`
	FirstName     string         `bun:"first_name" json:"first_name,omitempty"`
	LastName      string         `bun:"last_name" json:"last_name,omitempty"`
	Phone         string         `bun:"phone_number" json:"phone_number,omitempty"`
	SSOID         string         `bun:"sso_id,nullzero,unique" json:"-"`
	ActionToken   string         `bun:"action_token,nullzero" json:"-"`
	Metadata      map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt     *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// MetadataSSOBackend records the backend that created an SSO account.
const MetadataSSOBackend = "sso_backend"

// AddMetadata will append information to a metadata attribute
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}

// Token returns the parsed action token.
func (u *User) Token() ActionToken {
	if u == nil {
		return ActionToken{}
	}
	return ParseActionToken(u.ActionToken)
}

// Fields is a partial user record keyed by column name.
type Fields map[string]any

// Column names of the users table.
const (
	FieldID           = "id"
	FieldUsername     = "username"
	FieldEmail        = "email"
	FieldPassword     = "password"
	FieldPasswordHash = "password_hash"
	FieldFirstName    = "first_name"
	FieldLastName     = "last_name"
	FieldPhone        = "phone_number"
	FieldSSOID        = "sso_id"
	FieldActionToken  = "action_token"
)

// FieldSpec describes how a user field may be accessed from outside.
type FieldSpec struct {
	Name     string
	Readable bool
	Writable bool
}

var userFields = []FieldSpec{
	{Name: FieldID, Readable: true},
	{Name: FieldUsername, Readable: true, Writable: true},
	{Name: FieldEmail, Readable: true},
	{Name: FieldPassword},
	{Name: FieldFirstName, Readable: true, Writable: true},
	{Name: FieldLastName, Readable: true, Writable: true},
	{Name: FieldPhone, Readable: true, Writable: true},
	{Name: FieldSSOID},
	{Name: FieldActionToken},
}

// UserFields returns the field metadata table.
func UserFields() []FieldSpec {
	out := make([]FieldSpec, len(userFields))
	copy(out, userFields)
	return out
}

// LookupField finds the metadata for a field name.
func LookupField(name string) (FieldSpec, bool) {
	for _, f := range userFields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Value returns the current value of a column.
func (u *User) Value(field string) (any, bool) {
	switch field {
	case FieldID:
		return u.ID.String(), true
	case FieldUsername:
		return u.Username, true
	case FieldEmail:
		return u.Email, true
	case FieldPassword, FieldPasswordHash:
		return u.PasswordHash, true
	case FieldFirstName:
		return u.FirstName, true
	case FieldLastName:
		return u.LastName, true
	case FieldPhone:
		return u.Phone, true
	case FieldSSOID:
		return u.SSOID, true
	case FieldActionToken:
		return u.ActionToken, true
	}
	return nil, false
}

// Apply copies fields into the record. Unknown keys are ignored and nil
// clears the column.
func (u *User) Apply(fields Fields) {
	for key, raw := range fields {
		value, _ := raw.(string)
		switch key {
		case FieldUsername:
			u.Username = value
		case FieldEmail:
			u.Email = value
		case FieldPasswordHash:
			u.PasswordHash = value
		case FieldFirstName:
			u.FirstName = value
		case FieldLastName:
			u.LastName = value
		case FieldPhone:
			u.Phone = value
		case FieldSSOID:
			u.SSOID = value
		case FieldActionToken:
			u.ActionToken = value
		}
	}
}

// ProfileFields returns the columns validated on insert.
func (u *User) ProfileFields() Fields {
	return Fields{
		FieldUsername:  u.Username,
		FieldEmail:     u.Email,
		FieldFirstName: u.FirstName,
		FieldLastName:  u.LastName,
		FieldPhone:     u.Phone,
	}
}

// SafeUser projects the readable fields of a user.
func SafeUser(u *User) map[string]any {
	if u == nil {
		return nil
	}
	out := make(map[string]any, len(userFields))
	for _, f := range userFields {
		if !f.Readable {
			continue
		}
		if v, ok := u.Value(f.Name); ok {
			out[f.Name] = v
		}
	}
	return out
}

// NormalizeFields lower-cases username and email and turns empty nullable
// columns into NULL.
func NormalizeFields(fields Fields) Fields {
	out := make(Fields, len(fields))
	for key, value := range fields {
		s, isString := value.(string)
		switch {
		case isString && (key == FieldUsername || key == FieldEmail):
			out[key] = strings.ToLower(strings.TrimSpace(s))
		case isString && s == "" && (key == FieldSSOID || key == FieldActionToken):
			out[key] = nil
		default:
			out[key] = value
		}
	}
	return out
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.Username = strings.ToLower(strings.TrimSpace(record.Username))
	record.Email = strings.ToLower(strings.TrimSpace(record.Email))

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
