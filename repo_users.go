package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// DefaultPhoneRegion is used to parse phone numbers without a country prefix.
var DefaultPhoneRegion = "US"

const maxNameLength = 128

// columns that may be written through UpdateByID and UpdateByActionToken
var writableColumns = map[string]bool{
	FieldUsername:     true,
	FieldEmail:        true,
	FieldPasswordHash: true,
	FieldFirstName:    true,
	FieldLastName:     true,
	FieldPhone:        true,
	FieldSSOID:        true,
	FieldActionToken:  true,
}

var uniqueLookupColumns = map[string]bool{
	FieldUsername: true,
	FieldEmail:    true,
	FieldSSOID:    true,
}

type users struct {
	base repository.Repository[*User]
	db   *bun.DB
}

var _ UserStore = (*users)(nil)

// NewUsersRepository returns a bun backed UserStore.
func NewUsersRepository(db *bun.DB) UserStore {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	return &users{
		base: repo,
		db:   db,
	}
}

func (a *users) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return nil, ErrUserNotFound
	}

	column := FieldUsername
	if strings.Contains(identifier, "@") {
		column = FieldEmail
	}

	return a.findOne(ctx, column, identifier)
}

func (a *users) FindBySSOID(ctx context.Context, ssoID string) (*User, error) {
	if ssoID == "" {
		return nil, ErrUserNotFound
	}
	return a.findOne(ctx, FieldSSOID, ssoID)
}

func (a *users) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	if id == uuid.Nil {
		return nil, ErrUserNotFound
	}

	record, err := a.base.GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user")
	}

	return record, nil
}

func (a *users) findOne(ctx context.Context, column, value string) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where(fmt.Sprintf("?TableAlias.%s = ?", column), value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to find user")
	}

	return record, nil
}

func (a *users) Insert(ctx context.Context, user *User, opts ...WriteOption) (*User, error) {
	if user == nil {
		return nil, ErrUserNotFound
	}

	options := ResolveWriteOptions(opts...)
	prepareUserDefaults(user)

	if !options.SkipValidation {
		if err := a.validate(ctx, uuid.Nil, user.ProfileFields()); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	user.CreatedAt = &now
	user.UpdatedAt = &now

	if _, err := a.db.NewInsert().Model(user).Exec(ctx); err != nil {
		if dup := duplicateFromDriver(err); dup != err {
			return nil, dup
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to insert user")
	}

	return user, nil
}

func (a *users) UpdateByID(ctx context.Context, id uuid.UUID, fields Fields, opts ...WriteOption) error {
	options := ResolveWriteOptions(opts...)
	fields = NormalizeFields(fields)

	if err := checkColumns(fields); err != nil {
		return err
	}

	if !options.SkipValidation {
		if err := a.validate(ctx, id, fields); err != nil {
			return err
		}
	}

	q := a.db.NewUpdate().Model((*User)(nil))
	q = applyFields(q, fields)

	res, err := q.Where("id = ?", id).Exec(ctx)
	if err != nil {
		if dup := duplicateFromDriver(err); dup != err {
			return dup
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read affected rows")
	}

	if affected == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (a *users) UpdateByActionToken(ctx context.Context, tokens []string, fields Fields) ([]uuid.UUID, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	fields = NormalizeFields(fields)
	if err := checkColumns(fields); err != nil {
		return nil, err
	}

	q := a.db.NewUpdate().Model((*User)(nil))
	q = applyFields(q, fields)

	var ids []uuid.UUID
	_, err := q.Where("action_token IN (?)", bun.In(tokens)).
		Returning("id").
		Exec(ctx, &ids)
	if err != nil {
		if dup := duplicateFromDriver(err); dup != err {
			return nil, dup
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume action token")
	}

	return ids, nil
}

func (a *users) CountByField(ctx context.Context, field, value string) (int, error) {
	return a.countOthers(ctx, field, value, uuid.Nil)
}

func (a *users) countOthers(ctx context.Context, field, value string, exclude uuid.UUID) (int, error) {
	if !uniqueLookupColumns[field] {
		return 0, goerrors.New(fmt.Sprintf("cannot count by %q", field), goerrors.CategoryBadInput)
	}

	q := a.db.NewSelect().
		Model((*User)(nil)).
		Where("? = ?", bun.Ident(field), value)

	if exclude != uuid.Nil {
		q = q.Where("id != ?", exclude)
	}

	n, err := q.Count(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count users")
	}
	return n, nil
}

// validate checks the profile fields present in fields. id is excluded from
// uniqueness checks.
func (a *users) validate(ctx context.Context, id uuid.UUID, fields Fields) error {
	errs := validation.Errors{}

	for field, raw := range fields {
		value, _ := raw.(string)
		switch field {
		case FieldUsername:
			errs[field] = validation.Validate(value,
				validation.Required.Error(MessageRequired),
				validation.Length(1, maxNameLength).Error(MessageInvalid),
				validation.By(noAtSign),
			)
		case FieldEmail:
			errs[field] = validation.Validate(value,
				validation.Required.Error(MessageRequired),
				is.Email.Error(MessageInvalid),
			)
		case FieldFirstName, FieldLastName:
			errs[field] = validation.Validate(value,
				validation.Length(0, maxNameLength).Error(MessageInvalid),
			)
		case FieldPhone:
			errs[field] = validation.Validate(value, validation.By(validPhoneNumber))
		}
	}

	out := fieldErrorsFrom(errs)
	if out == nil {
		out = FieldErrors{}
	}

	for _, field := range []string{FieldUsername, FieldEmail} {
		raw, ok := fields[field]
		if !ok {
			continue
		}
		if _, failed := out[field]; failed {
			continue
		}
		value, _ := raw.(string)
		n, err := a.countOthers(ctx, field, value, id)
		if err != nil {
			return err
		}
		if n > 0 {
			out[field] = MessageInUse
		}
	}

	if len(out) > 0 {
		return out
	}
	return nil
}

func noAtSign(value interface{}) error {
	s, _ := value.(string)
	if strings.Contains(s, "@") {
		return errors.New(MessageInvalid)
	}
	return nil
}

func validPhoneNumber(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	num, err := phonenumbers.Parse(s, DefaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return errors.New(MessageInvalid)
	}
	return nil
}

func checkColumns(fields Fields) error {
	for col := range fields {
		if !writableColumns[col] {
			return FieldErrors{col: MessageInvalid}
		}
	}
	return nil
}

func applyFields(q *bun.UpdateQuery, fields Fields) *bun.UpdateQuery {
	for col, value := range fields {
		q = q.Set("? = ?", bun.Ident(col), value)
	}
	return q.Set("updated_at = ?", time.Now())
}
