package authkit

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher hashes secrets and checks them against stored digests.
// Verify must never report true for an empty digest.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}

// BcryptHasher is the default PasswordHasher.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a bcrypt hasher, cost <= 0 uses bcrypt.DefaultCost
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{Cost: cost}
}

// Hash implements PasswordHasher
func (h *BcryptHasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", ErrNoEmptyString
	}
	cost := h.Cost
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	return string(out), err
}

// Verify implements PasswordHasher
func (h *BcryptHasher) Verify(plain, digest string) bool {
	if digest == "" {
		return false
	}
	return ComparePasswordAndHash(plain, digest) == nil
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

const argon2ID = "argon2id"

// Argon2Params configures Argon2Hasher.
type Argon2Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params follow the argon2id recommendations for interactive logins.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024,
		Time:        1,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2Hasher stores digests in PHC string format.
type Argon2Hasher struct {
	params Argon2Params
}

// NewArgon2Hasher returns an argon2id PasswordHasher.
func NewArgon2Hasher(params Argon2Params) *Argon2Hasher {
	def := DefaultArgon2Params()
	if params.Memory == 0 {
		params.Memory = def.Memory
	}
	if params.Time == 0 {
		params.Time = def.Time
	}
	if params.Parallelism == 0 {
		params.Parallelism = def.Parallelism
	}
	if params.SaltLength == 0 {
		params.SaltLength = def.SaltLength
	}
	if params.KeyLength == 0 {
		params.KeyLength = def.KeyLength
	}
	return &Argon2Hasher{params: params}
}

// Hash implements PasswordHasher
func (a *Argon2Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", ErrNoEmptyString
	}

	salt := make([]byte, a.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(plain), salt, a.params.Time, a.params.Memory, a.params.Parallelism, a.params.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2ID,
		argon2.Version,
		a.params.Memory,
		a.params.Time,
		a.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify implements PasswordHasher
func (a *Argon2Hasher) Verify(plain, digest string) bool {
	if digest == "" {
		return false
	}

	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[1] != argon2ID {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, time uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &parallelism); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}

	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false
	}

	got := argon2.IDKey([]byte(plain), salt, time, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
