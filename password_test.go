package authkit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashers(t *testing.T) {
	hashers := map[string]PasswordHasher{
		"bcrypt": NewBcryptHasher(bcrypt.MinCost),
		"argon2id": NewArgon2Hasher(Argon2Params{
			Memory:      8 * 1024,
			Time:        1,
			Parallelism: 1,
		}),
	}

	for name, h := range hashers {
		t.Run(name, func(t *testing.T) {
			digest, err := h.Hash("correct horse")
			require.NoError(t, err)
			assert.NotEqual(t, "correct horse", digest)

			assert.True(t, h.Verify("correct horse", digest))
			assert.False(t, h.Verify("wrong horse", digest))
			assert.False(t, h.Verify("correct horse", ""))
			assert.False(t, h.Verify("", ""))

			again, err := h.Hash("correct horse")
			require.NoError(t, err)
			assert.NotEqual(t, digest, again)

			_, err = h.Hash("")
			assert.ErrorIs(t, err, ErrNoEmptyString)
		})
	}
}

func TestArgon2DigestFormat(t *testing.T) {
	digest, err := NewArgon2Hasher(Argon2Params{Memory: 8 * 1024, Time: 1, Parallelism: 1}).Hash("pw")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(digest, "$argon2id$v=19$m=8192,t=1,p=1$"))

	h := NewArgon2Hasher(Argon2Params{})
	assert.False(t, h.Verify("pw", "$argon2id$v=19$broken"))
	assert.False(t, h.Verify("pw", "$2a$04$notargon"))
}

func TestComparePasswordAndHash(t *testing.T) {
	digest, err := NewBcryptHasher(bcrypt.MinCost).Hash("pw")
	require.NoError(t, err)

	assert.NoError(t, ComparePasswordAndHash("pw", digest))
	assert.ErrorIs(t, ComparePasswordAndHash("nope", digest), ErrMismatchedHashAndPassword)
}
