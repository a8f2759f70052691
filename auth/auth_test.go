package auth

import (
	"strings"
	"testing"

	"presence-relay/errors"

	"github.com/stretchr/testify/require"
)

// Cheap parameters keep the suite fast; the algorithm is the same.
var testParams = Params{Memory: 1024, Iterations: 1, Parallelism: 1}

func TestHashAndCompare(t *testing.T) {
	req := require.New(t)
	hasher := NewHasher(testParams)
	password := "secret"

	hash, err := hasher.Hash(password)
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$"))
	req.NotContains(hash, password)

	match, err := hasher.Compare(password, hash)
	req.NoError(err)
	req.True(match)

	match, err = hasher.Compare("wrong", hash)
	req.NoError(err)
	req.False(match)
}

func TestHash_SaltDiffersEachTime(t *testing.T) {
	req := require.New(t)
	hasher := NewHasher(testParams)

	first, err := hasher.Hash("secret")
	req.NoError(err)
	second, err := hasher.Hash("secret")
	req.NoError(err)

	req.NotEqual(first, second)
}

func TestCompare_EmptyPassword(t *testing.T) {
	req := require.New(t)
	hasher := NewHasher(testParams)

	// Given a room created without password
	hash, err := hasher.Hash("")
	req.NoError(err)

	// Then only the empty password matches
	match, err := hasher.Compare("", hash)
	req.NoError(err)
	req.True(match)

	match, err = hasher.Compare("x", hash)
	req.NoError(err)
	req.False(match)
}

func TestCompare_UsesParamsFromHash(t *testing.T) {
	req := require.New(t)

	hash, err := NewHasher(testParams).Hash("secret")
	req.NoError(err)

	// A hasher configured differently still verifies older hashes
	match, err := NewHasher(Params{Memory: 2048, Iterations: 2, Parallelism: 1}).Compare("secret", hash)
	req.NoError(err)
	req.True(match)
}

func TestCompare_InvalidFormat(t *testing.T) {
	req := require.New(t)

	_, err := NewHasher(testParams).Compare("secret", "plain-text")
	req.ErrorIs(err, errors.ErrInvalidHash)
}

func BenchmarkHash_DefaultParams(b *testing.B) {
	hasher := NewHasher(DefaultParams)
	for i := 0; i < b.N; i++ {
		_, _ = hasher.Hash("A-very-long-and-complex-password-for-bench-123!")
	}
}
