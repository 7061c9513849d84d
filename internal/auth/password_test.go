package auth

import (
	"testing"

	"github.com/alexedwards/argon2id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheap parameters keep the test fast
var testParams = &argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestHashAndVerify(t *testing.T) {
	h := New(testParams)

	hash, err := h.Hash("123456")
	require.NoError(t, err)
	assert.NotEqual(t, "123456", hash)
	assert.Contains(t, hash, "$argon2id$")

	ok, err := h.Verify("123456", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("654321", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashIsSalted(t *testing.T) {
	h := New(testParams)

	a, err := h.Hash("secret")
	require.NoError(t, err)
	b, err := h.Hash("secret")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyMalformedHash(t *testing.T) {
	_, err := New(testParams).Verify("x", "plaintext-not-a-hash")
	assert.Error(t, err)
}

func TestNilParams(t *testing.T) {
	_, err := (&Hasher{}).Hash("x")
	assert.Error(t, err)
}
