package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() Params {
	return Params{
		MemoryKiB:   1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashAndVerify(t *testing.T) {
	t.Parallel()

	h := New(testParams())

	for _, pass := range []string{"p1", "correct horse battery staple", "пароль", ""} {
		hash, err := h.Hash(pass)
		require.NoError(t, err)

		assert.NotEqual(t, pass, hash)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))
		assert.True(t, h.Verify(pass, hash))
		assert.False(t, h.Verify(pass+"x", hash))
	}
}

func TestHash_SaltedAndFixedLength(t *testing.T) {
	t.Parallel()

	h := New(testParams())

	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, b, len(a))
}

func TestVerify_MalformedHash(t *testing.T) {
	t.Parallel()

	h := New(testParams())

	cases := []string{
		"",
		"plain",
		"$argon2i$v=19$m=1024,t=1,p=1$c2FsdHNhbHQ$a2V5",
		"$argon2id$v=16$m=1024,t=1,p=1$c2FsdHNhbHRzYWx0$a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdHNhbHRzYWx0$a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=1024,t=1,p=1$!!!$a2V5a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=1024,t=1,p=1$c2FsdHNhbHRzYWx0$!!!",
	}

	for _, c := range cases {
		assert.False(t, h.Verify("p1", c), c)
	}
}

func TestVerify_RejectsExcessiveCost(t *testing.T) {
	t.Parallel()

	strong := New(Params{MemoryKiB: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	hash, err := strong.Hash("p1")
	require.NoError(t, err)

	weak := New(testParams())
	assert.False(t, weak.Verify("p1", hash))
}
