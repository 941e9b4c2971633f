package mcauth

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSecret(t *testing.T) []byte {
	t.Helper()
	secret, err := NewSharedSecret()
	require.NoError(t, err)
	require.Len(t, secret, SecretLen)
	return secret
}

func TestCipherPairRoundtrip(t *testing.T) {
	secret := testSecret(t)
	sender, err := NewCipherPair(secret)
	require.NoError(t, err)
	receiver, err := NewCipherPair(secret)
	require.NoError(t, err)

	plain := make([]byte, 4096)
	_, err = rand.Read(plain)
	require.NoError(t, err)

	wire := append([]byte(nil), plain...)
	sender.Encrypt(wire)
	assert.NotEqual(t, plain, wire)

	receiver.Decrypt(wire)
	assert.Equal(t, plain, wire)
}

// CFB-8 advances the IV one byte per plaintext byte, so chunk boundaries
// must not matter.
func TestCipherPairChunkedMatchesWhole(t *testing.T) {
	secret := testSecret(t)
	whole, err := NewCipherPair(secret)
	require.NoError(t, err)
	chunked, err := NewCipherPair(secret)
	require.NoError(t, err)

	plain := make([]byte, 1000)
	_, err = rand.Read(plain)
	require.NoError(t, err)

	a := append([]byte(nil), plain...)
	whole.Encrypt(a)

	b := append([]byte(nil), plain...)
	rest := b
	for _, cut := range []int{1, 2, 14, 100, 500} {
		chunked.Encrypt(rest[:cut])
		rest = rest[cut:]
	}
	chunked.Encrypt(rest)

	assert.Equal(t, a, b)
}

func TestCipherPairIndependentDirections(t *testing.T) {
	secret := testSecret(t)
	left, err := NewCipherPair(secret)
	require.NoError(t, err)
	right, err := NewCipherPair(secret)
	require.NoError(t, err)

	// Interleave both directions; each direction's IV chain must stay
	// aligned with its peer regardless of the other.
	for i := 0; i < 10; i++ {
		msg := bytes.Repeat([]byte{byte(i)}, 33)

		lr := append([]byte(nil), msg...)
		left.Encrypt(lr)
		right.Decrypt(lr)
		assert.Equal(t, msg, lr, "left->right message %d", i)

		rl := append([]byte(nil), msg...)
		right.Encrypt(rl)
		left.Decrypt(rl)
		assert.Equal(t, msg, rl, "right->left message %d", i)
	}
}

func TestNewCipherPairRejectsBadSecret(t *testing.T) {
	_, err := NewCipherPair([]byte("short"))
	assert.Error(t, err)
}
