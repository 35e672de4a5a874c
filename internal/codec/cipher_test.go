package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	key := GenKey(1234567890, 2, 3)

	original := []byte("REP_LOGIN_SUCC payload of arbitrary length, not a multiple of the key size at all")
	buf := append([]byte(nil), original...)

	Encrypt(buf, key[:])
	assert.NotEqual(t, original, buf, "encryption should change the buffer")

	Decrypt(buf, key[:])
	assert.True(t, bytes.Equal(original, buf), "decrypt(encrypt(x)) must equal x")
}

func TestRoundTripEmptyAndShortBuffers(t *testing.T) {
	key := GenKey(1, 1, 1)

	for _, n := range []int{0, 1, 4, 7, 8, 9, 17} {
		original := make([]byte, n)
		for i := range original {
			original[i] = byte(i*7 + 3)
		}
		buf := append([]byte(nil), original...)
		Encrypt(buf, key[:])
		Decrypt(buf, key[:])
		require.Equal(t, original, buf, "length %d should round-trip", n)
	}
}

func TestGenKeyDeterministic(t *testing.T) {
	k1 := GenKey(1234567890, 2, 3)
	k2 := GenKey(1234567890, 2, 3)
	assert.Equal(t, k1, k2)

	k3 := GenKey(1234567890, 2, 4)
	assert.NotEqual(t, k1, k3)
}

func TestEncodeDecodeFrame(t *testing.T) {
	key := GenKey(42, 5, 9)
	body := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	wire := EncodeFrame(PktReqAuthChallenge, body, key[:])

	length, err := DecodeLength(wire[:HeaderSize])
	require.NoError(t, err)
	require.Equal(t, int(length), len(wire)-HeaderSize)

	payload := append([]byte(nil), wire[HeaderSize:]...)
	frame, err := DecodeFrame(payload, key[:])
	require.NoError(t, err)
	assert.Equal(t, PktReqAuthChallenge, frame.ID)
	assert.Equal(t, body, frame.Body)
}

func TestAuthChallengeScrambleIsSelfInverse(t *testing.T) {
	challenge, err := NewAuthChallenge()
	require.NoError(t, err)

	scrambled := challenge.Scramble("secret")
	unscrambled := append([]byte(nil), scrambled...)
	XorEncrypt(unscrambled, []byte("secret"))

	assert.Equal(t, challenge[:], unscrambled)
}
