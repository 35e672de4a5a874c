package codec

import "crypto/rand"

// AuthChallengeSize is the length of the random challenge buffer exchanged
// during shard<->login authentication (spec §4.1: PACKET_BUFFER_SIZE - 4).
// PACKET_BUFFER_SIZE itself is an internal implementation detail of the
// original buffer pool; fusioncore fixes the challenge at a generous size
// independent of any single packet's body length.
const AuthChallengeSize = 128 - HeaderSize

// AuthChallenge is a fixed-size random byte buffer used once per shard
// connection attempt.
type AuthChallenge [AuthChallengeSize]byte

// NewAuthChallenge fills a fresh random challenge.
func NewAuthChallenge() (AuthChallenge, error) {
	var c AuthChallenge
	_, err := rand.Read(c[:])
	return c, err
}

// Scramble XORs the challenge with the cluster's shared server key string,
// in place on a copy, and returns the scrambled bytes ready to send. The
// shard reverses this with the identical operation (XOR is self-inverse).
func (c AuthChallenge) Scramble(serverKey string) []byte {
	buf := make([]byte, AuthChallengeSize)
	copy(buf, c[:])
	XorEncrypt(buf, []byte(serverKey))
	return buf
}
