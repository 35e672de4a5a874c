// Package protocol implements the control-plane protocols from spec.md
// §4.10: the shard<->login authentication handshake, client login and
// shard hand-off, cross-shard player search, duplicate-login eviction, and
// buddy presence. Each handler is a pure function over explicit
// dependencies (the loginstate/shardstate registries, a clock, a
// credential checker) rather than a codec.Dispatcher[C] context, so the
// handshake logic can be unit tested without a live connection manager;
// cmd/login and cmd/shard wire these into Dispatcher.Register behind their
// own thin per-connection context types.
package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"errors"

	"github.com/google/uuid"

	"github.com/duskforge/fusioncore/internal/codec"
	"github.com/duskforge/fusioncore/internal/protoerr"
)

// AuthChallenge is the plaintext challenge the login server generates and
// stores per-connection, per spec.md §4.10 step 2.
type AuthChallenge [codec.AuthChallengeSize]byte

// NewAuthChallenge draws a fresh random challenge.
func NewAuthChallenge() AuthChallenge {
	var c AuthChallenge
	_, _ = rand.Read(c[:])
	return c
}

// Encrypt XORs the challenge with the cluster's shared server_key (spec.md
// §4.10: "REP_AUTH_CHALLENGE(encrypted_challenge)"), returning the bytes to
// send on the wire. The plaintext itself is retained separately by the
// caller under UnauthedShardServer state.
func (c AuthChallenge) Encrypt(serverKey string) []byte {
	buf := append([]byte(nil), c[:]...)
	codec.XorEncrypt(buf, []byte(serverKey))
	return buf
}

// ReqConnect is the body of REQ_CONNECT, per spec.md §4.10 step 3.
type ReqConnect struct {
	ShardID         int32
	NumChannels     int32
	MaxChannelPop   int32
	ChallengeSolved []byte
}

// EncodeReqConnect serializes a ReqConnect body.
func EncodeReqConnect(r ReqConnect) []byte {
	buf := make([]byte, 12+len(r.ChallengeSolved))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.ShardID))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(r.NumChannels))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(r.MaxChannelPop))
	copy(buf[12:], r.ChallengeSolved)
	return buf
}

// DecodeReqConnect parses a REQ_CONNECT body.
func DecodeReqConnect(body []byte) (ReqConnect, error) {
	if len(body) < 12 {
		return ReqConnect{}, errShortBody
	}
	return ReqConnect{
		ShardID:         int32(binary.LittleEndian.Uint32(body[0:4])),
		NumChannels:     int32(binary.LittleEndian.Uint32(body[4:8])),
		MaxChannelPop:   int32(binary.LittleEndian.Uint32(body[8:12])),
		ChallengeSolved: append([]byte(nil), body[12:]...),
	}, nil
}

// RepConnectFail is the failure reply code set; 1 is the only code spec.md
// §4.10 names (challenge mismatch).
const RepConnectFailChallengeMismatch int32 = 1

// ConnectOutcome is what HandleReqConnect hands back: either a failure
// code to send as REP_CONNECT_FAIL, or the accepted shard's assigned
// identity plus the session key both sides now derive.
type ConnectOutcome struct {
	Accepted     bool
	FailCode     int32
	ServerTime   uint64
	LoginUUID    uuid.UUID
	SessionKey   codec.Key
}

// HandleReqConnect implements spec.md §4.10 step 3: compare the shard's
// claimed solved challenge against the plaintext stored for this
// connection (challenge_solved == stored_plaintext), and on success derive
// the session E key via gen_key(server_time, xor-fold(uuid_bytes),
// shard_id+1).
func HandleReqConnect(req ReqConnect, expected AuthChallenge, serverKey string, serverTime uint64, loginUUID uuid.UUID) ConnectOutcome {
	if !bytesEqual(req.ChallengeSolved, expected[:]) {
		return ConnectOutcome{Accepted: false, FailCode: RepConnectFailChallengeMismatch}
	}

	folded := xorFoldUUID(loginUUID)
	key := codec.GenKey(serverTime, folded, req.ShardID)

	return ConnectOutcome{
		Accepted:   true,
		ServerTime: serverTime,
		LoginUUID:  loginUUID,
		SessionKey: key,
	}
}

// DeriveShardSessionKey is the shard side of the same derivation, run once
// the shard has received REP_CONNECT_SUCC(server_time, login_uuid_bytes).
func DeriveShardSessionKey(serverTime uint64, loginUUID uuid.UUID, shardID int32) codec.Key {
	return codec.GenKey(serverTime, xorFoldUUID(loginUUID), shardID)
}

// EncodeRepConnectSucc serializes REP_CONNECT_SUCC's body: the server_time
// the key derivation used plus the login server's identity UUID.
func EncodeRepConnectSucc(serverTime uint64, loginUUID uuid.UUID) []byte {
	buf := make([]byte, 8+16)
	binary.LittleEndian.PutUint64(buf[:8], serverTime)
	copy(buf[8:], loginUUID[:])
	return buf
}

// EncodeRepConnectFail serializes REP_CONNECT_FAIL's lone error-code field.
func EncodeRepConnectFail(code int32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(code))
	return buf
}

// xorFoldUUID XORs a UUID's 16 bytes down to a single int32, the
// "xor-fold(uuid_bytes)" operation spec.md §4.10 names.
func xorFoldUUID(id uuid.UUID) int32 {
	var folded [4]byte
	for i, b := range id {
		folded[i%4] ^= b
	}
	return int32(binary.LittleEndian.Uint32(folded[:]))
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var errShortBody = errors.New("protocol: packet body too short")

// WrapWarning is a small convenience for handlers in this package's
// callers that need a *protoerr.Error without importing protoerr's full
// constructor surface inline.
func WrapWarning(op string, err error) *protoerr.Error {
	return protoerr.New(op, protoerr.Warning, err)
}
