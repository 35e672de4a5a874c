package main

import (
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/duskforge/fusioncore/internal/codec"
	"github.com/duskforge/fusioncore/internal/netio"
	"github.com/duskforge/fusioncore/internal/protoerr"
	"github.com/duskforge/fusioncore/internal/protocol"
	"github.com/duskforge/fusioncore/internal/shardstate"
)

var errAuthRejected = errors.New("shard: login server rejected auth challenge")

// loginServerConn drives the shard's side of the shard<->login
// authentication handshake from spec.md §4.10 and the outbound connection
// it rides on.
type loginServerConn struct {
	addr      string
	serverKey string
	shardID   int32
	numChans  int32
	maxPop    int32
	log       zerolog.Logger
	mgr       *netio.Manager
	state     *shardstate.State

	record    *netio.ClientRecord
	connected bool
}

// Reconnect dials the login server and sends REQ_AUTH_CHALLENGE if not
// already connected, per spec.md §4.11's reconnect timer. The rest of the
// handshake completes asynchronously as REP_AUTH_CHALLENGE and
// REP_CONNECT_SUCC/FAIL arrive through the normal dispatch loop.
func (l *loginServerConn) Reconnect() error {
	if l.connected {
		return nil
	}
	conn, err := net.DialTimeout("tcp", l.addr, 5*time.Second)
	if err != nil {
		return err
	}
	l.record = l.mgr.Register(conn)

	var zero codec.Key
	frame := codec.EncodeFrame(codec.PktReqAuthChallenge, nil, zero[:])
	if _, err := conn.Write(frame); err != nil {
		l.mgr.Disconnect(l.record.Key)
		return err
	}
	l.log.Info().Str("addr", l.addr).Msg("dialed login server, awaiting challenge")
	return nil
}

// handleRepAuthChallenge receives the login server's encrypted challenge,
// decrypts it with the shared server_key (the cipher is its own inverse
// for XorEncrypt), and replies with REQ_CONNECT carrying the recovered
// plaintext — login compares challenge_solved against the plaintext it
// stored for this connection.
func (l *loginServerConn) handleRepAuthChallenge(c *netio.ClientRecord, body []byte) *protoerr.Error {
	plaintext := append([]byte(nil), body...)
	codec.XorEncrypt(plaintext, []byte(l.serverKey))

	req := protocol.ReqConnect{
		ShardID:         l.shardID,
		NumChannels:     l.numChans,
		MaxChannelPop:   l.maxPop,
		ChallengeSolved: plaintext,
	}
	if err := c.Send(codec.PktReqConnect, protocol.EncodeReqConnect(req)); err != nil {
		return protoerr.New("shard.handleRepAuthChallenge", protoerr.Warning, err)
	}
	return nil
}

// handleRepConnectSucc completes the handshake: derive the session E key
// from the login server's timestamp and identity UUID, and record this
// connection as authenticated.
func (l *loginServerConn) handleRepConnectSucc(c *netio.ClientRecord, body []byte) *protoerr.Error {
	if len(body) < 24 {
		return protoerr.New("shard.handleRepConnectSucc", protoerr.Warning, errShortConnectSucc)
	}
	serverTime := uint64(0)
	for i := 0; i < 8; i++ {
		serverTime |= uint64(body[i]) << (8 * i)
	}
	var loginUUID uuid.UUID
	copy(loginUUID[:], body[8:24])

	key := protocol.DeriveShardSessionKey(serverTime, loginUUID, l.shardID)
	c.SetKeys(key, key)
	l.state.SetLoginServerConn(loginUUID)
	l.connected = true
	l.log.Info().Msg("shard authenticated with login server")
	return nil
}

var errShortConnectSucc = errors.New("shard: REP_CONNECT_SUCC body too short")
