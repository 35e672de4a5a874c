package main

import (
	"encoding/binary"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/duskforge/fusioncore/internal/codec"
	"github.com/duskforge/fusioncore/internal/loginstate"
	"github.com/duskforge/fusioncore/internal/netio"
	"github.com/duskforge/fusioncore/internal/protoerr"
	"github.com/duskforge/fusioncore/internal/protocol"
)

// searchOrigin identifies one in-flight cross-shard search by the shard that
// asked and the uid it asked about — the connection-routing half of spec.md
// §4.10's search protocol that stays outside internal/loginstate because it
// is wiring, not business state the registry needs to reason about.
type searchOrigin struct {
	reqShard loginstate.ShardID
	reqPCID  int64
}

// loginServer holds every piece of state the dispatcher handlers close
// over. It plays the role the teacher's Manager struct plays for Discord
// gateway events: the single owner of the session tables, wired into
// per-packet-ID closures registered on the event loop's Dispatcher.
type loginServer struct {
	registry  *loginstate.Registry
	store     *accountStore
	presence  *loginstate.PresenceCache
	mgr       *netio.Manager
	log       zerolog.Logger
	serverKey string
	identity  uuid.UUID

	genSerialKey func() string
	motdPath     string

	accounts map[netio.ConnKey]loginstate.AccountID
	searches map[searchOrigin]netio.ConnKey

	// pendingHandoff maps a not-yet-confirmed serial-key to the client
	// connection awaiting REP_SHARD_SELECT_SUCC, populated by the 250ms
	// shard-connection-request timer and consumed once the target shard
	// acknowledges with REP_UPDATE_LOGIN_INFO_SUCC.
	pendingHandoff map[string]netio.ConnKey
}

func newLoginServer(registry *loginstate.Registry, store *accountStore, presence *loginstate.PresenceCache, mgr *netio.Manager, log zerolog.Logger, serverKey, motdPath string, genSerialKey func() string) *loginServer {
	return &loginServer{
		registry:       registry,
		store:          store,
		presence:       presence,
		mgr:            mgr,
		log:            log,
		serverKey:      serverKey,
		identity:       uuid.New(),
		genSerialKey:   genSerialKey,
		motdPath:       motdPath,
		accounts:       make(map[netio.ConnKey]loginstate.AccountID),
		searches:       make(map[searchOrigin]netio.ConnKey),
		pendingHandoff: make(map[string]netio.ConnKey),
	}
}

// register wires every packet ID this process handles onto disp, per
// spec.md §4.1's "enumerated packet-ID maps each inbound ID to a typed
// handler".
func (l *loginServer) register(disp *codec.Dispatcher[*netio.ClientRecord]) {
	disp.Register(codec.PktPing, func(c *netio.ClientRecord, frame codec.Frame) *protoerr.Error {
		return nil
	})

	disp.Register(codec.PktReqAuthChallenge, l.handleReqAuthChallenge)
	disp.Register(codec.PktReqConnect, l.handleReqConnect)

	disp.Register(codec.PktReqLogin, l.handleReqLogin)
	disp.Register(codec.PktReqCharSelect, l.handleReqCharSelect)
	disp.Register(codec.PktReqShardSelect, l.handleReqShardSelect)

	disp.Register(codec.PktReqPCBuddyState, l.handleReqPCBuddyState)
	disp.Register(codec.PktRepPCLocationSucc, l.handleRepPCLocationSucc)
	disp.Register(codec.PktRepPCLocationFail, l.handleRepPCLocationFail)

	disp.Register(codec.PktUpdatePCStatuses, l.handleUpdatePCStatuses)
	disp.Register(codec.PktReqMOTD, l.handleReqMOTD)
	disp.Register(codec.PktRepUpdateLoginInfoSucc, l.handleRepUpdateLoginInfoSucc)
}

// handleReqAuthChallenge is the login side of spec.md §4.10 step 1-2: a
// shard has just dialed in; hand it a fresh random challenge, encrypted
// with the cluster's shared server_key.
func (l *loginServer) handleReqAuthChallenge(c *netio.ClientRecord, frame codec.Frame) *protoerr.Error {
	challenge := protocol.NewAuthChallenge()
	c.SetType(netio.ClientType{Kind: netio.UnauthedShardServer, Challenge: append([]byte(nil), challenge[:]...)})
	if err := c.Send(codec.PktRepAuthChallenge, challenge.Encrypt(l.serverKey)); err != nil {
		return protoerr.New("login.ReqAuthChallenge", protoerr.Warning, err)
	}
	return nil
}

// handleReqConnect completes the shard-auth handshake: verify the solved
// challenge, register the shard, and derive the shared session key.
func (l *loginServer) handleReqConnect(c *netio.ClientRecord, frame codec.Frame) *protoerr.Error {
	req, err := protocol.DecodeReqConnect(frame.Body)
	if err != nil {
		return protocol.WrapWarning("login.ReqConnect", err)
	}

	ctype := c.Type()
	var expected protocol.AuthChallenge
	copy(expected[:], ctype.Challenge)

	serverTime := uint64(time.Now().Unix())
	outcome := protocol.HandleReqConnect(req, expected, l.serverKey, serverTime, l.identity)
	if !outcome.Accepted {
		l.log.Warn().Int32("shard_id", req.ShardID).Msg("shard failed auth challenge")
		return wrapSend(c, codec.PktRepConnectFail, protocol.EncodeRepConnectFail(outcome.FailCode))
	}

	l.registry.RegisterShard(loginstate.ShardID(req.ShardID), int64(c.Key), req.NumChannels, req.MaxChannelPop)
	c.SetType(netio.ClientType{Kind: netio.ShardServer, ShardID: req.ShardID})
	c.SetKeys(outcome.SessionKey, outcome.SessionKey)
	l.log.Info().Int32("shard_id", req.ShardID).Msg("shard authenticated")

	return wrapSend(c, codec.PktRepConnectSucc, protocol.EncodeRepConnectSucc(outcome.ServerTime, outcome.LoginUUID))
}

// handleReqLogin validates credentials and, on success, opens the login
// session and replies with the character-select list.
func (l *loginServer) handleReqLogin(c *netio.ClientRecord, frame codec.Frame) *protoerr.Error {
	req, err := protocol.DecodeReqLogin(frame.Body)
	if err != nil {
		return protocol.WrapWarning("login.ReqLogin", err)
	}

	players := l.store.LoadCharacters(req.Username)
	outcome := protocol.HandleReqLogin(req, l.store, l.registry, int64(c.Key), l.genSerialKey, players)

	if outcome.Banned {
		return wrapSend(c, codec.PktRepLoginFail, encodeLoginFail(protocol.RepLoginFailBanned))
	}
	if !outcome.Success {
		return wrapSend(c, codec.PktRepLoginFail, encodeLoginFail(protocol.RepLoginFailBadCredentials))
	}

	l.accounts[c.Key] = outcome.Account
	c.SetType(netio.ClientType{Kind: netio.GameClient, SerialKey: outcome.SerialKey})

	if err := c.Send(codec.PktRepLoginSucc, protocol.EncodeRepLoginSucc(outcome.SerialKey)); err != nil {
		return protoerr.New("login.ReqLogin", protoerr.Warning, err)
	}
	for _, p := range players {
		info := protocol.CharInfo{UID: int64(p.UID), Name: p.Name, Level: p.Level}
		if err := c.Send(codec.PktRepCharInfo, protocol.EncodeCharInfo(info)); err != nil {
			return protoerr.New("login.ReqLogin", protoerr.Warning, err)
		}
	}
	return nil
}

func encodeLoginFail(code int32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(code))
	return buf
}

// handleReqCharSelect marks the session's selected character.
func (l *loginServer) handleReqCharSelect(c *netio.ClientRecord, frame codec.Frame) *protoerr.Error {
	uid, err := protocol.DecodeReqCharSelect(frame.Body)
	if err != nil {
		return protocol.WrapWarning("login.ReqCharSelect", err)
	}
	account, ok := l.accounts[c.Key]
	if !ok {
		return protoerr.New("login.ReqCharSelect", protoerr.Warning, errNoAccountForConn)
	}
	if perr := protocol.HandleReqCharSelect(l.registry, account, uid); perr != nil {
		return perr
	}
	return wrapSend(c, codec.PktRepCharSelectSucc, nil)
}

// handleReqShardSelect queues the shard-connection request the 250ms timer
// later drains.
func (l *loginServer) handleReqShardSelect(c *netio.ClientRecord, frame codec.Frame) *protoerr.Error {
	req, err := protocol.DecodeReqShardSelect(frame.Body)
	if err != nil {
		return protocol.WrapWarning("login.ReqShardSelect", err)
	}
	account, ok := l.accounts[c.Key]
	if !ok {
		return protoerr.New("login.ReqShardSelect", protoerr.Warning, errNoAccountForConn)
	}
	return protocol.HandleReqShardSelect(l.registry, account, time.Now(), req)
}

// handleReqPCBuddyState is a shard asking Login to locate a player
// cluster-wide, per spec.md §4.10's cross-shard player search. Login fans
// REQ_PC_LOCATION out to every other registered shard and remembers which
// connection to forward the eventual answer to.
func (l *loginServer) handleReqPCBuddyState(c *netio.ClientRecord, frame codec.Frame) *protoerr.Error {
	req, err := protocol.DecodeReqPCLocation(frame.Body)
	if err != nil {
		return protocol.WrapWarning("login.ReqPCBuddyState", err)
	}

	reqShard := netioClientShardID(c)
	targets, ok := protocol.SearchTargets(l.registry, reqShard, req.PCUID)
	if !ok {
		return wrapSend(c, codec.PktRepPCBuddyState, protocol.EncodePCLocationReply(protocol.PCLocationReply{PCUID: req.PCUID}))
	}
	l.searches[searchOrigin{reqShard: reqShard, reqPCID: req.PCUID}] = c.Key

	body := protocol.EncodeReqPCLocation(req)
	for _, target := range targets {
		info, ok := l.registry.Shard(target)
		if !ok {
			continue
		}
		if rec, ok := l.mgr.Get(netio.ConnKey(info.ConnKey)); ok {
			_ = rec.Send(codec.PktReqPCLocation, body)
		}
	}
	return nil
}

func (l *loginServer) handleRepPCLocationSucc(c *netio.ClientRecord, frame codec.Frame) *protoerr.Error {
	reply, err := protocol.DecodePCLocationReply(frame.Body)
	if err != nil {
		return protocol.WrapWarning("login.RepPCLocationSucc", err)
	}
	return l.resolveSearchReply(c, reply)
}

func (l *loginServer) handleRepPCLocationFail(c *netio.ClientRecord, frame codec.Frame) *protoerr.Error {
	req, err := protocol.DecodeReqPCLocation(frame.Body)
	if err != nil {
		return protocol.WrapWarning("login.RepPCLocationFail", err)
	}
	return l.resolveSearchReply(c, protocol.PCLocationReply{PCUID: req.PCUID, Success: false})
}

func (l *loginServer) resolveSearchReply(c *netio.ClientRecord, reply protocol.PCLocationReply) *protoerr.Error {
	fromShard := netioClientShardID(c)
	for origin, connKey := range l.searches {
		if origin.reqPCID != reply.PCUID {
			continue
		}
		done, found := protocol.SearchResult(l.registry, origin.reqShard, origin.reqPCID, fromShard, reply)
		if !done {
			return nil
		}
		delete(l.searches, origin)
		if rec, ok := l.mgr.Get(connKey); ok {
			_ = rec.Send(codec.PktRepPCBuddyState, protocol.EncodePCLocationReply(found))
		}
		return nil
	}
	return nil
}

// handleUpdatePCStatuses folds a shard's periodic online-player directory
// push into the registry and the advisory presence cache mirror.
func (l *loginServer) handleUpdatePCStatuses(c *netio.ClientRecord, frame codec.Frame) *protoerr.Error {
	statuses, err := protocol.DecodeUpdatePCStatuses(frame.Body)
	if err != nil {
		return protocol.WrapWarning("login.UpdatePCStatuses", err)
	}
	shard := netioClientShardID(c)
	protocol.ApplyUpdatePCStatuses(l.registry, shard, statuses)
	if l.presence != nil {
		if info, ok := l.registry.Shard(shard); ok {
			l.presence.MirrorDirectory(shard, info.Players)
		}
	}
	return nil
}

// handleReqMOTD reads login.motd_path on demand (§6: "MOTD file read on
// demand") and sends its contents back as a single REP_MOTD frame. A
// missing file is not an error worth disconnecting over: reply empty.
func (l *loginServer) handleReqMOTD(c *netio.ClientRecord, frame codec.Frame) *protoerr.Error {
	text, err := os.ReadFile(l.motdPath)
	if err != nil {
		return wrapSend(c, codec.PktRepMOTD, nil)
	}
	return wrapSend(c, codec.PktRepMOTD, text)
}

// handleRepUpdateLoginInfoSucc completes spec.md §4.10's hand-off: forward
// the shard's acknowledgement to the client that is still waiting on its
// login-server connection, then drop that connection.
func (l *loginServer) handleRepUpdateLoginInfoSucc(c *netio.ClientRecord, frame codec.Frame) *protoerr.Error {
	rep, err := protocol.DecodeRepUpdateLoginInfoSucc(frame.Body)
	if err != nil {
		return protocol.WrapWarning("login.RepUpdateLoginInfoSucc", err)
	}
	clientKey, ok := l.pendingHandoff[rep.SerialKey]
	if !ok {
		return nil
	}
	delete(l.pendingHandoff, rep.SerialKey)

	client, ok := l.mgr.Get(clientKey)
	if !ok {
		return nil
	}
	if err := client.Send(codec.PktRepShardSelectSucc, protocol.EncodeRepUpdateLoginInfoSucc(rep)); err != nil {
		return protoerr.New("login.RepUpdateLoginInfoSucc", protoerr.Warning, err)
	}
	client.DisconnectPending = true
	return nil
}

func netioClientShardID(c *netio.ClientRecord) loginstate.ShardID {
	return loginstate.ShardID(c.Type().ShardID)
}

func wrapSend(c *netio.ClientRecord, id codec.PacketID, body []byte) *protoerr.Error {
	if err := c.Send(id, body); err != nil {
		return protoerr.New("login.send", protoerr.Warning, err)
	}
	return nil
}
