package codec

import (
	"fmt"

	"github.com/duskforge/fusioncore/internal/protoerr"
)

// Packet IDs. Values are arbitrary but stable within this module; what
// matters is that every client and server built against the same version
// of fusioncore agrees on them. Grouped by the control-plane protocol in
// spec.md §4.10 that carries them.
const (
	// Shard <-> Login authentication handshake.
	PktReqAuthChallenge PacketID = 1000 + iota
	PktRepAuthChallenge
	PktReqConnect
	PktRepConnectSucc
	PktRepConnectFail

	// Client <-> Login.
	PktReqLogin
	PktRepLoginSucc
	PktRepLoginFail
	PktRepCharInfo
	PktReqCharSelect
	PktRepCharSelectSucc
	PktReqShardSelect
	PktRepShardSelectSucc
	PktRepShardSelectFail

	// Login <-> Shard handoff.
	PktReqUpdateLoginInfo
	PktRepUpdateLoginInfoSucc
	PktReqPCEnter
	PktRepPCEnterSucc
	PktRepPCEnterFail

	// Cross-shard player search.
	PktReqPCLocation
	PktRepPCLocationSucc
	PktRepPCLocationFail

	// Duplicate-login eviction.
	PktReqPCExitDuplicate
	PktRepPCExitDuplicate

	// Buddy presence.
	PktUpdatePCStatuses
	PktReqPCBuddyState
	PktRepPCBuddyState

	// GM / ban surfacing (kept minimal; §6 ban semantics).
	PktRepPCExitSucc

	// MOTD, read on demand from login.motd_path (§6).
	PktReqMOTD
	PktRepMOTD
)

const (
	// Entity map broadcast (§4.4, §4.5, §4.6, §4.7 movement leaves).
	PktPCNew PacketID = 2000 + iota
	PktPCExit
	PktNPCEnter
	PktNPCExit
	PktNPCMove
	PktTransportationMove
	PktBroomstickMove
	PktMonkeyRideEnded

	// Trade / group control plane (§3, §4.9).
	PktTradeOffer
	PktTradeConfirm
	PktTradeCancel
	PktTradeSucc
	PktTradeFail
	PktGroupInvite
	PktGroupJoin
	PktGroupLeave
	PktGroupDisband

	// Mission tracking (§4.9 task objectives).
	PktRunningMissionFail

	// Ping/pong liveness (§4.2).
	PktPing
	PktPong
)

// ErrUnknownPacket is returned by Dispatcher.Dispatch when no handler is
// registered for a frame's packet ID. Per spec §4.1/§7 this is a Warning:
// log and drop the single packet, keep the connection.
var ErrUnknownPacket = fmt.Errorf("codec: no handler registered for packet id")

// HandlerFunc processes one decoded frame against some per-connection or
// per-server context C (the concrete type is owned by the caller: login and
// shard servers each define their own).
type HandlerFunc[C any] func(ctx C, frame Frame) *protoerr.Error

// Dispatcher maps packet IDs to handlers, per spec §4.1's "enumerated
// packet-ID maps each inbound ID to a typed handler".
type Dispatcher[C any] struct {
	handlers map[PacketID]HandlerFunc[C]
}

// NewDispatcher creates an empty dispatch table.
func NewDispatcher[C any]() *Dispatcher[C] {
	return &Dispatcher[C]{handlers: make(map[PacketID]HandlerFunc[C])}
}

// Register binds a handler to a packet ID, overwriting any prior binding.
func (d *Dispatcher[C]) Register(id PacketID, h HandlerFunc[C]) {
	d.handlers[id] = h
}

// Dispatch looks up and invokes the handler for frame.ID. An unregistered ID
// is not itself an error the caller needs special-cased handling for beyond
// what *protoerr.Error already carries: the returned error has Warning
// severity and ShouldDC is false, so the generic event-loop error handling
// in internal/server does the right thing.
func (d *Dispatcher[C]) Dispatch(ctx C, frame Frame) *protoerr.Error {
	h, ok := d.handlers[frame.ID]
	if !ok {
		return protoerr.New("dispatch", protoerr.Warning, fmt.Errorf("%w: %d", ErrUnknownPacket, frame.ID))
	}
	return h(ctx, frame)
}
