package protocol

import (
	"encoding/binary"
	"errors"

	"github.com/duskforge/fusioncore/internal/codec"
	"github.com/duskforge/fusioncore/internal/entitymap"
	"github.com/duskforge/fusioncore/internal/protoerr"
)

var errPlayerNotOnShard = errors.New("protocol: uid is not currently tracked on this shard")

// ReqPCExitDuplicate is sent by Login to the shard currently holding a UID
// that just logged in elsewhere, per spec.md §4.10.
type ReqPCExitDuplicate struct {
	PCUID int64
}

// EncodeReqPCExitDuplicate serializes the body.
func EncodeReqPCExitDuplicate(r ReqPCExitDuplicate) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(r.PCUID))
	return buf
}

// DecodeReqPCExitDuplicate parses the body.
func DecodeReqPCExitDuplicate(body []byte) (ReqPCExitDuplicate, error) {
	if len(body) < 8 {
		return ReqPCExitDuplicate{}, errShortBody
	}
	return ReqPCExitDuplicate{PCUID: int64(binary.LittleEndian.Uint64(body[:8]))}, nil
}

// UIDLookup resolves a persistent player UID to the live EntityID tracking
// it on this shard, if the player is currently online here.
type UIDLookup interface {
	EntityIDForUID(uid int64) (entitymap.EntityID, bool)
}

// HandleReqPCExitDuplicate implements the shard side of spec.md §4.10's
// duplicate-login eviction: locate the player, send it
// REP_PC_EXIT_DUPLICATE, and report the entity/connection that the caller
// must then disconnect.
func HandleReqPCExitDuplicate(lookup UIDLookup, clients entitymap.ClientResolver, req ReqPCExitDuplicate) (entitymap.EntityID, *protoerr.Error) {
	id, ok := lookup.EntityIDForUID(req.PCUID)
	if !ok {
		return 0, protoerr.New("protocol.HandleReqPCExitDuplicate", protoerr.Info, errPlayerNotOnShard)
	}
	if sink, ok := clients.Resolve(id); ok {
		_ = sink.Send(codec.PktRepPCExitDuplicate, nil)
	}
	return id, nil
}
