package protocol

import (
	"encoding/binary"

	"github.com/duskforge/fusioncore/internal/geom"
	"github.com/duskforge/fusioncore/internal/loginstate"
)

// ReqPCLocation is Login's fan-out request to every shard other than the
// one asking, per spec.md §4.10's cross-shard player search.
type ReqPCLocation struct {
	PCUID int64
}

// EncodeReqPCLocation serializes a ReqPCLocation body.
func EncodeReqPCLocation(r ReqPCLocation) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(r.PCUID))
	return buf
}

// DecodeReqPCLocation parses a REQ_PC_LOCATION body.
func DecodeReqPCLocation(body []byte) (ReqPCLocation, error) {
	if len(body) < 8 {
		return ReqPCLocation{}, errShortBody
	}
	return ReqPCLocation{PCUID: int64(binary.LittleEndian.Uint64(body[:8]))}, nil
}

// PCLocationReply is a target shard's answer to REQ_PC_LOCATION: either a
// success carrying the player's position, or a failure.
type PCLocationReply struct {
	PCUID   int64
	Success bool
	Pos     geom.Vec3
	MapNum  int32
}

// EncodePCLocationReply serializes a location reply (success or failure;
// Pos/MapNum are zero on failure).
func EncodePCLocationReply(r PCLocationReply) []byte {
	buf := make([]byte, 8+1+24+4)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(r.PCUID))
	buf[8] = boolByte(r.Success)
	binary.LittleEndian.PutUint64(buf[9:17], mathBits(r.Pos.X))
	binary.LittleEndian.PutUint64(buf[17:25], mathBits(r.Pos.Y))
	binary.LittleEndian.PutUint64(buf[25:33], mathBits(r.Pos.Z))
	binary.LittleEndian.PutUint32(buf[33:37], uint32(r.MapNum))
	return buf
}

// mathBits mirrors internal/entity's fixed-point wire convention for a
// float64 coordinate: multiply by 1000 and reinterpret as a signed int64,
// avoiding raw float reinterpretation across platforms.
func mathBits(v float64) uint64 {
	return uint64(int64(v * 1000))
}

// DecodePCLocationReply parses a location reply body.
func DecodePCLocationReply(body []byte) (PCLocationReply, error) {
	if len(body) < 37 {
		return PCLocationReply{}, errShortBody
	}
	return PCLocationReply{
		PCUID:   int64(binary.LittleEndian.Uint64(body[0:8])),
		Success: body[8] != 0,
		Pos: geom.Vec3{
			X: float64(int64(binary.LittleEndian.Uint64(body[9:17]))) / 1000,
			Y: float64(int64(binary.LittleEndian.Uint64(body[17:25]))) / 1000,
			Z: float64(int64(binary.LittleEndian.Uint64(body[25:33]))) / 1000,
		},
		MapNum: int32(binary.LittleEndian.Uint32(body[33:37])),
	}, nil
}

// SearchTargets begins a cross-shard search and reports which shards the
// caller must now send ReqPCLocation to.
func SearchTargets(registry *loginstate.Registry, reqShard loginstate.ShardID, reqPCID int64) ([]loginstate.ShardID, bool) {
	targets, perr := registry.StartSearch(reqShard, reqPCID)
	return targets, perr == nil
}

// SearchResult folds one target shard's reply into the registry's pending
// search and reports whether the whole search is now complete.
func SearchResult(registry *loginstate.Registry, reqShard loginstate.ShardID, reqPCID int64, fromShard loginstate.ShardID, reply PCLocationReply) (done bool, found PCLocationReply) {
	complete, succeeded := registry.ResolveSearch(reqShard, reqPCID, fromShard, reply.Success)
	if complete && succeeded {
		return true, reply
	}
	return complete, PCLocationReply{}
}
