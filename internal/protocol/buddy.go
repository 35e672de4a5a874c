package protocol

import (
	"encoding/binary"

	"github.com/duskforge/fusioncore/internal/loginstate"
)

const buddyNameFieldLen = 32

// PCStatus is one player's entry in the periodic UPDATE_PC_STATUSES push a
// shard sends Login, per spec.md §4.10.
type PCStatus struct {
	UID     int64
	Name    string
	Channel int32
}

const pcStatusSize = 8 + buddyNameFieldLen + 4

// EncodeUpdatePCStatuses serializes the shard's full online-player
// directory as a count header followed by fixed-size trailer records
// (spec.md §6's "header packet containing a count N followed by N
// fixed-size trailer records in the same frame").
func EncodeUpdatePCStatuses(statuses []PCStatus) []byte {
	buf := make([]byte, 4+len(statuses)*pcStatusSize)
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(statuses)))
	off := 4
	for _, s := range statuses {
		binary.LittleEndian.PutUint64(buf[off:off+8], uint64(s.UID))
		copy(buf[off+8:off+8+buddyNameFieldLen], s.Name)
		binary.LittleEndian.PutUint32(buf[off+8+buddyNameFieldLen:off+pcStatusSize], uint32(s.Channel))
		off += pcStatusSize
	}
	return buf
}

// DecodeUpdatePCStatuses parses an UPDATE_PC_STATUSES body.
func DecodeUpdatePCStatuses(body []byte) ([]PCStatus, error) {
	if len(body) < 4 {
		return nil, errShortBody
	}
	count := binary.LittleEndian.Uint32(body[:4])
	want := 4 + int(count)*pcStatusSize
	if len(body) < want {
		return nil, errShortBody
	}
	out := make([]PCStatus, count)
	off := 4
	for i := range out {
		out[i] = PCStatus{
			UID:     int64(binary.LittleEndian.Uint64(body[off : off+8])),
			Name:    trimNulString(body[off+8 : off+8+buddyNameFieldLen]),
			Channel: int32(binary.LittleEndian.Uint32(body[off+8+buddyNameFieldLen : off+pcStatusSize])),
		}
		off += pcStatusSize
	}
	return out, nil
}

// ApplyUpdatePCStatuses folds one shard's directory push into Login's
// player->shard map.
func ApplyUpdatePCStatuses(registry *loginstate.Registry, shard loginstate.ShardID, statuses []PCStatus) {
	players := make(map[loginstate.PlayerUID]loginstate.PlayerMetadata, len(statuses))
	for _, s := range statuses {
		uid := loginstate.PlayerUID(s.UID)
		players[uid] = loginstate.PlayerMetadata{UID: uid, Name: s.Name, Channel: s.Channel}
	}
	registry.UpdateDirectory(shard, players)
}

// BuddyPresence reports whether uid is online anywhere in the cluster —
// "coarse, not positional" per spec.md §4.10.
func BuddyPresence(registry *loginstate.Registry, uid loginstate.PlayerUID) (online bool, shard loginstate.ShardID) {
	shard, ok := registry.LocatePlayer(uid)
	return ok, shard
}
