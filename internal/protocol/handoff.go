package protocol

import (
	"encoding/binary"
	"time"

	"github.com/duskforge/fusioncore/internal/codec"
	"github.com/duskforge/fusioncore/internal/shardstate"
)

// ReqUpdateLoginInfo is the body Login sends a shard once it has picked a
// target for a pending shard-connection request, per spec.md §4.10.
type ReqUpdateLoginInfo struct {
	SerialKey  string
	AccountID  int64
	PCUID      int64
	FEKey      codec.Key
	ServerTime uint64
	Channel    int32
}

const serialKeyFieldLen = 32

// EncodeReqUpdateLoginInfo serializes a ReqUpdateLoginInfo body as a fixed
// 32-byte serial-key field (spec.md §6: "every packet body is a
// fixed-size C-layout record") followed by the numeric fields.
func EncodeReqUpdateLoginInfo(r ReqUpdateLoginInfo) []byte {
	buf := make([]byte, serialKeyFieldLen+8+8+codec.KeySize+8+4)
	copy(buf[:serialKeyFieldLen], r.SerialKey)
	off := serialKeyFieldLen
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(r.AccountID))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(r.PCUID))
	off += 8
	copy(buf[off:off+codec.KeySize], r.FEKey[:])
	off += codec.KeySize
	binary.LittleEndian.PutUint64(buf[off:off+8], r.ServerTime)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(r.Channel))
	return buf
}

// DecodeReqUpdateLoginInfo parses a REQ_UPDATE_LOGIN_INFO body.
func DecodeReqUpdateLoginInfo(body []byte) (ReqUpdateLoginInfo, error) {
	want := serialKeyFieldLen + 8 + 8 + codec.KeySize + 8 + 4
	if len(body) < want {
		return ReqUpdateLoginInfo{}, errShortBody
	}
	var r ReqUpdateLoginInfo
	r.SerialKey = trimNulString(body[:serialKeyFieldLen])
	off := serialKeyFieldLen
	r.AccountID = int64(binary.LittleEndian.Uint64(body[off : off+8]))
	off += 8
	r.PCUID = int64(binary.LittleEndian.Uint64(body[off : off+8]))
	off += 8
	copy(r.FEKey[:], body[off:off+codec.KeySize])
	off += codec.KeySize
	r.ServerTime = binary.LittleEndian.Uint64(body[off : off+8])
	off += 8
	r.Channel = int32(binary.LittleEndian.Uint32(body[off : off+4]))
	return r, nil
}

func trimNulString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// HandleReqUpdateLoginInfo implements the shard side of spec.md §4.10's
// hand-off: it populates login_data and returns nothing; the caller builds
// the REP_UPDATE_LOGIN_INFO_SUCC reply (RepUpdateLoginInfoSucc) itself.
func HandleReqUpdateLoginInfo(state *shardstate.State, req ReqUpdateLoginInfo, now time.Time) {
	state.PutLoginData(req.SerialKey, shardstate.LoginData{
		AccountID:  req.AccountID,
		PCUID:      req.PCUID,
		FEKey:      req.FEKey,
		ServerTime: req.ServerTime,
		Channel:    req.Channel,
		ReceivedAt: now,
	})
}

// RepUpdateLoginInfoSucc is the shard's reply, forwarded by Login to the
// waiting client as REP_SHARD_SELECT_SUCC.
type RepUpdateLoginInfoSucc struct {
	PublicAddr string
	Port       uint16
	SerialKey  string
}

const publicAddrFieldLen = 64

// EncodeRepUpdateLoginInfoSucc serializes the shard's reply.
func EncodeRepUpdateLoginInfoSucc(r RepUpdateLoginInfoSucc) []byte {
	buf := make([]byte, publicAddrFieldLen+2+serialKeyFieldLen)
	copy(buf[:publicAddrFieldLen], r.PublicAddr)
	binary.LittleEndian.PutUint16(buf[publicAddrFieldLen:publicAddrFieldLen+2], r.Port)
	copy(buf[publicAddrFieldLen+2:], r.SerialKey)
	return buf
}

// DecodeRepUpdateLoginInfoSucc parses the shard's reply.
func DecodeRepUpdateLoginInfoSucc(body []byte) (RepUpdateLoginInfoSucc, error) {
	want := publicAddrFieldLen + 2 + serialKeyFieldLen
	if len(body) < want {
		return RepUpdateLoginInfoSucc{}, errShortBody
	}
	return RepUpdateLoginInfoSucc{
		PublicAddr: trimNulString(body[:publicAddrFieldLen]),
		Port:       binary.LittleEndian.Uint16(body[publicAddrFieldLen : publicAddrFieldLen+2]),
		SerialKey:  trimNulString(body[publicAddrFieldLen+2 : want]),
	}, nil
}
