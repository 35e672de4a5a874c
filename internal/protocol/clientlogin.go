package protocol

import (
	"encoding/binary"
	"time"

	"github.com/duskforge/fusioncore/internal/loginstate"
	"github.com/duskforge/fusioncore/internal/protoerr"
)

// ReqLogin is the body of REQ_LOGIN, per spec.md §4.10.
type ReqLogin struct {
	Username      string
	Password      string
	ClientVersion int32
}

const (
	loginUsernameFieldLen = 32
	loginPasswordFieldLen = 32
)

// EncodeReqLogin serializes a ReqLogin body as two fixed-size nul-padded
// string fields followed by the client version, per spec.md §6's
// fixed-size-C-layout-record convention.
func EncodeReqLogin(r ReqLogin) []byte {
	buf := make([]byte, loginUsernameFieldLen+loginPasswordFieldLen+4)
	copy(buf[:loginUsernameFieldLen], r.Username)
	copy(buf[loginUsernameFieldLen:loginUsernameFieldLen+loginPasswordFieldLen], r.Password)
	binary.LittleEndian.PutUint32(buf[loginUsernameFieldLen+loginPasswordFieldLen:], uint32(r.ClientVersion))
	return buf
}

// DecodeReqLogin parses a REQ_LOGIN body.
func DecodeReqLogin(body []byte) (ReqLogin, error) {
	want := loginUsernameFieldLen + loginPasswordFieldLen + 4
	if len(body) < want {
		return ReqLogin{}, errShortBody
	}
	return ReqLogin{
		Username:      trimNulString(body[:loginUsernameFieldLen]),
		Password:      trimNulString(body[loginUsernameFieldLen : loginUsernameFieldLen+loginPasswordFieldLen]),
		ClientVersion: int32(binary.LittleEndian.Uint32(body[loginUsernameFieldLen+loginPasswordFieldLen : want])),
	}, nil
}

// RepLoginFail error codes, per spec.md §4.10.
const (
	RepLoginFailBadCredentials int32 = 1
	RepLoginFailBanned         int32 = 2
)

// CharInfo is one of the account's playable characters, sent back as
// REP_CHAR_INFO*N after a successful REQ_LOGIN.
type CharInfo struct {
	UID   int64
	Name  string
	Level int32
}

const charNameFieldLen = 32
const charInfoSize = 8 + charNameFieldLen + 4

// EncodeCharInfo serializes one REP_CHAR_INFO record.
func EncodeCharInfo(c CharInfo) []byte {
	buf := make([]byte, charInfoSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(c.UID))
	copy(buf[8:8+charNameFieldLen], c.Name)
	binary.LittleEndian.PutUint32(buf[8+charNameFieldLen:charInfoSize], uint32(c.Level))
	return buf
}

// DecodeCharInfo parses a REP_CHAR_INFO record.
func DecodeCharInfo(body []byte) (CharInfo, error) {
	if len(body) < charInfoSize {
		return CharInfo{}, errShortBody
	}
	return CharInfo{
		UID:   int64(binary.LittleEndian.Uint64(body[0:8])),
		Name:  trimNulString(body[8 : 8+charNameFieldLen]),
		Level: int32(binary.LittleEndian.Uint32(body[8+charNameFieldLen : charInfoSize])),
	}, nil
}

const repLoginSuccSerialKeyLen = 32

// EncodeRepLoginSucc serializes REP_LOGIN_SUCC's lone serial-key field.
func EncodeRepLoginSucc(serialKey string) []byte {
	buf := make([]byte, repLoginSuccSerialKeyLen)
	copy(buf, serialKey)
	return buf
}

// EncodeReqCharSelect serializes REQ_CHAR_SELECT's lone uid field.
func EncodeReqCharSelect(uid loginstate.PlayerUID) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(uid))
	return buf
}

// DecodeReqCharSelect parses a REQ_CHAR_SELECT body.
func DecodeReqCharSelect(body []byte) (loginstate.PlayerUID, error) {
	if len(body) < 8 {
		return 0, errShortBody
	}
	return loginstate.PlayerUID(binary.LittleEndian.Uint64(body[:8])), nil
}

// CredentialChecker validates a username/password pair against the
// account store. internal/dbadapter's Backend is the production
// implementation; a stub in tests can return any fixed AccountID.
type CredentialChecker interface {
	CheckCredentials(username, password string) (account loginstate.AccountID, banned bool, banReason string, ok bool)
}

// LoginOutcome is what HandleReqLogin hands back for the caller to turn
// into REP_LOGIN_SUCC/REP_CHAR_INFO*N or a ban/failure reply.
type LoginOutcome struct {
	Success    bool
	Banned     bool
	BanReason  string
	Account    loginstate.AccountID
	SerialKey  string
}

// HandleReqLogin validates credentials and, on success, creates a login
// session and assigns the per-client serial_key that switches the
// connection to FE-encryption (spec.md §4.10).
func HandleReqLogin(req ReqLogin, checker CredentialChecker, registry *loginstate.Registry, connKey int64, genSerialKey func() string, players map[loginstate.PlayerUID]loginstate.LoadedPlayer) LoginOutcome {
	account, banned, reason, ok := checker.CheckCredentials(req.Username, req.Password)
	if banned {
		return LoginOutcome{Banned: true, BanReason: reason}
	}
	if !ok {
		return LoginOutcome{Success: false}
	}

	serial := genSerialKey()
	registry.Login(account, connKey, players)
	return LoginOutcome{Success: true, Account: account, SerialKey: serial}
}

// HandleReqCharSelect implements REQ_CHAR_SELECT: mark the selected
// character on the account's session.
func HandleReqCharSelect(registry *loginstate.Registry, account loginstate.AccountID, uid loginstate.PlayerUID) *protoerr.Error {
	return registry.SelectCharacter(account, uid)
}

// ReqShardSelect is the body of REQ_SHARD_SELECT, per spec.md §4.10. A
// zero ShardID/Channel with the Has* flag clear means "no preference".
type ReqShardSelect struct {
	ShardID    int32
	HasShardID bool
	Channel    int32
	HasChannel bool
}

// EncodeReqShardSelect serializes a ReqShardSelect body.
func EncodeReqShardSelect(r ReqShardSelect) []byte {
	buf := make([]byte, 10)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.ShardID))
	buf[4] = boolByte(r.HasShardID)
	binary.LittleEndian.PutUint32(buf[5:9], uint32(r.Channel))
	buf[9] = boolByte(r.HasChannel)
	return buf
}

// DecodeReqShardSelect parses a REQ_SHARD_SELECT body.
func DecodeReqShardSelect(body []byte) (ReqShardSelect, error) {
	if len(body) < 10 {
		return ReqShardSelect{}, errShortBody
	}
	return ReqShardSelect{
		ShardID:    int32(binary.LittleEndian.Uint32(body[0:4])),
		HasShardID: body[4] != 0,
		Channel:    int32(binary.LittleEndian.Uint32(body[5:9])),
		HasChannel: body[9] != 0,
	}, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// HandleReqShardSelect queues the shard-connection request (spec.md §4.8);
// the 250ms timer (loginstate.Registry.ProcessShardConnectionRequests)
// picks it up and drives the actual hand-off.
func HandleReqShardSelect(registry *loginstate.Registry, account loginstate.AccountID, now time.Time, req ReqShardSelect) *protoerr.Error {
	return registry.RequestShard(account, now, loginstate.ShardID(req.ShardID), req.HasShardID, req.Channel, req.HasChannel)
}
