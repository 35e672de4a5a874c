package protocol

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskforge/fusioncore/internal/codec"
	"github.com/duskforge/fusioncore/internal/entitymap"
	"github.com/duskforge/fusioncore/internal/geom"
	"github.com/duskforge/fusioncore/internal/loginstate"
	"github.com/duskforge/fusioncore/internal/shardstate"
)

func TestHandleReqConnectSucceedsOnMatchingChallenge(t *testing.T) {
	challenge := NewAuthChallenge()
	serverKey := "cluster-secret"
	loginUUID := uuid.New()

	req := ReqConnect{
		ShardID:         3,
		NumChannels:     4,
		MaxChannelPop:   100,
		ChallengeSolved: challenge[:],
	}

	outcome := HandleReqConnect(req, challenge, serverKey, 1000, loginUUID)
	require.True(t, outcome.Accepted)

	shardKey := DeriveShardSessionKey(outcome.ServerTime, loginUUID, req.ShardID)
	assert.Equal(t, outcome.SessionKey, shardKey)
}

func TestHandleReqConnectFailsOnChallengeMismatch(t *testing.T) {
	challenge := NewAuthChallenge()
	req := ReqConnect{ShardID: 1, ChallengeSolved: []byte("wrong")}

	outcome := HandleReqConnect(req, challenge, "key", 1, uuid.New())
	assert.False(t, outcome.Accepted)
	assert.Equal(t, RepConnectFailChallengeMismatch, outcome.FailCode)
}

func TestReqConnectRoundTrips(t *testing.T) {
	r := ReqConnect{ShardID: 5, NumChannels: 2, MaxChannelPop: 50, ChallengeSolved: []byte{1, 2, 3, 4}}
	decoded, err := DecodeReqConnect(EncodeReqConnect(r))
	require.NoError(t, err)
	assert.Equal(t, r, decoded)
}

func TestReqUpdateLoginInfoRoundTrips(t *testing.T) {
	r := ReqUpdateLoginInfo{
		SerialKey:  "abc123",
		AccountID:  7,
		PCUID:      42,
		FEKey:      codec.Key{1, 2, 3, 4, 5, 6, 7, 8},
		ServerTime: 99999,
		Channel:    2,
	}
	decoded, err := DecodeReqUpdateLoginInfo(EncodeReqUpdateLoginInfo(r))
	require.NoError(t, err)
	assert.Equal(t, r, decoded)
}

func TestHandleReqUpdateLoginInfoPopulatesLoginData(t *testing.T) {
	state := shardstate.NewState(entitymap.NewEntityMap(100, 1), 5, 30*time.Second)
	req := ReqUpdateLoginInfo{SerialKey: "serial-xyz", PCUID: 9, ServerTime: 55, Channel: 1}
	now := time.Now()

	HandleReqUpdateLoginInfo(state, req, now)

	result, perr := state.PlayerEnter("serial-xyz", 10, func() entitymap.EntityID { return 1 }, nil)
	require.Nil(t, perr)
	assert.Equal(t, codec.GenKey(55, 1, 10), result.SessionKey)
}

func TestPCLocationReplyRoundTrips(t *testing.T) {
	r := PCLocationReply{PCUID: 3, Success: true, Pos: geom.Vec3{X: 1.5, Y: -2.25, Z: 0}, MapNum: 7}
	decoded, err := DecodePCLocationReply(EncodePCLocationReply(r))
	require.NoError(t, err)
	assert.Equal(t, r.PCUID, decoded.PCUID)
	assert.Equal(t, r.Success, decoded.Success)
	assert.InDelta(t, r.Pos.X, decoded.Pos.X, 0.001)
	assert.InDelta(t, r.Pos.Y, decoded.Pos.Y, 0.001)
	assert.Equal(t, r.MapNum, decoded.MapNum)
}

func TestSearchCompletesOnFirstSuccessAcrossFanOut(t *testing.T) {
	registry := loginstate.NewRegistry(20 * time.Second)
	registry.RegisterShard(2, 0, 1, 10)
	registry.RegisterShard(3, 0, 1, 10)

	targets, ok := SearchTargets(registry, 1, 77)
	require.True(t, ok)
	assert.ElementsMatch(t, []loginstate.ShardID{2, 3}, targets)

	done, found := SearchResult(registry, 1, 77, 2, PCLocationReply{Success: false})
	assert.False(t, done)
	assert.Zero(t, found)

	done, found = SearchResult(registry, 1, 77, 3, PCLocationReply{Success: true, PCUID: 77, MapNum: 4})
	assert.True(t, done)
	assert.Equal(t, int32(4), found.MapNum)
}

type stubUIDLookup struct {
	id entitymap.EntityID
	ok bool
}

func (s stubUIDLookup) EntityIDForUID(uid int64) (entitymap.EntityID, bool) { return s.id, s.ok }

type stubClientResolver struct {
	sink entitymap.ClientSink
	ok   bool
}

func (s stubClientResolver) Resolve(id entitymap.EntityID) (entitymap.ClientSink, bool) {
	return s.sink, s.ok
}

type stubSink struct {
	sent []codec.PacketID
}

func (s *stubSink) Send(id codec.PacketID, body []byte) error {
	s.sent = append(s.sent, id)
	return nil
}

func TestHandleReqPCExitDuplicateSendsAndReturnsEntity(t *testing.T) {
	sink := &stubSink{}
	lookup := stubUIDLookup{id: 12, ok: true}
	resolver := stubClientResolver{sink: sink, ok: true}

	id, perr := HandleReqPCExitDuplicate(lookup, resolver, ReqPCExitDuplicate{PCUID: 55})
	require.Nil(t, perr)
	assert.Equal(t, entitymap.EntityID(12), id)
	assert.Equal(t, []codec.PacketID{codec.PktRepPCExitDuplicate}, sink.sent)
}

func TestHandleReqPCExitDuplicateFailsWhenNotOnShard(t *testing.T) {
	_, perr := HandleReqPCExitDuplicate(stubUIDLookup{ok: false}, stubClientResolver{}, ReqPCExitDuplicate{PCUID: 1})
	require.NotNil(t, perr)
}

type stubChecker struct {
	account   loginstate.AccountID
	banned    bool
	banReason string
	ok        bool
}

func (s stubChecker) CheckCredentials(username, password string) (loginstate.AccountID, bool, string, bool) {
	return s.account, s.banned, s.banReason, s.ok
}

func TestHandleReqLoginCreatesSessionOnSuccess(t *testing.T) {
	registry := loginstate.NewRegistry(20 * time.Second)
	checker := stubChecker{account: 9, ok: true}

	outcome := HandleReqLogin(ReqLogin{Username: "u", Password: "p"}, checker, registry, 1, func() string { return "serial" }, nil)
	require.True(t, outcome.Success)
	assert.Equal(t, loginstate.AccountID(9), outcome.Account)

	_, ok := registry.Session(9)
	assert.True(t, ok)
}

func TestHandleReqLoginReportsBan(t *testing.T) {
	registry := loginstate.NewRegistry(20 * time.Second)
	checker := stubChecker{banned: true, banReason: "cheating"}

	outcome := HandleReqLogin(ReqLogin{}, checker, registry, 1, func() string { return "serial" }, nil)
	assert.True(t, outcome.Banned)
	assert.Equal(t, "cheating", outcome.BanReason)
}

func TestHandleReqShardSelectQueuesRequest(t *testing.T) {
	registry := loginstate.NewRegistry(20 * time.Second)
	registry.Login(1, 5, nil)

	perr := HandleReqShardSelect(registry, 1, time.Now(), ReqShardSelect{HasChannel: true, Channel: 3})
	require.Nil(t, perr)

	session, _ := registry.Session(1)
	require.NotNil(t, session.PendingShard)
	assert.Equal(t, int32(3), session.PendingShard.Channel)
}

func TestReqShardSelectRoundTrips(t *testing.T) {
	r := ReqShardSelect{ShardID: 2, HasShardID: true, Channel: 4, HasChannel: true}
	decoded, err := DecodeReqShardSelect(EncodeReqShardSelect(r))
	require.NoError(t, err)
	assert.Equal(t, r, decoded)
}

func TestUpdatePCStatusesRoundTripsAndFeedsDirectory(t *testing.T) {
	statuses := []PCStatus{{UID: 1, Name: "Alice", Channel: 2}, {UID: 2, Name: "Bob", Channel: 1}}
	decoded, err := DecodeUpdatePCStatuses(EncodeUpdatePCStatuses(statuses))
	require.NoError(t, err)
	assert.Equal(t, statuses, decoded)

	registry := loginstate.NewRegistry(time.Second)
	registry.RegisterShard(1, 0, 1, 10)
	ApplyUpdatePCStatuses(registry, 1, decoded)

	online, shard := BuddyPresence(registry, 1)
	assert.True(t, online)
	assert.Equal(t, loginstate.ShardID(1), shard)

	online, _ = BuddyPresence(registry, 999)
	assert.False(t, online)
}

func TestReqLoginRoundTrips(t *testing.T) {
	r := ReqLogin{Username: "alice", Password: "hunter2", ClientVersion: 7}
	decoded, err := DecodeReqLogin(EncodeReqLogin(r))
	require.NoError(t, err)
	assert.Equal(t, r, decoded)
}

func TestCharInfoRoundTrips(t *testing.T) {
	c := CharInfo{UID: 42, Name: "Questor", Level: 30}
	decoded, err := DecodeCharInfo(EncodeCharInfo(c))
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
}

func TestReqCharSelectRoundTrips(t *testing.T) {
	uid, err := DecodeReqCharSelect(EncodeReqCharSelect(loginstate.PlayerUID(9)))
	require.NoError(t, err)
	assert.Equal(t, loginstate.PlayerUID(9), uid)
}

func TestEncodeRepLoginSuccPadsAndTrims(t *testing.T) {
	body := EncodeRepLoginSucc("serial-abc")
	assert.Len(t, body, repLoginSuccSerialKeyLen)
	assert.Equal(t, "serial-abc", trimNulString(body))
}

func TestEncodeRepConnectSuccRoundTrips(t *testing.T) {
	loginUUID := uuid.New()
	body := EncodeRepConnectSucc(123456, loginUUID)
	require.Len(t, body, 24)
	assert.Equal(t, uint64(123456), binary.LittleEndian.Uint64(body[:8]))
	var got uuid.UUID
	copy(got[:], body[8:])
	assert.Equal(t, loginUUID, got)
}

func TestEncodeRepConnectFailRoundTrips(t *testing.T) {
	body := EncodeRepConnectFail(RepConnectFailChallengeMismatch)
	require.Len(t, body, 4)
	assert.Equal(t, uint32(RepConnectFailChallengeMismatch), binary.LittleEndian.Uint32(body))
}
