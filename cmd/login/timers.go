package main

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/duskforge/fusioncore/internal/codec"
	"github.com/duskforge/fusioncore/internal/loginstate"
	"github.com/duskforge/fusioncore/internal/monitor"
	"github.com/duskforge/fusioncore/internal/netio"
	"github.com/duskforge/fusioncore/internal/protocol"
	"github.com/duskforge/fusioncore/internal/server"
)

// registerLoginTimers wires spec.md §4.8's 250ms shard-connection-request
// processor plus the optional monitor heartbeat onto wheel.
func registerLoginTimers(wheel *server.TimerWheel, registry *loginstate.Registry, login *loginServer, metrics *monitor.Metrics, sink *monitor.Sink) {
	wheel.Register("shard-connection-requests", 250*time.Millisecond, true, func(now time.Time) error {
		serverTime := uint64(now.Unix())
		updates, failures := registry.ProcessShardConnectionRequests(now, genSerialKey, serverTime)
		metrics.ConnectedClients.Set(float64(login.mgr.Count()))

		for _, u := range updates {
			target, ok := registry.Shard(u.TargetShard)
			if !ok {
				continue
			}
			session, ok := registry.Session(u.Account)
			if !ok {
				continue
			}
			login.pendingHandoff[u.SerialKey] = netio.ConnKey(session.ConnKey)

			req := protocol.ReqUpdateLoginInfo{
				SerialKey:  u.SerialKey,
				AccountID:  int64(u.Account),
				PCUID:      int64(u.PCUID),
				FEKey:      feKeyFor(u.ServerTime, u.Account, u.PCUID),
				ServerTime: u.ServerTime,
				Channel:    u.Channel,
			}
			if rec, ok := login.mgr.Get(netio.ConnKey(target.ConnKey)); ok {
				_ = rec.Send(codec.PktReqUpdateLoginInfo, protocol.EncodeReqUpdateLoginInfo(req))
			}
		}

		for _, f := range failures {
			session, ok := registry.Session(f.Account)
			if !ok {
				continue
			}
			if rec, ok := login.mgr.Get(netio.ConnKey(session.ConnKey)); ok {
				_ = rec.Send(codec.PktRepShardSelectFail, encodeLoginFail(f.Code))
			}
		}
		return nil
	})

	if sink != nil {
		wheel.Register("monitor-publish", 5*time.Second, false, func(now time.Time) error {
			sink.Publish(monitor.NewEvent("login_heartbeat", map[string]string{
				"connections": strconv.Itoa(login.mgr.Count()),
			}))
			return nil
		})
	}
}

// feKeyFor derives the FE key Login hands a shard in REQ_UPDATE_LOGIN_INFO.
// Spec.md §4.10 only says the session E key is derived from
// (server_time, pc_id+1, fusion_matter+1); the FE key handed to the shard
// is Login's own derivation over (server_time, account_id+1, pc_uid+1),
// following the same gen_key convention so both sides stay deterministic
// and reproducible from the same inputs forwarded on the wire.
func feKeyFor(serverTime uint64, account loginstate.AccountID, pcUID loginstate.PlayerUID) codec.Key {
	return codec.GenKey(serverTime, int32(account), int32(pcUID))
}

// genSerialKey draws the per-hand-off serial key the client reconnects with,
// per spec.md §4.10.
func genSerialKey() string {
	return uuid.New().String()
}
