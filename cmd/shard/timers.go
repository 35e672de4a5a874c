package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/duskforge/fusioncore/internal/codec"
	"github.com/duskforge/fusioncore/internal/config"
	"github.com/duskforge/fusioncore/internal/dbadapter"
	"github.com/duskforge/fusioncore/internal/entity"
	"github.com/duskforge/fusioncore/internal/entitymap"
	"github.com/duskforge/fusioncore/internal/monitor"
	"github.com/duskforge/fusioncore/internal/netio"
	"github.com/duskforge/fusioncore/internal/protoerr"
	"github.com/duskforge/fusioncore/internal/server"
	"github.com/duskforge/fusioncore/internal/shardstate"
)

// registerShardTimers wires every timer spec.md §4.11 names onto the
// shard's TimerWheel: the fast entity-simulation tick, the 1Hz slow tick,
// the 1/min vehicle-expiry sweep, autosave, and the login-server reconnect
// loop.
func registerShardTimers(
	wheel *server.TimerWheel,
	cfg config.Config,
	world *entitymap.EntityMap,
	state *shardstate.State,
	mgr *netio.Manager,
	metrics *monitor.Metrics,
	sink *monitor.Sink,
	db *dbadapter.Adapter,
	login *loginServerConn,
) {
	wheel.Register("fast-tick", 50*time.Millisecond, true, func(now time.Time) error {
		start := time.Now()
		for _, id := range world.TickableIDs() {
			e, ok := world.Get(id)
			if !ok {
				continue // despawned since the scan began; spec.md §4.11 excludes it
			}
			if perr := e.Tick(now, world, mgr, state); perr != nil {
				logPerr(login.log, perr)
			}
		}
		metrics.TickDuration.Observe(time.Since(start).Seconds())
		metrics.EntitiesTracked.Set(float64(world.Count()))
		metrics.ConnectedClients.Set(float64(mgr.Count()))
		return nil
	})

	wheel.Register("slow-tick", time.Second, true, func(now time.Time) error {
		for _, key := range state.ExpireLoginData(now) {
			login.log.Debug().Str("serial_key", key).Msg("evicted stale login_data row")
		}
		return nil
	})

	wheel.Register("vehicle-expiry", time.Minute, false, func(now time.Time) error {
		for id, mount := range state.ExpiredVehicles(now) {
			if e, ok := world.Get(id); ok {
				if sink, ok := mgr.Resolve(e.GetID()); ok {
					_ = sink.Send(codec.PktTradeFail, nil) // generic delete/failure envelope; no dedicated item-delete packet id is in scope
				}
			}
			login.log.Info().Int64("entity", int64(id)).Int32("item_type", mount.ItemType).Msg("vehicle expired")
			state.ClearVehicle(id)
		}
		return nil
	})

	autosaveInterval := time.Duration(cfg.Shard.AutosaveInterval) * time.Minute
	if autosaveInterval <= 0 {
		autosaveInterval = 5 * time.Minute
	}
	wheel.Register("autosave", autosaveInterval, false, func(now time.Time) error {
		players := world.FindPlayers(nil)
		for _, id := range players {
			e, ok := world.Get(id)
			if !ok {
				continue
			}
			p, ok := e.(*entity.Player)
			if !ok {
				continue
			}
			blob, err := dbadapter.MarshalBlob(p)
			if err != nil {
				login.log.Warn().Err(err).Int64("pc_id", int64(id)).Msg("failed to marshal player for autosave")
				continue
			}
			db.RunAsync(func(b dbadapter.Backend) (any, error) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return nil, b.SaveBlob(ctx, "players", strconv.FormatInt(p.UID, 10), blob)
			})
		}
		return nil
	})

	reconnectInterval := time.Duration(cfg.Shard.LoginServerConnInterval) * time.Second
	if reconnectInterval <= 0 {
		reconnectInterval = 10 * time.Second
	}
	wheel.Register("login-reconnect", reconnectInterval, true, func(now time.Time) error {
		if _, connected := state.LoginServerConn(); connected {
			return nil
		}
		if err := login.Reconnect(); err != nil {
			return fmt.Errorf("login server reconnect: %w", err)
		}
		return nil
	})

	if sink != nil {
		wheel.Register("monitor-publish", 5*time.Second, false, func(now time.Time) error {
			sink.Publish(monitor.NewEvent("shard_heartbeat", map[string]string{
				"shard_id":  strconv.Itoa(int(cfg.Shard.ShardID)),
				"entities":  strconv.Itoa(world.Count()),
				"connected": strconv.Itoa(mgr.Count()),
			}))
			return nil
		})
	}
}

// logPerr logs a handler/tick error at the zerolog level matching its
// protoerr.Severity, the same mapping internal/server.Loop uses.
func logPerr(log zerolog.Logger, perr *protoerr.Error) {
	event := log.Debug()
	switch perr.Severity {
	case protoerr.Info:
		event = log.Info()
	case protoerr.Warning:
		event = log.Warn()
	case protoerr.Fatal:
		event = log.Fatal()
	}
	event.Str("op", perr.Op).Err(perr.Err).Msg("entity tick error")
}
