// Command shard runs one fusioncore shard server: the gameplay simulation
// process that clients connect to after the login server hands them off,
// per spec.md §2. It owns the entity map, the per-shard session tables,
// and an outbound connection back to the login server for the shard-auth
// handshake and control-plane traffic from spec.md §4.10.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	jsoniterator "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/duskforge/fusioncore/internal/codec"
	"github.com/duskforge/fusioncore/internal/config"
	"github.com/duskforge/fusioncore/internal/dbadapter"
	"github.com/duskforge/fusioncore/internal/entity"
	"github.com/duskforge/fusioncore/internal/entitymap"
	"github.com/duskforge/fusioncore/internal/monitor"
	"github.com/duskforge/fusioncore/internal/netio"
	"github.com/duskforge/fusioncore/internal/protoerr"
	"github.com/duskforge/fusioncore/internal/protocol"
	"github.com/duskforge/fusioncore/internal/server"
	"github.com/duskforge/fusioncore/internal/shardstate"
)

var jsoniter = jsoniterator.ConfigCompatibleWithStandardLibrary

func main() {
	os.Exit(run())
}

func run() int {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Stamp}).
		With().Timestamp().Str("role", "shard").Logger()

	cfg, err := config.Load(config.PathFromArgs(os.Args), log)
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return 1
	}

	backend, err := dialBackend(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("database unreachable")
		return 1
	}
	db := dbadapter.NewAdapter(backend, 64, log)
	go db.Run()
	defer db.Close()

	world := entitymap.NewEntityMap(100, cfg.Shard.VisibilityRange)
	state := shardstate.NewState(world, 20, 30*time.Second)

	mgr := netio.NewManager(log, 256)
	if err := mgr.Listen(cfg.Shard.ListenAddr); err != nil {
		log.Error().Err(err).Msg("failed to bind listen address")
		return 1
	}
	log.Info().Str("addr", mgr.Addr().String()).Msg("shard listening")

	metrics := monitor.NewMetrics(prometheus.DefaultRegisterer, "shard")
	var sink *monitor.Sink
	if cfg.Shard.MonitorURL != "" {
		sink = monitor.NewSink(cfg.Shard.MonitorURL, cfg.Shard.MonitorSubject, "fusioncore", log)
		go func() {
			if err := sink.Run(fmt.Sprintf("shard-%d", cfg.Shard.ShardID)); err != nil {
				log.Warn().Err(err).Msg("monitor sink exited")
			}
		}()
		defer sink.Close()
		go serveMetrics(cfg.Shard.MonitorURL, log)
	}

	disp := codec.NewDispatcher[*netio.ClientRecord]()

	login := &loginServerConn{
		addr:      cfg.Shard.LoginServerAddr,
		serverKey: cfg.General.ServerKey,
		shardID:   cfg.Shard.ShardID,
		numChans:  int32(cfg.Shard.NumChannels),
		maxPop:    int32(cfg.Shard.MaxChannelPop),
		log:       log,
		mgr:       mgr,
		state:     state,
	}
	registerShardHandlers(disp, world, state, mgr, login, cfg.Shard.ExternalAddr)

	loop := &server.Loop[*netio.ClientRecord]{
		Manager:       mgr,
		Dispatcher:    disp,
		Timers:        server.NewTimerWheel(),
		Log:           log,
		PollTimeout:   50 * time.Millisecond,
		LiveCheckTime: time.Duration(cfg.General.LiveCheckTime) * time.Second,
		CtxFor: func(key netio.ConnKey) *netio.ClientRecord {
			rec, _ := mgr.Get(key)
			return rec
		},
		Ping: func(c *netio.ClientRecord) error { return c.Send(codec.PktPing, nil) },
		OnDisconnect: func(key netio.ConnKey, ctype netio.ClientType) {
			if ctype.Kind == netio.GameClient && ctype.HasPCID {
				if e, ok := world.Untrack(ctype.PCID); ok {
					_ = e.Cleanup(world, mgr, state)
				}
				state.CleanupPlayer(ctype.PCID)
			}
			if ctype.Kind == netio.ShardServer || ctype.Kind == netio.UnauthedShardServer {
				login.connected = false
			}
		},
	}

	registerShardTimers(loop.Timers, cfg, world, state, mgr, metrics, sink, db, login)

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("shutting down")
		close(stop)
	}()

	loop.Run(stop)
	return 0
}

func dialBackend(cfg config.Config, log zerolog.Logger) (dbadapter.Backend, error) {
	if cfg.General.DBHost == "" {
		log.Warn().Msg("no db_host configured, using in-memory backend")
		return dbadapter.NewMemoryBackend(), nil
	}
	uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.General.DBUsername, cfg.General.DBPassword, cfg.General.DBHost, cfg.General.DBPort)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return dbadapter.DialMongo(ctx, uri, "fusioncore")
}

func serveMetrics(addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn().Err(err).Msg("metrics server exited")
	}
}

// registerShardHandlers wires internal/protocol's pure handler functions
// and the shard-auth handshake's client side into the dispatcher, per
// spec.md §4.1's "enumerated packet-ID maps each inbound ID to a typed
// handler".
func registerShardHandlers(disp *codec.Dispatcher[*netio.ClientRecord], world *entitymap.EntityMap, state *shardstate.State, mgr *netio.Manager, login *loginServerConn, externalAddr string) {
	disp.Register(codec.PktPing, func(c *netio.ClientRecord, frame codec.Frame) *protoerr.Error {
		return nil // liveness traffic only; netio's reader clears the deadline on any read
	})

	disp.Register(codec.PktRepAuthChallenge, func(c *netio.ClientRecord, frame codec.Frame) *protoerr.Error {
		return login.handleRepAuthChallenge(c, frame.Body)
	})
	disp.Register(codec.PktRepConnectSucc, func(c *netio.ClientRecord, frame codec.Frame) *protoerr.Error {
		return login.handleRepConnectSucc(c, frame.Body)
	})
	disp.Register(codec.PktRepConnectFail, func(c *netio.ClientRecord, frame codec.Frame) *protoerr.Error {
		login.log.Warn().Msg("login server rejected shard-auth challenge")
		login.connected = false
		return protoerr.New("shard.RepConnectFail", protoerr.Fatal, errAuthRejected)
	})

	disp.Register(codec.PktReqUpdateLoginInfo, func(c *netio.ClientRecord, frame codec.Frame) *protoerr.Error {
		req, err := protocol.DecodeReqUpdateLoginInfo(frame.Body)
		if err != nil {
			return protocol.WrapWarning("shard.ReqUpdateLoginInfo", err)
		}
		protocol.HandleReqUpdateLoginInfo(state, req, time.Now())
		host, portStr, _ := net.SplitHostPort(externalAddr)
		port, _ := strconv.ParseUint(portStr, 10, 16)
		reply := protocol.RepUpdateLoginInfoSucc{PublicAddr: host, Port: uint16(port), SerialKey: req.SerialKey}
		if err := c.Send(codec.PktRepUpdateLoginInfoSucc, protocol.EncodeRepUpdateLoginInfoSucc(reply)); err != nil {
			return protoerr.New("shard.ReqUpdateLoginInfo", protoerr.Warning, err)
		}
		return nil
	})

	disp.Register(codec.PktReqPCExitDuplicate, func(c *netio.ClientRecord, frame codec.Frame) *protoerr.Error {
		req, err := protocol.DecodeReqPCExitDuplicate(frame.Body)
		if err != nil {
			return protocol.WrapWarning("shard.ReqPCExitDuplicate", err)
		}
		id, perr := protocol.HandleReqPCExitDuplicate(uidLookup{world: world}, mgr, req)
		if perr != nil {
			return perr
		}
		if sink, ok := mgr.Resolve(id); ok {
			if rec, ok := sink.(*netio.ClientRecord); ok {
				rec.DisconnectPending = true
			}
		}
		return nil
	})
}

// uidLookup implements protocol.UIDLookup by scanning tracked players for
// a matching persistent UID. A production deployment would keep a direct
// UID->EntityID index; the entity map's player set is small enough per
// shard that a linear scan at duplicate-login-eviction frequency is fine.
type uidLookup struct {
	world *entitymap.EntityMap
}

func (u uidLookup) EntityIDForUID(uid int64) (entitymap.EntityID, bool) {
	matches := u.world.FindPlayers(func(e entitymap.Entity) bool {
		p, ok := e.(*entity.Player)
		return ok && p.UID == uid
	})
	if len(matches) == 0 {
		return 0, false
	}
	return matches[0], true
}
