// Command login runs the fusioncore login server: the cluster's single
// front door for client authentication, character select, and shard
// hand-off, per spec.md §2. It also terminates the shard<->login
// authentication handshake for every shard server that dials in.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/duskforge/fusioncore/internal/codec"
	"github.com/duskforge/fusioncore/internal/config"
	"github.com/duskforge/fusioncore/internal/dbadapter"
	"github.com/duskforge/fusioncore/internal/loginstate"
	"github.com/duskforge/fusioncore/internal/monitor"
	"github.com/duskforge/fusioncore/internal/netio"
	"github.com/duskforge/fusioncore/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Stamp}).
		With().Timestamp().Str("role", "login").Logger()

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

	registry := loginstate.NewRegistry(20 * time.Second)

	var presence *loginstate.PresenceCache
	if cfg.Redis.Address != "" {
		presence = loginstate.NewPresenceCache(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.Database, cfg.Redis.Prefix, time.Hour, log)
		defer presence.Close()
	}

	mgr := netio.NewManager(log, 256)
	if err := mgr.Listen(cfg.Login.ListenAddr); err != nil {
		log.Error().Err(err).Msg("failed to bind listen address")
		return 1
	}
	log.Info().Str("addr", mgr.Addr().String()).Msg("login listening")

	metrics := monitor.NewMetrics(prometheus.DefaultRegisterer, "login")
	var sink *monitor.Sink
	if cfg.Login.MonitorURL != "" {
		sink = monitor.NewSink(cfg.Login.MonitorURL, cfg.Login.MonitorSubject, "fusioncore", log)
		go func() {
			if err := sink.Run("login"); err != nil {
				log.Warn().Err(err).Msg("monitor sink exited")
			}
		}()
		defer sink.Close()
		go serveMetrics(cfg.Login.MonitorURL, log)
	}

	store := &accountStore{db: db}
	login := newLoginServer(registry, store, presence, mgr, log, cfg.General.ServerKey, cfg.Login.MOTDPath, genSerialKey)

	disp := codec.NewDispatcher[*netio.ClientRecord]()
	login.register(disp)

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
			switch ctype.Kind {
			case netio.GameClient:
				if account, ok := login.accounts[key]; ok {
					registry.Disconnect(account)
					delete(login.accounts, key)
				}
			case netio.ShardServer:
				registry.UnregisterShard(loginstate.ShardID(ctype.ShardID))
			}
		},
	}

	registerLoginTimers(loop.Timers, registry, login, metrics, sink)

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
