package server

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/duskforge/fusioncore/internal/codec"
	"github.com/duskforge/fusioncore/internal/netio"
	"github.com/duskforge/fusioncore/internal/protoerr"
)

// Loop is the single-threaded event loop from spec.md §4.3, parameterized
// by C, the per-dispatch context each registered handler receives (login
// and shard servers each define their own).
type Loop[C any] struct {
	Manager    *netio.Manager
	Dispatcher *codec.Dispatcher[C]
	Timers     *TimerWheel
	Log        zerolog.Logger

	// PollTimeout bounds how long one RunOnce call waits for the first
	// inbound frame before moving on to timers, mirroring spec.md §4.3's
	// "poll readiness with a short timeout (e.g. 50ms)".
	PollTimeout time.Duration
	// LiveCheckTime is the interval after which an idle client is pinged.
	LiveCheckTime time.Duration

	// CtxFor builds the dispatch context for a given connection on demand.
	CtxFor func(netio.ConnKey) C
	// Ping sends the liveness ping packet to a client.
	Ping func(*netio.ClientRecord) error
	// OnDisconnect is invoked after a client is removed from the manager,
	// for any per-role cleanup (shard: untrack the player entity; login:
	// drop the session). It receives the disconnected client's type union
	// as it stood immediately before removal, since the manager no longer
	// has a record to look up by the time this fires.
	OnDisconnect func(netio.ConnKey, netio.ClientType)
}

// RunOnce executes exactly one iteration of spec.md §4.3's four steps:
// compute now (the caller passes it in, so tests can drive deterministic
// ticks), sweep liveness, poll and dispatch, run due timers.
func (l *Loop[C]) RunOnce(now time.Time) {
	for _, key := range l.Manager.SweepLiveness(now, l.LiveCheckTime, l.Ping) {
		l.disconnect(key)
	}

	select {
	case in := <-l.Manager.Inbound:
		l.handleInbound(in)
	case <-time.After(l.PollTimeout):
	}

drain:
	for {
		select {
		case in := <-l.Manager.Inbound:
			l.handleInbound(in)
		default:
			break drain
		}
	}

	l.Timers.RunDue(now, func(name string, err error) {
		l.Log.Warn().Str("timer", name).Err(err).Msg("timer callback failed")
	})
}

func (l *Loop[C]) handleInbound(in netio.Inbound) {
	if in.Err != nil {
		l.Log.Debug().Int64("conn", int64(in.Key)).Err(in.Err).Msg("connection read failed")
		l.disconnect(in.Key)
		return
	}

	record, ok := l.Manager.Get(in.Key)
	if !ok {
		return // disconnected between read and dispatch
	}
	if record.DisconnectPending {
		l.disconnect(in.Key)
		return
	}

	ctx := l.CtxFor(in.Key)
	perr := l.Dispatcher.Dispatch(ctx, in.Frame)
	if perr == nil {
		return
	}

	logEvent := l.Log.Debug()
	switch perr.Severity {
	case protoerr.Info:
		logEvent = l.Log.Info()
	case protoerr.Warning:
		logEvent = l.Log.Warn()
	case protoerr.Fatal:
		logEvent = l.Log.Fatal() // logs, then exits the process
	}
	logEvent.Str("op", perr.Op).Err(perr.Err).Msg("handler error")

	if perr.ShouldDC || perr.Severity == protoerr.Fatal {
		l.disconnect(in.Key)
	}
}

func (l *Loop[C]) disconnect(key netio.ConnKey) {
	var ctype netio.ClientType
	if record, ok := l.Manager.Get(key); ok {
		ctype = record.Type()
	}
	l.Manager.Disconnect(key)
	if l.OnDisconnect != nil {
		l.OnDisconnect(key, ctype)
	}
}

// Run drives RunOnce forever until stop is closed. now is recomputed via
// time.Now() each iteration; production mains call this directly, tests
// call RunOnce with explicit timestamps instead.
func (l *Loop[C]) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
			l.RunOnce(time.Now())
		}
	}
}
