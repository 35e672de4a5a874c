package netio

import (
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/duskforge/fusioncore/internal/codec"
	"github.com/duskforge/fusioncore/internal/entitymap"
)

var errFrameTooLarge = fmt.Errorf("netio: frame length exceeds maximum")

// Inbound is what a reader goroutine hands to the event loop: either a
// decoded Frame from Key, or a non-nil Err meaning the connection should be
// disconnected (spec.md §4.2: "Short reads surface a transient error with
// kind io; EOF or a real I/O failure triggers disconnect").
type Inbound struct {
	Key   ConnKey
	Frame codec.Frame
	Err   error
}

// Manager owns the listening socket and the connection-key -> ClientRecord
// map, per spec.md §4.2.
type Manager struct {
	log zerolog.Logger

	mu      sync.Mutex
	clients map[ConnKey]*ClientRecord
	nextKey ConnKey

	listener net.Listener
	Inbound  chan Inbound

	maxFrameSize uint32
}

// NewManager builds a Manager. inboundBuffer sizes the channel reader
// goroutines publish decoded frames onto; the event loop drains it.
func NewManager(log zerolog.Logger, inboundBuffer int) *Manager {
	return &Manager{
		log:          log.With().Str("component", "netio").Logger(),
		clients:      make(map[ConnKey]*ClientRecord),
		Inbound:      make(chan Inbound, inboundBuffer),
		maxFrameSize: codec.MaxFrameSize,
	}
}

// Listen starts accepting TCP connections on addr. Call once at startup.
func (m *Manager) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	m.listener = ln
	go m.acceptLoop()
	return nil
}

// Addr returns the bound address, useful when addr was "host:0" in tests.
func (m *Manager) Addr() net.Addr {
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

func (m *Manager) acceptLoop() {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			m.log.Info().Err(err).Msg("listener closed")
			return
		}
		m.Register(conn)
	}
}

// Register adopts an already-accepted net.Conn (used by acceptLoop, and
// directly by the shard's outbound dial to the login server, which is a
// client-initiated connection read the same way once established).
func (m *Manager) Register(conn net.Conn) *ClientRecord {
	m.mu.Lock()
	key := m.nextKey
	m.nextKey++
	record := &ClientRecord{
		Key:           key,
		Conn:          conn,
		RemoteAddr:    conn.RemoteAddr().String(),
		LastHeartbeat: time.Now(),
	}
	m.clients[key] = record
	m.mu.Unlock()

	go m.readLoop(record)
	return record
}

// Get resolves a ConnKey to its ClientRecord.
func (m *Manager) Get(key ConnKey) (*ClientRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[key]
	return c, ok
}

// Resolve implements entitymap.ClientResolver for GameClient connections
// whose PC-ID has been assigned.
func (m *Manager) Resolve(id entitymap.EntityID) (entitymap.ClientSink, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clients {
		t := c.ctype
		if t.Kind == GameClient && t.HasPCID && t.PCID == id {
			return c, true
		}
	}
	return nil, false
}

var _ entitymap.ClientResolver = (*Manager)(nil)

// Disconnect closes the connection and removes it from the map. Safe to
// call once the event loop has decided a client is done for (a
// should-disconnect error, a disconnect-pending flag, or a failed
// liveness check).
func (m *Manager) Disconnect(key ConnKey) {
	m.mu.Lock()
	record, ok := m.clients[key]
	if ok {
		delete(m.clients, key)
	}
	m.mu.Unlock()
	if ok {
		_ = record.Conn.Close()
	}
}

// Count returns the number of currently tracked connections, for the
// connected_clients gauge.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// SweepLiveness implements spec.md §4.2's two-stage liveness check: if a
// client hasn't sent anything in liveCheckTime, ping it and start a
// deadline; if the deadline elapses with no traffic, disconnect it.
// Returns the keys that should be disconnected (callers not in the middle
// of iterating the client map themselves can call Disconnect on each).
func (m *Manager) SweepLiveness(now time.Time, liveCheckTime time.Duration, ping func(*ClientRecord) error) []ConnKey {
	m.mu.Lock()
	defer m.mu.Unlock()

	var toDisconnect []ConnKey
	for key, c := range m.clients {
		if c.DisconnectPending {
			toDisconnect = append(toDisconnect, key)
			continue
		}
		if c.HasLiveDeadline {
			if now.After(c.LiveDeadline) {
				toDisconnect = append(toDisconnect, key)
			}
			continue
		}
		if now.Sub(c.LastHeartbeat) >= liveCheckTime {
			if err := ping(c); err != nil {
				toDisconnect = append(toDisconnect, key)
				continue
			}
			c.LiveDeadline = now.Add(liveCheckTime)
			c.HasLiveDeadline = true
		}
	}
	return toDisconnect
}

func (m *Manager) readLoop(c *ClientRecord) {
	for {
		length, err := readLengthPrefix(c.Conn)
		if err != nil {
			m.Inbound <- Inbound{Key: c.Key, Err: err}
			return
		}
		if length == 0 || length > m.maxFrameSize {
			m.Inbound <- Inbound{Key: c.Key, Err: errFrameTooLarge}
			return
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(c.Conn, payload); err != nil {
			m.Inbound <- Inbound{Key: c.Key, Err: err}
			return
		}

		key := c.activeKey()
		frame, err := codec.DecodeFrame(payload, key[:])
		if err != nil {
			m.Inbound <- Inbound{Key: c.Key, Err: err}
			return
		}

		c.mu.Lock()
		c.LastHeartbeat = time.Now()
		c.HasLiveDeadline = false
		c.mu.Unlock()

		m.Inbound <- Inbound{Key: c.Key, Frame: frame}
	}
}
