// Package netio implements the connection manager from spec.md §4.2: the
// listening socket, the connection-key -> client-record map, the read and
// write paths, and liveness pinging. The single-threaded cooperative event
// loop model from spec.md §5 is approximated the idiomatic Go way: one
// reader goroutine per connection does the blocking length/payload read
// and decrypt, then hands the decoded Frame to the shared inbound channel;
// every mutation of shared state (the client map, entity map, session
// tables) still happens on the single goroutine that drains that channel
// (internal/server's event loop), so the "no locks in the happy path"
// invariant from §5 holds for everything except the read/write paths
// themselves, which use a per-client mutex purely to guard the socket.
package netio

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/duskforge/fusioncore/internal/codec"
	"github.com/duskforge/fusioncore/internal/entitymap"
)

// ConnKey identifies one accepted connection for the lifetime of the
// process.
type ConnKey int64

// ClientKind tags what a connection has authenticated as, per spec.md §4.2.
type ClientKind int

const (
	Unknown ClientKind = iota
	GameClient
	LoginServer
	ShardServer
	UnauthedShardServer
)

// KeyMode selects which of a client's two cipher keys is currently active.
type KeyMode int

const (
	ModeE KeyMode = iota
	ModeFE
)

// ClientType carries the kind-specific fields from spec.md §4.2's
// `Unknown | GameClient{serial-key, pc-id?} | LoginServer |
// ShardServer{shard-id} | UnauthedShardServer{challenge}` union.
type ClientType struct {
	Kind ClientKind

	SerialKey string
	PCID      entitymap.EntityID
	HasPCID   bool

	ShardID int32

	Challenge []byte
}

// ClientRecord is one connection's full state, per spec.md §4.2.
type ClientRecord struct {
	Key        ConnKey
	Conn       net.Conn
	RemoteAddr string

	LastHeartbeat   time.Time
	LiveDeadline    time.Time
	HasLiveDeadline bool

	DisconnectPending bool

	mu     sync.Mutex
	eKey   codec.Key
	feKey  codec.Key
	mode   KeyMode
	ctype  ClientType
}

// SetKeys installs both cipher keys. Safe to call from the event-loop
// goroutine at any time (e.g. on the shard-auth handshake or client login).
func (c *ClientRecord) SetKeys(e, fe codec.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eKey, c.feKey = e, fe
}

// SetMode switches which key future Send calls (and the reader's decrypt
// step) use.
func (c *ClientRecord) SetMode(mode KeyMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
}

// SetType updates the client-type union, e.g. once a login handshake
// completes and Unknown becomes GameClient.
func (c *ClientRecord) SetType(t ClientType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctype = t
}

// Type returns a copy of the current client-type union.
func (c *ClientRecord) Type() ClientType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctype
}

func (c *ClientRecord) activeKey() codec.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == ModeFE {
		return c.feKey
	}
	return c.eKey
}

// Send implements entitymap.ClientSink: encode, encrypt with the active
// key, and write the frame to the socket. Per spec.md §4.2's write path,
// writes are non-blocking in spirit (one packet, no queueing beyond the Go
// runtime's own socket buffer); a write error means the caller should mark
// the client for disconnect.
func (c *ClientRecord) Send(id codec.PacketID, body []byte) error {
	key := c.activeKey()
	frame := codec.EncodeFrame(id, body, key[:])

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.Conn.Write(frame)
	return err
}

var _ entitymap.ClientSink = (*ClientRecord)(nil)

// readLengthPrefix reads and decodes the 4-byte length header.
func readLengthPrefix(r io.Reader) (uint32, error) {
	var header [codec.HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, err
	}
	return codec.DecodeLength(header[:])
}
