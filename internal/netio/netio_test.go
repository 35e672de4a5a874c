package netio

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskforge/fusioncore/internal/codec"
)

func TestManagerAcceptReadDispatch(t *testing.T) {
	m := NewManager(zerolog.Nop(), 16)
	require.NoError(t, m.Listen("127.0.0.1:0"))

	conn, err := net.Dial("tcp", m.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	key := codec.Key{1, 2, 3, 4, 5, 6, 7, 8}
	frame := codec.EncodeFrame(codec.PktPing, []byte("hello"), key[:])

	// Give the accept loop a moment to register the connection, then set
	// matching keys on the server side before the client writes.
	require.Eventually(t, func() bool { return m.Count() == 1 }, time.Second, time.Millisecond)

	m.mu.Lock()
	var rec *ClientRecord
	for _, c := range m.clients {
		rec = c
	}
	m.mu.Unlock()
	rec.SetKeys(key, key)

	_, err = conn.Write(frame)
	require.NoError(t, err)

	select {
	case in := <-m.Inbound:
		require.NoError(t, in.Err)
		assert.Equal(t, codec.PktPing, in.Frame.ID)
		assert.Equal(t, []byte("hello"), in.Frame.Body)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inbound frame")
	}
}

func TestClientRecordSendEncryptsWithActiveKey(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	rec := &ClientRecord{Key: 1, Conn: server}
	key := codec.Key{9, 9, 9, 9, 9, 9, 9, 9}
	rec.SetKeys(key, key)

	done := make(chan error, 1)
	go func() { done <- rec.Send(codec.PktPong, []byte("pong-body")) }()

	lenBuf := make([]byte, codec.HeaderSize)
	_, err := io.ReadFull(client, lenBuf)
	require.NoError(t, err)
	length, err := codec.DecodeLength(lenBuf)
	require.NoError(t, err)

	payload := make([]byte, length)
	_, err = io.ReadFull(client, payload)
	require.NoError(t, err)

	frame, err := codec.DecodeFrame(payload, key[:])
	require.NoError(t, err)
	assert.Equal(t, codec.PktPong, frame.ID)
	assert.Equal(t, []byte("pong-body"), frame.Body)
	require.NoError(t, <-done)
}

func TestSweepLivenessPingsThenDisconnects(t *testing.T) {
	m := NewManager(zerolog.Nop(), 4)
	server, client := net.Pipe()
	defer client.Close()
	rec := m.Register(server)

	start := time.Now()
	rec.LastHeartbeat = start.Add(-time.Hour)

	pinged := 0
	toDisconnect := m.SweepLiveness(start, time.Second, func(*ClientRecord) error {
		pinged++
		return nil
	})
	assert.Equal(t, 1, pinged)
	assert.Empty(t, toDisconnect)

	rec.LiveDeadline = start.Add(-time.Millisecond)
	toDisconnect = m.SweepLiveness(start, time.Second, func(*ClientRecord) error { return nil })
	assert.Equal(t, []ConnKey{rec.Key}, toDisconnect)
}
