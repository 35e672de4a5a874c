package codec

import (
	"encoding/binary"
	"fmt"
)

// PacketID identifies the packet-body layout of a frame's payload.
type PacketID uint32

// HeaderSize is the byte length of the frame length prefix.
const HeaderSize = 4

// IDSize is the byte length of the packet-ID field at the start of every
// decrypted payload.
const IDSize = 4

// MaxFrameSize guards against a corrupt or malicious length prefix asking
// for an unreasonable allocation.
const MaxFrameSize = 65536

// Frame is a fully decoded, decrypted wire frame: a packet-ID plus its
// fixed-layout body bytes (body does not include the packet-ID itself).
type Frame struct {
	ID   PacketID
	Body []byte
}

// EncodeFrame builds `[u32 LE length][u32 LE id][body]`, encrypts the
// payload portion (id+body) in place with key, and returns the full wire
// buffer ready to write to a socket.
func EncodeFrame(id PacketID, body []byte, key []byte) []byte {
	payload := make([]byte, IDSize+len(body))
	binary.LittleEndian.PutUint32(payload[:IDSize], uint32(id))
	copy(payload[IDSize:], body)

	Encrypt(payload, key)

	out := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(out[:HeaderSize], uint32(len(payload)))
	copy(out[HeaderSize:], payload)
	return out
}

// DecodeLength reads the 4-byte little-endian length prefix.
func DecodeLength(header []byte) (uint32, error) {
	if len(header) < HeaderSize {
		return 0, fmt.Errorf("codec: short header: %d bytes", len(header))
	}
	return binary.LittleEndian.Uint32(header[:HeaderSize]), nil
}

// DecodeFrame decrypts payload in place with key and splits it into a
// packet-ID and body.
func DecodeFrame(payload []byte, key []byte) (Frame, error) {
	if len(payload) < IDSize {
		return Frame{}, fmt.Errorf("codec: payload too short for packet id: %d bytes", len(payload))
	}
	Decrypt(payload, key)

	id := PacketID(binary.LittleEndian.Uint32(payload[:IDSize]))
	body := payload[IDSize:]
	return Frame{ID: id, Body: body}, nil
}
