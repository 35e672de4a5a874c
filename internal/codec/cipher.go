// Package codec implements the wire-level framing and rolling XOR cipher
// described in spec.md §4.1: a length-prefixed frame, a packet-ID dispatch
// table, and a two-key cipher shared by every connection.
package codec

import "encoding/binary"

// DefaultKeyBytes is the fixed 8-byte seed XOR'd/multiplied into every
// derived session key. It is not a secret: every client and server in the
// cluster compiles it in.
var DefaultKeyBytes = [8]byte{'m', '@', 'r', 'Q', 'n', '~', 'W', '#'}

// KeySize is the length in bytes of an E/FE cipher key.
const KeySize = 8

// Key is a symmetric cipher key shared between a client and a server.
type Key [KeySize]byte

// defaultKeyU64 is DefaultKeyBytes read as a little-endian uint64.
var defaultKeyU64 = binary.LittleEndian.Uint64(DefaultKeyBytes[:])

// GenKey derives a session key from a server timestamp and two small
// integer ingredients, using wrapping 64-bit arithmetic. Pure and
// deterministic: equal inputs always yield equal keys (spec §8 invariant 2).
func GenKey(serverTime uint64, iv1, iv2 int32) Key {
	num := uint64(iv1 + 1)
	num2 := uint64(iv2 + 1)
	result := defaultKeyU64 * (serverTime * num * num2)

	var k Key
	binary.LittleEndian.PutUint64(k[:], result)
	return k
}

// xorBuf XORs the first n bytes of buf with key, repeating the key as
// necessary.
func xorBuf(buf []byte, key []byte, n int) {
	for i := 0; i < n; i++ {
		buf[i] ^= key[i%len(key)]
	}
}

// byteSwap walks buf in strides of erSize, swapping symmetric byte pairs
// within each stride, and returns the number of bytes actually covered by
// completed or partial strides (the "xor size" used by Decrypt).
func byteSwap(erSize int, buf []byte, size int) int {
	num := 0
	num3 := 0

	for num+erSize <= size {
		num4 := num + num3
		num5 := num + (erSize - 1 - num3)
		buf[num4], buf[num5] = buf[num5], buf[num4]

		num += erSize
		num3++
		if num3 > erSize/2 {
			num3 = 0
		}
	}
	num2 := erSize - (num + erSize - size)
	return num + num2
}

func erSizeFor(keySize, bufLen int) int {
	return (bufLen%(keySize/2+1))*2 + keySize
}

// Encrypt encrypts buf in place with key: xor over the whole buffer,
// followed by the byte-swap permutation.
func Encrypt(buf []byte, key []byte) {
	if len(buf) == 0 {
		return
	}
	er := erSizeFor(len(key), len(buf))
	xorBuf(buf, key, len(buf))
	byteSwap(er, buf, len(buf))
}

// Decrypt decrypts buf in place with key: byte-swap (its own inverse),
// then xor over the number of bytes the swap actually touched.
func Decrypt(buf []byte, key []byte) {
	if len(buf) == 0 {
		return
	}
	er := erSizeFor(len(key), len(buf))
	xorSize := byteSwap(er, buf, len(buf))
	xorBuf(buf, key, xorSize)
}

// XorEncrypt XORs buf in place with an arbitrary-length byte key and
// nothing else. Used for the shard-auth challenge (§4.1), which is
// scrambled with the shared server_key string rather than a derived
// session Key.
func XorEncrypt(buf []byte, key []byte) {
	xorBuf(buf, key, len(buf))
}
