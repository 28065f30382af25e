// Package h2utils holds the low-level byte-handling primitives the rest of
// this module builds on: big-endian accessors for the wire formats RFC 7540
// frames use, and a pooled growable buffer.
package h2utils

import (
	"crypto/rand"
	"fmt"
	"unsafe"

	"github.com/valyala/fastrand"
)

func Uint24ToBytes(b []byte, n uint32) {
	_ = b[2]
	b[0] = byte(n >> 16)
	b[1] = byte(n >> 8)
	b[2] = byte(n)
}

func BytesToUint24(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func AppendUint32Bytes(dst []byte, n uint32) []byte {
	return append(dst, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

func Uint32ToBytes(b []byte, n uint32) {
	_ = b[3]
	b[0] = byte(n >> 24)
	b[1] = byte(n >> 16)
	b[2] = byte(n >> 8)
	b[3] = byte(n)
}

func BytesToUint32(b []byte) uint32 {
	_ = b[3]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// Resize grows b (reusing its backing array where possible) so that
// len(b) == neededLen.
func Resize(b []byte, neededLen int) []byte {
	b = b[:cap(b)]
	if n := neededLen - len(b); n > 0 {
		b = append(b, make([]byte, n)...)
	}
	return b[:neededLen]
}

// CutPadding strips the RFC 7540 §6.1 PADDED prefix (a 1-byte pad length)
// and trailing pad bytes from payload, given the frame's declared length.
func CutPadding(payload []byte, length int) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("h2utils: empty padded payload")
	}
	pad := int(payload[0])
	if pad >= length {
		return nil, fmt.Errorf("h2utils: pad length %d >= frame length %d", pad, length)
	}
	return payload[1 : length-pad], nil
}

// AddPadding prepends a random pad-length byte and appends that many random
// bytes to b, per RFC 7540 §6.1's PADDED flag.
func AddPadding(b []byte, maxPad int) []byte {
	if maxPad <= 0 {
		maxPad = 256
	}
	n := int(fastrand.Uint32n(uint32(maxPad)))
	nn := len(b)

	b = Resize(b, nn+n+1)
	copy(b[1:], b[:nn])
	b[0] = uint8(n)
	rand.Read(b[nn+1 : nn+n+1])

	return b
}

// B2S reinterprets b as a string without copying. The caller must not
// mutate b afterward.
func B2S(b []byte) string {
	return *(*string)(unsafe.Pointer(&b))
}
