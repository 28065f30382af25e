package h2utils

import "github.com/valyala/bytebufferpool"

// Buffer is a pooled, growable byte buffer used for frame payloads and
// accumulated response bodies. It wraps bytebufferpool.ByteBuffer so the
// allocator behavior matches the rest of this module's fasthttp-derived
// stack.
type Buffer struct {
	bb *bytebufferpool.ByteBuffer
}

// AcquireBuffer returns a Buffer from the shared pool. Callers must call
// ReleaseBuffer when done.
func AcquireBuffer() *Buffer {
	return &Buffer{bb: bytebufferpool.Get()}
}

// ReleaseBuffer resets buf and returns it to the shared pool.
func ReleaseBuffer(buf *Buffer) {
	bytebufferpool.Put(buf.bb)
	buf.bb = nil
}

func (buf *Buffer) Write(p []byte) (int, error) { return buf.bb.Write(p) }

func (buf *Buffer) Bytes() []byte { return buf.bb.Bytes() }

func (buf *Buffer) Len() int { return buf.bb.Len() }

func (buf *Buffer) Reset() { buf.bb.Reset() }

func (buf *Buffer) String() string { return buf.bb.String() }
