package h2

import (
	"github.com/h2c-project/h2core/h2utils"
)

const FrameWindowUpdate FrameType = 0x8

var _ Frame = &WindowUpdate{}

// WindowUpdate https://tools.ietf.org/html/rfc7540#section-6.9
type WindowUpdate struct {
	increment int
}

func (wu *WindowUpdate) Type() FrameType {
	return FrameWindowUpdate
}

func (wu *WindowUpdate) Reset() {
	wu.increment = 0
}

func (wu *WindowUpdate) CopyTo(w *WindowUpdate) {
	w.increment = wu.increment
}

func (wu *WindowUpdate) Increment() int {
	return wu.increment
}

func (wu *WindowUpdate) SetIncrement(increment int) {
	wu.increment = increment
}

func (wu *WindowUpdate) Deserialize(fr *FrameHeader) error {
	if len(fr.payload) != 4 {
		wu.increment = 0
		return ErrFrameSizeError
	}

	inc := int(h2utils.BytesToUint32(fr.payload) & (1<<31 - 1))
	if inc == 0 {
		// RFC 7540 §6.9.1: a zero increment is an error. It is reported as
		// ErrFlowControlZeroIncrement (PROTOCOL_ERROR) whatever fr.Stream()
		// is, and the session's read loop closes the whole connection on it.
		return ErrFlowControlZeroIncrement
	}
	wu.increment = inc

	return nil
}

func (wu *WindowUpdate) Serialize(fr *FrameHeader) {
	fr.payload = h2utils.AppendUint32Bytes(
		fr.payload[:0], uint32(wu.increment))
	fr.length = 4
}
