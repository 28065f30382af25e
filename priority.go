package h2

import (
	"github.com/h2c-project/h2core/h2utils"
)

const FramePriority FrameType = 0x2

var _ Frame = &Priority{}

// Priority represents the Priority frame.
//
// https://tools.ietf.org/html/rfc7540#section-6.3
type Priority struct {
	stream    uint32
	exclusive bool
	weight    byte
}

func (pry *Priority) Type() FrameType {
	return FramePriority
}

// Reset resets priority fields.
func (pry *Priority) Reset() {
	pry.stream = 0
	pry.weight = 0
}

func (pry *Priority) CopyTo(p *Priority) {
	p.stream = pry.stream
	p.weight = pry.weight
}

// Stream returns the Priority frame stream.
func (pry *Priority) Stream() uint32 {
	return pry.stream
}

// SetStream sets the Priority frame stream.
func (pry *Priority) SetStream(stream uint32) {
	pry.stream = stream & (1<<31 - 1)
}

// Exclusive reports whether the dependency is exclusive.
func (pry *Priority) Exclusive() bool {
	return pry.exclusive
}

// Weight returns the Priority frame weight.
func (pry *Priority) Weight() byte {
	return pry.weight
}

// SetWeight sets the Priority frame weight.
func (pry *Priority) SetWeight(w byte) {
	pry.weight = w
}

func (pry *Priority) Deserialize(fr *FrameHeader) (err error) {
	// RFC 7540 §6.3: PRIORITY always carries exactly 5 bytes; any other
	// length is a FRAME_SIZE_ERROR, not merely a truncation.
	if len(fr.payload) != 5 {
		err = ErrFrameSizeError
	} else {
		dep := h2utils.BytesToUint32(fr.payload)
		pry.exclusive = dep&0x80000000 != 0
		pry.stream = dep & 0x7fffffff
		pry.weight = fr.payload[4]
	}

	return
}

func (pry *Priority) Serialize(fr *FrameHeader) {
	dep := pry.stream
	if pry.exclusive {
		dep |= 0x80000000
	}
	fr.payload = h2utils.AppendUint32Bytes(fr.payload[:0], dep)
	fr.payload = append(fr.payload, pry.weight)
}
