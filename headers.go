package h2

import (
	"github.com/h2c-project/h2core/h2utils"
)

const FrameHeaders FrameType = 0x1

var _ Frame = &Headers{}

// Headers defines a FrameHeaders. This type carries only the opaque
// header-block fragment; HPACK decoding/encoding happens one layer up,
// in the hpack package, once a full header block (HEADERS plus any
// CONTINUATION frames) has been reassembled.
//
// https://tools.ietf.org/html/rfc7540#section-6.2
type Headers struct {
	hasPadding     bool
	hasPriority    bool
	streamDep      uint32
	exclusive      bool
	weight         uint8
	endStream      bool
	endHeaders     bool
	rawHeaders     []byte
}

func (h *Headers) Reset() {
	h.hasPadding = false
	h.hasPriority = false
	h.streamDep = 0
	h.exclusive = false
	h.weight = 0
	h.endStream = false
	h.endHeaders = false
	h.rawHeaders = h.rawHeaders[:0]
}

func (h *Headers) CopyTo(o *Headers) {
	o.hasPadding = h.hasPadding
	o.hasPriority = h.hasPriority
	o.streamDep = h.streamDep
	o.exclusive = h.exclusive
	o.weight = h.weight
	o.endStream = h.endStream
	o.endHeaders = h.endHeaders
	o.rawHeaders = append(o.rawHeaders[:0], h.rawHeaders...)
}

func (h *Headers) Type() FrameType { return FrameHeaders }

// HeaderBlockFragment returns the raw (still HPACK-coded) bytes carried by
// this frame.
func (h *Headers) HeaderBlockFragment() []byte { return h.rawHeaders }

func (h *Headers) SetHeaderBlockFragment(b []byte) {
	h.rawHeaders = append(h.rawHeaders[:0], b...)
}

func (h *Headers) EndStream() bool  { return h.endStream }
func (h *Headers) SetEndStream(v bool) { h.endStream = v }

func (h *Headers) EndHeaders() bool  { return h.endHeaders }
func (h *Headers) SetEndHeaders(v bool) { h.endHeaders = v }

func (h *Headers) HasPriority() bool { return h.hasPriority }
func (h *Headers) StreamDep() uint32 { return h.streamDep }
func (h *Headers) Exclusive() bool   { return h.exclusive }
func (h *Headers) Weight() uint8     { return h.weight }

func (h *Headers) SetPriority(streamDep uint32, exclusive bool, weight uint8) {
	h.hasPriority = true
	h.streamDep = streamDep
	h.exclusive = exclusive
	h.weight = weight
}

func (h *Headers) Padding() bool      { return h.hasPadding }
func (h *Headers) SetPadding(v bool)  { h.hasPadding = v }

func (h *Headers) Deserialize(frh *FrameHeader) error {
	flags := frh.Flags()
	payload := frh.payload

	if flags.Has(FlagPadded) {
		var err error
		payload, err = h2utils.CutPadding(payload, len(payload))
		if err != nil {
			return err
		}
	}

	if flags.Has(FlagPriority) {
		if len(payload) < 5 {
			return ErrMissingBytes
		}
		dep := h2utils.BytesToUint32(payload)
		h.exclusive = dep&0x80000000 != 0
		h.streamDep = dep & 0x7fffffff
		h.weight = payload[4]
		h.hasPriority = true
		payload = payload[5:]
	}

	h.endStream = flags.Has(FlagEndStream)
	h.endHeaders = flags.Has(FlagEndHeaders)
	h.rawHeaders = append(h.rawHeaders[:0], payload...)

	return nil
}

func (h *Headers) Serialize(frh *FrameHeader) {
	if h.endStream {
		frh.SetFlags(frh.Flags().Add(FlagEndStream))
	}
	if h.endHeaders {
		frh.SetFlags(frh.Flags().Add(FlagEndHeaders))
	}

	payload := frh.payload[:0]
	if h.hasPriority {
		frh.SetFlags(frh.Flags().Add(FlagPriority))
		dep := h.streamDep
		if h.exclusive {
			dep |= 0x80000000
		}
		payload = h2utils.AppendUint32Bytes(payload, dep)
		payload = append(payload, h.weight)
	}
	payload = append(payload, h.rawHeaders...)

	if h.hasPadding {
		frh.SetFlags(frh.Flags().Add(FlagPadded))
		payload = h2utils.AddPadding(payload, 0)
	}

	frh.payload = payload
}
