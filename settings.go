package h2

import "github.com/h2c-project/h2core/h2utils"

const FrameSettings FrameType = 0x4

// Setting identifiers, RFC 7540 §6.5.2.
const (
	SettingHeaderTableSize      uint16 = 0x1
	SettingEnablePush           uint16 = 0x2
	SettingMaxConcurrentStreams uint16 = 0x3
	SettingInitialWindowSize    uint16 = 0x4
	SettingMaxFrameSize         uint16 = 0x5
	SettingMaxHeaderListSize    uint16 = 0x6
)

const (
	defaultHeaderTableSize   uint32 = 4096
	defaultMaxConcurrency    uint32 = 100
	defaultInitialWindowSize uint32 = 1<<16 - 1
	defaultMaxFrameSize      uint32 = 1 << 14

	maxWindowSize uint32 = 1<<31 - 1
	maxFrameSize  uint32 = 1<<24 - 1
)

var _ Frame = &Settings{}

// Settings carries one SETTINGS frame's list of (id, value) pairs. An ACK
// settings frame carries none.
//
// https://tools.ietf.org/html/rfc7540#section-6.5
type Settings struct {
	ack    bool
	params []settingParam
}

type settingParam struct {
	id    uint16
	value uint32
}

func (s *Settings) Type() FrameType { return FrameSettings }

func (s *Settings) Reset() {
	s.ack = false
	s.params = s.params[:0]
}

func (s *Settings) IsAck() bool     { return s.ack }
func (s *Settings) SetAck(ack bool) { s.ack = ack }

// Add appends one (id, value) setting parameter to be sent.
func (s *Settings) Add(id uint16, value uint32) {
	s.params = append(s.params, settingParam{id, value})
}

// ForEach invokes fn once per decoded parameter, in wire order.
func (s *Settings) ForEach(fn func(id uint16, value uint32)) {
	for _, p := range s.params {
		fn(p.id, p.value)
	}
}

func (s *Settings) Deserialize(fr *FrameHeader) error {
	if fr.Flags().Has(FlagAck) {
		s.ack = true
		if len(fr.payload) != 0 {
			return ErrFrameSizeError
		}
		return nil
	}
	if len(fr.payload)%6 != 0 {
		return ErrFrameSizeError
	}
	for i := 0; i+6 <= len(fr.payload); i += 6 {
		b := fr.payload[i : i+6]
		id := uint16(b[0])<<8 | uint16(b[1])
		value := h2utils.BytesToUint32(b[2:6])
		s.params = append(s.params, settingParam{id, value})
	}
	return nil
}

func (s *Settings) Serialize(fr *FrameHeader) {
	if s.ack {
		fr.SetFlags(fr.Flags().Add(FlagAck))
		fr.payload = fr.payload[:0]
		return
	}
	payload := fr.payload[:0]
	for _, p := range s.params {
		payload = append(payload, byte(p.id>>8), byte(p.id))
		payload = h2utils.AppendUint32Bytes(payload, p.value)
	}
	fr.payload = payload
}
