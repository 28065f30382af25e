package h2

import (
	"sync"
	"time"

	"github.com/h2c-project/h2core/h2utils"
	"github.com/h2c-project/h2core/hpack"
)

// StreamState is one of the RFC 7540 §5.1 stream states this module
// implements. PRIORITY re-weighting and server push put several states out
// of scope (see Non-goals), so RESERVED never appears on a client-core
// stream: every stream here is client-initiated.
type StreamState int8

const (
	StreamIdle StreamState = iota
	StreamOpen
	StreamHalfClosedLocal
	StreamHalfClosedRemote
	StreamClosed
)

func (s StreamState) String() string {
	switch s {
	case StreamIdle:
		return "IDLE"
	case StreamOpen:
		return "OPEN"
	case StreamHalfClosedLocal:
		return "HALF_CLOSED_LOCAL"
	case StreamHalfClosedRemote:
		return "HALF_CLOSED_REMOTE"
	case StreamClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// StreamResult is what a stream's completion handler receives: the
// accumulated response, or an error if the stream was reset or timed out.
type StreamResult struct {
	Status  int
	Headers []hpack.Field
	Body    []byte
	Err     error
}

// Stream is one HTTP/2 request/response exchange multiplexed over a
// session's single connection. All methods are called from the session's
// single event-loop goroutine; a Stream is never touched concurrently.
type Stream struct {
	id uint32

	remoteWindow *Window // credit for frames this side may send
	localWindow  *Window // bytes this side has received, pending WINDOW_UPDATE

	state       StreamState
	scheduled   bool
	continuing  bool // a HEADERS frame has gone out; a CONTINUATION is owed
	localClosed bool // this side has sent its own END_STREAM

	// outbound
	pendingHeaders []hpack.Field
	body           []byte
	bodyOffset     int

	// inbound
	respHeaders []hpack.Field
	respBody    []byte
	status      int

	timer    *time.Timer
	timeout  time.Duration
	complete sync.Once
	done     func(StreamResult)

	headerBuf       []byte
	headerEndStream bool
}

// newStream builds a stream ready to be scheduled for its first write.
func newStream(id uint32, remoteWindowSize, localWindowSize uint32, headers []hpack.Field, body []byte, timeout time.Duration, done func(StreamResult)) *Stream {
	return &Stream{
		id:             id,
		remoteWindow:   NewWindow(remoteWindowSize),
		localWindow:    NewWindow(localWindowSize),
		state:          StreamIdle,
		scheduled:      true,
		pendingHeaders: headers,
		body:           body,
		timeout:        timeout,
		done:           done,
	}
}

func (s *Stream) ID() uint32         { return s.id }
func (s *Stream) State() StreamState { return s.state }
func (s *Stream) IsFinished() bool   { return s.state == StreamClosed }

// hasTxData mirrors the original has_tx_data predicate: a stream needs a
// turn on the write side when its local window needs replenishing or it
// still has headers or body bytes to send.
func (s *Stream) hasTxData() bool {
	return s.localWindow.NeedsUpdate() ||
		len(s.pendingHeaders) > 0 ||
		s.bodyOffset < len(s.body)
}

// checkTxData marks the stream scheduled (if it has work and isn't already
// queued) and reports whether it was newly scheduled.
func (s *Stream) checkTxData() bool {
	if !s.scheduled && s.hasTxData() {
		s.scheduled = true
		return true
	}
	return false
}

func (s *Stream) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
	}
}

// finish invokes the completion handler exactly once.
func (s *Stream) finish(err error) {
	s.complete.Do(func() {
		s.stopTimer()
		if s.done == nil {
			return
		}
		s.done(StreamResult{
			Status:  s.status,
			Headers: s.respHeaders,
			Body:    s.respBody,
			Err:     err,
		})
	})
}

// remoteClosed transitions the stream once the peer's END_STREAM arrives:
// to CLOSED if this side already finished sending (the common case — a
// request with no body, or one whose body finished before the response
// did), otherwise to HALF_CLOSED_REMOTE to await the local side finishing.
func (s *Stream) remoteClosed() {
	if s.localClosed {
		s.state = StreamClosed
	} else {
		s.state = StreamHalfClosedRemote
	}
	s.finish(nil)
}

func (s *Stream) onReceiveHeaders(fields []hpack.Field, endStream bool, rawSize int) {
	s.localWindow.Dec(int64(rawSize))
	for _, f := range fields {
		if f.Name == string(StringStatus) {
			parseStatus(f.Value, &s.status)
			continue
		}
		s.respHeaders = append(s.respHeaders, f)
	}
	if endStream {
		s.remoteClosed()
	}
}

func (s *Stream) onReceiveData(b []byte, endStream bool) {
	s.localWindow.Dec(int64(len(b)))
	if len(b) > 0 {
		s.respBody = append(s.respBody, b...)
	}
	if endStream {
		s.remoteClosed()
	}
}

// appendHeaderFragment accumulates one HEADERS or CONTINUATION frame's raw
// block fragment. It reports the accumulated bytes and true once endHeaders
// closes the block (RFC 7540 §6.10: a header block isn't complete, and so
// isn't decodable, until a frame with END_HEADERS arrives).
func (s *Stream) appendHeaderFragment(b []byte, endHeaders, endStream bool) ([]byte, bool) {
	s.headerBuf = append(s.headerBuf, b...)
	if endStream {
		s.headerEndStream = true
	}
	if !endHeaders {
		return nil, false
	}
	out := s.headerBuf
	s.headerBuf = nil
	return out, true
}

func (s *Stream) onReceiveReset(code ErrorCode) {
	s.state = StreamClosed
	s.finish(streamErr(s.id, code, "stream reset by peer"))
}

func (s *Stream) onReceiveWindowUpdate(increment uint32) error {
	return s.remoteWindow.Credit(int64(increment))
}

func (s *Stream) onTimeout() {
	s.finish(&Error{Code: SettingsTimeout, StreamID: s.id, Msg: "stream timed out waiting for a response", cause: ErrTimeout})
}

// prepareHeaders encodes as much of the pending header list as fits within
// limit bytes of payload, emitting a HEADERS frame (and arming the
// completion timer) the first time, or a CONTINUATION on subsequent calls.
func (s *Stream) prepareHeaders(enc *hpack.Encoder, limit int, prefix []byte) (frames []*FrameHeader, used int) {
	budget := limit - DefaultFrameSize
	if s.continuing {
		budget -= DefaultFrameSize // a CONTINUATION turn reserves one extra frame header's worth of room
	}
	encoded, n := enc.Encode(prefix, s.pendingHeaders, budget)
	if n == 0 {
		return nil, 0
	}
	s.pendingHeaders = s.pendingHeaders[n:]

	var flags FrameFlags
	if len(s.pendingHeaders) == 0 {
		flags |= FlagEndHeaders
	}

	if !s.continuing {
		if len(s.body) == 0 {
			flags |= FlagEndStream
		}
		h := &Headers{endHeaders: flags.Has(FlagEndHeaders), endStream: flags.Has(FlagEndStream)}
		h.SetHeaderBlockFragment(encoded)
		fh := AcquireFrameHeader()
		fh.SetStream(s.id)
		fh.SetBody(h)
		frames = append(frames, fh)
		s.continuing = len(s.pendingHeaders) > 0

		if s.timeout > 0 {
			s.timer = time.AfterFunc(s.timeout, s.onTimeout)
		}
	} else {
		c := &Continuation{endHeaders: flags.Has(FlagEndHeaders)}
		c.SetHeader(encoded)
		fh := AcquireFrameHeader()
		fh.SetStream(s.id)
		fh.SetBody(c)
		frames = append(frames, fh)
		s.continuing = len(s.pendingHeaders) > 0
	}

	used = DefaultFrameSize + len(encoded)

	if len(s.pendingHeaders) == 0 && len(s.body) == 0 {
		s.markLocalClosed()
	}

	return frames, used
}

// markLocalClosed records that this side has sent its own END_STREAM,
// advancing to HALF_CLOSED_LOCAL unless the remote side already closed
// first (in which case the stream is fully CLOSED).
func (s *Stream) markLocalClosed() {
	s.localClosed = true
	if s.state == StreamHalfClosedRemote {
		s.state = StreamClosed
		s.finish(nil)
	} else if s.state != StreamClosed {
		s.state = StreamHalfClosedLocal
	}
}

// prepareBody emits one DATA frame carrying as much of the remaining body
// as fits in limit bytes (and the stream's remaining send-window credit).
func (s *Stream) prepareBody(limit int) (*FrameHeader, int) {
	left := len(s.body) - s.bodyOffset
	payloadLimit := limit - DefaultFrameSize
	n := left
	if n > payloadLimit {
		n = payloadLimit
	}
	isLast := s.bodyOffset+n == len(s.body)

	d := &Data{endStream: isLast}
	d.SetData(s.body[s.bodyOffset : s.bodyOffset+n])
	s.bodyOffset += n
	if isLast {
		s.markLocalClosed()
	}

	fh := AcquireFrameHeader()
	fh.SetStream(s.id)
	fh.SetBody(d)

	return fh, DefaultFrameSize + n
}

// getTxData is the scheduler's entry point: produce as many frames as fit
// in limit bytes (bounded further by remaining send-window credit),
// advancing the stream's state.
func (s *Stream) getTxData(enc *hpack.Encoder, limit int, headerPrefix []byte) ([]*FrameHeader, int) {
	s.scheduled = false

	if int64(limit) > s.remoteWindow.Available() {
		limit = int(s.remoteWindow.Available())
	}
	if limit <= 16 {
		return nil, 0
	}

	if s.state == StreamIdle {
		s.state = StreamOpen
	}

	var out []*FrameHeader
	used := 0

	if s.localWindow.NeedsUpdate() {
		wu := &WindowUpdate{increment: int(s.localWindow.TakeUpdate())}
		fh := AcquireFrameHeader()
		fh.SetStream(s.id)
		fh.SetBody(wu)
		out = append(out, fh)
		used += DefaultFrameSize + 4
	}

	if len(s.pendingHeaders) > 0 {
		frames, n := s.prepareHeaders(enc, limit-used, headerPrefix)
		out = append(out, frames...)
		used += n
	} else if s.bodyOffset < len(s.body) && limit-used >= 2*DefaultFrameSize {
		fh, n := s.prepareBody(limit - used)
		out = append(out, fh)
		used += n
	}

	s.remoteWindow.Consume(int64(used))
	return out, used
}

func parseStatus(v string, dst *int) {
	n := 0
	for _, c := range []byte(v) {
		if c < '0' || c > '9' {
			return
		}
		n = n*10 + int(c-'0')
	}
	*dst = n
}

var _ = h2utils.B2S // keep h2utils imported for the package's byte helpers used by callers
