package h2

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/h2c-project/h2core/hpack"
)

// clientPreface is the fixed 24-byte connection preface a client sends
// before its first SETTINGS frame, RFC 7540 §3.5.
var clientPreface = []byte("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n")

// Session is one HTTP/2 connection's client-side engine: framing, HPACK,
// per-stream state, and the two flow-control windows, running a read loop
// and a write loop over an already-connected Transport. It is the
// session engine this module's spec names; Connect/Dial build one,
// Send/Ping/Close drive it.
type Session struct {
	cfg *Config
	log *zap.Logger

	conn Transport
	br   *bufio.Reader
	bw   *bufio.Writer

	enc *hpack.Encoder
	dec *hpack.Decoder

	streams *Streams

	sendWindow *Window // connection-level send credit
	recvWindow *Window // connection-level receive credit

	peerMaxFrameSize      uint32
	peerInitialWindowSize uint32

	settingsMgr *SettingsManager

	newStreams chan *streamRequest
	out        chan *FrameHeader
	wake       chan struct{}

	unacks int

	pendingPing   chan time.Duration
	pendingPingAt time.Time

	// pendingTableUpdate holds an HPACK dynamic-table-size-update
	// instruction (RFC 7541 §6.3) awaiting its ride on the next header
	// block this session encodes, set when a local decision or the
	// peer's SETTINGS_HEADER_TABLE_SIZE shrinks/grows the encoder's table.
	pendingTableUpdate []byte

	closed   uint64
	closeErr error
	closeCh  chan struct{}

	mu sync.Mutex
}

type streamRequest struct {
	headers []hpack.Field
	body    []byte
	result  chan StreamResult
}

// Connect performs the client preface + SETTINGS + connection
// WINDOW_UPDATE handshake over conn and, on success, starts the session's
// read and write loops. cfg may be nil, in which case NewConfig()'s
// defaults apply.
func Connect(conn Transport, cfg *Config) (*Session, error) {
	if cfg == nil {
		cfg = NewConfig()
	}

	s := &Session{
		cfg:         cfg,
		log:         cfg.Logger,
		conn:        conn,
		br:          bufio.NewReaderSize(conn, 4096),
		bw:          bufio.NewWriterSize(conn, int(cfg.MaxFrameSize)),
		enc:         hpack.NewEncoder(int(cfg.HeaderTableSize)),
		dec:         hpack.NewDecoder(int(cfg.HeaderTableSize)),
		streams:     NewStreams(int(cfg.MaxConcurrentStreams)),
		sendWindow:  NewWindow(defaultInitialWindowSize),
		recvWindow:  NewWindow(cfg.InitialWindowSize),
		settingsMgr: NewSettingsManager(cfg.SettingsTimeout),
		newStreams:  make(chan *streamRequest, 128),
		out:         make(chan *FrameHeader, 128),
		wake:        make(chan struct{}, 1),
		closeCh:     make(chan struct{}),

		peerMaxFrameSize:      defaultMaxFrameSize,
		peerInitialWindowSize: defaultInitialWindowSize,
	}

	if err := s.handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go s.readLoop()
	go s.writeLoop()

	return s, nil
}

// handshake runs the client preface + SETTINGS exchange synchronously,
// before the read/write loops start. The whole exchange is bounded by
// cfg.SettingsTimeout (RFC 7540 §6.5, spec SETTINGS_TIMEOUT): a peer that
// never replies must fail the connection, not hang Connect forever.
func (s *Session) handshake() error {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.SettingsTimeout)); err != nil {
		return err
	}
	defer s.conn.SetReadDeadline(time.Time{})

	if _, err := s.bw.Write(clientPreface); err != nil {
		return err
	}

	st := AcquireFrame(FrameSettings).(*Settings)
	st.Add(SettingHeaderTableSize, s.cfg.HeaderTableSize)
	st.Add(SettingEnablePush, 0)
	st.Add(SettingInitialWindowSize, s.cfg.InitialWindowSize)
	st.Add(SettingMaxFrameSize, s.cfg.MaxFrameSize)
	st.Add(SettingMaxConcurrentStreams, s.cfg.MaxConcurrentStreams)

	fr := AcquireFrameHeader()
	fr.SetBody(st)

	if err := s.settingsMgr.Begin(); err != nil {
		return err
	}

	if _, err := fr.WriteTo(s.bw); err != nil {
		return err
	}

	wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
	extra := int64(s.cfg.InitialWindowSize) - int64(defaultInitialWindowSize)
	if extra > 0 {
		wu.SetIncrement(int(extra))
		fr2 := AcquireFrameHeader()
		fr2.SetBody(wu)
		if _, err := fr2.WriteTo(s.bw); err != nil {
			return err
		}
		ReleaseFrameHeader(fr2)
	}

	if err := s.bw.Flush(); err != nil {
		return err
	}

	ReleaseFrameHeader(fr)

	peerSettingsSeen := false
	for {
		frh, err := ReadFrameFrom(s.br)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return ErrTimeout
			}
			return err
		}

		if frh.Stream() != 0 {
			ReleaseFrameHeader(frh)
			continue
		}

		switch body := frh.Body().(type) {
		case *Settings:
			if body.IsAck() {
				s.settingsMgr.Ack()
				ReleaseFrameHeader(frh)
				if peerSettingsSeen {
					return nil
				}
				continue
			}
			s.applyPeerSettings(body)
			ReleaseFrameHeader(frh)
			peerSettingsSeen = true

			ack := AcquireFrameHeader()
			ackSt := AcquireFrame(FrameSettings).(*Settings)
			ackSt.SetAck(true)
			ack.SetBody(ackSt)
			if _, err := ack.WriteTo(s.bw); err != nil {
				return err
			}
			if err := s.bw.Flush(); err != nil {
				return err
			}
			ReleaseFrameHeader(ack)

			if !s.settingsMgr.Pending() {
				return nil
			}
		default:
			ReleaseFrameHeader(frh)
			return connErr(ProtocolError, "unexpected frame %s during handshake", frh.Type())
		}
	}
}

func (s *Session) applyPeerSettings(st *Settings) {
	st.ForEach(func(id uint16, value uint32) {
		switch id {
		case SettingMaxFrameSize:
			s.peerMaxFrameSize = value
		case SettingInitialWindowSize:
			delta := int64(value) - int64(s.peerInitialWindowSize)
			s.peerInitialWindowSize = value
			s.streams.ForEach(func(strm *Stream) {
				strm.remoteWindow.SetCapacity(uint32(int64(strm.remoteWindow.Capacity()) + delta))
			})
		case SettingMaxConcurrentStreams:
			s.streams.SetMaxOpen(int(value))
		case SettingHeaderTableSize:
			s.pendingTableUpdate = s.enc.SetMaxDynamicSize(s.pendingTableUpdate[:0], int(value))
		}
	})
}

// Closed reports whether the session has shut down.
func (s *Session) Closed() bool { return atomic.LoadUint64(&s.closed) == 1 }

// Close gracefully shuts the session down: a GOAWAY is sent, every
// in-flight stream is resolved with ErrSessionClosed, and the underlying
// transport is closed.
func (s *Session) Close() error {
	if !atomic.CompareAndSwapUint64(&s.closed, 0, 1) {
		return nil
	}
	close(s.closeCh)

	code := NoError
	if cerr, ok := s.closeErr.(*Error); ok {
		code = cerr.Code
	}

	fr := AcquireFrameHeader()
	ga := AcquireFrame(FrameGoAway).(*GoAway)
	ga.SetCode(code)
	ga.SetStream(s.streams.LastID())
	fr.SetBody(ga)

	s.mu.Lock()
	_, werr := fr.WriteTo(s.bw)
	if werr == nil {
		werr = s.bw.Flush()
	}
	s.mu.Unlock()
	ReleaseFrameHeader(fr)

	err := s.conn.Close()

	s.streams.CloseAll(ErrSessionClosed)

	if werr != nil && err == nil {
		err = werr
	}
	return err
}

func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Submit registers a new stream with the given outbound headers/body and
// schedules it for writing, returning a channel that receives exactly one
// StreamResult once the exchange completes (response fully received,
// reset by the peer, or timed out).
func (s *Session) Submit(headers []hpack.Field, body []byte) (<-chan StreamResult, error) {
	if s.Closed() {
		return nil, ErrSessionClosed
	}
	for _, f := range headers {
		if len(f.Name) > 0 && f.Name[0] == ':' {
			continue
		}
		if err := validateHeaderField(f.Name, f.Value); err != nil {
			return nil, err
		}
	}

	req := &streamRequest{
		headers: headers,
		body:    body,
		result:  make(chan StreamResult, 1),
	}

	select {
	case s.newStreams <- req:
	case <-s.closeCh:
		return nil, ErrSessionClosed
	}
	s.signal()

	return req.result, nil
}

// Ping sends a PING frame and blocks until the corresponding PONG arrives
// or timeout elapses, returning the measured round-trip time.
func (s *Session) Ping(timeout time.Duration) (time.Duration, error) {
	if s.Closed() {
		return 0, ErrSessionClosed
	}
	start := time.Now()
	result := make(chan time.Duration, 1)

	s.mu.Lock()
	s.pendingPing = result
	s.pendingPingAt = start
	s.mu.Unlock()

	fr := AcquireFrameHeader()
	ping := AcquireFrame(FramePing).(*Ping)
	var payload [8]byte
	now := uint64(start.UnixNano())
	for i := 0; i < 8; i++ {
		payload[i] = byte(now >> (56 - 8*i))
	}
	ping.SetData(payload[:])
	fr.SetBody(ping)

	select {
	case s.out <- fr:
	case <-s.closeCh:
		return 0, ErrSessionClosed
	}
	s.signal()

	select {
	case d := <-result:
		return d, nil
	case <-time.After(timeout):
		return 0, ErrTimeout
	case <-s.closeCh:
		return 0, ErrSessionClosed
	}
}

func (s *Session) writeLoop() {
	defer func() { _ = s.Close() }()

	interval := s.cfg.PingInterval
	if interval <= 0 {
		interval = DefaultPingInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var fatal error

loop:
	for {
		select {
		case req, ok := <-s.newStreams:
			if !ok {
				break loop
			}
			if err := s.openStream(req); err != nil {
				req.result <- StreamResult{Err: err}
			}
		case fr := <-s.out:
			s.mu.Lock()
			_, err := fr.WriteTo(s.bw)
			if err == nil {
				err = s.bw.Flush()
			}
			s.mu.Unlock()
			ReleaseFrameHeader(fr)
			if err != nil {
				fatal = err
				break loop
			}
		case <-s.wake:
			if err := s.flushScheduled(); err != nil {
				fatal = err
				break loop
			}
		case <-ticker.C:
			fr := AcquireFrameHeader()
			ping := AcquireFrame(FramePing).(*Ping)
			fr.SetBody(ping)
			s.mu.Lock()
			_, err := fr.WriteTo(s.bw)
			if err == nil {
				err = s.bw.Flush()
			}
			s.mu.Unlock()
			ReleaseFrameHeader(fr)
			if err != nil {
				fatal = err
				break loop
			}
			s.unacks++
			if s.unacks > s.cfg.MaxMissedPings {
				fatal = ErrTimeout
				break loop
			}
		case <-s.closeCh:
			break loop
		}
	}

	if fatal != nil {
		s.closeErr = fatal
	}
}

func (s *Session) openStream(req *streamRequest) error {
	if !s.streams.CanOpen() {
		return ErrNotAvailableStreams
	}
	id, err := s.streams.NextID()
	if err != nil {
		return err
	}

	strm := newStream(id, s.peerInitialWindowSize, s.cfg.InitialWindowSize, req.headers, req.body, s.cfg.RequestTimeout, func(res StreamResult) {
		req.result <- res
		s.streams.Del(id)
	})
	s.streams.Insert(strm)
	return s.flushScheduled()
}

func (s *Session) flushScheduled() error {
	for _, strm := range s.streams.Scheduled() {
		limit := int(s.peerMaxFrameSize)
		if int64(limit) > s.sendWindow.Available() {
			limit = int(s.sendWindow.Available())
		}

		var prefix []byte
		if len(s.pendingTableUpdate) > 0 && len(strm.pendingHeaders) > 0 && !strm.continuing {
			prefix = s.pendingTableUpdate
			s.pendingTableUpdate = nil
		}

		frames, used := strm.getTxData(s.enc, limit, prefix)
		if used == 0 {
			continue
		}
		s.sendWindow.Consume(int64(used))

		s.mu.Lock()
		var err error
		for _, fh := range frames {
			if _, werr := fh.WriteTo(s.bw); werr != nil {
				err = werr
				break
			}
		}
		if err == nil {
			err = s.bw.Flush()
		}
		s.mu.Unlock()

		for _, fh := range frames {
			ReleaseFrameHeader(fh)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) readLoop() {
	defer func() { _ = s.Close() }()

	for {
		frh, err := ReadFrameFromWithSize(s.br, s.cfg.MaxFrameSize)
		if err != nil {
			s.closeErr = err
			s.streams.CloseAll(err)
			return
		}

		if err := validateFrameStreamID(frh.Type(), frh.Stream()); err != nil {
			ReleaseFrameHeader(frh)
			s.closeErr = err
			s.streams.CloseAll(err)
			return
		}

		if frh.Stream() == 0 {
			s.handleConnFrame(frh)
		} else {
			s.handleStreamFrame(frh)
		}

		ReleaseFrameHeader(frh)

		if s.Closed() {
			return
		}
	}
}

// validateFrameStreamID enforces RFC 7540 §6.x's stream-id scoping rules:
// SETTINGS, PING and GOAWAY are connection-scoped and must carry stream id
// 0; DATA, HEADERS, PRIORITY, RST_STREAM, PUSH_PROMISE and CONTINUATION are
// stream-scoped and must not. WINDOW_UPDATE is valid at both scopes
// (§6.9) and is intentionally left unchecked.
func validateFrameStreamID(t FrameType, streamID uint32) error {
	switch t {
	case FrameSettings, FramePing, FrameGoAway:
		if streamID != 0 {
			return connErr(ProtocolError, "%s frame must use stream id 0", t)
		}
	case FrameData, FrameHeaders, FramePriority, FrameResetStream, FramePushPromise, FrameContinuation:
		if streamID == 0 {
			return connErr(ProtocolError, "%s frame must not use stream id 0", t)
		}
	}
	return nil
}

func (s *Session) handleConnFrame(frh *FrameHeader) {
	switch body := frh.Body().(type) {
	case *Settings:
		if body.IsAck() {
			s.settingsMgr.Ack()
			return
		}
		s.applyPeerSettings(body)
		ack := AcquireFrameHeader()
		ackSt := AcquireFrame(FrameSettings).(*Settings)
		ackSt.SetAck(true)
		ack.SetBody(ackSt)
		s.out <- ack
	case *WindowUpdate:
		if err := s.sendWindow.Credit(int64(body.Increment())); err == nil {
			s.signal()
		}
	case *Ping:
		if body.IsAck() {
			s.mu.Lock()
			result := s.pendingPing
			rtt := time.Since(s.pendingPingAt)
			s.pendingPing = nil
			s.mu.Unlock()
			if result != nil {
				result <- rtt
			}
			if s.unacks > 0 {
				s.unacks--
			}
		} else {
			fr := AcquireFrameHeader()
			pong := AcquireFrame(FramePing).(*Ping)
			pong.SetData(body.Data())
			pong.SetAck(true)
			fr.SetBody(pong)
			s.out <- fr
		}
	case *GoAway:
		s.closeErr = wrapErr(body.Code(), errors.New(string(body.Data())))
	}
}

func (s *Session) handleStreamFrame(frh *FrameHeader) {
	strm := s.streams.Get(frh.Stream())
	if strm == nil {
		return
	}

	switch body := frh.Body().(type) {
	case *Headers:
		block, done := strm.appendHeaderFragment(body.HeaderBlockFragment(), body.EndHeaders(), body.EndStream())
		if done {
			s.decodeInto(strm, block)
		}
	case *Continuation:
		block, done := strm.appendHeaderFragment(body.HeaderBlockFragment(), body.EndHeaders(), strm.headerEndStream)
		if done {
			s.decodeInto(strm, block)
		}
	case *Data:
		strm.onReceiveData(body.Data(), body.EndStream())
		s.recvWindow.Dec(int64(frh.Len()))
		if s.recvWindow.NeedsUpdate() {
			fr := AcquireFrameHeader()
			wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
			wu.SetIncrement(int(s.recvWindow.TakeUpdate()))
			fr.SetBody(wu)
			s.out <- fr
		}
	case *RstStream:
		strm.onReceiveReset(body.Code())
	case *WindowUpdate:
		_ = strm.onReceiveWindowUpdate(uint32(body.Increment()))
		s.signal()
	case *Priority:
		// Re-prioritization is a declared non-goal: the frame is accepted
		// and otherwise ignored.
	case *PushPromise:
		// This client always advertises SETTINGS_ENABLE_PUSH=0; receiving
		// one anyway is a connection error, RFC 7540 §6.6.
		s.closeErr = ErrServerSupport
		_ = s.Close()
		return
	}

	if strm.IsFinished() || strm.checkTxData() {
		s.signal()
	}
}

func (s *Session) decodeInto(strm *Stream, block []byte) {
	var fields []hpack.Field
	err := s.dec.DecodeFragment(block, func(f hpack.Field) error {
		fields = append(fields, f)
		return nil
	})
	if err != nil {
		strm.finish(wrapErr(CompressionError, err))
		return
	}
	strm.onReceiveHeaders(fields, strm.headerEndStream, len(block))
}
