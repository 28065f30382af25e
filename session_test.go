package h2

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/h2c-project/h2core/hpack"
)

// testPeer drives the non-Session end of a LoopbackPair as a minimal,
// hand-scripted HTTP/2 peer: just enough framing to exercise a Session's
// handshake, request/response and ping paths without a full server.
type testPeer struct {
	t   *testing.T
	br  *bufio.Reader
	bw  *bufio.Writer
	enc *hpack.Encoder
	dec *hpack.Decoder
}

func newTestPeer(t *testing.T, conn net.Conn) *testPeer {
	return &testPeer{
		t:   t,
		br:  bufio.NewReader(conn),
		bw:  bufio.NewWriter(conn),
		enc: hpack.NewEncoder(4096),
		dec: hpack.NewDecoder(4096),
	}
}

func (p *testPeer) writeFrame(fh *FrameHeader) {
	p.t.Helper()
	_, err := fh.WriteTo(p.bw)
	require.NoError(p.t, err)
	require.NoError(p.t, p.bw.Flush())
}

// readClientPreface consumes the fixed 24-byte connection preface.
func (p *testPeer) readClientPreface() {
	p.t.Helper()
	buf := make([]byte, len(clientPreface))
	_, err := p_readFull(p.br, buf)
	require.NoError(p.t, err)
	require.Equal(p.t, clientPreface, buf)
}

func p_readFull(br *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := br.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// doHandshake replies to the client's SETTINGS with its own SETTINGS +
// ACK, matching what Session.handshake waits for.
func (p *testPeer) doHandshake() {
	p.t.Helper()
	p.readClientPreface()

	// client's SETTINGS (and possibly a connection WINDOW_UPDATE).
	for {
		frh, err := ReadFrameFrom(p.br)
		require.NoError(p.t, err)
		if st, ok := frh.Body().(*Settings); ok {
			require.False(p.t, st.IsAck())
			break
		}
	}

	// our own SETTINGS, empty (accept the client's defaults).
	fh := AcquireFrameHeader()
	fh.SetBody(AcquireFrame(FrameSettings).(*Settings))
	p.writeFrame(fh)

	// ACK the client's SETTINGS.
	ackFh := AcquireFrameHeader()
	ack := AcquireFrame(FrameSettings).(*Settings)
	ack.SetAck(true)
	ackFh.SetBody(ack)
	p.writeFrame(ackFh)

	// wait for the client's ACK of ours.
	for {
		frh, err := ReadFrameFrom(p.br)
		require.NoError(p.t, err)
		if st, ok := frh.Body().(*Settings); ok && st.IsAck() {
			return
		}
	}
}

// readRequest reads a HEADERS frame (assumed not to span CONTINUATION for
// these tests) and decodes it into fields.
func (p *testPeer) readRequest() (streamID uint32, fields []hpack.Field, endStream bool) {
	p.t.Helper()
	for {
		frh, err := ReadFrameFrom(p.br)
		require.NoError(p.t, err)
		h, ok := frh.Body().(*Headers)
		if !ok {
			continue
		}
		err = p.dec.DecodeFragment(h.HeaderBlockFragment(), func(f hpack.Field) error {
			fields = append(fields, f)
			return nil
		})
		require.NoError(p.t, err)
		return frh.Stream(), fields, h.EndStream()
	}
}

func (p *testPeer) sendResponse(streamID uint32, status string, body []byte) {
	p.t.Helper()
	encoded, n := p.enc.Encode(nil, []hpack.Field{{Name: ":status", Value: status}}, 16384)
	require.Equal(p.t, 1, n)

	h := &Headers{endHeaders: true, endStream: len(body) == 0}
	h.SetHeaderBlockFragment(encoded)
	fh := AcquireFrameHeader()
	fh.SetStream(streamID)
	fh.SetBody(h)
	p.writeFrame(fh)

	if len(body) > 0 {
		d := &Data{endStream: true}
		d.SetData(body)
		dfh := AcquireFrameHeader()
		dfh.SetStream(streamID)
		dfh.SetBody(d)
		p.writeFrame(dfh)
	}
}

func newTestSession(t *testing.T, cfg *Config) (*Session, *testPeer) {
	client, server := LoopbackPair()
	peer := newTestPeer(t, server)

	done := make(chan struct{})
	go func() {
		peer.doHandshake()
		close(done)
	}()

	if cfg == nil {
		cfg = NewConfig(WithSettingsTimeout(2 * time.Second))
	}
	sess, err := Connect(client, cfg)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("peer handshake goroutine never finished")
	}

	return sess, peer
}

// TestConnectFailsWhenPeerNeverSendsSettings is spec scenario 4's second
// half: a peer that never replies to the client's SETTINGS must fail the
// handshake with SETTINGS_TIMEOUT rather than hang Connect forever.
func TestConnectFailsWhenPeerNeverSendsSettings(t *testing.T) {
	client, server := LoopbackPair()
	defer server.Close()

	go func() {
		br := bufio.NewReader(server)
		buf := make([]byte, len(clientPreface))
		if _, err := p_readFull(br, buf); err != nil {
			return
		}
		// Drain whatever the client sends so its writes never block, but
		// never reply with our own SETTINGS.
		for {
			if _, err := ReadFrameFrom(br); err != nil {
				return
			}
		}
	}()

	_, err := Connect(client, NewConfig(WithSettingsTimeout(50*time.Millisecond)))
	require.ErrorIs(t, err, ErrTimeout)
}

func TestSessionHandshakeAndSimpleRequest(t *testing.T) {
	sess, peer := newTestSession(t, nil)
	defer sess.Close()

	go func() {
		_, _, endStream := peer.readRequest()
		require.True(t, endStream)
		peer.sendResponse(1, "200", []byte("hello"))
	}()

	resCh, err := sess.Submit([]hpack.Field{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/"},
		{Name: ":authority", Value: "example.com"},
		{Name: ":scheme", Value: "https"},
	}, nil)
	require.NoError(t, err)

	select {
	case res := <-resCh:
		require.NoError(t, res.Err)
		require.Equal(t, 200, res.Status)
		require.Equal(t, "hello", string(res.Body))
	case <-time.After(3 * time.Second):
		t.Fatal("request never completed")
	}
}

func TestSessionPing(t *testing.T) {
	sess, peer := newTestSession(t, nil)
	defer sess.Close()

	go func() {
		for {
			frh, err := ReadFrameFrom(peer.br)
			if err != nil {
				return
			}
			ping, ok := frh.Body().(*Ping)
			if !ok || ping.IsAck() {
				continue
			}
			pong := AcquireFrame(FramePing).(*Ping)
			pong.SetData(ping.Data())
			pong.SetAck(true)
			fh := AcquireFrameHeader()
			fh.SetBody(pong)
			peer.writeFrame(fh)
			return
		}
	}()

	rtt, err := sess.Ping(2 * time.Second)
	require.NoError(t, err)
	require.GreaterOrEqual(t, rtt, time.Duration(0))
}

func TestSessionSubmitAfterCloseFails(t *testing.T) {
	sess, _ := newTestSession(t, nil)
	require.NoError(t, sess.Close())

	_, err := sess.Submit([]hpack.Field{{Name: ":method", Value: "GET"}}, nil)
	require.ErrorIs(t, err, ErrSessionClosed)
}

// TestFlowControlStallThenResume is spec scenario 5: a 100000-byte body
// against a 65535-byte peer send window sends exactly the window's worth
// of DATA, stalls, then sends exactly the remainder once a WINDOW_UPDATE
// credits the stream back.
func TestFlowControlStallThenResume(t *testing.T) {
	client, server := LoopbackPair()
	peer := newTestPeer(t, server)

	done := make(chan struct{})
	go func() {
		peer.doHandshake()
		close(done)
	}()

	sess, err := Connect(client, NewConfig(WithSettingsTimeout(2*time.Second)))
	require.NoError(t, err)
	defer sess.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("peer handshake goroutine never finished")
	}

	body := make([]byte, 100000)
	for i := range body {
		body[i] = byte(i)
	}

	resCh, err := sess.Submit([]hpack.Field{
		{Name: ":method", Value: "POST"},
		{Name: ":path", Value: "/"},
		{Name: ":authority", Value: "example.com"},
		{Name: ":scheme", Value: "https"},
	}, body)
	require.NoError(t, err)

	streamID, _, endStream := peer.readRequest()
	require.False(t, endStream)

	var received []byte
	for len(received) < 65535 {
		frh, ferr := ReadFrameFrom(peer.br)
		require.NoError(t, ferr)
		d, ok := frh.Body().(*Data)
		require.True(t, ok)
		require.Equal(t, streamID, frh.Stream())
		require.False(t, d.EndStream())
		received = append(received, d.Data()...)
	}
	require.Len(t, received, 65535)

	// Confirm the stall: with no send credit left, nothing more arrives
	// until the WINDOW_UPDATE below.
	require.NoError(t, server.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, err = ReadFrameFrom(peer.br)
	require.Error(t, err)
	require.NoError(t, server.SetReadDeadline(time.Time{}))

	wuFh := AcquireFrameHeader()
	wuFh.SetStream(streamID)
	wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
	wu.SetIncrement(40000)
	wuFh.SetBody(wu)
	peer.writeFrame(wuFh)

	for len(received) < len(body) {
		frh, ferr := ReadFrameFrom(peer.br)
		require.NoError(t, ferr)
		d, ok := frh.Body().(*Data)
		require.True(t, ok)
		received = append(received, d.Data()...)
		if len(received) == len(body) {
			require.True(t, d.EndStream())
		} else {
			require.False(t, d.EndStream())
		}
	}
	require.Equal(t, body, received)

	peer.sendResponse(streamID, "200", nil)

	select {
	case res := <-resCh:
		require.NoError(t, res.Err)
		require.Equal(t, 200, res.Status)
	case <-time.After(3 * time.Second):
		t.Fatal("request never completed")
	}
}

// TestMultiplexingInterleavedStreamsReassembleCorrectly is spec scenario 6:
// two streams' DATA frames interleaved on the wire as
// DATA(1) DATA(3) DATA(1) DATA(3,END_STREAM) DATA(1,END_STREAM) must still
// reassemble into two independent, correctly-ordered response bodies.
func TestMultiplexingInterleavedStreamsReassembleCorrectly(t *testing.T) {
	sess, peer := newTestSession(t, nil)
	defer sess.Close()

	reqDone := make(chan struct{})
	go func() {
		defer close(reqDone)

		seen := map[uint32]bool{}
		for len(seen) < 2 {
			id, _, endStream := peer.readRequest()
			require.True(t, endStream)
			seen[id] = true
		}

		for _, id := range []uint32{1, 3} {
			encoded, n := peer.enc.Encode(nil, []hpack.Field{{Name: ":status", Value: "200"}}, 16384)
			require.Equal(t, 1, n)
			h := &Headers{endHeaders: true, endStream: false}
			h.SetHeaderBlockFragment(encoded)
			fh := AcquireFrameHeader()
			fh.SetStream(id)
			fh.SetBody(h)
			peer.writeFrame(fh)
		}

		writeData := func(id uint32, b []byte, endStream bool) {
			d := &Data{endStream: endStream}
			d.SetData(b)
			fh := AcquireFrameHeader()
			fh.SetStream(id)
			fh.SetBody(d)
			peer.writeFrame(fh)
		}

		writeData(1, []byte("r1-a"), false)
		writeData(3, []byte("r2-a"), false)
		writeData(1, []byte("r1-b"), false)
		writeData(3, []byte("r2-b"), true)
		writeData(1, []byte("r1-c"), true)
	}()

	res1Ch, err := sess.Submit([]hpack.Field{
		{Name: ":method", Value: "GET"}, {Name: ":path", Value: "/1"},
	}, nil)
	require.NoError(t, err)
	res2Ch, err := sess.Submit([]hpack.Field{
		{Name: ":method", Value: "GET"}, {Name: ":path", Value: "/2"},
	}, nil)
	require.NoError(t, err)

	select {
	case <-reqDone:
	case <-time.After(3 * time.Second):
		t.Fatal("peer never finished driving the interleaved responses")
	}

	var res1, res2 StreamResult
	select {
	case res1 = <-res1Ch:
	case <-time.After(3 * time.Second):
		t.Fatal("stream 1 never completed")
	}
	select {
	case res2 = <-res2Ch:
	case <-time.After(3 * time.Second):
		t.Fatal("stream 2 never completed")
	}

	require.NoError(t, res1.Err)
	require.NoError(t, res2.Err)
	require.Equal(t, "r1-ar1-br1-c", string(res1.Body))
	require.Equal(t, "r2-ar2-b", string(res2.Body))
}

func TestSessionStreamResetByPeer(t *testing.T) {
	sess, peer := newTestSession(t, nil)
	defer sess.Close()

	go func() {
		streamID, _, _ := peer.readRequest()
		fh := AcquireFrameHeader()
		fh.SetStream(streamID)
		rst := AcquireFrame(FrameResetStream).(*RstStream)
		rst.SetCode(CancelError)
		fh.SetBody(rst)
		peer.writeFrame(fh)
	}()

	resCh, err := sess.Submit([]hpack.Field{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/"},
	}, nil)
	require.NoError(t, err)

	select {
	case res := <-resCh:
		require.Error(t, res.Err)
	case <-time.After(3 * time.Second):
		t.Fatal("stream never resolved after RST_STREAM")
	}
}

// TestSessionRejectsDataFrameOnStreamZero is spec scenario 3: a DATA frame
// addressed to stream 0 is a connection PROTOCOL_ERROR, not a silently
// dropped frame.
func TestSessionRejectsDataFrameOnStreamZero(t *testing.T) {
	sess, peer := newTestSession(t, nil)
	defer sess.Close()

	fh := AcquireFrameHeader()
	fh.SetBody(&Data{})
	peer.writeFrame(fh)

	require.Eventually(t, sess.Closed, time.Second, 10*time.Millisecond)

	var herr *Error
	require.ErrorAs(t, sess.closeErr, &herr)
	require.Equal(t, ProtocolError, herr.Code)
}

// TestSessionRejectsPushPromise: this client always disables server push,
// so a PUSH_PROMISE arriving anyway is a connection error (RFC 7540 §6.6),
// not something silently dropped.
func TestSessionRejectsPushPromise(t *testing.T) {
	sess, peer := newTestSession(t, nil)
	defer sess.Close()

	resCh, err := sess.Submit([]hpack.Field{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/"},
	}, nil)
	require.NoError(t, err)

	streamID, _, _ := peer.readRequest()

	fh := AcquireFrameHeader()
	fh.SetStream(streamID)
	fh.SetBody(&PushPromise{})
	peer.writeFrame(fh)

	require.Eventually(t, sess.Closed, time.Second, 10*time.Millisecond)

	var herr *Error
	require.ErrorAs(t, sess.closeErr, &herr)
	require.Equal(t, ProtocolError, herr.Code)

	select {
	case res := <-resCh:
		require.Error(t, res.Err)
	case <-time.After(time.Second):
		t.Fatal("stream never resolved after the session aborted on PUSH_PROMISE")
	}
}
