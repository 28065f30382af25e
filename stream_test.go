package h2

import (
	"testing"
	"time"

	"github.com/h2c-project/h2core/hpack"
)

func newTestStream(headers []hpack.Field, body []byte, done func(StreamResult)) *Stream {
	if done == nil {
		done = func(StreamResult) {}
	}
	return newStream(1, 1<<16-1, 1<<16-1, headers, body, 0, done)
}

func TestStreamStateString(t *testing.T) {
	cases := map[StreamState]string{
		StreamIdle:             "IDLE",
		StreamOpen:             "OPEN",
		StreamHalfClosedLocal:  "HALF_CLOSED_LOCAL",
		StreamHalfClosedRemote: "HALF_CLOSED_REMOTE",
		StreamClosed:           "CLOSED",
		StreamState(99):        "UNKNOWN",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestStreamNoBodyClosesCleanlyBothSides(t *testing.T) {
	var result StreamResult
	done := func(r StreamResult) { result = r }

	s := newTestStream([]hpack.Field{{Name: ":method", Value: "GET"}}, nil, done)
	enc := hpack.NewEncoder(4096)

	frames, _ := s.getTxData(enc, 16384, nil)
	if len(frames) != 1 {
		t.Fatalf("expected a single HEADERS frame, got %d", len(frames))
	}
	if s.state != StreamHalfClosedLocal {
		t.Fatalf("state = %s, want HALF_CLOSED_LOCAL", s.state)
	}

	// peer replies with headers + END_STREAM
	s.onReceiveHeaders([]hpack.Field{{Name: ":status", Value: "200"}}, true, 10)

	if s.state != StreamClosed {
		t.Fatalf("state = %s, want CLOSED", s.state)
	}
	if result.Status != 200 {
		t.Fatalf("status = %d, want 200", result.Status)
	}
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
}

func TestStreamRemoteClosesFirst(t *testing.T) {
	done := func(StreamResult) {}
	s := newTestStream([]hpack.Field{{Name: ":method", Value: "POST"}}, []byte("payload"), done)
	enc := hpack.NewEncoder(4096)

	// headers go out, body still pending: not locally closed yet.
	s.getTxData(enc, 16384, nil)
	if s.state != StreamOpen {
		t.Fatalf("state after headers-only turn = %s, want OPEN", s.state)
	}

	// peer answers (with END_STREAM) before we've finished sending the body.
	s.onReceiveHeaders([]hpack.Field{{Name: ":status", Value: "200"}}, true, 5)
	if s.state != StreamHalfClosedRemote {
		t.Fatalf("state = %s, want HALF_CLOSED_REMOTE", s.state)
	}

	// now the local side finishes sending its body.
	s.getTxData(enc, 16384, nil)
	if s.state != StreamClosed {
		t.Fatalf("state after body completes = %s, want CLOSED", s.state)
	}
}

func TestStreamDoesNotDoubleEndStream(t *testing.T) {
	// A body-less request's HEADERS frame alone must carry END_STREAM;
	// there must be no synthetic empty DATA frame following it.
	s := newTestStream([]hpack.Field{{Name: ":method", Value: "GET"}}, nil, nil)
	enc := hpack.NewEncoder(4096)

	frames, _ := s.getTxData(enc, 16384, nil)
	if len(frames) != 1 {
		t.Fatalf("expected exactly one frame for a body-less request, got %d", len(frames))
	}
	h, ok := frames[0].Body().(*Headers)
	if !ok {
		t.Fatalf("expected a *Headers frame, got %T", frames[0].Body())
	}
	if !h.endStream {
		t.Fatalf("HEADERS frame must carry END_STREAM when there is no body")
	}

	// nothing left scheduled: no trailing frame should ever be produced.
	if s.hasTxData() {
		t.Fatalf("stream still reports pending tx data after its only frame")
	}
}

func TestStreamResetByPeer(t *testing.T) {
	var result StreamResult
	s := newTestStream(nil, nil, func(r StreamResult) { result = r })

	s.onReceiveReset(CancelError)

	if s.state != StreamClosed {
		t.Fatalf("state = %s, want CLOSED", s.state)
	}
	if result.Err == nil {
		t.Fatalf("expected a non-nil error after reset")
	}
	herr, ok := result.Err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", result.Err)
	}
	if herr.Code != CancelError {
		t.Fatalf("error code = %s, want CANCEL", herr.Code)
	}
}

func TestStreamFinishIsOnce(t *testing.T) {
	calls := 0
	s := newTestStream(nil, nil, func(StreamResult) { calls++ })

	s.finish(nil)
	s.finish(nil)
	s.finish(ErrSessionClosed)

	if calls != 1 {
		t.Fatalf("done callback invoked %d times, want 1", calls)
	}
}

func TestAppendHeaderFragmentAccumulatesAcrossContinuation(t *testing.T) {
	s := newTestStream(nil, nil, nil)

	out, done := s.appendHeaderFragment([]byte("abc"), false, false)
	if done {
		t.Fatalf("block reported complete before END_HEADERS")
	}
	if out != nil {
		t.Fatalf("expected nil output before the block is complete")
	}

	out, done = s.appendHeaderFragment([]byte("def"), true, true)
	if !done {
		t.Fatalf("block should be complete once END_HEADERS arrives")
	}
	if string(out) != "abcdef" {
		t.Fatalf("accumulated block = %q, want %q", out, "abcdef")
	}
	if !s.headerEndStream {
		t.Fatalf("headerEndStream should be recorded once any fragment carries END_STREAM")
	}
	if s.headerBuf != nil {
		t.Fatalf("headerBuf should be cleared after the block is consumed")
	}
}

func TestGetTxDataRespectsRemoteWindow(t *testing.T) {
	s := newTestStream([]hpack.Field{{Name: ":method", Value: "POST"}}, make([]byte, 1000), nil)
	s.remoteWindow = NewWindow(10) // far smaller than a frame header plus any payload

	enc := hpack.NewEncoder(4096)
	frames, used := s.getTxData(enc, 16384, nil)
	if len(frames) != 0 || used != 0 {
		t.Fatalf("expected no frames when remote window is below the minimum frame size, got %d frames, used=%d", len(frames), used)
	}
}

func TestGetTxDataEmitsWindowUpdateWhenLocalWindowNeedsIt(t *testing.T) {
	s := newTestStream(nil, nil, nil)
	s.localWindow = NewWindow(100)
	s.localWindow.Dec(26) // capacity/4 == 25, so this crosses the threshold
	s.state = StreamOpen

	enc := hpack.NewEncoder(4096)
	frames, _ := s.getTxData(enc, 16384, nil)
	if len(frames) != 1 {
		t.Fatalf("expected a single WINDOW_UPDATE frame, got %d", len(frames))
	}
	if _, ok := frames[0].Body().(*WindowUpdate); !ok {
		t.Fatalf("expected *WindowUpdate, got %T", frames[0].Body())
	}
	if s.localWindow.NeedsUpdate() {
		t.Fatalf("local window should no longer need an update after TakeUpdate")
	}
}

func TestStreamTimeoutFiresOnTimer(t *testing.T) {
	resultCh := make(chan StreamResult, 1)
	s := newStream(1, 1<<16-1, 1<<16-1, []hpack.Field{{Name: ":method", Value: "GET"}}, nil, 10*time.Millisecond,
		func(r StreamResult) { resultCh <- r })

	enc := hpack.NewEncoder(4096)
	s.getTxData(enc, 16384, nil) // arms the timer

	select {
	case r := <-resultCh:
		if r.Err == nil {
			t.Fatalf("expected a timeout error")
		}
	case <-time.After(time.Second):
		t.Fatalf("stream timeout never fired")
	}
}
