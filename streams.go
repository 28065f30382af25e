package h2

import (
	"sort"
	"sync"
)

// Streams is the per-session stream registry: every open stream kept
// sorted by id for O(log n) lookup, plus the bookkeeping needed to hand
// out client-initiated stream ids (RFC 7540 §5.1.1, always odd) and to
// find which streams are due for a turn on the write side.
//
// A session's read loop and write loop both touch the registry (the read
// loop looks streams up and deletes finished ones, the write loop inserts
// new ones and walks it for scheduling), so every method takes mu.
type Streams struct {
	mu      sync.Mutex
	list    []*Stream
	nextID  uint32
	maxOpen int
}

// NewStreams builds an empty registry. maxOpen mirrors the peer's
// SETTINGS_MAX_CONCURRENT_STREAMS; 0 means unlimited.
func NewStreams(maxOpen int) *Streams {
	return &Streams{nextID: 1, maxOpen: maxOpen}
}

func (strms *Streams) Len() int {
	strms.mu.Lock()
	defer strms.mu.Unlock()
	return len(strms.list)
}

// SetMaxOpen updates the concurrency ceiling, e.g. after a peer SETTINGS
// frame changes SETTINGS_MAX_CONCURRENT_STREAMS.
func (strms *Streams) SetMaxOpen(n int) {
	strms.mu.Lock()
	strms.maxOpen = n
	strms.mu.Unlock()
}

// CanOpen reports whether a new client-initiated stream may be created
// right now without exceeding the negotiated concurrency limit.
func (strms *Streams) CanOpen() bool {
	strms.mu.Lock()
	defer strms.mu.Unlock()
	return strms.maxOpen <= 0 || len(strms.list) < strms.maxOpen
}

// NextID allocates the next client-initiated stream id (odd, per RFC 7540
// §5.1.1), or ErrNotAvailableStreams once the 31-bit id space wraps.
func (strms *Streams) NextID() (uint32, error) {
	strms.mu.Lock()
	defer strms.mu.Unlock()
	id := strms.nextID
	if id == 0 || id > 1<<31-1 {
		return 0, ErrNotAvailableStreams
	}
	strms.nextID += 2
	return id, nil
}

// LastID reports the highest client-initiated stream id handed out so far,
// 0 if none have been. Used to populate GOAWAY's last-stream-id (RFC 7540
// §6.8): the highest stream this side has started.
func (strms *Streams) LastID() uint32 {
	strms.mu.Lock()
	defer strms.mu.Unlock()
	if strms.nextID <= 1 {
		return 0
	}
	return strms.nextID - 2
}

func (strms *Streams) Insert(s *Stream) {
	strms.mu.Lock()
	defer strms.mu.Unlock()

	i := sort.Search(len(strms.list), func(i int) bool {
		return strms.list[i].id >= s.id
	})

	if i < len(strms.list) && strms.list[i].id == s.id {
		strms.list[i] = s
		return
	}

	strms.list = append(strms.list, nil)
	copy(strms.list[i+1:], strms.list[i:])
	strms.list[i] = s
}

func (strms *Streams) Del(id uint32) *Stream {
	strms.mu.Lock()
	defer strms.mu.Unlock()

	i := sort.Search(len(strms.list), func(i int) bool {
		return strms.list[i].id >= id
	})

	if i < len(strms.list) && strms.list[i].id == id {
		strm := strms.list[i]
		strms.list = append(strms.list[:i], strms.list[i+1:]...)
		return strm
	}

	return nil
}

func (strms *Streams) Get(id uint32) *Stream {
	strms.mu.Lock()
	defer strms.mu.Unlock()

	i := sort.Search(len(strms.list), func(i int) bool {
		return strms.list[i].id >= id
	})
	if i < len(strms.list) && strms.list[i].id == id {
		return strms.list[i]
	}

	return nil
}

// ForEach visits every registered stream in ascending id order while
// holding the registry lock; fn must not call back into Streams.
func (strms *Streams) ForEach(fn func(*Stream)) {
	strms.mu.Lock()
	defer strms.mu.Unlock()
	for _, s := range strms.list {
		fn(s)
	}
}

// Scheduled returns every stream whose hasTxData reports pending write
// work, in ascending id order — a simple round-robin-by-id scheduler, the
// same fairness the original's single-threaded write loop gets by walking
// its stream map in registration order.
func (strms *Streams) Scheduled() []*Stream {
	strms.mu.Lock()
	defer strms.mu.Unlock()
	var out []*Stream
	for _, s := range strms.list {
		if s.hasTxData() {
			out = append(out, s)
		}
	}
	return out
}

// CloseAll marks every registered stream closed and fires its completion
// handler with err, used when the session tears down (GOAWAY, connection
// error, or a local Close) and every in-flight request must be resolved.
func (strms *Streams) CloseAll(err error) {
	strms.mu.Lock()
	list := strms.list
	strms.list = nil
	strms.mu.Unlock()

	for _, s := range list {
		s.state = StreamClosed
		s.finish(err)
	}
}
