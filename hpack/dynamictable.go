package hpack

// dynamicTable is the per-connection, insertion-ordered table described in
// RFC 7541 §2.3.2 and §4. entries[0] is always the most recently inserted
// field, matching the wire addressing rule that dynamic index 62 (the first
// dynamic slot) is the newest entry.
type dynamicTable struct {
	entries []Field
	size    int
	maxSize int
}

func newDynamicTable(maxSize int) *dynamicTable {
	return &dynamicTable{maxSize: maxSize}
}

// setMaxSize applies a dynamic-table-size-update, evicting as needed. It is
// used both for RFC 7541 §6.3 wire updates and for the local cap a session
// imposes from its own SETTINGS_HEADER_TABLE_SIZE.
func (t *dynamicTable) setMaxSize(n int) {
	t.maxSize = n
	t.evictTo(n)
}

func (t *dynamicTable) evictTo(limit int) {
	for t.size > limit && len(t.entries) > 0 {
		last := t.entries[len(t.entries)-1]
		t.entries = t.entries[:len(t.entries)-1]
		t.size -= last.size()
	}
}

// insert adds f as the newest dynamic entry, evicting older entries (oldest
// first) until the table fits within maxSize. A field larger than maxSize on
// its own results in an empty table, per RFC 7541 §4.4.
func (t *dynamicTable) insert(f Field) {
	cost := f.size()
	if cost > t.maxSize {
		t.entries = t.entries[:0]
		t.size = 0
		return
	}
	t.entries = append([]Field{f}, t.entries...)
	t.size += cost
	t.evictTo(t.maxSize)
}

// get resolves a joined static+dynamic wire index (1-based). Indices 1..61
// are static, 62+ address the dynamic table by recency.
func (t *dynamicTable) get(index uint64) (Field, bool) {
	if index == 0 {
		return Field{}, false
	}
	if index <= uint64(staticTableSize) {
		return staticTable[index-1], true
	}
	di := index - uint64(staticTableSize) - 1
	if di >= uint64(len(t.entries)) {
		return Field{}, false
	}
	return t.entries[di], true
}

// indexOf mirrors staticIndexOf but searches the dynamic table, returning a
// joined wire index.
func (t *dynamicTable) indexOf(name, value string) (nameIdx int, exact bool) {
	for i, f := range t.entries {
		if f.Name != name {
			continue
		}
		wire := staticTableSize + i + 1
		if nameIdx == 0 {
			nameIdx = wire
		}
		if f.Value == value {
			return wire, true
		}
	}
	return nameIdx, false
}

func (t *dynamicTable) len() int { return len(t.entries) }
