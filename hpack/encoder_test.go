package hpack

import (
	"bytes"
	"testing"
)

// TestEncodeRFC7541C3_1 encodes RFC 7541 Appendix C.3.1/C.4.1's first
// request (static-table hits for :method/:scheme/:path, a Huffman-coded
// literal for :authority) and checks the exact wire bytes, mirroring
// decoder_test.go's TestDecodeRFC7541C3_1 on the encode side.
func TestEncodeRFC7541C3_1(t *testing.T) {
	fields := []Field{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "http"},
		{Name: ":path", Value: "/"},
		{Name: ":authority", Value: "www.example.com"},
	}

	want := []byte{
		0x82, 0x86, 0x84, 0x41, 0x8c, 0xf1, 0xe3, 0xc2,
		0xe5, 0xf2, 0x3a, 0x6b, 0xa0, 0xab, 0x90, 0xf4, 0xff,
	}

	e := NewEncoder(4096)
	got, n := e.Encode(nil, fields, 1<<20)
	if n != len(fields) {
		t.Fatalf("consumed %d fields, want %d", n, len(fields))
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("encoded = % x, want % x", got, want)
	}

	if e.dynTable.len() != 1 {
		t.Fatalf("dynamic table has %d entries, want 1", e.dynTable.len())
	}
	if e.dynTable.entries[0] != (Field{Name: ":authority", Value: "www.example.com"}) {
		t.Fatalf("dynamic table entry = %+v, want :authority", e.dynTable.entries[0])
	}
}

// TestEncodeBudgetRejectDoesNotInsert is the regression test for the
// encoder/decoder desync bug: a field that takes the incremental-indexing
// literal path must not land in the dynamic table unless its bytes actually
// made it into dst. Here the second field's encoding does not fit the
// budget, so Encode rolls it back — the table must come back empty, not
// holding a field the peer never saw.
func TestEncodeBudgetRejectDoesNotInsert(t *testing.T) {
	fields := []Field{
		{Name: "x-a", Value: "1"},
		{Name: "x-much-longer-header-name-that-will-not-fit", Value: "some reasonably long value"},
	}

	e := NewEncoder(4096)

	first, _ := e.encodeOne(nil, fields[0])
	budget := len(first) // only the first field's bytes fit

	got, n := e.Encode(nil, fields, budget)
	if n != 1 {
		t.Fatalf("consumed %d fields, want 1", n)
	}
	if !bytes.Equal(got, first) {
		t.Fatalf("encoded = % x, want % x", got, first)
	}

	if e.dynTable.len() != 1 {
		t.Fatalf("dynamic table has %d entries, want 1 (only the field that fit)", e.dynTable.len())
	}
	if e.dynTable.entries[0].Name == fields[1].Name {
		t.Fatalf("dynamic table holds the rejected field %+v; encoder/decoder state is now desynced", fields[1])
	}

	// A subsequent call with the remainder must be able to encode the
	// second field fresh, proving no partial state from the rejected
	// attempt leaked into the table.
	rest, n2 := e.Encode(nil, fields[1:], 1<<20)
	if n2 != 1 {
		t.Fatalf("second call consumed %d fields, want 1", n2)
	}
	if len(rest) == 0 {
		t.Fatalf("second call produced no bytes")
	}
	if e.dynTable.len() != 2 {
		t.Fatalf("dynamic table has %d entries after second call, want 2", e.dynTable.len())
	}
}

// TestEncodeThenDecodeRoundTrip exercises the encoder against the real
// Decoder so a header list that forces the literal-with-incremental-
// indexing path stays consistent across both sides' dynamic tables.
func TestEncodeThenDecodeRoundTrip(t *testing.T) {
	fields := []Field{
		{Name: ":method", Value: "POST"},
		{Name: ":path", Value: "/upload"},
		{Name: "x-request-id", Value: "abc-123"},
	}

	e := NewEncoder(4096)
	encoded, n := e.Encode(nil, fields, 1<<20)
	if n != len(fields) {
		t.Fatalf("consumed %d fields, want %d", n, len(fields))
	}

	d := NewDecoder(4096)
	var got []Field
	if err := d.DecodeFragment(encoded, func(f Field) error {
		got = append(got, f)
		return nil
	}); err != nil {
		t.Fatalf("DecodeFragment: %v", err)
	}

	if len(got) != len(fields) {
		t.Fatalf("decoded %d fields, want %d", len(got), len(fields))
	}
	for i, f := range fields {
		if got[i] != f {
			t.Fatalf("field %d = %+v, want %+v", i, got[i], f)
		}
	}
}
