package hpack

import "testing"

// TestDecodeRFC7541C3_1 decodes the first request header block from RFC
// 7541 Appendix C.3.1 (non-Huffman literals, incremental indexing).
func TestDecodeRFC7541C3_1(t *testing.T) {
	input := []byte{
		0x82, 0x86, 0x84, 0x41, 0x0f, 0x77, 0x77, 0x77,
		0x2e, 0x65, 0x78, 0x61, 0x6d, 0x70, 0x6c, 0x65,
		0x2e, 0x63, 0x6f, 0x6d,
	}

	d := NewDecoder(4096)
	var got []Field
	err := d.DecodeFragment(input, func(f Field) error {
		got = append(got, f)
		return nil
	})
	if err != nil {
		t.Fatalf("DecodeFragment: %v", err)
	}

	want := []Field{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "http"},
		{Name: ":path", Value: "/"},
		{Name: ":authority", Value: "www.example.com"},
	}
	if len(got) != len(want) {
		t.Fatalf("decoded %d fields, want %d", len(got), len(want))
	}
	for i, f := range want {
		if got[i] != f {
			t.Fatalf("field %d = %+v, want %+v", i, got[i], f)
		}
	}

	if d.dynTable.len() != 1 {
		t.Fatalf("dynamic table has %d entries, want 1", d.dynTable.len())
	}
	if got, ok := d.dynTable.get(62); !ok || got.Name != ":authority" || got.Value != "www.example.com" {
		t.Fatalf("dynamic entry 62 = %+v, ok=%v", got, ok)
	}
}

func TestDecodeSizeUpdateMustBeFirst(t *testing.T) {
	d := NewDecoder(4096)
	// An indexed field followed by a dynamic-table-size-update: invalid.
	input := []byte{0x82, 0x20}
	err := d.DecodeFragment(input, func(Field) error { return nil })
	if err != ErrCompression {
		t.Fatalf("err = %v, want ErrCompression", err)
	}
}

func TestDecodeUnknownIndex(t *testing.T) {
	d := NewDecoder(4096)
	input := []byte{0xff, 0x00} // index 127 (full 7-bit prefix + continuation 0), no dynamic entries yet
	err := d.DecodeFragment(input, func(Field) error { return nil })
	if err != ErrCompression {
		t.Fatalf("err = %v, want ErrCompression", err)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	enc := NewEncoder(4096)
	dec := NewDecoder(4096)

	fields := []Field{
		{Name: ":method", Value: "POST"},
		{Name: ":path", Value: "/upload"},
		{Name: "content-type", Value: "application/octet-stream"},
		{Name: "x-request-id", Value: "abc-123"},
		{Name: "authorization", Value: "Bearer secret", Sensitive: true},
	}

	var buf []byte
	buf, n := enc.Encode(buf, fields, 4096)
	if n != len(fields) {
		t.Fatalf("encoded %d of %d fields", n, len(fields))
	}

	var got []Field
	if err := dec.DecodeFragment(buf, func(f Field) error {
		got = append(got, f)
		return nil
	}); err != nil {
		t.Fatalf("DecodeFragment: %v", err)
	}

	if len(got) != len(fields) {
		t.Fatalf("decoded %d fields, want %d", len(got), len(fields))
	}
	for i, f := range fields {
		if got[i].Name != f.Name || got[i].Value != f.Value || got[i].Sensitive != f.Sensitive {
			t.Fatalf("field %d = %+v, want %+v", i, got[i], f)
		}
	}
}

func TestEncodeRespectsBudget(t *testing.T) {
	enc := NewEncoder(4096)
	fields := []Field{
		{Name: "a", Value: "1111111111"},
		{Name: "b", Value: "2222222222"},
		{Name: "c", Value: "3333333333"},
	}
	// Budget fits only the first field's encoding.
	buf, n := enc.Encode(nil, fields, len(buf(enc, fields[:1])))
	if n != 1 {
		t.Fatalf("consumed %d fields, want 1", n)
	}
	if len(buf) == 0 {
		t.Fatalf("expected non-empty output")
	}
}

func buf(e *Encoder, fields []Field) []byte {
	e2 := NewEncoder(e.dynTable.maxSize)
	out, _ := e2.Encode(nil, fields, 1<<20)
	return out
}
