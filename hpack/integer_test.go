package hpack

import (
	"bytes"
	"testing"
)

func TestAppendIntExample(t *testing.T) {
	// RFC 7541 C.1.2: 1337 encoded with a 5-bit prefix is 1f 9a 0a.
	got := appendInt(nil, 5, 0x00, 1337)
	want := []byte{0x1f, 0x9a, 0x0a}
	if !bytes.Equal(got, want) {
		t.Fatalf("appendInt(1337, n=5) = % x, want % x", got, want)
	}
}

func TestReadIntExample(t *testing.T) {
	v, n, err := readInt([]byte{0x1f, 0x9a, 0x0a}, 5)
	if err != nil {
		t.Fatalf("readInt: %v", err)
	}
	if v != 1337 {
		t.Fatalf("readInt = %d, want 1337", v)
	}
	if n != 3 {
		t.Fatalf("consumed = %d, want 3", n)
	}
}

func TestIntegerRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 30, 31, 127, 128, 1337, 16383, 16384, maxInteger}
	for _, n := range []uint8{4, 5, 6, 7} {
		for _, v := range values {
			dst := appendInt(nil, n, 0, v)
			got, consumed, err := readInt(dst, n)
			if err != nil {
				t.Fatalf("n=%d v=%d: readInt: %v", n, v, err)
			}
			if got != v {
				t.Fatalf("n=%d v=%d: got %d", n, v, got)
			}
			if consumed != len(dst) {
				t.Fatalf("n=%d v=%d: consumed %d of %d", n, v, consumed, len(dst))
			}
		}
	}
}

func TestReadIntOverflow(t *testing.T) {
	// A long continuation sequence (ten 0xff bytes, then a terminating 0x7f)
	// that blows past maxInteger before its end is reached.
	b := []byte{0x1f}
	for i := 0; i < 10; i++ {
		b = append(b, 0xff)
	}
	b = append(b, 0x7f)
	if _, _, err := readInt(b, 5); err != ErrIntegerOverflow {
		t.Fatalf("err = %v, want ErrIntegerOverflow", err)
	}
}

func TestReadIntUnexpectedEOF(t *testing.T) {
	if _, _, err := readInt([]byte{0x1f}, 5); err != ErrUnexpectedEOF {
		t.Fatalf("err = %v, want ErrUnexpectedEOF", err)
	}
}
