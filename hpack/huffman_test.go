package hpack

import (
	"bytes"
	"testing"
)

func TestHuffmanRoundTripAllBytes(t *testing.T) {
	for b := 0; b < 256; b++ {
		src := []byte{byte(b)}
		enc := huffmanEncode(nil, src)
		dec, err := huffmanDecode(nil, enc)
		if err != nil {
			t.Fatalf("byte %d: decode error: %v", b, err)
		}
		if !bytes.Equal(dec, src) {
			t.Fatalf("byte %d: round trip = % x, want % x", b, dec, src)
		}
	}
}

func TestHuffmanKnownString(t *testing.T) {
	// RFC 7541 C.4.1: "www.example.com" Huffman-coded.
	src := []byte("www.example.com")
	want := []byte{
		0xf1, 0xe3, 0xc2, 0xe5, 0xf2, 0x3a, 0x6b, 0xa0,
		0xab, 0x90, 0xf4, 0xff,
	}
	got := huffmanEncode(nil, src)
	if !bytes.Equal(got, want) {
		t.Fatalf("huffmanEncode(%q) = % x, want % x", src, got, want)
	}
	dec, err := huffmanDecode(nil, want)
	if err != nil {
		t.Fatalf("huffmanDecode: %v", err)
	}
	if !bytes.Equal(dec, src) {
		t.Fatalf("huffmanDecode(% x) = %q, want %q", want, dec, src)
	}
}

func TestHuffmanInvalidPadding(t *testing.T) {
	// Flip the trailing padding of a valid encoding to all zero bits.
	src := []byte("a")
	enc := huffmanEncode(nil, src)
	enc[len(enc)-1] &^= 0x07
	if _, err := huffmanDecode(nil, enc); err == nil {
		t.Fatalf("expected padding error")
	}
}

func TestHuffmanEncodedLenMatchesOutput(t *testing.T) {
	src := []byte("hello, world! this is a reasonably long string.")
	if got, want := huffmanEncodedLen(src), len(huffmanEncode(nil, src)); got != want {
		t.Fatalf("huffmanEncodedLen = %d, want %d", got, want)
	}
}
