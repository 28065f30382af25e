package hpack

import "errors"

// ErrCompression is returned for a field-block encoding that violates the
// representation grammar of RFC 7541 §6 (bad index, missing name, a
// dynamic-table-size-update appearing after a field has already been
// emitted in the same block).
var ErrCompression = errors.New("hpack: compression error")

// Decoder turns header-block fragments into Field values, maintaining the
// dynamic table a peer's encoder is updating in lock-step.
type Decoder struct {
	dynTable   *dynamicTable
	maxDynSize int
}

// NewDecoder builds a Decoder whose dynamic table is capped at maxDynSize
// bytes (RFC 7541 §4.2 accounting), normally the local
// SETTINGS_HEADER_TABLE_SIZE this session advertises.
func NewDecoder(maxDynSize int) *Decoder {
	return &Decoder{
		dynTable:   newDynamicTable(maxDynSize),
		maxDynSize: maxDynSize,
	}
}

// SetMaxDynamicSize updates the decoder's local ceiling, e.g. when the
// session's own SETTINGS_HEADER_TABLE_SIZE changes. A ceiling below the
// table's current maximum shrinks the table at once, evicting entries that
// no longer fit; a peer-issued dynamic-table-size-update still travels on
// the wire and is bounded by this ceiling when applied.
func (d *Decoder) SetMaxDynamicSize(n int) {
	d.maxDynSize = n
	if n < d.dynTable.maxSize {
		d.dynTable.setMaxSize(n)
	}
}

// DecodeFragment parses one field-block fragment, invoking emit once per
// decoded field in wire order. Fragments from HEADERS/CONTINUATION frames
// belonging to the same header block must be concatenated (or fed in
// order) before calling DecodeFragment on the whole block; this method does
// not itself buffer across calls.
func (d *Decoder) DecodeFragment(b []byte, emit func(Field) error) error {
	fieldCount := 0

	for len(b) > 0 {
		c := b[0]
		switch {
		case c&0x80 != 0: // indexed header field, RFC 7541 §6.1
			idx, n, err := readInt(b, 7)
			if err != nil {
				return err
			}
			if idx == 0 {
				return ErrCompression
			}
			f, ok := d.dynTable.get(idx)
			if !ok {
				return ErrCompression
			}
			if err := emit(f); err != nil {
				return err
			}
			fieldCount++
			b = b[n:]

		case c&0xc0 == 0x40: // literal with incremental indexing, §6.2.1
			f, n, err := d.readLiteral(b, 6)
			if err != nil {
				return err
			}
			if err := emit(f); err != nil {
				return err
			}
			d.dynTable.insert(f)
			fieldCount++
			b = b[n:]

		case c&0xf0 == 0x00: // literal without indexing, §6.2.2
			f, n, err := d.readLiteral(b, 4)
			if err != nil {
				return err
			}
			if err := emit(f); err != nil {
				return err
			}
			fieldCount++
			b = b[n:]

		case c&0xf0 == 0x10: // literal never indexed, §6.2.3
			f, n, err := d.readLiteral(b, 4)
			if err != nil {
				return err
			}
			f.Sensitive = true
			if err := emit(f); err != nil {
				return err
			}
			fieldCount++
			b = b[n:]

		case c&0xe0 == 0x20: // dynamic table size update, §6.3
			if fieldCount != 0 {
				return ErrCompression
			}
			size, n, err := readInt(b, 5)
			if err != nil {
				return err
			}
			if int(size) > d.maxDynSize {
				return ErrCompression
			}
			d.dynTable.setMaxSize(int(size))
			b = b[n:]

		default:
			return ErrCompression
		}
	}
	return nil
}

// readLiteral decodes the common literal-representation tail shared by
// §6.2.1/6.2.2/6.2.3: an N-bit name index (0 meaning "name follows as a
// string literal") followed by a value string literal.
func (d *Decoder) readLiteral(b []byte, n uint8) (Field, int, error) {
	nameIdx, consumed, err := readInt(b, n)
	if err != nil {
		return Field{}, 0, err
	}
	b = b[consumed:]

	var name string
	if nameIdx == 0 {
		var sn int
		name, sn, err = readString(b)
		if err != nil {
			return Field{}, 0, err
		}
		b = b[sn:]
		consumed += sn
	} else {
		f, ok := d.dynTable.get(nameIdx)
		if !ok {
			return Field{}, 0, ErrCompression
		}
		name = f.Name
	}

	value, sv, err := readString(b)
	if err != nil {
		return Field{}, 0, err
	}
	consumed += sv

	return Field{Name: name, Value: value}, consumed, nil
}
