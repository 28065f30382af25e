package hpack

// Encoder serializes Field values into HPACK representations, maintaining
// the dynamic table state a peer's decoder mirrors.
type Encoder struct {
	dynTable *dynamicTable
}

// NewEncoder builds an Encoder whose dynamic table is capped at maxDynSize
// bytes, the local advertisement of how much table a peer may use to
// reference back entries this encoder inserted.
func NewEncoder(maxDynSize int) *Encoder {
	return &Encoder{dynTable: newDynamicTable(maxDynSize)}
}

// SetMaxDynamicSize reacts to a local decision (or a peer's
// SETTINGS_HEADER_TABLE_SIZE) to shrink or grow the table this encoder may
// use; it appends a dynamic-table-size-update instruction that must be the
// first thing placed in the next encoded block, per RFC 7541 §6.3.
func (e *Encoder) SetMaxDynamicSize(dst []byte, n int) []byte {
	e.dynTable.setMaxSize(n)
	return appendInt(dst, 5, 0x20, uint64(n))
}

// Encode appends as many of fields as fit within budget bytes onto dst,
// returning the extended slice and the number of fields consumed. Callers
// needing to split a header list across HEADERS + CONTINUATION frames call
// Encode repeatedly with the remaining fields and the next frame's budget.
func (e *Encoder) Encode(dst []byte, fields []Field, budget int) ([]byte, int) {
	start := len(dst)
	consumed := 0

	for _, f := range fields {
		before := len(dst)
		next, toInsert := e.encodeOne(dst, f)
		if len(next)-start > budget {
			dst = dst[:before]
			break
		}
		dst = next
		if toInsert {
			// Only now that the bytes are confirmed kept in dst does this
			// field become something the peer's decoder will have seen —
			// inserting any earlier would desync the two dynamic tables
			// the moment a field gets rolled back for not fitting budget.
			e.dynTable.insert(f)
		}
		consumed++
	}
	return dst, consumed
}

// encodeOne appends f's representation to dst and reports whether the
// caller must still insert f into the dynamic table (true only for the
// literal-with-incremental-indexing form, RFC 7541 §6.2.1) once it has
// confirmed the bytes survive the caller's budget check.
func (e *Encoder) encodeOne(dst []byte, f Field) ([]byte, bool) {
	if f.Sensitive {
		return e.encodeLiteral(dst, f, 0x10, 4, false), false
	}

	if nameIdx, exact := e.dynTable.indexOf(f.Name, f.Value); exact {
		return appendInt(dst, 7, 0x80, uint64(nameIdx)), false
	}
	if nameIdx, exact := staticIndexOf(f.Name, f.Value); exact {
		return appendInt(dst, 7, 0x80, uint64(nameIdx)), false
	}

	dst = e.encodeLiteral(dst, f, 0x40, 6, true)
	return dst, true
}

// encodeLiteral writes the literal-representation form shared by §6.2.1
// (indexUp=true) and §6.2.2/§6.2.3 (indexUp=false), reusing a name index
// from either table when available.
func (e *Encoder) encodeLiteral(dst []byte, f Field, prefixBits byte, n uint8, _ bool) []byte {
	var nameIdx int
	if idx, _ := e.dynTable.indexOf(f.Name, ""); idx != 0 {
		nameIdx = idx
	} else if idx, _ := staticIndexOf(f.Name, ""); idx != 0 {
		nameIdx = idx
	}

	if nameIdx != 0 {
		dst = appendInt(dst, n, prefixBits, uint64(nameIdx))
	} else {
		dst = appendInt(dst, n, prefixBits, 0)
		dst = appendString(dst, f.Name)
	}
	return appendString(dst, f.Value)
}
