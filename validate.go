package h2

import (
	"golang.org/x/net/http/httpguts"
)

// validateHeaderField checks a single outbound header name/value against
// RFC 7230's token/field-value grammar before it ever reaches the HPACK
// encoder. Pseudo-headers (":method", ":path", ...) are exempt from the
// name check since httpguts only knows about regular field names.
func validateHeaderField(name, value string) error {
	if len(name) == 0 {
		return wrapErr(ProtocolError, ErrInvalidHeader)
	}
	if name[0] != ':' && !httpguts.ValidHeaderFieldName(name) {
		return streamErr(0, ProtocolError, "invalid header field name %q", name)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return streamErr(0, ProtocolError, "invalid header field value for %q", name)
	}
	return nil
}
