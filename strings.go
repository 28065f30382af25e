package h2

// Pseudo-header names, RFC 7540 §8.1.2.3/§8.1.2.4, plus the regular
// user-agent header name.
var (
	StringPath      = []byte(":path")
	StringStatus    = []byte(":status")
	StringAuthority = []byte(":authority")
	StringScheme    = []byte(":scheme")
	StringMethod    = []byte(":method")
	StringUserAgent = []byte("user-agent")
)

func ToLower(b []byte) []byte {
	for i := range b {
		b[i] |= 32
	}

	return b
}

// H2TLSProto is the string used in ALPN-TLS negotiation.
const H2TLSProto = "h2"
