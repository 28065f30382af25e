package h2

import (
	"crypto/tls"
	"net"
)

// Transport is the byte-stream collaborator a Session is built on: the
// spec's framing/HPACK/flow-control core never dials a socket itself, it
// only reads and writes an already-established, already-negotiated
// octet stream. Anything satisfying net.Conn works (TLS connections,
// net.Pipe for tests, a QUIC-backed stream wrapper, ...).
type Transport = net.Conn

// DialTLS opens a TLS+TCP connection to addr and verifies ALPN settled on
// "h2", mirroring teacher's Dialer.tryDial. tlsConfig may be nil, in which
// case a minimal TLS 1.2+ config requesting "h2" is built.
func DialTLS(addr string, tlsConfig *tls.Config) (net.Conn, error) {
	cfg := tlsConfig
	if cfg == nil {
		cfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS13,
		}
	}
	if !hasALPN(cfg.NextProtos, H2TLSProto) {
		cfg = cfg.Clone()
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		if cfg.ServerName == "" {
			cfg.ServerName = host
		}
		cfg.NextProtos = append(cfg.NextProtos, H2TLSProto)
	}

	conn, err := tls.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, err
	}

	if err := conn.Handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if conn.ConnectionState().NegotiatedProtocol != H2TLSProto {
		_ = conn.Close()
		return nil, ErrServerSupport
	}

	return conn, nil
}

func hasALPN(protos []string, want string) bool {
	for _, p := range protos {
		if p == want {
			return true
		}
	}
	return false
}

// LoopbackPair returns two ends of an in-memory, unencrypted byte stream
// (net.Pipe) suitable for driving a Session in tests without a real
// socket or TLS handshake, per this module's loopback-transport test
// convention.
func LoopbackPair() (client, server net.Conn) {
	return net.Pipe()
}
