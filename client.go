package h2

import (
	"bytes"
	"crypto/tls"
	"time"

	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"

	"github.com/h2c-project/h2core/hpack"
)

// Dial opens a TLS connection to addr, negotiates HTTP/2 over ALPN, and
// returns a ready-to-use Session. This is the convenience entry point
// most callers use instead of wiring DialTLS + Connect by hand.
func Dial(addr string, tlsConfig *tls.Config, cfg *Config) (*Session, error) {
	conn, err := DialTLS(addr, tlsConfig)
	if err != nil {
		return nil, err
	}
	s, err := Connect(conn, cfg)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// Send issues req over the session and blocks until the full response has
// arrived, the stream is reset, or the configured request timeout elapses.
// Pseudo-headers are derived from req's URI and method exactly as
// dgrr-http2/conn.go's writeRequest does it.
func (s *Session) Send(req *fasthttp.Request) (*fasthttp.Response, error) {
	headers := buildRequestHeaders(req, s.cfg.EnableCompression)

	resCh, err := s.Submit(headers, req.Body())
	if err != nil {
		return nil, err
	}

	var result StreamResult
	if s.cfg.RequestTimeout > 0 {
		select {
		case result = <-resCh:
		case <-time.After(s.cfg.RequestTimeout):
			return nil, ErrTimeout
		}
	} else {
		result = <-resCh
	}

	if result.Err != nil {
		return nil, result.Err
	}

	return toFasthttpResponse(result, s.cfg.EnableCompression)
}

func buildRequestHeaders(req *fasthttp.Request, enableCompression bool) []hpack.Field {
	var fields []hpack.Field

	fields = append(fields,
		hpack.Field{Name: string(StringAuthority), Value: string(req.URI().Host())},
		hpack.Field{Name: string(StringMethod), Value: string(req.Header.Method())},
		hpack.Field{Name: string(StringPath), Value: string(req.URI().RequestURI())},
		hpack.Field{Name: string(StringScheme), Value: string(req.URI().Scheme())},
	)

	if ua := req.Header.UserAgent(); len(ua) > 0 {
		fields = append(fields, hpack.Field{Name: "user-agent", Value: string(ua)})
	}

	if enableCompression {
		fields = append(fields, hpack.Field{Name: "accept-encoding", Value: "gzip, deflate, br"})
	}

	req.Header.VisitAll(func(k, v []byte) {
		if bytes.EqualFold(k, StringUserAgent) {
			return
		}
		fields = append(fields, hpack.Field{Name: string(ToLower(append([]byte(nil), k...))), Value: string(v)})
	})

	return fields
}

func toFasthttpResponse(result StreamResult, decompress bool) (*fasthttp.Response, error) {
	res := fasthttp.AcquireResponse()

	status := result.Status
	if status == 0 {
		status = 200
	}
	res.SetStatusCode(status)

	for _, f := range result.Headers {
		if len(f.Name) > 0 && f.Name[0] == ':' {
			continue
		}
		res.Header.Add(f.Name, f.Value)
	}

	body := result.Body

	if decompress {
		if encoding := res.Header.Peek("Content-Encoding"); len(encoding) > 0 {
			bb := bytebufferpool.Get()
			defer bytebufferpool.Put(bb)

			var n int
			var err error
			switch encoding[0] {
			case 'b':
				n, err = fasthttp.WriteUnbrotli(bb, body)
			case 'd':
				n, err = fasthttp.WriteInflate(bb, body)
			case 'g':
				n, err = fasthttp.WriteGunzip(bb, body)
			}
			if err == nil && n > 0 {
				body = append([]byte(nil), bb.B...)
			}
		}
	}

	res.SetBody(body)

	return res, nil
}
