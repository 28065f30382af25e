package h2

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/h2c-project/h2core/hpack"
)

func TestBuildRequestHeaders(t *testing.T) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)

	req.SetRequestURI("https://example.com/foo?bar=1")
	req.Header.SetMethod("POST")
	req.Header.SetUserAgent("h2core-test")
	req.Header.Set("X-Custom", "Value")

	fields := buildRequestHeaders(req, true)

	byName := map[string]string{}
	for _, f := range fields {
		byName[f.Name] = f.Value
	}

	require.Equal(t, "example.com", byName[":authority"])
	require.Equal(t, "POST", byName[":method"])
	require.Equal(t, "/foo?bar=1", byName[":path"])
	require.Equal(t, "https", byName[":scheme"])
	require.Equal(t, "h2core-test", byName["user-agent"])
	require.Equal(t, "gzip, deflate, br", byName["accept-encoding"])
	require.Equal(t, "Value", byName["x-custom"])
}

func TestBuildRequestHeadersNoCompression(t *testing.T) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI("http://example.com/")

	fields := buildRequestHeaders(req, false)
	for _, f := range fields {
		if f.Name == "accept-encoding" {
			t.Fatalf("accept-encoding should not be added when compression is disabled")
		}
	}
}

func TestToFasthttpResponse(t *testing.T) {
	result := StreamResult{
		Status: 201,
		Headers: []hpack.Field{
			{Name: ":status", Value: "201"},
			{Name: "content-type", Value: "text/plain"},
		},
		Body: []byte("created"),
	}

	res, err := toFasthttpResponse(result, false)
	require.NoError(t, err)
	defer fasthttp.ReleaseResponse(res)

	require.Equal(t, 201, res.StatusCode())
	require.Equal(t, "created", string(res.Body()))
	require.Equal(t, "text/plain", string(res.Header.Peek("Content-Type")))
	// pseudo-headers must never leak into the fasthttp response.
	require.Empty(t, res.Header.Peek(":status"))
}

func TestToFasthttpResponseDefaultsStatus(t *testing.T) {
	res, err := toFasthttpResponse(StreamResult{}, false)
	require.NoError(t, err)
	defer fasthttp.ReleaseResponse(res)
	require.Equal(t, 200, res.StatusCode())
}

func TestSendEndToEnd(t *testing.T) {
	sess, peer := newTestSession(t, nil)
	defer sess.Close()

	go func() {
		_, fields, _ := peer.readRequest()
		byName := map[string]string{}
		for _, f := range fields {
			byName[f.Name] = f.Value
		}
		require.Equal(t, "GET", byName[":method"])
		peer.sendResponse(1, "200", []byte(`{"ok":true}`))
	}()

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI("https://example.com/api")
	req.Header.SetMethod("GET")

	res, err := sess.Send(req)
	require.NoError(t, err)
	defer fasthttp.ReleaseResponse(res)

	require.Equal(t, 200, res.StatusCode())
	require.Equal(t, `{"ok":true}`, string(res.Body()))
}

func TestSendRequestTimeout(t *testing.T) {
	sess, _ := newTestSession(t, NewConfig(WithRequestTimeout(50 * time.Millisecond)))
	defer sess.Close()

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI("https://example.com/slow")
	req.Header.SetMethod("GET")

	_, err := sess.Send(req)
	require.ErrorIs(t, err, ErrTimeout)
}
