package h2

import (
	"testing"
)

func TestLoopbackPairIsConnected(t *testing.T) {
	client, server := LoopbackPair()
	defer client.Close()
	defer server.Close()

	msg := []byte("ping")
	done := make(chan struct{})
	go func() {
		buf := make([]byte, len(msg))
		n, err := server.Read(buf)
		if err != nil || n != len(msg) || string(buf) != "ping" {
			t.Errorf("server read = %q, %v, %d", buf[:n], err, n)
		}
		close(done)
	}()

	if _, err := client.Write(msg); err != nil {
		t.Fatalf("client write failed: %v", err)
	}
	<-done
}

func TestHasALPN(t *testing.T) {
	if !hasALPN([]string{"http/1.1", "h2"}, "h2") {
		t.Fatalf("expected h2 to be found in the proto list")
	}
	if hasALPN([]string{"http/1.1"}, "h2") {
		t.Fatalf("h2 should not be found when absent")
	}
	if hasALPN(nil, "h2") {
		t.Fatalf("h2 should not be found in a nil list")
	}
}
