package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewValidatesConfig(t *testing.T) {
	client, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New with defaults failed: %v", err)
	}
	if client.Timeout != DefaultConfig().Timeout {
		t.Errorf("client timeout = %v, want %v", client.Timeout, DefaultConfig().Timeout)
	}

	bad := DefaultConfig()
	bad.Timeout = 0
	if _, err := New(bad); err == nil {
		t.Error("expected error for zero timeout")
	}
}

func TestNewWithoutRetriesSkipsRetryLayer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryAttempts = 0

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := client.Transport.(*retryTransport); ok {
		t.Error("retry layer present despite RetryAttempts = 0")
	}
	if _, ok := client.Transport.(*loggingTransport); !ok {
		t.Errorf("outermost transport = %T, want *loggingTransport", client.Transport)
	}
}

func TestClientEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
