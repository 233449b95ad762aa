package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(attempts int, maxBody int64) *Client {
	return New(Options{
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             1000,
		Attempts:          attempts,
		MaxBodyBytes:      maxBody,
	}, nil)
}

func TestFetchBytesReturnsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("image-bytes"))
	}))
	defer server.Close()

	data, err := newTestClient(3, 0).FetchBytes(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchBytes() error = %v", err)
	}
	if string(data) != "image-bytes" {
		t.Errorf("FetchBytes() = %q, want %q", data, "image-bytes")
	}
}

func TestFetchBytesRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	data, err := newTestClient(3, 0).FetchBytes(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchBytes() error = %v", err)
	}
	if string(data) != "ok" {
		t.Errorf("FetchBytes() = %q, want %q", data, "ok")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestFetchBytesDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient(3, 0).FetchBytes(context.Background(), server.URL)
	if err == nil {
		t.Fatal("FetchBytes() error = nil, want status error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1", got)
	}
}

func TestFetchBytesExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(2, 0).FetchBytes(context.Background(), server.URL)
	if err == nil {
		t.Fatal("FetchBytes() error = nil, want status error")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server calls = %d, want 2", got)
	}
}

func TestFetchBytesRejectsOversizedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 128)))
	}))
	defer server.Close()

	_, err := newTestClient(1, 64).FetchBytes(context.Background(), server.URL)
	if err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("FetchBytes() error = %v, want size limit error", err)
	}
}

func TestFetchBytesHonorsCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(3, 0).FetchBytes(ctx, server.URL)
	if err == nil {
		t.Fatal("FetchBytes() error = nil, want context error")
	}
}
