package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	v, res := Retry(context.Background(), fastRetry(), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("flaky")
		}
		return 42, nil
	})
	if !res.Success || v != 42 {
		t.Fatalf("Expected success with 42, got %v / %+v", v, res)
	}
	if res.Attempts != 3 || len(res.Errors) != 2 {
		t.Errorf("Expected 3 attempts and 2 errors, got %d and %d", res.Attempts, len(res.Errors))
	}
}

func TestRetryStopsOnPermanentAndContextErrors(t *testing.T) {
	for _, tt := range []struct {
		name string
		err  error
	}{
		{"permanent", Permanent(errors.New("404"))},
		{"canceled", context.Canceled},
	} {
		calls := 0
		_, res := Retry(context.Background(), fastRetry(), func(context.Context) (int, error) {
			calls++
			return 0, tt.err
		})
		if calls != 1 || res.Success {
			t.Errorf("%s: expected a single failed attempt, got %d calls", tt.name, calls)
		}
		if !errors.Is(res.LastError(), tt.err) && res.LastError() != tt.err {
			t.Errorf("%s: unexpected last error %v", tt.name, res.LastError())
		}
	}
}

func TestRetryDelayIsCapped(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2}
	expected := []time.Duration{0, time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}
	for attempt, want := range expected {
		if got := cfg.delay(attempt); got != want {
			t.Errorf("Attempt %d: expected %v, got %v", attempt, want, got)
		}
	}
}

func TestCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	fail := func() error { return errors.New("down") }

	_ = cb.Execute(fail)
	_ = cb.Execute(fail)
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Expected ErrCircuitOpen, got %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("Expected a trial call after the reset timeout, got %v", err)
	}
	if err := cb.Execute(fail); err == nil || errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected the breaker to be closed again, got %v", err)
	}
}

func TestDecodeDataURI(t *testing.T) {
	tests := []struct {
		uri       string
		mediaType string
		data      string
		wantErr   bool
	}{
		{"data:image/png;base64,aGVsbG8=", "image/png", "hello", false},
		{"data:image/png;base64,aGVsbG8", "image/png", "hello", false},
		{"data:,a%20b", "text/plain", "a b", false},
		{"data:image/png;base64,!!!", "", "", true},
		{"image/png;base64,aGVsbG8=", "", "", true},
	}
	for _, tt := range tests {
		mt, data, err := DecodeDataURI(tt.uri)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidDataURI) {
				t.Errorf("%q: expected ErrInvalidDataURI, got %v", tt.uri, err)
			}
			continue
		}
		if err != nil || mt != tt.mediaType || string(data) != tt.data {
			t.Errorf("%q: expected %s %q, got %s %q (%v)", tt.uri, tt.mediaType, tt.data, mt, data, err)
		}
	}
}

func TestMultiLoader(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "src.pdf")
	if err := os.WriteFile(path, []byte("local"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	m := NewMultiLoader(srv.Client(), fastRetry())
	ctx := context.Background()

	data, err := m.Load(ctx, srv.URL+"/doc.pdf")
	if err != nil || string(data) != "%PDF-1.7" {
		t.Errorf("Expected the download to succeed after a retry, got %q (%v)", data, err)
	}
	if _, err := m.Load(ctx, srv.URL+"/missing"); err == nil {
		t.Error("Expected a 404 to fail")
	}
	for _, ref := range []string{path, "file://" + path} {
		if data, err := m.Load(ctx, ref); err != nil || string(data) != "local" {
			t.Errorf("%s: expected local file, got %q (%v)", ref, data, err)
		}
	}
	if data, err := m.Load(ctx, "data:,inline"); err != nil || string(data) != "inline" {
		t.Errorf("Expected inline data, got %q (%v)", data, err)
	}
	if _, err := m.Load(ctx, "ftp://example.com/x.pdf"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("Expected ErrUnsupportedScheme, got %v", err)
	}
}
