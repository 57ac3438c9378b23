package geoip

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/georgepadayatti/signflow/fetch"
)

func TestLocation(t *testing.T) {
	tests := []struct {
		info     Info
		expected string
	}{
		{Info{City: "Oslo", Region: "Oslo County", Country: "Norway"}, "Oslo, Oslo County, Norway"},
		{Info{Country: "Norway"}, "Norway"},
		{Info{City: " ", Region: ""}, UnknownLocation},
	}
	for _, tt := range tests {
		if got := tt.info.Location(); got != tt.expected {
			t.Errorf("Expected %q, got %q", tt.expected, got)
		}
	}
}

func testResolver(url string) *HTTPResolver {
	return &HTTPResolver{
		Endpoint: url,
		Client:   http.DefaultClient,
		Retry:    &fetch.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
	}
}

func TestHTTPResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ip":"203.0.113.7","city":"Bergen","region":"Vestland","country_name":"Norway","org":"AS1"}`))
	}))
	defer srv.Close()

	info, err := testResolver(srv.URL).Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if info.IP != "203.0.113.7" || info.Location() != "Bergen, Vestland, Norway" || info.Org != "AS1" {
		t.Errorf("Unexpected info %+v", info)
	}
}

func TestLookupDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":true,"reason":"RateLimited"}`))
	}))
	defer srv.Close()

	r := testResolver(srv.URL)
	if _, err := r.Resolve(context.Background()); !errors.Is(err, ErrLookup) {
		t.Errorf("Expected ErrLookup, got %v", err)
	}
	info := Lookup(context.Background(), r, nil)
	if info.IP != UnknownIP || info.Location() != UnknownLocation {
		t.Errorf("Expected degraded info, got %+v", info)
	}
	if got := Lookup(context.Background(), nil, nil); got.IP != UnknownIP {
		t.Errorf("Expected unknown IP without a resolver, got %+v", got)
	}
}

func TestStatic(t *testing.T) {
	info := Lookup(context.Background(), Static{IP: "10.0.0.1", City: "Turku"}, nil)
	if info.IP != "10.0.0.1" || info.Location() != "Turku" {
		t.Errorf("Unexpected info %+v", info)
	}
}
