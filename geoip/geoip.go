// Package geoip resolves the caller's public address and location for the
// audit trail. Lookups are best effort.
package geoip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/georgepadayatti/signflow/fetch"
	"github.com/georgepadayatti/signflow/logging"
)

// DefaultEndpoint returns the ipapi.co JSON shape.
const DefaultEndpoint = "https://ipapi.co/json/"

const (
	UnknownIP       = "unknown"
	UnknownLocation = "Unknown Location"
)

// Info is the resolver's answer. Only IP is always set.
type Info struct {
	IP      string `json:"ip"`
	City    string `json:"city,omitempty"`
	Region  string `json:"region,omitempty"`
	Country string `json:"country_name,omitempty"`
	Org     string `json:"org,omitempty"`
}

// Location joins the known parts as "City, Region, Country".
func (i Info) Location() string {
	var parts []string
	for _, p := range []string{i.City, i.Region, i.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return UnknownLocation
	}
	return strings.Join(parts, ", ")
}

// Resolver looks up the current caller.
type Resolver interface {
	Resolve(ctx context.Context) (Info, error)
}

// Static always answers with the same Info.
type Static Info

func (s Static) Resolve(context.Context) (Info, error) {
	return Info(s), nil
}

// ErrLookup wraps resolver failures.
var ErrLookup = errors.New("geo-ip lookup failed")

// HTTPResolver queries a JSON endpoint.
type HTTPResolver struct {
	Endpoint string
	Client   *http.Client
	Retry    *fetch.RetryConfig
	Breaker  *fetch.CircuitBreaker
}

// NewHTTPResolver creates a resolver with a short timeout, a couple of
// retries and a breaker so a dead endpoint does not slow down every fill.
func NewHTTPResolver(endpoint string) (*HTTPResolver, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	cfg := fetch.DefaultClientConfig()
	cfg.Timeout = 5 * time.Second
	client, err := fetch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	retry := fetch.DefaultRetryConfig()
	retry.MaxAttempts = 2
	return &HTTPResolver{
		Endpoint: endpoint,
		Client:   client,
		Retry:    retry,
		Breaker:  fetch.NewCircuitBreaker(3, time.Minute),
	}, nil
}

// Resolve implements Resolver.
func (r *HTTPResolver) Resolve(ctx context.Context) (Info, error) {
	var info Info
	call := func() error {
		v, res := fetch.Retry(ctx, r.Retry, r.fetch)
		if !res.Success {
			return res.LastError()
		}
		info = v
		return nil
	}
	var err error
	if r.Breaker != nil {
		err = r.Breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrLookup, err)
	}
	return info, nil
}

func (r *HTTPResolver) fetch(ctx context.Context) (Info, error) {
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.Endpoint, nil)
	if err != nil {
		return Info{}, fetch.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return Info{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Info{}, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var body struct {
		Info
		Error  bool   `json:"error"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Info{}, fetch.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	if body.Error {
		return Info{}, fetch.Permanent(fmt.Errorf("resolver error: %s", body.Reason))
	}
	if body.IP == "" {
		return Info{}, fetch.Permanent(errors.New("response has no ip"))
	}
	return body.Info, nil
}

// Lookup never fails: resolver errors are logged and degrade to an
// unknown address.
func Lookup(ctx context.Context, r Resolver, logger logrus.FieldLogger) Info {
	if r == nil {
		return Info{IP: UnknownIP}
	}
	info, err := r.Resolve(ctx)
	if err != nil {
		logging.OrDiscard(logger).WithError(err).Warn("geo-ip lookup failed, using unknown location")
		return Info{IP: UnknownIP}
	}
	if info.IP == "" {
		info.IP = UnknownIP
	}
	return info
}
