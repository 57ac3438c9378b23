package fetch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// Common errors
var (
	ErrUnsupportedScheme = errors.New("unsupported source scheme")
	ErrInvalidDataURI    = errors.New("invalid data URI")
	ErrTooLarge          = errors.New("source exceeds size limit")
)

// DefaultMaxBytes bounds a single download.
const DefaultMaxBytes = 64 << 20

// SourceLoader fetches the bytes behind a reference.
type SourceLoader interface {
	Load(ctx context.Context, ref string) ([]byte, error)
}

// FileLoader reads local paths and file:// URLs.
type FileLoader struct{}

func (FileLoader) Load(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := ref
	if strings.HasPrefix(ref, "file://") {
		u, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %q: %w", ref, err)
		}
		path = u.Path
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}
	return data, nil
}

// HTTPLoader downloads http and https URLs with retry.
type HTTPLoader struct {
	Client   *http.Client
	Retry    *RetryConfig
	MaxBytes int64
}

func (l *HTTPLoader) Load(ctx context.Context, ref string) ([]byte, error) {
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	limit := l.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, res := Retry(ctx, l.Retry, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			err := fmt.Errorf("GET %s: %s", ref, resp.Status)
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return nil, Permanent(err)
			}
			return nil, err
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
		if err != nil {
			return nil, err
		}
		if int64(len(body)) > limit {
			return nil, Permanent(ErrTooLarge)
		}
		return body, nil
	})
	if !res.Success {
		return nil, fmt.Errorf("failed to download source after %d attempts: %w", res.Attempts, res.LastError())
	}
	return data, nil
}

// DataURILoader decodes data: URIs.
type DataURILoader struct{}

func (DataURILoader) Load(_ context.Context, ref string) ([]byte, error) {
	_, data, err := DecodeDataURI(ref)
	return data, err
}

// DecodeDataURI splits a data: URI into its media type and payload.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing data: prefix", ErrInvalidDataURI)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing comma", ErrInvalidDataURI)
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if mediaType == "" {
		mediaType = "text/plain"
	}
	if !isBase64 {
		s, err := url.PathUnescape(payload)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
		}
		return mediaType, []byte(s), nil
	}
	payload = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			return -1
		}
		return r
	}, payload)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
		}
	}
	return mediaType, data, nil
}

// MultiLoader dispatches on the reference's scheme.
type MultiLoader struct {
	File SourceLoader
	HTTP SourceLoader
	Data SourceLoader
}

// NewMultiLoader wires the standard loaders around client.
func NewMultiLoader(client *http.Client, retry *RetryConfig) *MultiLoader {
	return &MultiLoader{
		File: FileLoader{},
		HTTP: &HTTPLoader{Client: client, Retry: retry},
		Data: DataURILoader{},
	}
}

func (m *MultiLoader) Load(ctx context.Context, ref string) ([]byte, error) {
	var l SourceLoader
	switch scheme, _, _ := strings.Cut(ref, ":"); strings.ToLower(scheme) {
	case "http", "https":
		l = m.HTTP
	case "data":
		l = m.Data
	case "file":
		l = m.File
	default:
		if strings.Contains(ref, "://") {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
		}
		l = m.File
	}
	if l == nil {
		return nil, fmt.Errorf("%w: no loader configured for %q", ErrUnsupportedScheme, ref)
	}
	return l.Load(ctx, ref)
}
