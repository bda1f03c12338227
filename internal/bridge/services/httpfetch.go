package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/cyrup-ai/action-items-sub005/internal/bridge"
)

// Fetch errors.
var (
	ErrMissingURL       = errors.New("http request requires a url field")
	ErrSchemeNotAllowed = errors.New("only http and https urls are allowed")
	ErrBodyTooLarge     = errors.New("response body exceeds size limit")
)

// Fetcher performs outbound HTTP requests on behalf of plugins with a
// body size ceiling and a request timeout.
type Fetcher struct {
	client      *http.Client
	maxBodySize int64
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithMaxBodySize sets the response body ceiling in bytes.
func WithMaxBodySize(n int64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// NewFetcher creates a fetcher with a 10 second timeout and a 4 MB
// body ceiling.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:      &http.Client{Timeout: 10 * time.Second},
		maxBodySize: 4 << 20,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs one request and returns status, headers of interest,
// and the (bounded) body.
func (f *Fetcher) Fetch(ctx context.Context, method, rawURL string, body string) (int, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, "", fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return 0, "", ErrSchemeNotAllowed
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return 0, "", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	// Read one byte past the limit to detect oversize bodies.
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return 0, "", err
	}
	if int64(len(data)) > f.maxBodySize {
		return 0, "", ErrBodyTooLarge
	}

	return resp.StatusCode, string(data), nil
}

// handleHTTP answers {"url": u, "method": m, "body": b} with
// {"status": n, "body": "..."}.
func (s *Services) handleHTTP(ctx context.Context, req bridge.ServiceRequest) (json.RawMessage, error) {
	rawURL := gjson.GetBytes(req.Payload, "url")
	if !rawURL.Exists() {
		return nil, ErrMissingURL
	}
	method := gjson.GetBytes(req.Payload, "method").String()
	if method == "" {
		method = http.MethodGet
	}
	body := gjson.GetBytes(req.Payload, "body").String()

	status, respBody, err := s.Fetcher.Fetch(ctx, method, rawURL.String(), body)
	if err != nil {
		return nil, err
	}

	out, err := sjson.Set("{}", "status", status)
	if err != nil {
		return nil, err
	}
	out, err = sjson.Set(out, "body", respBody)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}
