package hue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Response is one element of the array the bridge returns for POST and PUT.
// Exactly one of Success or Error is set.
type Response struct {
	Success map[string]any `json:"success,omitempty"`
	Error   *BridgeError   `json:"error,omitempty"`
}

// Transport performs JSON calls against one base URL of the v1 API.
// It is cheap to build; Bridge.Transport returns a fresh one per call site.
type Transport struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newTransport(baseURL string, httpClient *http.Client, limiter *rate.Limiter) *Transport {
	return &Transport{
		baseURL:    baseURL,
		httpClient: httpClient,
		limiter:    limiter,
	}
}

// BaseURL returns the URL every path is resolved against.
func (t *Transport) BaseURL() string {
	return t.baseURL
}

func (t *Transport) url(path string) string {
	return t.baseURL + strings.TrimPrefix(path, "/")
}

// Get reads path and decodes the object into out.
// An error envelope in place of the object is returned as *BridgeError.
func (t *Transport) Get(ctx context.Context, path string, out any) error {
	data, err := t.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	if bridgeErr := envelopeError(data); bridgeErr != nil {
		return bridgeErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &TransportError{Method: http.MethodGet, URL: t.url(path), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// Post sends body and returns the per-item responses.
func (t *Transport) Post(ctx context.Context, path string, body any) ([]Response, error) {
	return t.send(ctx, http.MethodPost, path, body)
}

// Put sends body and returns the per-item responses.
func (t *Transport) Put(ctx context.Context, path string, body any) ([]Response, error) {
	return t.send(ctx, http.MethodPut, path, body)
}

func (t *Transport) send(ctx context.Context, method, path string, body any) ([]Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &TransportError{Method: method, URL: t.url(path), Err: fmt.Errorf("encode request: %w", err)}
	}

	data, err := t.do(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}

	var responses []Response
	if err := json.Unmarshal(data, &responses); err != nil {
		return nil, &TransportError{Method: method, URL: t.url(path), Err: fmt.Errorf("decode response: %w", err)}
	}
	return responses, nil
}

func (t *Transport) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	url := t.url(path)

	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Method: method, URL: url, Err: err}
		}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, &TransportError{Method: method, URL: url, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Debug().
		Str("method", method).
		Str("path", path).
		RawJSON("body", rawOrNull(payload)).
		Msg("Bridge request")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Method: method, URL: url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(data))),
		}
	}

	return data, nil
}

// envelopeError returns the first error of an array-shaped error envelope,
// or nil when data is anything else.
func envelopeError(data []byte) *BridgeError {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil
	}

	var responses []Response
	if err := json.Unmarshal(trimmed, &responses); err != nil {
		return nil
	}
	for _, r := range responses {
		if r.Error != nil {
			return r.Error
		}
	}
	return nil
}

func rawOrNull(payload []byte) []byte {
	if len(payload) == 0 {
		return []byte("null")
	}
	return payload
}
