// Package api is a client for the accident-monitoring REST API that owns
// users, cameras, alerts and streams.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTimeout = 15 * time.Second
	// UploadTimeout bounds multipart video uploads
	UploadTimeout = 10 * time.Minute
	userAgent     = "roadguard-console"
)

// Error is a non-2xx response from the API
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api: %d %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("api: %d %s", e.Status, http.StatusText(e.Status))
}

// StatusOf returns the HTTP status of an *Error in err's chain, or 0
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 from the API
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// Client talks to one API base URL. Authentication is the transport's job:
// build HTTP with session.BearerTransport or Store.Transport.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a client. A nil httpClient gets a default with DefaultTimeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: httpClient}
}

// WithTransport returns a copy of c whose requests go through rt, keeping
// the timeout. The console uses it to give each request its session's
// bearer transport.
func (c *Client) WithTransport(rt http.RoundTripper) *Client {
	hc := *c.HTTP
	hc.Transport = rt
	return &Client{BaseURL: c.BaseURL, HTTP: &hc}
}

// ResolveURL turns an API-relative path such as a stream URL into an
// absolute URL. Absolute inputs are returned unchanged.
func (c *Client) ResolveURL(ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	base, err := url.Parse(c.BaseURL + "/")
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, out)
}

// decodeError reads FastAPI style {"detail": ...} bodies. Validation errors
// carry a list of objects rather than a string.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	e := &Error{Status: resp.StatusCode}

	var body struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil {
		var s string
		switch {
		case len(body.Detail) > 0 && json.Unmarshal(body.Detail, &s) == nil:
			e.Detail = s
		case len(body.Detail) > 0:
			var items []struct {
				Msg string `json:"msg"`
			}
			if json.Unmarshal(body.Detail, &items) == nil {
				msgs := make([]string, 0, len(items))
				for _, it := range items {
					msgs = append(msgs, it.Msg)
				}
				e.Detail = strings.Join(msgs, "; ")
			}
		case body.Error != "":
			e.Detail = body.Error
		}
	} else if len(data) > 0 && len(data) < 200 {
		e.Detail = strings.TrimSpace(string(data))
	}
	return e
}

// escape makes an entity id safe for use as a path segment
func escape(id string) string {
	return url.PathEscape(id)
}
