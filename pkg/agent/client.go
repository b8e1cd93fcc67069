package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shashiranjanraj/appcore/pkg/logger"
)

// Client is the shared outbound client. SetMaxSockets governs its pool.
var Client = &http.Client{Transport: shared}

// Request builds one outbound call.
//
//	var out Status
//	res, err := agent.Get("https://status.example.com/api").
//	    Retry(3, 200*time.Millisecond).
//	    Send(ctx)
//	if err == nil && res.OK() {
//	    err = res.JSON(&out)
//	}
type Request struct {
	method    string
	url       string
	header    http.Header
	body      any
	timeout   time.Duration
	attempts  int
	retryWait time.Duration
}

func Get(url string) *Request { return NewRequest(http.MethodGet, url) }
func Post(url string) *Request { return NewRequest(http.MethodPost, url) }
func Put(url string) *Request { return NewRequest(http.MethodPut, url) }
func Delete(url string) *Request { return NewRequest(http.MethodDelete, url) }

// NewRequest starts a request with a 30s per-attempt timeout and no retry.
func NewRequest(method, url string) *Request {
	h := http.Header{}
	h.Set("Accept", "application/json")
	return &Request{
		method:    method,
		url:       url,
		header:    h,
		timeout:   30 * time.Second,
		attempts:  1,
		retryWait: 500 * time.Millisecond,
	}
}

func (r *Request) Header(key, value string) *Request {
	r.header.Set(key, value)
	return r
}

// Body sets the payload. Strings and byte slices are sent raw; anything
// else is encoded as JSON.
func (r *Request) Body(v any) *Request {
	r.body = v
	return r
}

// Timeout bounds each attempt.
func (r *Request) Timeout(d time.Duration) *Request {
	r.timeout = d
	return r
}

// Retry sets the total number of attempts. The wait doubles after each
// failed attempt. Only transport errors and 5xx responses are retried.
func (r *Request) Retry(attempts int, wait time.Duration) *Request {
	if attempts < 1 {
		attempts = 1
	}
	r.attempts = attempts
	r.retryWait = wait
	return r
}

// Send runs the request, retrying as configured, until ctx is done.
func (r *Request) Send(ctx context.Context) (*Response, error) {
	payload, contentType, err := r.encode()
	if err != nil {
		return nil, err
	}

	wait := r.retryWait
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		res, err := r.once(ctx, payload, contentType)
		if err == nil && res.StatusCode < http.StatusInternalServerError {
			return res, nil
		}
		if err == nil {
			lastErr = fmt.Errorf("agent: %s %s: status %d", r.method, r.url, res.StatusCode)
			if attempt == r.attempts {
				return res, nil
			}
		} else {
			lastErr = err
		}
		if attempt == r.attempts {
			break
		}

		logger.WithCtx(ctx).Warn("outbound request failed, retrying",
			zap.String("method", r.method),
			zap.String("url", r.url),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return nil, fmt.Errorf("agent: %d attempts failed: %w", r.attempts, lastErr)
}

func (r *Request) once(ctx context.Context, payload []byte, contentType string) (*Response, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, fmt.Errorf("agent: build request: %w", err)
	}
	req.Header = r.header.Clone()
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	res, err := Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent: %s %s: %w", r.method, r.url, err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("agent: read body: %w", err)
	}
	return &Response{StatusCode: res.StatusCode, Header: res.Header, Body: raw}, nil
}

func (r *Request) encode() ([]byte, string, error) {
	switch v := r.body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return []byte(v), "text/plain; charset=utf-8", nil
	case []byte:
		return v, "application/octet-stream", nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("agent: encode body: %w", err)
		}
		return b, "application/json", nil
	}
}

// Response is a fully read response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("agent: decode body: %w", err)
	}
	return nil
}
