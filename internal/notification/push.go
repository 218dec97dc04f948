package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Send error codes drive the worker's retry classification.
const (
	CodeInvalidToken = "invalid_token" // token dead, deactivate and stop sending to it
	CodeRateLimited  = "rate_limited"  // transient, back off
	CodeUnavailable  = "unavailable"   // transient, push service down or timed out
	CodePermanent    = "permanent"     // malformed payload etc, do not retry
)

// SendError reports a failed delivery with a classification code.
type SendError struct {
	Code  string
	cause error
}

func (e *SendError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("push send (%s): %v", e.Code, e.cause)
	}
	return "push send (" + e.Code + ")"
}

func (e *SendError) Unwrap() error { return e.cause }

// sendCode extracts the classification, defaulting unknown errors to
// transient so a surprise failure gets retried rather than dropped.
func sendCode(err error) string {
	if se, ok := err.(*SendError); ok {
		return se.Code
	}
	return CodeUnavailable
}

// Push delivers one message to one device token.
type Push interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) error
}

// HTTPPush talks to the push delivery service (FCM-shaped HTTP API).
// A client-side rate limiter keeps drain bursts under the provider quota.
type HTTPPush struct {
	baseURL   string
	serverKey string
	client    *http.Client
	limiter   *rate.Limiter
}

// NewHTTPPush creates the push client. timeout bounds each send attempt;
// perSecond caps outbound sends (0 means unlimited).
func NewHTTPPush(baseURL, serverKey string, timeout time.Duration, perSecond int) *HTTPPush {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	}
	return &HTTPPush{
		baseURL:   baseURL,
		serverKey: serverKey,
		client:    &http.Client{Timeout: timeout},
		limiter:   limiter,
	}
}

type pushRequest struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

func (p *HTTPPush) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return &SendError{Code: CodeUnavailable, cause: err}
	}
	payload, err := json.Marshal(pushRequest{To: token, Title: title, Body: body, Data: data})
	if err != nil {
		return &SendError{Code: CodePermanent, cause: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/send", bytes.NewReader(payload))
	if err != nil {
		return &SendError{Code: CodePermanent, cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.serverKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return &SendError{Code: CodeUnavailable, cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return &SendError{Code: CodeInvalidToken, cause: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &SendError{Code: CodeRateLimited, cause: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 500:
		return &SendError{Code: CodeUnavailable, cause: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		return &SendError{Code: CodePermanent, cause: fmt.Errorf("status %d", resp.StatusCode)}
	}
}

// Delivery records one send a FakePush accepted.
type Delivery struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

// FakePush is the test and development double.
type FakePush struct {
	mu        sync.Mutex
	sent      []Delivery
	failToken map[string]string // token -> error code
	err       error
}

// NewFakePush creates an empty fake that accepts every send.
func NewFakePush() *FakePush {
	return &FakePush{failToken: make(map[string]string)}
}

// FailToken makes sends to token fail with the given code.
func (f *FakePush) FailToken(token, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failToken[token] = code
}

// Fail makes every send return err.
func (f *FakePush) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Sent returns a copy of the accepted deliveries.
func (f *FakePush) Sent() []Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Delivery, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *FakePush) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if code, ok := f.failToken[token]; ok {
		return &SendError{Code: code}
	}
	f.sent = append(f.sent, Delivery{Token: token, Title: title, Body: body, Data: data})
	return nil
}

var _ Push = (*HTTPPush)(nil)
var _ Push = (*FakePush)(nil)
