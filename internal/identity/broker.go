package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/modubeauty/modu/internal/circuitbreaker"
	"github.com/modubeauty/modu/internal/errs"
	"github.com/modubeauty/modu/internal/retry"
)

// breakerKey is the circuit breaker dependency label for the broker.
const breakerKey = "identity_broker"

// defaultBrokerTimeout bounds each broker call.
const defaultBrokerTimeout = 5 * time.Second

// HTTPBroker talks to the real identity broker.
type HTTPBroker struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *circuitbreaker.Breaker
}

// NewHTTPBroker creates the broker client.
func NewHTTPBroker(baseURL, apiKey string, breaker *circuitbreaker.Breaker) *HTTPBroker {
	return &HTTPBroker{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultBrokerTimeout},
		breaker: breaker,
	}
}

func (b *HTTPBroker) Prepare(ctx context.Context, verificationID string, r Restrictions) (string, error) {
	var token string
	err := b.do(func() error {
		body, err := json.Marshal(map[string]any{
			"verificationId": verificationID,
			"restrictions":   r,
		})
		if err != nil {
			return retry.Permanent(err)
		}
		var resp struct {
			Token string `json:"token"`
		}
		if err := b.call(ctx, http.MethodPost, "/v1/verifications", body, &resp); err != nil {
			return err
		}
		token = resp.Token
		return nil
	})
	return token, err
}

func (b *HTTPBroker) Result(ctx context.Context, verificationID string) (*BrokerResult, error) {
	var result BrokerResult
	err := b.do(func() error {
		return b.call(ctx, http.MethodGet, "/v1/verifications/"+verificationID+"/result", nil, &result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (b *HTTPBroker) do(fn func() error) error {
	err := b.breaker.Do(breakerKey, fn)
	if err == circuitbreaker.ErrOpen {
		return errs.Wrap(errs.KindGatewayUnavailable, "identity broker circuit open", err)
	}
	return err
}

func (b *HTTPBroker) call(ctx context.Context, method, path string, body []byte, out any) error {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("broker call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return retry.Permanent(errs.E(errs.KindNotFound, "broker has no such verification"))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return retry.Permanent(fmt.Errorf("broker rejected request: status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return fmt.Errorf("broker error: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Permanent(fmt.Errorf("decode broker response: %w", err))
	}
	return nil
}

// FakeBroker is the test and development double.
type FakeBroker struct {
	mu      sync.Mutex
	results map[string]*BrokerResult
	err     error
}

// NewFakeBroker creates an empty fake.
func NewFakeBroker() *FakeBroker {
	return &FakeBroker{results: make(map[string]*BrokerResult)}
}

// SetResult seeds the outcome for a verification ID.
func (f *FakeBroker) SetResult(verificationID string, r *BrokerResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[verificationID] = r
}

// Fail makes every call return err.
func (f *FakeBroker) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *FakeBroker) Prepare(ctx context.Context, verificationID string, r Restrictions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return "tok_" + verificationID, nil
}

func (f *FakeBroker) Result(ctx context.Context, verificationID string) (*BrokerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.results[verificationID]
	if !ok {
		return nil, errs.E(errs.KindNotFound, "broker has no such verification")
	}
	cp := *r
	return &cp, nil
}

var _ Broker = (*HTTPBroker)(nil)
var _ Broker = (*FakeBroker)(nil)
