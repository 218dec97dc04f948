package payment

import (
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

// breakerKey is the circuit breaker dependency label for the gateway.
const breakerKey = "payment_gateway"

// GatewayStatus is the gateway's authoritative view of one charge attempt.
type GatewayStatus struct {
	Status        string    `json:"status"` // approved | failed | cancelled | pending
	GatewayTxID   string    `json:"gatewayTxId"`
	Amount        int64     `json:"amount"`
	PaidAt        time.Time `json:"paidAt"`
	FailureReason string    `json:"failureReason,omitempty"`
}

// Gateway looks up payment attempts at the PG. The reconcile sweep uses it
// to settle payments whose webhook never arrived.
type Gateway interface {
	Lookup(ctx context.Context, correlationID string) (*GatewayStatus, error)
}

// HTTPGateway talks to the real payment gateway. Calls retry transient
// failures and run through a circuit breaker so a dead PG fails fast.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.Breaker
}

// NewHTTPGateway creates the gateway client. timeout bounds each attempt.
func NewHTTPGateway(baseURL string, timeout time.Duration, breaker *circuitbreaker.Breaker) *HTTPGateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
	}
}

func (g *HTTPGateway) Lookup(ctx context.Context, correlationID string) (*GatewayStatus, error) {
	var status *GatewayStatus
	err := g.breaker.Do(breakerKey, func() error {
		return retry.Do(ctx, 3, 200*time.Millisecond, func() error {
			s, err := g.lookupOnce(ctx, correlationID)
			if err != nil {
				return err
			}
			status = s
			return nil
		})
	})
	if err != nil {
		if err == circuitbreaker.ErrOpen {
			return nil, errs.Wrap(errs.KindGatewayUnavailable, "payment gateway circuit open", err)
		}
		return nil, err
	}
	return status, nil
}

func (g *HTTPGateway) lookupOnce(ctx context.Context, correlationID string) (*GatewayStatus, error) {
	url := g.baseURL + "/v1/payments/" + correlationID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway lookup: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, retry.Permanent(errs.E(errs.KindNotFound, "gateway has no record of the payment"))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, retry.Permanent(fmt.Errorf("gateway rejected lookup: status %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("gateway error: status %d", resp.StatusCode)
	}

	var status GatewayStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode gateway response: %w", err))
	}
	return &status, nil
}

// FakeGateway is the test and development double.
type FakeGateway struct {
	mu      sync.Mutex
	results map[string]*GatewayStatus
	err     error
	lookups int
}

// NewFakeGateway creates an empty fake.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{results: make(map[string]*GatewayStatus)}
}

// SetResult seeds the lookup result for a correlation ID.
func (f *FakeGateway) SetResult(correlationID string, s *GatewayStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[correlationID] = s
}

// Fail makes every lookup return err.
func (f *FakeGateway) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Lookups reports how many lookups were made.
func (f *FakeGateway) Lookups() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

func (f *FakeGateway) Lookup(ctx context.Context, correlationID string) (*GatewayStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.results[correlationID]
	if !ok {
		return nil, errs.E(errs.KindNotFound, "gateway has no record of the payment")
	}
	cp := *s
	return &cp, nil
}

var _ Gateway = (*HTTPGateway)(nil)
var _ Gateway = (*FakeGateway)(nil)
