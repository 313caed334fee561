package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mihaimyh/gorelay/pkg/relay"
	"github.com/mihaimyh/gorelay/storage/memory"
)

type fakeGateway struct {
	mu        sync.Mutex
	customers []CustomerParams
	checkouts []CheckoutParams
	portals   []PortalParams
	err       error
}

func (g *fakeGateway) CreateCustomer(_ context.Context, params CustomerParams) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.customers = append(g.customers, params)
	return fmt.Sprintf("cus_%d", len(g.customers)), nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, params CheckoutParams) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.checkouts = append(g.checkouts, params)
	return fmt.Sprintf("cs_test_%d", len(g.checkouts)), nil
}

func (g *fakeGateway) CreatePortalSession(_ context.Context, params PortalParams) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.portals = append(g.portals, params)
	return "https://billing.example.com/session/" + params.CustomerID, nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.customers) + len(g.checkouts) + len(g.portals)
}

// fakeVerifier accepts a payload only when the header equals validSignature.
type fakeVerifier struct {
	event *Event
	err   error
}

const validSignature = "t=1,v1=valid"

func (v *fakeVerifier) VerifyEvent(_ []byte, signatureHeader string) (*Event, error) {
	if signatureHeader != validSignature {
		return nil, fmt.Errorf("%w: signature mismatch", relay.ErrInvalidSignature)
	}
	if v.err != nil {
		return nil, v.err
	}
	return v.event, nil
}

// countingStore wraps the memory store and counts mutations.
type countingStore struct {
	*memory.Storage
	mu        sync.Mutex
	mutations int
	failWrite error
	failRead  error

	// racingCustomer is linked just before the caller's own SetCustomerID.
	racingCustomer string
}

func newCountingStore(profiles ...*relay.Profile) *countingStore {
	s := &countingStore{Storage: memory.New()}
	for _, p := range profiles {
		if err := s.PutProfile(p); err != nil {
			panic(err)
		}
	}
	return s
}

func (s *countingStore) GetProfile(ctx context.Context, userID string) (*relay.Profile, error) {
	if s.failRead != nil {
		return nil, s.failRead
	}
	return s.Storage.GetProfile(ctx, userID)
}

func (s *countingStore) SetCustomerID(ctx context.Context, userID, customerID string) error {
	if s.failWrite != nil {
		return s.failWrite
	}
	if s.racingCustomer != "" {
		if err := s.Storage.SetCustomerID(ctx, userID, s.racingCustomer); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.mutations++
	s.mu.Unlock()
	return s.Storage.SetCustomerID(ctx, userID, customerID)
}

func (s *countingStore) UpdateSubscriptionByCustomer(ctx context.Context, customerID string, update relay.SubscriptionUpdate) (bool, error) {
	if s.failWrite != nil {
		return false, s.failWrite
	}
	matched, err := s.Storage.UpdateSubscriptionByCustomer(ctx, customerID, update)
	if matched {
		s.mu.Lock()
		s.mutations++
		s.mu.Unlock()
	}
	return matched, err
}

func (s *countingStore) mutationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutations
}

type recordingMetrics struct {
	relay.NoopMetrics
	mu            sync.Mutex
	webhookEvents map[string]int
	webhookErrors map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{webhookEvents: map[string]int{}, webhookErrors: map[string]int{}}
}

func (m *recordingMetrics) RecordWebhookEvent(eventType, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhookEvents[eventType+"/"+outcome]++
}

func (m *recordingMetrics) RecordWebhookError(errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhookErrors[errorType]++
}

var errStoreDown = errors.New("data store unavailable")

type fixture struct {
	gateway  *fakeGateway
	verifier *fakeVerifier
	store    *countingStore
	metrics  *recordingMetrics
	service  *Service
}

func newFixture(profiles ...*relay.Profile) *fixture {
	f := &fixture{
		gateway:  &fakeGateway{},
		verifier: &fakeVerifier{},
		store:    newCountingStore(profiles...),
		metrics:  newRecordingMetrics(),
	}
	service, err := NewService(Config{
		Gateway:  f.gateway,
		Verifier: f.verifier,
		Store:    f.store,
		PriceID:  "price_123",
		AppURL:   "https://app.example.com/",
		Metrics:  f.metrics,
	})
	if err != nil {
		panic(err)
	}
	f.service = service
	return f
}
