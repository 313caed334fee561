package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mihaimyh/gorelay/pkg/relay"
)

// Outcome describes what the projection did with a verified event.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeNoMatch Outcome = "no_match"
	OutcomeIgnored Outcome = "ignored"
)

// Service implements the billing relay and the webhook ingestor.
type Service struct {
	config   Config
	gateway  Gateway
	verifier EventVerifier
	store    relay.ProfileStore
	logger   relay.Logger
	metrics  relay.Metrics
}

// NewService creates a billing service from a validated configuration.
func NewService(config Config) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.TrialPeriodDays == 0 {
		config.TrialPeriodDays = DefaultTrialPeriodDays
	}
	config.PriceID = strings.TrimSpace(config.PriceID)

	return &Service{
		config:   config,
		gateway:  config.Gateway,
		verifier: config.Verifier,
		store:    config.Store,
		logger:   relay.LoggerOrNoop(config.Logger),
		metrics:  relay.MetricsOrNoop(config.Metrics),
	}, nil
}

// CreateCheckoutSession creates a subscription checkout session for userID and
// returns its id. userID must be the principal's own id. The payments customer is
// created and persisted on the first call only; later calls reuse the stored id.
func (s *Service) CreateCheckoutSession(ctx context.Context, principal *relay.Principal, userID string) (string, error) {
	if principal == nil {
		return "", relay.ErrUnauthenticated
	}
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: userId is required", relay.ErrBadRequest)
	}
	if userID != principal.ID {
		return "", relay.ErrForbidden
	}

	profile, err := s.getProfile(ctx, userID)
	if err != nil {
		return "", err
	}

	customerID, err := s.ensureCustomer(ctx, profile, principal)
	if err != nil {
		return "", err
	}

	sessionID, err := s.gateway.CreateCheckoutSession(ctx, CheckoutParams{
		CustomerID:      customerID,
		UserID:          userID,
		PriceID:         s.config.PriceID,
		TrialPeriodDays: s.config.TrialPeriodDays,
		SuccessURL:      s.config.successURL(),
		CancelURL:       s.config.cancelURL(),
	})
	if err != nil {
		s.logger.Error("checkout session creation failed",
			relay.Field{Key: "user_id", Value: userID},
			relay.Field{Key: "error", Value: err})
		return "", err
	}

	s.logger.Info("checkout session created",
		relay.Field{Key: "user_id", Value: userID},
		relay.Field{Key: "session_id", Value: sessionID})
	return sessionID, nil
}

// CreatePortalSession returns a billing portal URL for the principal's own
// customer. The customer id is never taken from the client.
func (s *Service) CreatePortalSession(ctx context.Context, principal *relay.Principal) (string, error) {
	if principal == nil {
		return "", relay.ErrUnauthenticated
	}

	profile, err := s.getProfile(ctx, principal.ID)
	if err != nil {
		return "", err
	}
	if !profile.HasCustomer() {
		return "", fmt.Errorf("%w: no billing customer for user %s", relay.ErrProfileNotFound, principal.ID)
	}

	url, err := s.gateway.CreatePortalSession(ctx, PortalParams{
		CustomerID: profile.CustomerID,
		ReturnURL:  s.config.returnURL(),
	})
	if err != nil {
		s.logger.Error("portal session creation failed",
			relay.Field{Key: "user_id", Value: principal.ID},
			relay.Field{Key: "error", Value: err})
		return "", err
	}
	return url, nil
}

// IngestWebhook verifies payload against its signature header and, only when the
// signature holds, projects the event into the data store.
func (s *Service) IngestWebhook(ctx context.Context, payload []byte, signatureHeader string) (*Event, Outcome, error) {
	event, err := s.verifier.VerifyEvent(payload, signatureHeader)
	if err != nil {
		return nil, "", err
	}

	outcome, err := s.ApplyEvent(ctx, event)
	return event, outcome, err
}

// ApplyEvent projects a verified event into profile subscription state.
// Events for unknown customers are acknowledged without mutation.
func (s *Service) ApplyEvent(ctx context.Context, event *Event) (Outcome, error) {
	startTime := time.Now()

	var (
		customerID string
		update     relay.SubscriptionUpdate
	)

	switch event.Type {
	case EventCheckoutSessionCompleted:
		if event.Mode != CheckoutModeSubscription {
			return s.record(event, OutcomeIgnored), nil
		}
		customerID = event.CustomerID
		update.Status = relay.StatusTrialing
		if event.SubscriptionID != "" {
			subscriptionID := event.SubscriptionID
			update.SubscriptionID = &subscriptionID
		}
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		customerID = event.CustomerID
		update.Status = relay.SubscriptionStatus(event.Status)
		if update.Status == "" {
			s.logger.Warn("subscription event without status",
				relay.Field{Key: "event_id", Value: event.ID},
				relay.Field{Key: "event_type", Value: event.Type})
			return s.record(event, OutcomeIgnored), nil
		}
		if !update.Status.Known() {
			s.logger.Warn("unrecognized subscription status",
				relay.Field{Key: "event_id", Value: event.ID},
				relay.Field{Key: "status", Value: event.Status})
		}
	default:
		return s.record(event, OutcomeIgnored), nil
	}

	if customerID == "" {
		s.logger.Warn("webhook event without customer",
			relay.Field{Key: "event_id", Value: event.ID},
			relay.Field{Key: "event_type", Value: event.Type})
		return s.record(event, OutcomeNoMatch), nil
	}

	matched, err := s.store.UpdateSubscriptionByCustomer(ctx, customerID, update)
	s.metrics.RecordUpstreamCallDuration("store", "update_subscription", time.Since(startTime))
	if err != nil {
		s.metrics.RecordUpstreamCall("store", "update_subscription", "error")
		s.metrics.RecordWebhookEvent(event.Type, "error")
		s.logger.Error("subscription projection failed",
			relay.Field{Key: "event_id", Value: event.ID},
			relay.Field{Key: "customer_id", Value: customerID},
			relay.Field{Key: "error", Value: err})
		return "", fmt.Errorf("project %s: %w", event.Type, err)
	}
	s.metrics.RecordUpstreamCall("store", "update_subscription", "success")

	if !matched {
		s.logger.Warn("webhook event references unknown customer",
			relay.Field{Key: "event_id", Value: event.ID},
			relay.Field{Key: "event_type", Value: event.Type},
			relay.Field{Key: "customer_id", Value: customerID})
		return s.record(event, OutcomeNoMatch), nil
	}

	s.logger.Info("subscription state projected",
		relay.Field{Key: "event_id", Value: event.ID},
		relay.Field{Key: "event_type", Value: event.Type},
		relay.Field{Key: "customer_id", Value: customerID},
		relay.Field{Key: "status", Value: string(update.Status)})
	return s.record(event, OutcomeApplied), nil
}

func (s *Service) record(event *Event, outcome Outcome) Outcome {
	s.metrics.RecordWebhookEvent(event.Type, string(outcome))
	return outcome
}

func (s *Service) getProfile(ctx context.Context, userID string) (*relay.Profile, error) {
	startTime := time.Now()
	profile, err := s.store.GetProfile(ctx, userID)
	s.metrics.RecordUpstreamCallDuration("store", "get_profile", time.Since(startTime))
	if err != nil {
		s.metrics.RecordUpstreamCall("store", "get_profile", "error")
		return nil, fmt.Errorf("get profile %s: %w", userID, err)
	}
	s.metrics.RecordUpstreamCall("store", "get_profile", "success")
	return profile, nil
}

// ensureCustomer returns the stored customer id, creating and persisting one
// when the profile has none.
func (s *Service) ensureCustomer(ctx context.Context, profile *relay.Profile, principal *relay.Principal) (string, error) {
	if profile.HasCustomer() {
		return profile.CustomerID, nil
	}

	email := profile.Email
	if email == "" {
		email = principal.Email
	}

	customerID, err := s.gateway.CreateCustomer(ctx, CustomerParams{UserID: profile.ID, Email: email})
	if err != nil {
		s.logger.Error("customer creation failed",
			relay.Field{Key: "user_id", Value: profile.ID},
			relay.Field{Key: "error", Value: err})
		return "", err
	}

	if err := s.store.SetCustomerID(ctx, profile.ID, customerID); err != nil {
		if errors.Is(err, relay.ErrCustomerLinked) {
			// A concurrent checkout linked first; its id wins.
			s.metrics.RecordUpstreamCall("store", "set_customer_id", "conflict")
			return s.storedCustomer(ctx, profile.ID)
		}
		s.metrics.RecordUpstreamCall("store", "set_customer_id", "error")
		return "", fmt.Errorf("persist customer id for %s: %w", profile.ID, err)
	}
	s.metrics.RecordUpstreamCall("store", "set_customer_id", "success")

	s.logger.Info("billing customer linked",
		relay.Field{Key: "user_id", Value: profile.ID},
		relay.Field{Key: "customer_id", Value: customerID})
	return customerID, nil
}

func (s *Service) storedCustomer(ctx context.Context, userID string) (string, error) {
	profile, err := s.getProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	if !profile.HasCustomer() {
		return "", fmt.Errorf("persist customer id for %s: %w", userID, relay.ErrCustomerLinked)
	}
	s.logger.Info("billing customer already linked",
		relay.Field{Key: "user_id", Value: userID},
		relay.Field{Key: "customer_id", Value: profile.CustomerID})
	return profile.CustomerID, nil
}
