package stripe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/gorelay/pkg/billing"
	"github.com/mihaimyh/gorelay/pkg/relay"
)

const testSecret = "whsec_test_secret"

func sign(payload string, secret string) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: []byte(payload),
		Secret:  secret,
	})
	return signed.Header
}

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(testSecret, 0)
	require.NoError(t, err)
	return v
}

func TestNewVerifier_RequiresSecret(t *testing.T) {
	_, err := NewVerifier("", 0)
	assert.ErrorIs(t, err, relay.ErrConfig)
}

func TestVerifyEvent_CheckoutSessionCompleted(t *testing.T) {
	payload := `{
		"id": "evt_1",
		"object": "event",
		"api_version": "2020-08-27",
		"created": 1700000000,
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"object": "checkout.session",
			"mode": "subscription",
			"customer": "cus_1",
			"subscription": "sub_1"
		}}
	}`

	event, err := newTestVerifier(t).VerifyEvent([]byte(payload), sign(payload, testSecret))
	require.NoError(t, err)
	assert.Equal(t, &billing.Event{
		ID:             "evt_1",
		Type:           billing.EventCheckoutSessionCompleted,
		Created:        time.Unix(1700000000, 0).UTC(),
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
		Mode:           billing.CheckoutModeSubscription,
	}, event)
}

func TestVerifyEvent_SubscriptionDeleted(t *testing.T) {
	payload := `{
		"id": "evt_2",
		"object": "event",
		"created": 1700000100,
		"type": "customer.subscription.deleted",
		"data": {"object": {
			"id": "sub_1",
			"object": "subscription",
			"customer": "cus_1",
			"status": "canceled"
		}}
	}`

	event, err := newTestVerifier(t).VerifyEvent([]byte(payload), sign(payload, testSecret))
	require.NoError(t, err)
	assert.Equal(t, "cus_1", event.CustomerID)
	assert.Equal(t, "sub_1", event.SubscriptionID)
	assert.Equal(t, "canceled", event.Status)
}

func TestVerifyEvent_OtherTypesPassThrough(t *testing.T) {
	payload := `{"id":"evt_3","object":"event","type":"invoice.paid","data":{"object":{"id":"in_1","object":"invoice"}}}`

	event, err := newTestVerifier(t).VerifyEvent([]byte(payload), sign(payload, testSecret))
	require.NoError(t, err)
	assert.Equal(t, "invoice.paid", event.Type)
	assert.Empty(t, event.CustomerID)
}

func TestVerifyEvent_InvalidSignature(t *testing.T) {
	payload := `{"id":"evt_4","object":"event","type":"customer.subscription.deleted","data":{"object":{"customer":"cus_1","status":"canceled"}}}`
	v := newTestVerifier(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"garbage", "not-a-signature"},
		{"wrong secret", sign(payload, "whsec_other")},
		{"tampered payload", sign(payload+" ", testSecret)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := v.VerifyEvent([]byte(payload), tt.header)
			assert.Nil(t, event)
			assert.ErrorIs(t, err, relay.ErrInvalidSignature)
		})
	}
}

func TestVerifyEvent_ExpiredTimestamp(t *testing.T) {
	payload := `{"id":"evt_5","object":"event","type":"invoice.paid"}`
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now().Add(-time.Hour),
	})

	_, err := newTestVerifier(t).VerifyEvent([]byte(payload), signed.Header)
	assert.ErrorIs(t, err, relay.ErrInvalidSignature)
}

func TestVerifyEvent_UndecodableObject(t *testing.T) {
	payload := `{"id":"evt_6","object":"event","type":"customer.subscription.updated","data":{"object":{"status":42}}}`

	_, err := newTestVerifier(t).VerifyEvent([]byte(payload), sign(payload, testSecret))
	assert.ErrorIs(t, err, relay.ErrBadRequest)

	_, err = newTestVerifier(t).VerifyEvent([]byte(`not json`), sign(`not json`, testSecret))
	assert.ErrorIs(t, err, relay.ErrBadRequest)
}
