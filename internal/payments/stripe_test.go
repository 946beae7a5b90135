package payments

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83/webhook"

	"boutique_back_end/internal/models"
)

const testWebhookSecret = "whsec_test_secret"

func checkoutEventPayload(eventType, orderID, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_test_1",
		"object": "event",
		"type": %q,
		"api_version": "2020-08-27",
		"data": {"object": {
			"id": "cs_test_1",
			"object": "checkout.session",
			"payment_status": %q,
			"client_reference_id": %q,
			"metadata": {"order_id": %q}
		}}
	}`, eventType, paymentStatus, orderID, orderID))
}

func sign(payload []byte, secret string) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret}).Header
}

func TestParseWebhookValidSignature(t *testing.T) {
	g := NewStripeGateway("sk_test_dummy", testWebhookSecret, "EUR")
	payload := checkoutEventPayload(EventCheckoutCompleted, "order-1", "paid")

	event, err := g.ParseWebhook(payload, sign(payload, testWebhookSecret))
	require.NoError(t, err)
	assert.Equal(t, EventCheckoutCompleted, event.Type)
	require.NotNil(t, event.Session)
	assert.Equal(t, "order-1", event.Session.OrderID)
	assert.Equal(t, "cs_test_1", event.Session.ID)
	assert.True(t, event.Session.Paid)
}

func TestParseWebhookRejectsBadSignature(t *testing.T) {
	g := NewStripeGateway("sk_test_dummy", testWebhookSecret, "eur")
	payload := checkoutEventPayload(EventCheckoutCompleted, "order-1", "paid")

	_, err := g.ParseWebhook(payload, sign(payload, "whsec_other"))
	require.ErrorIs(t, err, models.ErrSignatureVerification)

	_, err = g.ParseWebhook(payload, "")
	require.ErrorIs(t, err, models.ErrSignatureVerification)

	tampered := checkoutEventPayload(EventCheckoutCompleted, "order-2", "paid")
	_, err = g.ParseWebhook(tampered, sign(payload, testWebhookSecret))
	require.ErrorIs(t, err, models.ErrSignatureVerification)
}

func TestParseWebhookOtherEvent(t *testing.T) {
	g := NewStripeGateway("sk_test_dummy", testWebhookSecret, "eur")
	payload := []byte(`{"id":"evt_2","object":"event","type":"payment_intent.succeeded","api_version":"2020-08-27","data":{"object":{"id":"pi_1","object":"payment_intent"}}}`)

	event, err := g.ParseWebhook(payload, sign(payload, testWebhookSecret))
	require.NoError(t, err)
	assert.Equal(t, "payment_intent.succeeded", event.Type)
	assert.Nil(t, event.Session)
}
