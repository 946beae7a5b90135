package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/checkout/session"
	"github.com/stripe/stripe-go/v83/webhook"

	"boutique_back_end/internal/models"
)

const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
)

type StripeGateway struct {
	webhookSecret string
	currency      string
}

// NewStripeGateway configure la clé API globale du SDK, comme le reste de l'application.
func NewStripeGateway(secretKey, webhookSecret, currency string) *StripeGateway {
	stripe.Key = secretKey
	if currency == "" {
		currency = "eur"
	}
	return &StripeGateway{webhookSecret: webhookSecret, currency: strings.ToLower(currency)}
}

func (g *StripeGateway) CreateCheckoutSession(_ context.Context, order *models.Order, successURL, cancelURL string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(order.ID),
		Metadata:          map[string]string{"order_id": order.ID},
	}
	if order.Email != "" {
		params.CustomerEmail = stripe.String(order.Email)
	}
	for _, item := range order.Items {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(g.currency),
				UnitAmount: stripe.Int64(item.Price.Shift(2).Round(0).IntPart()),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.ProductName),
				},
			},
			Quantity: stripe.Int64(int64(item.Quantity)),
		})
	}

	s, err := session.New(params)
	if err != nil {
		return nil, &models.GatewayError{Op: "création de session", Err: err}
	}
	return toCheckoutSession(s), nil
}

func (g *StripeGateway) GetCheckoutSession(_ context.Context, id string) (*CheckoutSession, error) {
	s, err := session.Get(id, nil)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.HTTPStatusCode == 404 {
			return nil, fmt.Errorf("session %s: %w", id, models.ErrNotFound)
		}
		return nil, &models.GatewayError{Op: "lecture de session", Err: err}
	}
	return toCheckoutSession(s), nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSignatureVerification, err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type)}
	if strings.HasPrefix(out.Type, "checkout.session.") && event.Data != nil {
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("%w: contenu illisible: %v", models.ErrSignatureVerification, err)
		}
		out.Session = toCheckoutSession(&s)
	}
	return out, nil
}

func toCheckoutSession(s *stripe.CheckoutSession) *CheckoutSession {
	orderID := s.Metadata["order_id"]
	if orderID == "" {
		orderID = s.ClientReferenceID
	}
	return &CheckoutSession{
		ID:      s.ID,
		URL:     s.URL,
		OrderID: orderID,
		Paid:    s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}
}
