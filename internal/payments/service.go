// Package payments fait passer les commandes à l'état payé, par redirection Stripe, webhook
// signé ou, en mode test uniquement, confirmation directe.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"boutique_back_end/internal/models"
	"boutique_back_end/internal/observability"
	"boutique_back_end/internal/store"
)

type Outcome string

const (
	OutcomePaid         Outcome = "paid"
	OutcomeAlreadyPaid  Outcome = "already_paid"
	OutcomeNotPaid      Outcome = "not_paid"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeOrderMissing Outcome = "order_missing"
	// OutcomeRejected : la commande n'est plus payable (annulée par exemple).
	OutcomeRejected Outcome = "rejected"
)

// Result est l'issue explicite d'une tentative de confirmation.
type Result struct {
	Outcome Outcome       `json:"outcome"`
	Order   *models.Order `json:"order,omitempty"`
}

// Confirmer est prévenu une seule fois, à la première transition vers payé.
type Confirmer interface {
	OrderPaid(ctx context.Context, order *models.Order) error
}

type Options struct {
	BaseURL        string
	PublishableKey string
	TestMode       bool
}

type Service struct {
	orders    store.Orders
	gateway   Gateway
	confirmer Confirmer
	metrics   *observability.Metrics
	opts      Options
}

func NewService(orders store.Orders, gateway Gateway, confirmer Confirmer, metrics *observability.Metrics, opts Options) *Service {
	return &Service{orders: orders, gateway: gateway, confirmer: confirmer, metrics: metrics, opts: opts}
}

// Page rassemble ce dont le client a besoin pour afficher la page de paiement.
type Page struct {
	Order          *models.Order `json:"order"`
	PublishableKey string        `json:"stripe_publishable_key"`
	TestMode       bool          `json:"test_mode"`
}

func (s *Service) PaymentPage(ctx context.Context, userID, orderID string) (*Page, error) {
	o, err := s.unpaidOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	return &Page{Order: o, PublishableKey: s.opts.PublishableKey, TestMode: s.opts.TestMode}, nil
}

type Checkout struct {
	OrderID   string `json:"order_id"`
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// Process ouvre une session de paiement pour une commande non payée de l'utilisateur.
func (s *Service) Process(ctx context.Context, userID, orderID string) (*Checkout, error) {
	o, err := s.unpaidOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	successURL := s.opts.BaseURL + "/api/payments/success?session_id={CHECKOUT_SESSION_ID}"
	cancelURL := s.opts.BaseURL + "/api/payments/cancel"
	cs, err := s.gateway.CreateCheckoutSession(ctx, o, successURL, cancelURL)
	if err != nil {
		return nil, err
	}
	if err := s.orders.SetGatewayID(ctx, o.ID, cs.ID); err != nil {
		return nil, err
	}

	observability.FromContext(ctx).Info("💳 Session de paiement créée",
		zap.String("order_id", o.ID), zap.String("session_id", cs.ID))
	return &Checkout{OrderID: o.ID, SessionID: cs.ID, URL: cs.URL}, nil
}

// ConfirmDirect marque la commande payée sans vérification auprès du prestataire.
// Réservé au mode test.
func (s *Service) ConfirmDirect(ctx context.Context, userID, orderID string) (*Result, error) {
	if !s.opts.TestMode {
		return nil, models.ErrDirectPaymentDisabled
	}
	o, err := s.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	return s.markPaid(ctx, o.ID, "direct_payment_"+o.ID, "direct")
}

// ConfirmCheckout traite le retour de redirection après paiement.
func (s *Service) ConfirmCheckout(ctx context.Context, sessionID string) (*Result, error) {
	if sessionID == "" {
		return nil, models.NewValidationError("session_id", "identifiant de session manquant")
	}
	cs, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cs.OrderID == "" {
		return nil, fmt.Errorf("session %s sans commande: %w", sessionID, models.ErrNotFound)
	}
	if !cs.Paid {
		o, err := s.orders.OrderByID(ctx, cs.OrderID)
		if err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeNotPaid, Order: o}, nil
	}

	res, err := s.markPaid(ctx, cs.OrderID, cs.ID, "redirect")
	if err != nil {
		return nil, err
	}
	if res.Outcome == OutcomeOrderMissing {
		return nil, fmt.Errorf("commande %s: %w", cs.OrderID, models.ErrNotFound)
	}
	return res, nil
}

// HandleWebhook vérifie la signature puis applique l'événement.
// Seule une signature ou un contenu invalide produit une erreur ; le reste est acquitté.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (res *Result, err error) {
	ctx, span := observability.StartSpan(ctx, "payments.HandleWebhook")
	defer func() { observability.EndSpan(span, err) }()
	log := observability.FromContext(ctx)

	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		s.metrics.WebhookEvent("unknown", "rejected")
		log.Warn("❌ Webhook rejeté", zap.Error(err))
		return nil, err
	}
	span.SetAttributes(attribute.String("event.type", event.Type), attribute.String("event.id", event.ID))
	log = log.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))

	defer func() {
		if res != nil {
			s.metrics.WebhookEvent(event.Type, string(res.Outcome))
		}
	}()

	switch event.Type {
	case EventCheckoutCompleted, EventCheckoutAsyncSucceeded:
	default:
		log.Info("ℹ️ Événement ignoré")
		return &Result{Outcome: OutcomeIgnored}, nil
	}

	cs := event.Session
	if cs == nil || cs.OrderID == "" {
		log.Warn("⚠️ Événement sans référence de commande")
		return &Result{Outcome: OutcomeIgnored}, nil
	}
	if !cs.Paid {
		log.Info("⏳ Paiement pas encore encaissé", zap.String("order_id", cs.OrderID))
		return &Result{Outcome: OutcomeNotPaid}, nil
	}
	return s.markPaid(ctx, cs.OrderID, cs.ID, "webhook")
}

// Cancel est purement informatif : la commande reste en attente de paiement.
func (s *Service) Cancel() string {
	return "Paiement annulé. Votre commande reste en attente de paiement."
}

// markPaid applique la transition conditionnelle payé ; seule la première réussite notifie.
func (s *Service) markPaid(ctx context.Context, orderID, gatewayID, path string) (res *Result, err error) {
	ctx, span := observability.StartSpan(ctx, "payments.MarkPaid",
		attribute.String("order_id", orderID), attribute.String("path", path))
	defer func() { observability.EndSpan(span, err) }()
	log := observability.FromContext(ctx).With(zap.String("order_id", orderID), zap.String("path", path))

	changed, err := s.orders.MarkPaid(ctx, orderID, gatewayID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		log.Warn("⚠️ Commande introuvable pour le paiement")
		return &Result{Outcome: OutcomeOrderMissing}, nil
	case errors.Is(err, models.ErrInvalidTransition):
		log.Warn("⚠️ Commande non payable dans son état actuel")
		o, lerr := s.orders.OrderByID(ctx, orderID)
		if lerr != nil {
			return nil, lerr
		}
		return &Result{Outcome: OutcomeRejected, Order: o}, nil
	case err != nil:
		return nil, err
	}

	o, err := s.orders.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !changed {
		log.Info("ℹ️ Commande déjà payée, rien à faire")
		return &Result{Outcome: OutcomeAlreadyPaid, Order: o}, nil
	}

	s.metrics.OrderPaid(path)
	log.Info("✅ Commande payée", zap.String("gateway_id", gatewayID))
	s.confirm(ctx, o)
	return &Result{Outcome: OutcomePaid, Order: o}, nil
}

// confirm envoie la confirmation hors de la requête ; un échec n'annule pas le paiement.
func (s *Service) confirm(ctx context.Context, o *models.Order) {
	if s.confirmer == nil {
		return
	}
	log := observability.FromContext(ctx)
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
	go func() {
		defer cancel()
		if err := s.confirmer.OrderPaid(cctx, o); err != nil {
			log.Error("❌ Confirmation de commande non envoyée", zap.String("order_id", o.ID), zap.Error(err))
		}
	}()
}

func (s *Service) ownedOrder(ctx context.Context, userID, orderID string) (*models.Order, error) {
	o, err := s.orders.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, fmt.Errorf("commande %s: %w", orderID, models.ErrNotFound)
	}
	return o, nil
}

// unpaidOrder traite une commande déjà payée comme introuvable pour le parcours de paiement.
func (s *Service) unpaidOrder(ctx context.Context, userID, orderID string) (*models.Order, error) {
	o, err := s.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Paid || o.Status != models.StatusPending {
		return nil, fmt.Errorf("commande %s déjà réglée: %w", orderID, models.ErrNotFound)
	}
	return o, nil
}
