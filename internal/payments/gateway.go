package payments

import (
	"context"

	"boutique_back_end/internal/models"
)

// CheckoutSession est la vue du service sur une session de paiement du prestataire.
type CheckoutSession struct {
	ID      string
	URL     string
	OrderID string
	Paid    bool
}

// Event est un événement webhook dont la signature a déjà été vérifiée.
type Event struct {
	ID      string
	Type    string
	Session *CheckoutSession // nil pour les événements qui ne portent pas de session
}

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, order *models.Order, successURL, cancelURL string) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSession, error)
	// ParseWebhook vérifie la signature avant toute lecture du contenu.
	ParseWebhook(payload []byte, signature string) (*Event, error)
}
