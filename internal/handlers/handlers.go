// Package handlers expose les services de la boutique en JSON via gin.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"boutique_back_end/internal/accounts"
	"boutique_back_end/internal/cart"
	"boutique_back_end/internal/catalog"
	"boutique_back_end/internal/media"
	"boutique_back_end/internal/middleware"
	"boutique_back_end/internal/models"
	"boutique_back_end/internal/observability"
	"boutique_back_end/internal/orders"
	"boutique_back_end/internal/payments"
)

type Handler struct {
	catalog  *catalog.Service
	carts    *cart.Service
	orders   *orders.Service
	payments *payments.Service
	accounts *accounts.Service

	wsOrigins []string
}

func New(cat *catalog.Service, carts *cart.Service, ord *orders.Service, pay *payments.Service, acc *accounts.Service) *Handler {
	return &Handler{catalog: cat, carts: carts, orders: ord, payments: pay, accounts: acc}
}

// respond ajoute les messages flash en attente à toute réponse JSON.
func respond(c *gin.Context, status int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["messages"] = middleware.PopFlashes(c)
	c.JSON(status, body)
}

// fail traduit les erreurs métier en statut HTTP ; le reste est journalisé et renvoyé en 500.
func fail(c *gin.Context, err error) {
	var (
		verr  *models.ValidationError
		stock *models.OutOfStockError
	)
	switch {
	case errors.As(err, &verr):
		respond(c, http.StatusBadRequest, gin.H{"error": "Données invalides", "fields": verr.Fields})
	case errors.As(err, &stock):
		middleware.AddFlash(c, middleware.LevelError, "Stock insuffisant pour un article de votre panier.")
		respond(c, http.StatusConflict, gin.H{
			"error":      "Stock insuffisant",
			"product_id": stock.ProductID,
			"available":  stock.Available,
			"requested":  stock.Requested,
		})
	case errors.Is(err, models.ErrNotFound):
		respond(c, http.StatusNotFound, gin.H{"error": "Ressource introuvable"})
	case errors.Is(err, models.ErrEmptyCart):
		middleware.AddFlash(c, middleware.LevelWarning, "Votre panier est vide.")
		respond(c, http.StatusBadRequest, gin.H{"error": "Panier vide"})
	case errors.Is(err, models.ErrSignatureVerification):
		respond(c, http.StatusBadRequest, gin.H{"error": "Signature invalide"})
	case errors.Is(err, models.ErrGateway):
		observability.FromContext(c.Request.Context()).Error("❌ Erreur prestataire de paiement", zap.Error(err))
		respond(c, http.StatusBadGateway, gin.H{"error": "Prestataire de paiement indisponible"})
	case errors.Is(err, models.ErrDirectPaymentDisabled):
		respond(c, http.StatusForbidden, gin.H{"error": "Paiement direct désactivé"})
	case errors.Is(err, models.ErrForbidden):
		respond(c, http.StatusForbidden, gin.H{"error": "Accès refusé"})
	case errors.Is(err, models.ErrInvalidCredentials):
		respond(c, http.StatusUnauthorized, gin.H{"error": "Identifiants invalides"})
	case errors.Is(err, models.ErrConflict):
		respond(c, http.StatusConflict, gin.H{"error": "Modification concurrente, veuillez réessayer"})
	case errors.Is(err, models.ErrInvalidTransition):
		respond(c, http.StatusConflict, gin.H{"error": "Transition de statut invalide"})
	case errors.Is(err, media.ErrUnsupportedImage):
		respond(c, http.StatusBadRequest, gin.H{"error": "Format d'image non supporté"})
	default:
		_ = c.Error(err)
		observability.FromContext(c.Request.Context()).Error("❌ Erreur interne", zap.Error(err))
		respond(c, http.StatusInternalServerError, gin.H{"error": "Erreur interne"})
	}
}

// bindJSON lit le corps ; un JSON mal formé devient une erreur de validation.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respond(c, http.StatusBadRequest, gin.H{"error": "Requête invalide"})
		return false
	}
	return true
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
