package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"boutique_back_end/internal/middleware"
	"boutique_back_end/internal/observability"
	"boutique_back_end/internal/payments"
)

const maxWebhookBytes = int64(65536)

func (h *Handler) PaymentPage(c *gin.Context) {
	page, err := h.payments.PaymentPage(c.Request.Context(), c.GetString("user_id"), c.Param("orderId"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"payment": page, "total": page.Order.Total()})
}

// ProcessPayment ouvre la session Stripe Checkout et renvoie l'URL de redirection.
func (h *Handler) ProcessPayment(c *gin.Context) {
	checkout, err := h.payments.Process(c.Request.Context(), c.GetString("user_id"), c.Param("orderId"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"checkout": checkout, "redirect_url": checkout.URL})
}

// DirectSuccess confirme le paiement sans Stripe (PAYMENT_TEST_MODE uniquement).
func (h *Handler) DirectSuccess(c *gin.Context) {
	res, err := h.payments.ConfirmDirect(c.Request.Context(), c.GetString("user_id"), c.Param("orderId"))
	if err != nil {
		fail(c, err)
		return
	}
	paymentResult(c, res)
}

// PaymentSuccess est la page de retour de Stripe Checkout.
func (h *Handler) PaymentSuccess(c *gin.Context) {
	res, err := h.payments.ConfirmCheckout(c.Request.Context(), c.Query("session_id"))
	if err != nil {
		fail(c, err)
		return
	}
	paymentResult(c, res)
}

func (h *Handler) PaymentCancel(c *gin.Context) {
	msg := h.payments.Cancel()
	middleware.AddFlash(c, middleware.LevelInfo, msg)
	respond(c, http.StatusOK, gin.H{"message": msg})
}

// StripeWebhook vérifie la signature avant tout ; un échec répond 400 sans rien modifier.
func (h *Handler) StripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		observability.FromContext(c.Request.Context()).Warn("❌ Lecture payload échouée", zap.Error(err))
		respond(c, http.StatusBadRequest, gin.H{"error": "Échec lecture body"})
		return
	}

	res, err := h.payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"received": true, "outcome": res.Outcome})
}

func paymentResult(c *gin.Context, res *payments.Result) {
	status := http.StatusOK
	switch res.Outcome {
	case payments.OutcomePaid:
		middleware.AddFlash(c, middleware.LevelSuccess, "Paiement reçu, merci pour votre commande !")
	case payments.OutcomeAlreadyPaid:
		middleware.AddFlash(c, middleware.LevelInfo, "Cette commande est déjà payée.")
	case payments.OutcomeNotPaid:
		middleware.AddFlash(c, middleware.LevelWarning, "Le paiement n'est pas encore confirmé.")
		status = http.StatusAccepted
	case payments.OutcomeRejected:
		middleware.AddFlash(c, middleware.LevelError, "Cette commande ne peut plus être payée.")
		status = http.StatusConflict
	case payments.OutcomeOrderMissing:
		respond(c, http.StatusNotFound, gin.H{"error": "Commande introuvable", "outcome": res.Outcome})
		return
	}
	respond(c, status, gin.H{"outcome": res.Outcome, "order": res.Order})
}
