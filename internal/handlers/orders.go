package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"boutique_back_end/internal/middleware"
	"boutique_back_end/internal/orders"
)

// NewOrder renvoie le récapitulatif du panier et le formulaire pré-rempli.
func (h *Handler) NewOrder(c *gin.Context) {
	ctx := c.Request.Context()
	summary, err := h.orders.Summary(ctx, middleware.SessionToken(c))
	if err != nil {
		fail(c, err)
		return
	}
	u, err := h.accounts.Profile(ctx, c.GetString("user_id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"cart": summary, "buyer": orders.Prefill(u)})
}

func (h *Handler) CreateOrder(c *gin.Context) {
	var in orders.BuyerInfo
	if !bindJSON(c, &in) {
		return
	}
	order, err := h.orders.CreateOrder(c.Request.Context(), middleware.SessionToken(c), c.GetString("user_id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	middleware.AddFlash(c, middleware.LevelSuccess, "Commande enregistrée, vous pouvez procéder au paiement.")
	respond(c, http.StatusCreated, gin.H{
		"order":       order,
		"total":       order.Total(),
		"payment_url": "/api/payments/process/" + order.ID,
	})
}

func (h *Handler) ListOrders(c *gin.Context) {
	list, err := h.orders.ListOrders(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"orders": list, "count": len(list)})
}

func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), c.GetString("user_id"), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"order": order, "total": order.Total()})
}
