package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"boutique_back_end/internal/cart"
	"boutique_back_end/internal/middleware"
)

type quantityInput struct {
	Quantity *int `json:"quantity"`
}

// quantity lit {"quantity": n} ; un corps vide vaut def.
func quantity(c *gin.Context, def int) (int, bool) {
	if c.Request.ContentLength == 0 {
		return def, true
	}
	var in quantityInput
	if !bindJSON(c, &in) {
		return 0, false
	}
	if in.Quantity == nil {
		return def, true
	}
	return *in.Quantity, true
}

func (h *Handler) CartAdd(c *gin.Context) {
	qty, ok := quantity(c, 1)
	if !ok {
		return
	}
	res, err := h.carts.Add(c.Request.Context(), middleware.SessionToken(c), c.Param("productId"), qty)
	if err != nil {
		fail(c, err)
		return
	}
	flashResult(c, res, fmt.Sprintf("%s ajouté au panier.", res.Product.Name))
	h.cartResponse(c, res)
}

func (h *Handler) CartUpdate(c *gin.Context) {
	qty, ok := quantity(c, 0)
	if !ok {
		return
	}
	res, err := h.carts.Update(c.Request.Context(), middleware.SessionToken(c), c.Param("productId"), qty)
	if err != nil {
		fail(c, err)
		return
	}
	flashResult(c, res, "Panier mis à jour.")
	h.cartResponse(c, res)
}

func (h *Handler) CartRemove(c *gin.Context) {
	res, err := h.carts.Remove(c.Request.Context(), middleware.SessionToken(c), c.Param("productId"))
	if err != nil {
		fail(c, err)
		return
	}
	flashResult(c, res, "")
	h.cartResponse(c, res)
}

func (h *Handler) CartDetail(c *gin.Context) {
	detail, err := h.carts.Detail(c.Request.Context(), middleware.SessionToken(c))
	if err != nil {
		fail(c, err)
		return
	}
	if len(detail.Missing) > 0 {
		middleware.AddFlash(c, middleware.LevelWarning, "Certains articles de votre panier ne sont plus disponibles.")
	}
	respond(c, http.StatusOK, gin.H{"cart": detail})
}

func (h *Handler) cartResponse(c *gin.Context, res *cart.Result) {
	detail, err := h.carts.DetailOf(c.Request.Context(), res.Cart)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{
		"cart":     detail,
		"quantity": res.Quantity,
		"clamped":  res.Clamped,
		"removed":  res.Removed,
	})
}

func flashResult(c *gin.Context, res *cart.Result, success string) {
	switch {
	case res.Clamped && res.Quantity == 0:
		middleware.AddFlash(c, middleware.LevelWarning, "Ce produit est en rupture de stock.")
	case res.Clamped:
		middleware.AddFlash(c, middleware.LevelWarning, fmt.Sprintf("Quantité limitée au stock disponible (%d).", res.Quantity))
	case res.Removed:
		middleware.AddFlash(c, middleware.LevelInfo, "Article retiré du panier.")
	case res.Product != nil:
		middleware.AddFlash(c, middleware.LevelSuccess, success)
	}
}
