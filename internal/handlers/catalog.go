package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Categories(c *gin.Context) {
	categories, err := h.catalog.Categories(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"categories": categories})
}

// ListProducts : GET /api/products?category=<slug>
func (h *Handler) ListProducts(c *gin.Context) {
	listing, err := h.catalog.ListProducts(c.Request.Context(), c.Query("category"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{
		"category":   listing.Category,
		"categories": listing.Categories,
		"products":   listing.Products,
	})
}

func (h *Handler) ProductDetail(c *gin.Context) {
	p, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"), c.Param("slug"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"product": p})
}

func (h *Handler) Search(c *gin.Context) {
	q := c.Query("q")
	products, err := h.catalog.Search(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"query": q, "products": products, "count": len(products)})
}
