package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"boutique_back_end/internal/catalog"
	"boutique_back_end/internal/models"
)

const maxImageBytes = 10 << 20

func (h *Handler) AdminCreateCategory(c *gin.Context) {
	var in catalog.CategoryInput
	if !bindJSON(c, &in) {
		return
	}
	cat, err := h.catalog.CreateCategory(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{"category": cat})
}

func (h *Handler) AdminCreateProduct(c *gin.Context) {
	var in catalog.ProductInput
	if !bindJSON(c, &in) {
		return
	}
	p, err := h.catalog.CreateProduct(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{"product": p})
}

func (h *Handler) AdminUpdateStock(c *gin.Context) {
	var in catalog.StockInput
	if !bindJSON(c, &in) {
		return
	}
	mv, err := h.catalog.UpdateStock(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"movement": mv})
}

func (h *Handler) AdminSetAvailability(c *gin.Context) {
	var in struct {
		Available *bool `json:"available"`
	}
	if !bindJSON(c, &in) {
		return
	}
	if in.Available == nil {
		fail(c, models.NewValidationError("available", "ce champ est obligatoire"))
		return
	}
	p, err := h.catalog.SetAvailability(c.Request.Context(), c.Param("id"), *in.Available)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"product": p})
}

// AdminUploadImage : multipart, champ "image" (png ou jpeg).
func (h *Handler) AdminUploadImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImageBytes)
	fh, err := c.FormFile("image")
	if err != nil {
		fail(c, models.NewValidationError("image", "fichier manquant"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()

	p, err := h.catalog.UploadImage(c.Request.Context(), c.Param("id"), fh.Filename, f)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"product": p})
}

func (h *Handler) AdminListOrders(c *gin.Context) {
	list, err := h.orders.ListAll(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"orders": list, "count": len(list)})
}

type bulkInput struct {
	IDs []string `json:"ids"`
}

func (h *Handler) AdminMarkPaid(c *gin.Context) {
	var in bulkInput
	if !bindJSON(c, &in) {
		return
	}
	if len(in.IDs) == 0 {
		fail(c, models.NewValidationError("ids", "aucune commande sélectionnée"))
		return
	}
	respond(c, http.StatusOK, gin.H{"results": h.orders.MarkPaid(c.Request.Context(), in.IDs)})
}

func (h *Handler) AdminMarkShipped(c *gin.Context) {
	var in bulkInput
	if !bindJSON(c, &in) {
		return
	}
	if len(in.IDs) == 0 {
		fail(c, models.NewValidationError("ids", "aucune commande sélectionnée"))
		return
	}
	respond(c, http.StatusOK, gin.H{"results": h.orders.MarkShipped(c.Request.Context(), in.IDs)})
}

func (h *Handler) AdminUpdateStatus(c *gin.Context) {
	var in struct {
		Status models.OrderStatus `json:"status"`
	}
	if !bindJSON(c, &in) {
		return
	}
	o, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), in.Status)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"order": o})
}
