package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"boutique_back_end/internal/models"
)

// RequireAdmin vérifie que l'utilisateur a le rôle "admin". À placer après AuthRequired.
func RequireAdmin(c *gin.Context) {
	if role := c.GetString("role"); role != models.RoleAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Accès réservé aux administrateurs"})
		return
	}
	c.Next()
}
