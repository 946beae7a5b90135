package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"boutique_back_end/internal/accounts"
	"boutique_back_end/internal/observability"
)

const claimsKey = "claims"

// Authenticator est implémenté par accounts.Service.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*accounts.Claims, error)
}

// AuthRequired exige un header "Authorization: Bearer <jwt>" valide et non révoqué.
func AuthRequired(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token manquant"})
			return
		}

		claims, err := auth.Authenticate(c.Request.Context(), raw)
		switch {
		case err == nil:
		case errors.Is(err, accounts.ErrExpiredToken):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expiré"})
			return
		case errors.Is(err, accounts.ErrInvalidToken), errors.Is(err, accounts.ErrRevokedToken):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token invalide"})
			return
		default:
			observability.FromContext(c.Request.Context()).Error("❌ Vérification du token impossible", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Authentification indisponible"})
			return
		}

		c.Set(claimsKey, claims)
		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Set("role", claims.Role)

		ctx := observability.ContextWithLogger(c.Request.Context(),
			observability.FromContext(c.Request.Context()).With(zap.String("user_id", claims.UserID)))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Claims retourne les claims posés par AuthRequired.
func Claims(c *gin.Context) *accounts.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*accounts.Claims)
	return claims
}

func bearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
