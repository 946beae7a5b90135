package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"go.uber.org/zap"

	"boutique_back_end/internal/accounts"
	"boutique_back_end/internal/middleware"
	"boutique_back_end/internal/observability"
)

func (h *Handler) Register(c *gin.Context) {
	var in accounts.RegisterInput
	if !bindJSON(c, &in) {
		return
	}
	sess, err := h.accounts.Register(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	middleware.AddFlash(c, middleware.LevelSuccess, "Compte créé, bienvenue !")
	respond(c, http.StatusCreated, gin.H{"token": sess.Token, "expires_at": sess.ExpiresAt, "user": sess.User})
}

func (h *Handler) Login(c *gin.Context) {
	var in accounts.LoginInput
	if !bindJSON(c, &in) {
		return
	}
	sess, err := h.accounts.Login(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"token": sess.Token, "expires_at": sess.ExpiresAt, "user": sess.User})
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.accounts.Logout(c.Request.Context(), middleware.Claims(c)); err != nil {
		fail(c, err)
		return
	}
	middleware.AddFlash(c, middleware.LevelInfo, "Vous êtes déconnecté.")
	respond(c, http.StatusOK, gin.H{"logged_out": true})
}

func (h *Handler) Profile(c *gin.Context) {
	u, err := h.accounts.Profile(c.Request.Context(), c.GetString("user_id"))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"user": u})
}

// BeginOAuth redirige vers le fournisseur (google, facebook).
func (h *Handler) BeginOAuth(c *gin.Context) {
	if !withProvider(c) {
		return
	}
	gothic.BeginAuthHandler(c.Writer, c.Request)
}

func (h *Handler) OAuthCallback(c *gin.Context) {
	if !withProvider(c) {
		return
	}
	gu, err := gothic.CompleteUserAuth(c.Writer, c.Request)
	if err != nil {
		observability.FromContext(c.Request.Context()).Warn("❌ Échec OAuth", zap.String("provider", c.Param("provider")), zap.Error(err))
		respond(c, http.StatusUnauthorized, gin.H{"error": "Authentification refusée par le fournisseur"})
		return
	}
	sess, err := h.accounts.OAuthLogin(c.Request.Context(), gu)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"token": sess.Token, "expires_at": sess.ExpiresAt, "user": sess.User})
}

// withProvider place le fournisseur dans la query, où gothic le cherche.
func withProvider(c *gin.Context) bool {
	provider := c.Param("provider")
	if _, err := goth.GetProvider(provider); err != nil {
		respond(c, http.StatusNotFound, gin.H{"error": "Provider non supporté"})
		return false
	}
	q := c.Request.URL.Query()
	q.Set("provider", provider)
	c.Request.URL.RawQuery = q.Encode()
	return true
}
