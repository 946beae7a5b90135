package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"boutique_back_end/internal/observability"
)

const (
	sessionName = "boutique_session"
	sessionKey  = "session"
	tokenField  = "token"
)

// Flash est un message destiné à l'utilisateur, renvoyé une seule fois.
type Flash struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// NewCookieStore configure le store de session (aussi utilisé par gothic).
func NewCookieStore(secret string, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// Sessions garantit un jeton de session stable, clé du panier anonyme.
func Sessions(store sessions.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := store.Get(c.Request, sessionName)
		if err != nil {
			// cookie illisible (secret changé) : on repart d'une session neuve
			observability.FromContext(c.Request.Context()).Warn("⚠️ Session invalide, réinitialisée", zap.Error(err))
		}

		if token, _ := sess.Values[tokenField].(string); token == "" {
			sess.Values[tokenField] = uuid.NewString()
			if err := sess.Save(c.Request, c.Writer); err != nil {
				observability.FromContext(c.Request.Context()).Error("❌ Sauvegarde session", zap.Error(err))
			}
		}

		c.Set(sessionKey, sess)
		c.Next()
	}
}

func session(c *gin.Context) *sessions.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*sessions.Session)
	return sess
}

// SessionToken retourne le jeton de session de la requête.
func SessionToken(c *gin.Context) string {
	sess := session(c)
	if sess == nil {
		return ""
	}
	token, _ := sess.Values[tokenField].(string)
	return token
}

// AddFlash empile un message pour la prochaine réponse.
func AddFlash(c *gin.Context, level, text string) {
	if sess := session(c); sess != nil {
		sess.AddFlash(level + "|" + text)
	}
}

// PopFlashes vide les messages en attente et sauvegarde la session.
// Doit être appelé avant l'écriture du corps de la réponse.
func PopFlashes(c *gin.Context) []Flash {
	sess := session(c)
	out := []Flash{}
	if sess == nil {
		return out
	}
	for _, f := range sess.Flashes() {
		raw, ok := f.(string)
		if !ok {
			continue
		}
		level, text, found := strings.Cut(raw, "|")
		if !found {
			level, text = LevelInfo, raw
		}
		out = append(out, Flash{Level: level, Text: text})
	}
	if err := sess.Save(c.Request, c.Writer); err != nil {
		observability.FromContext(c.Request.Context()).Error("❌ Sauvegarde session", zap.Error(err))
	}
	return out
}
