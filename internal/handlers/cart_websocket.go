package handlers

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"boutique_back_end/internal/cart"
	"boutique_back_end/internal/middleware"
	"boutique_back_end/internal/observability"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// SetWebSocketOrigins fixe les origines autorisées en plus de celle du serveur.
func (h *Handler) SetWebSocketOrigins(origins []string) {
	h.wsOrigins = origins
}

// checkOrigin refuse les pages tierces : le socket lit le panier du cookie de session.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(h.wsOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

type cartEvent struct {
	Type string       `json:"type"`
	Cart *cart.Detail `json:"cart,omitempty"`
}

// CartWebSocket pousse le panier de la session à chaque modification.
func (h *Handler) CartWebSocket(c *gin.Context) {
	token := middleware.SessionToken(c)
	log := observability.FromContext(c.Request.Context())

	upgrader := websocket.Upgrader{CheckOrigin: h.checkOrigin}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("❌ Erreur upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	events, unsubscribe := h.carts.Subscribe(ctx, token)
	defer unsubscribe()

	// lecture en tâche de fond pour détecter la fermeture côté client
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(ev cartEvent) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(ev); err != nil {
			log.Debug("WebSocket fermé", zap.Error(err))
			return false
		}
		return true
	}

	detail, err := h.carts.Detail(ctx, token)
	if err != nil {
		log.Error("❌ Lecture du panier", zap.Error(err))
		return
	}
	if !send(cartEvent{Type: "connected", Cart: detail}) {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			ce := cartEvent{Type: "cart_" + ev}
			if ev == cart.EventUpdated {
				if ce.Cart, err = h.carts.Detail(ctx, token); err != nil {
					log.Error("❌ Lecture du panier", zap.Error(err))
					return
				}
			}
			if !send(ce) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
