package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"boutique_back_end/internal/handlers"
	"boutique_back_end/internal/middleware"
	"boutique_back_end/internal/observability"
)

type Options struct {
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	MetricsHandler http.Handler
	Sessions       sessions.Store
	Auth           middleware.Authenticator
	// Redis est optionnel : sans lui, pas de limitation de débit.
	Redis       *redis.Client
	CORSOrigins []string
}

func New(h *handlers.Handler, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Observability(opts.Logger, opts.Metrics))
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     opts.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/health", h.Health)
	if opts.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	// Le webhook Stripe n'a ni session ni JWT : seule la signature fait foi.
	r.POST("/api/payments/webhook", h.StripeWebhook)

	s := r.Group("/", middleware.Sessions(opts.Sessions))
	auth := middleware.AuthRequired(opts.Auth)

	h.SetWebSocketOrigins(opts.CORSOrigins)
	s.GET("/ws/cart", h.CartWebSocket)

	api := s.Group("/api")

	// Catalogue
	api.GET("/categories", h.Categories)
	api.GET("/products", h.ListProducts)
	api.GET("/products/:id/:slug", h.ProductDetail)
	api.GET("/search", h.Search)

	// Panier (session anonyme)
	cartGroup := api.Group("/cart")
	{
		cartGroup.GET("", h.CartDetail)
		cartGroup.POST("/:productId/add", h.CartAdd)
		cartGroup.POST("/:productId/update", h.CartUpdate)
		cartGroup.POST("/:productId/remove", h.CartRemove)
	}

	// Commandes
	ordersGroup := api.Group("/orders", auth)
	{
		ordersGroup.GET("/new", h.NewOrder)
		ordersGroup.POST("", h.CreateOrder)
		ordersGroup.GET("", h.ListOrders)
		ordersGroup.GET("/:id", h.GetOrder)
	}

	// Paiement
	pay := api.Group("/payments")
	{
		pay.GET("/process/:orderId", auth, h.PaymentPage)
		pay.POST("/process/:orderId", auth, h.ProcessPayment)
		pay.POST("/direct-success/:orderId", auth, h.DirectSuccess)
		pay.GET("/success", h.PaymentSuccess)
		pay.GET("/cancel", h.PaymentCancel)
	}

	// Comptes
	accounts := api.Group("/auth")
	{
		accounts.POST("/register", middleware.RegisterRateLimit(opts.Redis), h.Register)
		accounts.POST("/login", middleware.LoginRateLimit(opts.Redis), h.Login)
		accounts.POST("/logout", auth, h.Logout)
		accounts.GET("/profile", auth, h.Profile)
		accounts.GET("/:provider", h.BeginOAuth)
		accounts.GET("/:provider/callback", h.OAuthCallback)
	}

	// Administration
	admin := api.Group("/admin", auth, middleware.RequireAdmin)
	{
		admin.POST("/categories", h.AdminCreateCategory)
		admin.POST("/products", h.AdminCreateProduct)
		admin.PATCH("/products/:id/stock", h.AdminUpdateStock)
		admin.PATCH("/products/:id/availability", h.AdminSetAvailability)
		admin.POST("/products/:id/image", h.AdminUploadImage)
		admin.GET("/orders", h.AdminListOrders)
		admin.POST("/orders/mark-paid", h.AdminMarkPaid)
		admin.POST("/orders/mark-shipped", h.AdminMarkShipped)
		admin.PATCH("/orders/:id/status", h.AdminUpdateStatus)
	}

	return r
}
