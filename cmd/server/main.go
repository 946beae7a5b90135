package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/facebook"
	"github.com/markbates/goth/providers/google"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"boutique_back_end/internal/accounts"
	"boutique_back_end/internal/cache"
	"boutique_back_end/internal/cart"
	"boutique_back_end/internal/catalog"
	"boutique_back_end/internal/config"
	"boutique_back_end/internal/database"
	"boutique_back_end/internal/handlers"
	"boutique_back_end/internal/mailer"
	"boutique_back_end/internal/media"
	"boutique_back_end/internal/middleware"
	"boutique_back_end/internal/observability"
	"boutique_back_end/internal/orders"
	"boutique_back_end/internal/payments"
	"boutique_back_end/internal/routes"
	"boutique_back_end/internal/search"
	"boutique_back_end/internal/store"
	"boutique_back_end/internal/store/backend"
)

const (
	shopName        = "Boutique"
	shutdownTimeout = 30 * time.Second
)

func main() {
	cfg := config.Load()
	cfg.ApplyDevelopmentDefaults()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Configuration invalide : %v", err)
	}

	zlog, err := observability.NewLogger("boutique", cfg.Env, cfg.LogFile)
	if err != nil {
		log.Fatalf("❌ Impossible d'initialiser le logger : %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	st, err := backend.Open(ctx, cfg)
	if err != nil {
		zlog.Fatal("❌ Connexion à la base impossible", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	zlog.Info("✅ Base de données prête", zap.String("backend", cfg.StoreBackend))

	rdb := connectRedis(ctx, cfg, zlog)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	// Catalogue : cache Redis devant le store si disponible.
	var (
		products    store.Catalog = st
		invalidator orders.Invalidator
		blacklist   accounts.Revoker = cache.NewMemoryBlacklist()
		cartStore   cart.Store       = cart.NewMemoryStore()
		notifier    cart.Notifier    = cart.NewMemoryNotifier()
	)
	if rdb != nil {
		pc := cache.NewProductCache(st, rdb, cfg.ProductTTL)
		products, invalidator = pc, pc
		blacklist = cache.NewTokenBlacklist(rdb)
		if cfg.CartBackend == "redis" {
			cartStore = cart.NewRedisStore(rdb, cfg.CartTTL)
			notifier = cart.NewRedisNotifier(rdb)
		}
	}
	zlog.Info("🛒 Panier", zap.String("backend", cartBackend(cfg, rdb)))

	catalogSvc := catalog.NewService(products, indexer(ctx, cfg, zlog), images(ctx, cfg, zlog))
	cartSvc := cart.NewService(products, cartStore, notifier, metrics)
	mails := newMailer(cfg, zlog)
	ordersSvc := orders.NewService(st, products, cartSvc, invalidator, mails, metrics)

	paymentsSvc := payments.NewService(st,
		payments.NewStripeGateway(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.StripeCurrency),
		mails,
		metrics,
		payments.Options{
			BaseURL:        cfg.BaseURL,
			PublishableKey: cfg.StripePublishableKey,
			TestMode:       cfg.PaymentTestMode,
		})
	if cfg.PaymentTestMode {
		zlog.Warn("⚠️ PAYMENT_TEST_MODE actif : paiement direct sans Stripe autorisé")
	}

	accountsSvc := accounts.NewService(st, accounts.NewTokens(cfg.JWTSecret, cfg.JWTTTL), blacklist)

	cookies := middleware.NewCookieStore(cfg.SessionSecret, !cfg.IsDevelopment())
	initOAuthProviders(cfg, cookies, zlog)

	h := handlers.New(catalogSvc, cartSvc, ordersSvc, paymentsSvc, accountsSvc)
	r := routes.New(h, routes.Options{
		Logger:         zlog,
		Metrics:        metrics,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Sessions:       cookies,
		Auth:           accountsSvc,
		Redis:          rdb,
		CORSOrigins:    cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zlog.Info("🚀 Serveur boutique lancé", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("❌ Serveur HTTP arrêté", zap.Error(err))
		}
	}()

	operations := map[string]gfshutdown.Operation{
		"http": func(ctx context.Context) error {
			zlog.Info("🛑 Arrêt du serveur HTTP")
			return srv.Shutdown(ctx)
		},
		"store": func(context.Context) error {
			return st.Close()
		},
	}
	if rdb != nil {
		operations["redis"] = func(context.Context) error {
			return rdb.Close()
		}
	}
	wait := gfshutdown.GracefulShutdown(ctx, shutdownTimeout, operations)

	exitCode := <-wait
	zlog.Info("👋 Arrêt terminé", zap.Int("code", exitCode))
	_ = zlog.Sync()
	os.Exit(exitCode)
}

// connectRedis est obligatoire pour un panier Redis, optionnel sinon.
func connectRedis(ctx context.Context, cfg *config.Config, zlog *zap.Logger) *redis.Client {
	if cfg.RedisHost == "" {
		zlog.Warn("⚠️ REDIS_HOST absent : cache produit, blacklist JWT et rate limit en mémoire ou désactivés")
		return nil
	}
	addr := cfg.RedisHost
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "6379")
	}

	rdb, err := database.ConnectRedis(ctx, addr, cfg.RedisPassword)
	if err != nil {
		if cfg.CartBackend == "redis" {
			zlog.Fatal("❌ Redis requis pour le panier", zap.Error(err))
		}
		zlog.Warn("⚠️ Redis indisponible, on continue sans", zap.Error(err))
		return nil
	}
	return rdb
}

func cartBackend(cfg *config.Config, rdb *redis.Client) string {
	if rdb != nil && cfg.CartBackend == "redis" {
		return "redis"
	}
	return "memory"
}

// indexer retourne nil sans Elasticsearch : la recherche passe alors par la base.
func indexer(ctx context.Context, cfg *config.Config, zlog *zap.Logger) catalog.Indexer {
	if cfg.ElasticURL == "" {
		return nil
	}
	client, err := database.ConnectElastic(cfg.ElasticURL, cfg.ElasticUser, cfg.ElasticPassword)
	if err != nil {
		zlog.Warn("⚠️ Elasticsearch indisponible, recherche en base", zap.Error(err))
		return nil
	}
	es := search.NewElastic(client, cfg.ElasticIndex)
	if err := es.EnsureIndex(ctx); err != nil {
		zlog.Warn("⚠️ Index Elasticsearch non créé", zap.String("index", cfg.ElasticIndex), zap.Error(err))
	}
	return es
}

func images(ctx context.Context, cfg *config.Config, zlog *zap.Logger) catalog.Images {
	if cfg.MinIOEndpoint == "" {
		return nil
	}
	client, err := database.ConnectMinIO(ctx, database.MinIOConfig{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		Bucket:    cfg.MinIOBucket,
		Region:    cfg.MinIORegion,
		UseSSL:    cfg.MinIOUseSSL,
	})
	if err != nil {
		zlog.Warn("⚠️ MinIO indisponible, images désactivées", zap.Error(err))
		return nil
	}
	return media.NewMinIO(client, cfg.MinIOBucket, cfg.ImageURLTTL)
}

func newMailer(cfg *config.Config, zlog *zap.Logger) *mailer.Mailer {
	var invoices mailer.InvoiceRenderer
	if cfg.InvoicePDF {
		invoices = mailer.ChromeInvoice{}
	}

	if cfg.SMTPHost == "" {
		zlog.Warn("⚠️ SMTP non configuré, les e-mails sont seulement journalisés")
		return mailer.New(mailer.LogSender{Logger: zlog}, cfg.SMTPFrom, shopName, invoices)
	}
	client, err := mailer.NewSMTPClient(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPassword,
	})
	if err != nil {
		zlog.Fatal("❌ Client SMTP invalide", zap.Error(err))
	}
	return mailer.New(client, cfg.SMTPFrom, shopName, invoices)
}

func initOAuthProviders(cfg *config.Config, cookies sessions.Store, zlog *zap.Logger) {
	gothic.Store = cookies

	// Le fournisseur est placé dans la query par les handlers.
	gothic.GetProviderName = func(req *http.Request) (string, error) {
		if provider := req.URL.Query().Get("provider"); provider != "" {
			return provider, nil
		}
		return "", errors.New("provider not found")
	}

	var providers []goth.Provider
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		providers = append(providers, google.New(
			cfg.GoogleClientID,
			cfg.GoogleClientSecret,
			cfg.BaseURL+"/api/auth/google/callback",
			"email", "profile",
		))
		zlog.Info("✅ Google OAuth activé")
	}
	if cfg.FacebookClientID != "" && cfg.FacebookClientSecret != "" {
		providers = append(providers, facebook.New(
			cfg.FacebookClientID,
			cfg.FacebookClientSecret,
			cfg.BaseURL+"/api/auth/facebook/callback",
			"email",
		))
		zlog.Info("✅ Facebook OAuth activé")
	}

	if len(providers) == 0 {
		zlog.Warn("⚠️ Aucun provider OAuth configuré")
		return
	}
	goth.UseProviders(providers...)
	zlog.Info("✅ Providers OAuth initialisés", zap.Int("count", len(providers)))
}
