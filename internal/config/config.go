package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	Env     string
	BaseURL string

	StoreBackend   string // "sql" ou "scylla"
	SQLDSN         string
	ScyllaHosts    []string
	ScyllaKeyspace string
	ScyllaUsername string
	ScyllaPassword string

	CartBackend   string // "redis" ou "memory"
	RedisHost     string
	RedisPassword string
	CartTTL       time.Duration
	ProductTTL    time.Duration

	ElasticURL      string
	ElasticUser     string
	ElasticPassword string
	ElasticIndex    string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIORegion    string
	MinIOUseSSL    bool
	ImageURLTTL    time.Duration

	StripeSecretKey      string
	StripePublishableKey string
	StripeWebhookSecret  string
	StripeCurrency       string
	PaymentTestMode      bool

	SessionSecret string
	JWTSecret     string
	JWTTTL        time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string

	GoogleClientID       string
	GoogleClientSecret   string
	FacebookClientID     string
	FacebookClientSecret string

	InvoicePDF  bool
	CORSOrigins []string
	LogFile     string
}

// Load lit le fichier .env (optionnel) puis l'environnement.
func Load() *Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  Aucun fichier .env trouvé, on continue avec les variables d'environnement du système")
	} else {
		log.Println("✅ Fichier .env chargé avec succès")
	}

	return &Config{
		Port:    getEnv("PORT", "8080"),
		Env:     getEnv("APP_ENV", "development"),
		BaseURL: strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/"),

		StoreBackend:   getEnv("STORE_BACKEND", "sql"),
		SQLDSN:         getEnv("SQL_DSN", "boutique.db"),
		ScyllaHosts:    getEnvList("SCYLLA_HOSTS", "127.0.0.1"),
		ScyllaKeyspace: getEnv("SCYLLA_KEYSPACE", "boutique"),
		ScyllaUsername: os.Getenv("SCYLLA_USERNAME"),
		ScyllaPassword: os.Getenv("SCYLLA_PASSWORD"),

		CartBackend:   getEnv("CART_BACKEND", "redis"),
		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		CartTTL:       getEnvDuration("CART_TTL", 30*24*time.Hour),
		ProductTTL:    getEnvDuration("PRODUCT_CACHE_TTL", 10*time.Minute),

		ElasticURL:      os.Getenv("ELASTIC_URL"),
		ElasticUser:     os.Getenv("ELASTIC_USER"),
		ElasticPassword: os.Getenv("ELASTIC_PASSWORD"),
		ElasticIndex:    getEnv("ELASTIC_INDEX", "products"),

		MinIOEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinIOBucket:    getEnv("MINIO_BUCKET", "products"),
		MinIORegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinIOUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		ImageURLTTL:    getEnvDuration("IMAGE_URL_TTL", time.Hour),

		StripeSecretKey:      os.Getenv("STRIPE_SECRET_KEY"),
		StripePublishableKey: os.Getenv("STRIPE_PUBLISHABLE_KEY"),
		StripeWebhookSecret:  os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeCurrency:       getEnv("STRIPE_CURRENCY", "eur"),
		PaymentTestMode:      getEnvBool("PAYMENT_TEST_MODE", false),

		SessionSecret: os.Getenv("SESSION_SECRET"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		JWTTTL:        getEnvDuration("JWT_TTL", 24*time.Hour),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     getEnv("SMTP_FROM", "boutique@localhost"),

		GoogleClientID:       os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:   os.Getenv("GOOGLE_CLIENT_SECRET"),
		FacebookClientID:     os.Getenv("FACEBOOK_CLIENT_ID"),
		FacebookClientSecret: os.Getenv("FACEBOOK_CLIENT_SECRET"),

		InvoicePDF:  getEnvBool("INVOICE_PDF", false),
		CORSOrigins: getEnvList("CORS_ORIGINS", "http://localhost:3000"),
		LogFile:     os.Getenv("LOG_FILE"),
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "test"
}

// Validate refuse une configuration incomplète ; les secrets ne sont exigés qu'hors développement.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case "sql", "scylla":
	default:
		errs = append(errs, errors.New("STORE_BACKEND doit valoir sql ou scylla"))
	}
	switch c.CartBackend {
	case "redis":
		if c.RedisHost == "" {
			errs = append(errs, errors.New("REDIS_HOST requis avec CART_BACKEND=redis"))
		}
	case "memory":
	default:
		errs = append(errs, errors.New("CART_BACKEND doit valoir redis ou memory"))
	}

	if !c.IsDevelopment() {
		required := map[string]string{
			"SESSION_SECRET":        c.SessionSecret,
			"JWT_SECRET":            c.JWTSecret,
			"STRIPE_SECRET_KEY":     c.StripeSecretKey,
			"STRIPE_WEBHOOK_SECRET": c.StripeWebhookSecret,
		}
		for _, key := range []string{"SESSION_SECRET", "JWT_SECRET", "STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET"} {
			if required[key] == "" {
				errs = append(errs, errors.New(key+" manquant"))
			}
		}
		if c.PaymentTestMode {
			errs = append(errs, errors.New("PAYMENT_TEST_MODE interdit hors développement"))
		}
	}
	return errors.Join(errs...)
}

// ApplyDevelopmentDefaults complète les secrets absents en développement.
func (c *Config) ApplyDevelopmentDefaults() {
	if !c.IsDevelopment() {
		return
	}
	if c.SessionSecret == "" {
		c.SessionSecret = "dev-session-secret-change-me-0000"
	}
	if c.JWTSecret == "" {
		c.JWTSecret = "dev-jwt-secret-change-me"
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.ToLower(os.Getenv(key))
	switch v {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("⚠️ %s invalide (%q), valeur par défaut %d", key, v, fallback)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("⚠️ %s invalide (%q), valeur par défaut %s", key, v, fallback)
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
