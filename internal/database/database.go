// Package database ouvre les connexions aux services externes (ScyllaDB, Redis, Elasticsearch, MinIO).
package database

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gocql/gocql"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
)

// --- ScyllaDB ---

type ScyllaConfig struct {
	Hosts      []string
	Keyspace   string
	Username   string
	Password   string
	CACertPath string
	Timeout    time.Duration
	NumConns   int
}

// ConnectScylla crée une session sur le keyspace demandé.
// Les écritures conditionnelles (LWT) exigent une consistance série, fixée ici.
func ConnectScylla(cfg ScyllaConfig) (*gocql.Session, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum
	cluster.SerialConsistency = gocql.Serial
	cluster.Timeout = cfg.Timeout
	if cluster.Timeout == 0 {
		cluster.Timeout = 5 * time.Second
	}
	cluster.NumConns = cfg.NumConns
	if cluster.NumConns == 0 {
		cluster.NumConns = 4
	}
	cluster.MaxWaitSchemaAgreement = 30 * time.Second
	cluster.ReconnectInterval = time.Second
	cluster.PoolConfig.HostSelectionPolicy = gocql.TokenAwareHostPolicy(gocql.RoundRobinHostPolicy())

	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	if cfg.CACertPath != "" {
		caCert, err := os.ReadFile(cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("impossible de lire le certificat CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("impossible de parser le certificat CA")
		}
		cluster.SslOpts = &gocql.SslOptions{Config: &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("erreur création session pour %s: %w", cfg.Keyspace, err)
	}
	log.Printf("✅ Session ScyllaDB ouverte pour le keyspace '%s'", cfg.Keyspace)
	return session, nil
}

// --- Redis ---

func ConnectRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("impossible de se connecter à Redis: %w", err)
	}
	log.Println("✅ Connecté à Redis")
	return client, nil
}

// --- Elasticsearch ---

func ConnectElastic(url, user, password string) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
		Username:  user,
		Password:  password,
	})
	if err != nil {
		return nil, fmt.Errorf("création client Elasticsearch: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("connexion Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("connexion Elasticsearch: %s", res.Status())
	}

	log.Println("✅ Connecté à Elasticsearch")
	return client, nil
}

// --- MinIO ---

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

func NewMinIO(cfg MinIOConfig) (*minio.Client, error) {
	return minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
}

// ConnectMinIO crée le client et s'assure que le bucket existe.
func ConnectMinIO(ctx context.Context, cfg MinIOConfig) (*minio.Client, error) {
	client, err := NewMinIO(cfg)
	if err != nil {
		return nil, fmt.Errorf("connexion MinIO: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("vérification bucket MinIO: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("création bucket MinIO: %w", err)
		}
		log.Println("🪣 Bucket créé :", cfg.Bucket)
	}

	log.Println("✅ Connecté à MinIO :", cfg.Endpoint)
	return client, nil
}
