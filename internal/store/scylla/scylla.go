// Package scylla implémente les dépôts sur ScyllaDB via gocql.
//
// ScyllaDB n'offre pas de transaction multi-partitions : le décrément de stock passe par des
// écritures conditionnelles (LWT) produit par produit, la commande est écrite en batch logged,
// et un échec en cours de route restitue le stock déjà réservé.
package scylla

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"

	"boutique_back_end/internal/models"
	"boutique_back_end/internal/store"
)

// maxCASAttempts borne les relectures quand une écriture conditionnelle perd la course.
const maxCASAttempts = 16

var errCASContention = errors.New("trop de conflits d'écriture concurrente")

type Store struct {
	session *gocql.Session
}

var _ store.Store = (*Store)(nil)

func New(session *gocql.Session) *Store {
	return &Store{session: session}
}

func (s *Store) Close() error {
	s.session.Close()
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS categories (id text PRIMARY KEY, slug text, name text)`,
	`CREATE TABLE IF NOT EXISTS categories_by_slug (slug text PRIMARY KEY, id text)`,
	`CREATE TABLE IF NOT EXISTS products (
		id text PRIMARY KEY, category_id text, slug text, name text, description text,
		price text, stock int, available boolean, image_key text,
		created_at timestamp, updated_at timestamp)`,
	`CREATE TABLE IF NOT EXISTS products_by_slug (slug text PRIMARY KEY, id text)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id text PRIMARY KEY, user_id text, first_name text, last_name text, email text,
		address text, postal_code text, city text, paid boolean, status text, gateway_id text,
		created_at timestamp, updated_at timestamp)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		order_id text, id text, product_id text, product_name text, quantity int, price text,
		PRIMARY KEY (order_id, id))`,
	`CREATE TABLE IF NOT EXISTS orders_by_user (
		user_id text, created_at timestamp, order_id text,
		PRIMARY KEY (user_id, created_at, order_id)) WITH CLUSTERING ORDER BY (created_at DESC, order_id ASC)`,
	`CREATE TABLE IF NOT EXISTS users (
		id text PRIMARY KEY, username text, email text, password_hash text, role text,
		provider text, provider_id text, first_name text, last_name text, created_at timestamp)`,
	`CREATE TABLE IF NOT EXISTS users_by_username (username text PRIMARY KEY, user_id text)`,
	`CREATE TABLE IF NOT EXISTS users_by_email (email text PRIMARY KEY, user_id text)`,
}

// EnsureSchema crée les tables manquantes du keyspace courant.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if err := s.session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("schéma scylla: %w", err)
		}
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, gocql.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return err
}

// cas exécute une écriture conditionnelle et retourne si elle a été appliquée.
func (s *Store) cas(ctx context.Context, stmt string, args ...any) (bool, map[string]any, error) {
	current := map[string]any{}
	applied, err := s.session.Query(stmt, args...).WithContext(ctx).MapScanCAS(current)
	return applied, current, err
}
