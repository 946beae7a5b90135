package scylla

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"boutique_back_end/internal/models"
	"boutique_back_end/internal/store"
)

func (s *Store) Categories(ctx context.Context) ([]models.Category, error) {
	iter := s.session.Query(`SELECT id, slug, name FROM categories`).WithContext(ctx).Iter()

	var (
		categories []models.Category
		c          models.Category
	)
	for iter.Scan(&c.ID, &c.Slug, &c.Name) {
		categories = append(categories, c)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, nil
}

func (s *Store) CategoryBySlug(ctx context.Context, slug string) (*models.Category, error) {
	var id string
	if err := s.session.Query(`SELECT id FROM categories_by_slug WHERE slug = ?`, slug).
		WithContext(ctx).Scan(&id); err != nil {
		return nil, notFound(err, "catégorie "+slug)
	}

	c := models.Category{ID: id}
	if err := s.session.Query(`SELECT slug, name FROM categories WHERE id = ?`, id).
		WithContext(ctx).Scan(&c.Slug, &c.Name); err != nil {
		return nil, notFound(err, "catégorie "+slug)
	}
	return &c, nil
}

func (s *Store) CreateCategory(ctx context.Context, c *models.Category) error {
	applied, _, err := s.cas(ctx, `INSERT INTO categories_by_slug (slug, id) VALUES (?, ?) IF NOT EXISTS`, c.Slug, c.ID)
	if err != nil {
		return err
	}
	if !applied {
		return models.ErrConflict
	}
	return s.session.Query(`INSERT INTO categories (id, slug, name) VALUES (?, ?, ?)`, c.ID, c.Slug, c.Name).
		WithContext(ctx).Exec()
}

const productColumns = `id, category_id, slug, name, description, price, stock, available, image_key, created_at, updated_at`

type productRow struct {
	p     models.Product
	price string
}

func (r *productRow) dest() []any {
	return []any{&r.p.ID, &r.p.CategoryID, &r.p.Slug, &r.p.Name, &r.p.Description, &r.price,
		&r.p.Stock, &r.p.Available, &r.p.ImageKey, &r.p.CreatedAt, &r.p.UpdatedAt}
}

func (r *productRow) product() (models.Product, error) {
	price, err := decimal.NewFromString(r.price)
	if err != nil {
		return models.Product{}, fmt.Errorf("prix invalide pour %s: %w", r.p.ID, err)
	}
	p := r.p
	p.Price = price
	return p, nil
}

// ListProducts lit la table entière puis filtre : le catalogue reste de taille modeste.
func (s *Store) ListProducts(ctx context.Context, filter store.ProductFilter) ([]models.Product, error) {
	iter := s.session.Query(`SELECT ` + productColumns + ` FROM products`).WithContext(ctx).Iter()
	query := strings.ToLower(filter.Query)

	var (
		products []models.Product
		row      productRow
	)
	for iter.Scan(row.dest()...) {
		p, err := row.product()
		if err != nil {
			_ = iter.Close()
			return nil, err
		}
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		if filter.OnlyAvailable && !p.Available {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) &&
			!strings.Contains(strings.ToLower(p.Description), query) {
			continue
		}
		products = append(products, p)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (s *Store) ProductByID(ctx context.Context, id string) (*models.Product, error) {
	var row productRow
	if err := s.session.Query(`SELECT `+productColumns+` FROM products WHERE id = ?`, id).
		WithContext(ctx).Scan(row.dest()...); err != nil {
		return nil, notFound(err, "produit "+id)
	}
	p, err := row.product()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	applied, _, err := s.cas(ctx, `INSERT INTO products_by_slug (slug, id) VALUES (?, ?) IF NOT EXISTS`, p.Slug, p.ID)
	if err != nil {
		return err
	}
	if !applied {
		return models.ErrConflict
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return s.session.Query(`INSERT INTO products (`+productColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.CategoryID, p.Slug, p.Name, p.Description, p.Price.String(),
		p.Stock, p.Available, p.ImageKey, p.CreatedAt, p.UpdatedAt).
		WithContext(ctx).Exec()
}

func (s *Store) SetAvailability(ctx context.Context, id string, available bool) error {
	applied, _, err := s.cas(ctx, `UPDATE products SET available = ?, updated_at = ? WHERE id = ? IF EXISTS`,
		available, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("produit %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *Store) SetImageKey(ctx context.Context, id, key string) error {
	applied, _, err := s.cas(ctx, `UPDATE products SET image_key = ?, updated_at = ? WHERE id = ? IF EXISTS`,
		key, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("produit %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *Store) ApplyStock(ctx context.Context, id string, fn store.StockFunc) (int, int, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		prev, err := s.stock(ctx, id)
		if err != nil {
			return 0, 0, err
		}
		next, err := fn(prev)
		if err != nil {
			return prev, prev, err
		}
		ok, err := s.swapStock(ctx, id, prev, next)
		if err != nil {
			return prev, prev, err
		}
		if ok {
			return prev, next, nil
		}
	}
	return 0, 0, errCASContention
}

func (s *Store) stock(ctx context.Context, id string) (int, error) {
	var stock int
	if err := s.session.Query(`SELECT stock FROM products WHERE id = ?`, id).
		WithContext(ctx).Scan(&stock); err != nil {
		return 0, notFound(err, "produit "+id)
	}
	return stock, nil
}

func (s *Store) swapStock(ctx context.Context, id string, expected, next int) (bool, error) {
	applied, _, err := s.cas(ctx, `UPDATE products SET stock = ?, updated_at = ? WHERE id = ? IF stock = ?`,
		next, time.Now().UTC(), id, expected)
	return applied, err
}
