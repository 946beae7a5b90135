package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"boutique_back_end/internal/models"
	"boutique_back_end/internal/store"
)

func (s *Store) Categories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := s.db.WithContext(ctx).Order("name").Find(&categories).Error
	return categories, err
}

func (s *Store) CategoryBySlug(ctx context.Context, slug string) (*models.Category, error) {
	var c models.Category
	if err := s.db.WithContext(ctx).First(&c, "slug = ?", slug).Error; err != nil {
		return nil, notFound(err, "catégorie "+slug)
	}
	return &c, nil
}

func (s *Store) CreateCategory(ctx context.Context, c *models.Category) error {
	return conflict(s.db.WithContext(ctx).Create(c).Error)
}

func (s *Store) ListProducts(ctx context.Context, filter store.ProductFilter) ([]models.Product, error) {
	q := s.db.WithContext(ctx).Model(&models.Product{})
	if filter.CategoryID != "" {
		q = q.Where("category_id = ?", filter.CategoryID)
	}
	if filter.OnlyAvailable {
		q = q.Where("available = ?", true)
	}
	if filter.Query != "" {
		like := "%" + strings.ToLower(filter.Query) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}

	var products []models.Product
	err := q.Order("name").Find(&products).Error
	return products, err
}

func (s *Store) ProductByID(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "produit "+id)
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	return conflict(s.db.WithContext(ctx).Create(p).Error)
}

func (s *Store) SetAvailability(ctx context.Context, id string, available bool) error {
	res := s.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).
		Updates(map[string]any{"available": available, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "produit "+id)
	}
	return nil
}

func (s *Store) SetImageKey(ctx context.Context, id, key string) error {
	res := s.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).
		Updates(map[string]any{"image_key": key, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "produit "+id)
	}
	return nil
}

func (s *Store) ApplyStock(ctx context.Context, id string, fn store.StockFunc) (prev, next int, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Product
		if err := tx.Select("id", "stock").First(&p, "id = ?", id).Error; err != nil {
			return notFound(err, "produit "+id)
		}
		prev = p.Stock

		n, err := fn(prev)
		if err != nil {
			return err
		}
		next = n

		res := tx.Model(&models.Product{}).Where("id = ? AND stock = ?", id, prev).
			Updates(map[string]any{"stock": next, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("stock du produit %s modifié pendant la mise à jour: %w", id, models.ErrConflict)
		}
		return nil
	})
	return prev, next, err
}
