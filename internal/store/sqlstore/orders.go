package sqlstore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"boutique_back_end/internal/models"
)

func (s *Store) PlaceOrder(ctx context.Context, order *models.Order) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, item := range order.Items {
			// Décrément conditionnel : jamais de stock négatif, même en concurrence.
			res := tx.Model(&models.Product{}).
				Where("id = ? AND stock >= ?", item.ProductID, item.Quantity).
				Updates(map[string]any{
					"stock":      gorm.Expr("stock - ?", item.Quantity),
					"updated_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				continue
			}

			var p models.Product
			if err := tx.Select("id", "stock").First(&p, "id = ?", item.ProductID).Error; err != nil {
				return notFound(err, "produit "+item.ProductID)
			}
			return &models.OutOfStockError{ProductID: item.ProductID, Available: p.Stock, Requested: item.Quantity}
		}

		return tx.Create(order).Error
	})
}

func (s *Store) OrderByID(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	if err := s.db.WithContext(ctx).Preload("Items").First(&o, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "commande "+id)
	}
	return &o, nil
}

func (s *Store) OrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}

func (s *Store) AllOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).Preload("Items").Order("created_at DESC").Find(&orders).Error
	return orders, err
}

func (s *Store) SetGatewayID(ctx context.Context, id, gatewayID string) error {
	res := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).
		Updates(map[string]any{"gateway_id": gatewayID, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "commande "+id)
	}
	return nil
}

func (s *Store) MarkPaid(ctx context.Context, id, gatewayID string) (bool, error) {
	updates := map[string]any{
		"paid":       true,
		"status":     models.StatusProcessing,
		"updated_at": time.Now().UTC(),
	}
	if gatewayID != "" {
		updates["gateway_id"] = gatewayID
	}
	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND paid = ? AND status = ?", id, false, models.StatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	current, err := s.OrderByID(ctx, id)
	if err != nil {
		return false, err
	}
	if current.Paid {
		return false, nil
	}
	return false, models.ErrInvalidTransition
}

func (s *Store) UpdateStatus(ctx context.Context, id string, from, to models.OrderStatus) error {
	res := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := s.OrderByID(ctx, id); err != nil {
		return err
	}
	return models.ErrInvalidTransition
}
