package scylla

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gocql/gocql"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"boutique_back_end/internal/models"
	"boutique_back_end/internal/observability"
)

type reservation struct {
	productID string
	quantity  int
}

// PlaceOrder réserve le stock ligne par ligne puis écrit la commande en batch logged.
// Toute erreur restitue les réservations déjà faites.
func (s *Store) PlaceOrder(ctx context.Context, order *models.Order) (err error) {
	var reserved []reservation
	defer func() {
		if err != nil && len(reserved) > 0 {
			s.release(ctx, reserved)
		}
	}()

	for _, item := range order.Items {
		if err = s.reserve(ctx, item.ProductID, item.Quantity); err != nil {
			return err
		}
		reserved = append(reserved, reservation{productID: item.ProductID, quantity: item.Quantity})
	}

	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	b := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	b.Query(`INSERT INTO orders (id, user_id, first_name, last_name, email, address, postal_code, city,
		paid, status, gateway_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.UserID, order.FirstName, order.LastName, order.Email, order.Address,
		order.PostalCode, order.City, order.Paid, string(order.Status), order.GatewayID, order.CreatedAt, order.UpdatedAt)
	for _, item := range order.Items {
		b.Query(`INSERT INTO order_items (order_id, id, product_id, product_name, quantity, price) VALUES (?, ?, ?, ?, ?, ?)`,
			order.ID, item.ID, item.ProductID, item.ProductName, item.Quantity, item.Price.String())
	}
	if order.UserID != "" {
		b.Query(`INSERT INTO orders_by_user (user_id, created_at, order_id) VALUES (?, ?, ?)`,
			order.UserID, order.CreatedAt, order.ID)
	}

	if err = s.session.ExecuteBatch(b); err != nil {
		return fmt.Errorf("écriture commande %s: %w", order.ID, err)
	}
	return nil
}

func (s *Store) reserve(ctx context.Context, productID string, qty int) error {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		current, err := s.stock(ctx, productID)
		if err != nil {
			return err
		}
		if current < qty {
			return &models.OutOfStockError{ProductID: productID, Available: current, Requested: qty}
		}
		ok, err := s.swapStock(ctx, productID, current, current-qty)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return errCASContention
}

// release restitue le stock ; le contexte d'origine peut être annulé, on en détache un nouveau.
func (s *Store) release(ctx context.Context, reserved []reservation) {
	log := observability.FromContext(ctx)
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	for _, r := range reserved {
		_, _, err := s.ApplyStock(rctx, r.productID, func(cur int) (int, error) { return cur + r.quantity, nil })
		if err != nil {
			log.Error("❌ Restitution de stock impossible",
				zap.String("product_id", r.productID), zap.Int("quantity", r.quantity), zap.Error(err))
		}
	}
}

const orderColumns = `id, user_id, first_name, last_name, email, address, postal_code, city, paid, status, gateway_id, created_at, updated_at`

func (s *Store) OrderByID(ctx context.Context, id string) (*models.Order, error) {
	var (
		o      models.Order
		status string
	)
	err := s.session.Query(`SELECT `+orderColumns+` FROM orders WHERE id = ?`, id).WithContext(ctx).
		Scan(&o.ID, &o.UserID, &o.FirstName, &o.LastName, &o.Email, &o.Address, &o.PostalCode, &o.City,
			&o.Paid, &status, &o.GatewayID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "commande "+id)
	}
	o.Status = models.OrderStatus(status)

	items, err := s.orderItems(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (s *Store) orderItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	iter := s.session.Query(`SELECT id, product_id, product_name, quantity, price FROM order_items WHERE order_id = ?`, orderID).
		WithContext(ctx).Iter()

	var (
		items []models.OrderItem
		item  models.OrderItem
		price string
	)
	for iter.Scan(&item.ID, &item.ProductID, &item.ProductName, &item.Quantity, &price) {
		p, err := decimal.NewFromString(price)
		if err != nil {
			_ = iter.Close()
			return nil, fmt.Errorf("prix invalide pour la ligne %s: %w", item.ID, err)
		}
		item.OrderID = orderID
		item.Price = p
		items = append(items, item)
	}
	return items, iter.Close()
}

func (s *Store) OrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	iter := s.session.Query(`SELECT order_id FROM orders_by_user WHERE user_id = ?`, userID).WithContext(ctx).Iter()

	var ids []string
	var id string
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return s.loadOrders(ctx, ids)
}

func (s *Store) AllOrders(ctx context.Context) ([]models.Order, error) {
	iter := s.session.Query(`SELECT id FROM orders`).WithContext(ctx).Iter()

	var ids []string
	var id string
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return s.loadOrders(ctx, ids)
}

func (s *Store) loadOrders(ctx context.Context, ids []string) ([]models.Order, error) {
	orders := make([]models.Order, 0, len(ids))
	for _, id := range ids {
		o, err := s.OrderByID(ctx, id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

func (s *Store) SetGatewayID(ctx context.Context, id, gatewayID string) error {
	applied, _, err := s.cas(ctx, `UPDATE orders SET gateway_id = ?, updated_at = ? WHERE id = ? IF EXISTS`,
		gatewayID, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("commande %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *Store) MarkPaid(ctx context.Context, id, gatewayID string) (bool, error) {
	var (
		applied bool
		err     error
	)
	if gatewayID != "" {
		applied, _, err = s.cas(ctx,
			`UPDATE orders SET paid = true, status = ?, gateway_id = ?, updated_at = ? WHERE id = ? IF paid = false AND status = ?`,
			string(models.StatusProcessing), gatewayID, time.Now().UTC(), id, string(models.StatusPending))
	} else {
		applied, _, err = s.cas(ctx,
			`UPDATE orders SET paid = true, status = ?, updated_at = ? WHERE id = ? IF paid = false AND status = ?`,
			string(models.StatusProcessing), time.Now().UTC(), id, string(models.StatusPending))
	}
	if err != nil {
		return false, err
	}
	if applied {
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
	applied, _, err := s.cas(ctx, `UPDATE orders SET status = ?, updated_at = ? WHERE id = ? IF status = ?`,
		string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	if _, err := s.OrderByID(ctx, id); err != nil {
		return err
	}
	return models.ErrInvalidTransition
}
