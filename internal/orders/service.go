// Package orders transforme le panier de session en commande et gère son cycle de vie.
package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"boutique_back_end/internal/cart"
	"boutique_back_end/internal/models"
	"boutique_back_end/internal/observability"
	"boutique_back_end/internal/store"
	"boutique_back_end/internal/validation"
)

// BuyerInfo reprend les champs du formulaire de commande.
type BuyerInfo struct {
	FirstName  string `json:"first_name" validate:"required,max=50"`
	LastName   string `json:"last_name" validate:"required,max=50"`
	Email      string `json:"email" validate:"required,email,max=254"`
	Address    string `json:"address" validate:"required,max=250"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`
	City       string `json:"city" validate:"required,max=100"`
}

// Carts est la partie du panier utilisée par le passage de commande.
type Carts interface {
	Load(ctx context.Context, token string) (models.Cart, error)
	Take(ctx context.Context, token string) (models.Cart, error)
	Restore(ctx context.Context, token string, c models.Cart) error
	DetailOf(ctx context.Context, c models.Cart) (*cart.Detail, error)
}

type ProductReader interface {
	ProductByID(ctx context.Context, id string) (*models.Product, error)
}

// Invalidator purge les produits en cache dont le stock vient de changer.
type Invalidator interface {
	Invalidate(ctx context.Context, ids ...string) error
}

// StatusNotifier prévient l'acheteur d'un changement de statut (expédition, livraison, annulation).
type StatusNotifier interface {
	OrderStatusChanged(ctx context.Context, order *models.Order) error
}

type Service struct {
	orders      store.Orders
	products    ProductReader
	carts       Carts
	invalidator Invalidator
	notifier    StatusNotifier
	metrics     *observability.Metrics
}

// NewService accepte un invalidator et un notifier nil.
func NewService(orders store.Orders, products ProductReader, carts Carts, invalidator Invalidator, notifier StatusNotifier, metrics *observability.Metrics) *Service {
	return &Service{orders: orders, products: products, carts: carts, invalidator: invalidator, notifier: notifier, metrics: metrics}
}

// CreateOrder passe commande du panier de la session.
// Le panier est réclamé avant l'écriture ; tout échec le restitue intact.
func (s *Service) CreateOrder(ctx context.Context, token, userID string, info BuyerInfo) (order *models.Order, err error) {
	ctx, span := observability.StartSpan(ctx, "orders.CreateOrder", attribute.String("user_id", userID))
	defer func() { observability.EndSpan(span, err) }()
	log := observability.FromContext(ctx)

	current, err := s.carts.Load(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(current) == 0 {
		return nil, models.ErrEmptyCart
	}

	if err := validation.Struct(info); err != nil {
		return nil, err
	}

	claimed, err := s.carts.Take(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(claimed) == 0 {
		return nil, models.ErrEmptyCart
	}
	defer func() {
		if err == nil {
			return
		}
		if rerr := s.carts.Restore(context.WithoutCancel(ctx), token, claimed); rerr != nil {
			log.Error("❌ Impossible de restituer le panier", zap.Error(rerr))
		}
	}()

	order, err = s.buildOrder(ctx, userID, info, claimed)
	if err != nil {
		return nil, err
	}
	if err = s.orders.PlaceOrder(ctx, order); err != nil {
		return nil, err
	}

	s.invalidateProducts(ctx, order)
	s.metrics.OrderCreated()
	span.SetAttributes(attribute.String("order_id", order.ID))
	log.Info("✅ Commande créée",
		zap.String("order_id", order.ID),
		zap.Int("items", len(order.Items)),
		zap.String("total", order.Total().StringFixed(2)))
	return order, nil
}

func (s *Service) buildOrder(ctx context.Context, userID string, info BuyerInfo, c models.Cart) (*models.Order, error) {
	order := &models.Order{
		ID:         uuid.NewString(),
		UserID:     userID,
		FirstName:  info.FirstName,
		LastName:   info.LastName,
		Email:      info.Email,
		Address:    info.Address,
		PostalCode: info.PostalCode,
		City:       info.City,
		Status:     models.StatusPending,
	}

	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		entry := c[id]
		product, err := s.products.ProductByID(ctx, id)
		if err != nil {
			return nil, err
		}
		price, err := decimal.NewFromString(entry.Price)
		if err != nil {
			return nil, fmt.Errorf("prix figé invalide pour %s: %w", id, err)
		}
		order.Items = append(order.Items, models.OrderItem{
			ID:          uuid.NewString(),
			OrderID:     order.ID,
			ProductID:   id,
			ProductName: product.Name,
			Quantity:    entry.Quantity,
			Price:       price,
		})
	}
	return order, nil
}

func (s *Service) invalidateProducts(ctx context.Context, order *models.Order) {
	if s.invalidator == nil {
		return
	}
	ids := make([]string, len(order.Items))
	for i, item := range order.Items {
		ids[i] = item.ProductID
	}
	if err := s.invalidator.Invalidate(ctx, ids...); err != nil {
		observability.FromContext(ctx).Warn("⚠️ Invalidation du cache produit impossible", zap.Error(err))
	}
}

// Summary retourne le détail du panier affiché avec le formulaire de commande.
func (s *Service) Summary(ctx context.Context, token string) (*cart.Detail, error) {
	c, err := s.carts.Load(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(c) == 0 {
		return nil, models.ErrEmptyCart
	}
	return s.carts.DetailOf(ctx, c)
}

// Prefill pré-remplit le formulaire depuis le profil.
func Prefill(u *models.User) BuyerInfo {
	if u == nil {
		return BuyerInfo{}
	}
	return BuyerInfo{FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
}

func (s *Service) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	return s.orders.OrdersByUser(ctx, userID)
}

// GetOrder ne retourne que les commandes de l'utilisateur ; les autres sont introuvables.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*models.Order, error) {
	o, err := s.orders.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, fmt.Errorf("commande %s: %w", orderID, models.ErrNotFound)
	}
	return o, nil
}

// --- Administration ---

func (s *Service) ListAll(ctx context.Context) ([]models.Order, error) {
	return s.orders.AllOrders(ctx)
}

// BulkResult rapporte l'issue d'une action groupée pour une commande.
type BulkResult struct {
	OrderID string `json:"order_id"`
	Changed bool   `json:"changed"`
	Error   string `json:"error,omitempty"`
}

// MarkPaid passe les commandes à payé/processing, sans toucher au stock.
func (s *Service) MarkPaid(ctx context.Context, ids []string) []BulkResult {
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		changed, err := s.orders.MarkPaid(ctx, id, "")
		if changed {
			s.metrics.OrderPaid("admin")
		}
		results = append(results, bulkResult(id, changed, err))
	}
	return results
}

func (s *Service) MarkShipped(ctx context.Context, ids []string) []BulkResult {
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		_, err := s.UpdateStatus(ctx, id, models.StatusShipped)
		results = append(results, bulkResult(id, err == nil, err))
	}
	return results
}

// UpdateStatus applique une transition du cycle de vie. Le passage à processing
// réservé au paiement passe par MarkPaid.
func (s *Service) UpdateStatus(ctx context.Context, id string, to models.OrderStatus) (*models.Order, error) {
	if !to.Valid() {
		return nil, models.NewValidationError("status", "statut inconnu")
	}
	if to == models.StatusProcessing {
		return nil, models.NewValidationError("status", "utilisez l'action marquer comme payée")
	}

	o, err := s.orders.OrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%s → %s: %w", o.Status, to, models.ErrInvalidTransition)
	}
	if err := s.orders.UpdateStatus(ctx, id, o.Status, to); err != nil {
		return nil, err
	}

	observability.FromContext(ctx).Info("📦 Statut de commande mis à jour",
		zap.String("order_id", id), zap.String("from", string(o.Status)), zap.String("to", string(to)))
	o.Status = to
	s.notifyStatus(ctx, o)
	return o, nil
}

// notifyStatus envoie le mail hors de la requête ; un échec est seulement journalisé.
func (s *Service) notifyStatus(ctx context.Context, o *models.Order) {
	if s.notifier == nil {
		return
	}
	log := observability.FromContext(ctx)
	order := *o
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
	go func() {
		defer cancel()
		if err := s.notifier.OrderStatusChanged(nctx, &order); err != nil {
			log.Error("❌ Notification de statut non envoyée", zap.String("order_id", order.ID), zap.Error(err))
		}
	}()
}

func bulkResult(id string, changed bool, err error) BulkResult {
	r := BulkResult{OrderID: id, Changed: changed}
	if err != nil {
		r.Changed = false
		r.Error = err.Error()
		if errors.Is(err, models.ErrNotFound) {
			r.Error = "commande introuvable"
		}
	}
	return r
}
