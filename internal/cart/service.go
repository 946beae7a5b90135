// Package cart gère le panier de session : ajout, mise à jour, retrait et détail.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"boutique_back_end/internal/models"
	"boutique_back_end/internal/observability"
)

// ProductReader est la seule dépendance catalogue du panier.
type ProductReader interface {
	ProductByID(ctx context.Context, id string) (*models.Product, error)
}

type Service struct {
	products ProductReader
	store    Store
	notifier Notifier
	metrics  *observability.Metrics
}

func NewService(products ProductReader, store Store, notifier Notifier, metrics *observability.Metrics) *Service {
	if notifier == nil {
		notifier = NewMemoryNotifier()
	}
	return &Service{products: products, store: store, notifier: notifier, metrics: metrics}
}

// Result décrit l'effet d'une mutation pour que l'appelant puisse informer l'utilisateur.
type Result struct {
	Product  *models.Product
	Quantity int  // quantité finale de la ligne (0 si retirée)
	Clamped  bool // la quantité demandée dépassait le stock
	Removed  bool
	Cart     models.Cart
}

// Add ajoute qty unités au panier. Le prix est figé au premier ajout.
func (s *Service) Add(ctx context.Context, token, productID string, qty int) (*Result, error) {
	if qty <= 0 {
		return nil, models.NewValidationError("quantity", "doit être strictement positive")
	}
	product, err := s.availableProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	res := &Result{Product: product}
	cart, err := s.store.Mutate(ctx, token, func(c models.Cart) error {
		entry, ok := c[productID]
		if !ok {
			entry = models.CartEntry{Price: product.Price.String()}
		}
		// comparaison avant addition : qty peut approcher math.MaxInt
		if qty > product.Stock-entry.Quantity {
			entry.Quantity = product.Stock
			res.Clamped = true
		} else {
			entry.Quantity += qty
		}
		if entry.Quantity <= 0 {
			delete(c, productID)
			res.Removed = ok
		} else {
			c[productID] = entry
		}
		res.Quantity = entry.Quantity
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ajout au panier: %w", err)
	}

	res.Cart = cart
	s.afterMutation(ctx, token, res.Clamped)
	return res, nil
}

// Update fixe la quantité d'une ligne existante ; qty <= 0 la retire.
// Une ligne absente du panier n'est pas créée.
func (s *Service) Update(ctx context.Context, token, productID string, qty int) (*Result, error) {
	// retrait possible même si le produit a disparu du catalogue
	if qty <= 0 {
		return s.Remove(ctx, token, productID)
	}

	current, err := s.store.Load(ctx, token)
	if err != nil {
		return nil, err
	}
	if _, ok := current[productID]; !ok {
		return &Result{Cart: current}, nil
	}

	product, err := s.products.ProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	res := &Result{Product: product}
	cart, err := s.store.Mutate(ctx, token, func(c models.Cart) error {
		entry, ok := c[productID]
		if !ok {
			return nil
		}

		n := qty
		if n > product.Stock {
			n = product.Stock
			res.Clamped = true
		}
		if n <= 0 {
			delete(c, productID)
			res.Removed = true
			return nil
		}
		entry.Quantity = n
		c[productID] = entry
		res.Quantity = n
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mise à jour du panier: %w", err)
	}

	res.Cart = cart
	s.afterMutation(ctx, token, res.Clamped)
	return res, nil
}

// Remove retire la ligne si elle existe ; retirer une ligne absente ne fait rien.
func (s *Service) Remove(ctx context.Context, token, productID string) (*Result, error) {
	res := &Result{}
	cart, err := s.store.Mutate(ctx, token, func(c models.Cart) error {
		if _, ok := c[productID]; ok {
			delete(c, productID)
			res.Removed = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("retrait du panier: %w", err)
	}

	res.Cart = cart
	if res.Removed {
		s.afterMutation(ctx, token, false)
	}
	return res, nil
}

func (s *Service) Load(ctx context.Context, token string) (models.Cart, error) {
	return s.store.Load(ctx, token)
}

// Take retire le panier de la session pour une commande.
func (s *Service) Take(ctx context.Context, token string) (models.Cart, error) {
	c, err := s.store.Take(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(c) > 0 {
		s.publish(ctx, token, EventCleared)
	}
	return c, nil
}

func (s *Service) Restore(ctx context.Context, token string, c models.Cart) error {
	if len(c) == 0 {
		return nil
	}
	if err := s.store.Restore(ctx, token, c); err != nil {
		return err
	}
	s.publish(ctx, token, EventUpdated)
	return nil
}

func (s *Service) Subscribe(ctx context.Context, token string) (<-chan string, func()) {
	return s.notifier.Subscribe(ctx, token)
}

// Line est une ligne de panier jointe au produit courant.
type Line struct {
	Product  models.Product  `json:"product"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Total    decimal.Decimal `json:"total"`
}

type Detail struct {
	Lines []Line          `json:"items"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
	// Missing liste les produits supprimés du catalogue depuis leur ajout.
	Missing []string `json:"missing,omitempty"`
}

// Detail calcule les totaux à partir du prix figé de chaque ligne.
func (s *Service) Detail(ctx context.Context, token string) (*Detail, error) {
	c, err := s.store.Load(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.DetailOf(ctx, c)
}

func (s *Service) DetailOf(ctx context.Context, c models.Cart) (*Detail, error) {
	d := &Detail{Lines: []Line{}, Total: decimal.Zero}
	for _, id := range sortedIDs(c) {
		entry := c[id]

		product, err := s.products.ProductByID(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			observability.FromContext(ctx).Warn("⚠️ Produit du panier introuvable", zap.String("product_id", id))
			d.Missing = append(d.Missing, id)
			continue
		}
		if err != nil {
			return nil, err
		}

		price, err := decimal.NewFromString(entry.Price)
		if err != nil {
			return nil, fmt.Errorf("prix figé invalide pour %s: %w", id, err)
		}
		line := Line{
			Product:  *product,
			Quantity: entry.Quantity,
			Price:    price,
			Total:    price.Mul(decimal.NewFromInt(int64(entry.Quantity))),
		}
		d.Lines = append(d.Lines, line)
		d.Total = d.Total.Add(line.Total)
		d.Count += entry.Quantity
	}
	return d, nil
}

func (s *Service) availableProduct(ctx context.Context, id string) (*models.Product, error) {
	p, err := s.products.ProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Available {
		return nil, fmt.Errorf("produit %s indisponible: %w", id, models.ErrNotFound)
	}
	return p, nil
}

func (s *Service) afterMutation(ctx context.Context, token string, clamped bool) {
	if clamped {
		s.metrics.CartClamped()
	}
	s.publish(ctx, token, EventUpdated)
}

func (s *Service) publish(ctx context.Context, token, event string) {
	if err := s.notifier.Publish(ctx, token, event); err != nil {
		observability.FromContext(ctx).Warn("⚠️ Notification panier impossible", zap.Error(err))
	}
}

func sortedIDs(c models.Cart) []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
