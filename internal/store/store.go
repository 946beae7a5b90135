// Package store définit les contrats de persistance partagés par les backends SQL et ScyllaDB.
package store

import (
	"context"

	"boutique_back_end/internal/models"
)

// ProductFilter restreint une liste de produits.
type ProductFilter struct {
	CategoryID    string
	OnlyAvailable bool
	// Query filtre par sous-chaîne (insensible à la casse) sur le nom et la description.
	Query string
}

// StockFunc calcule le nouveau stock à partir du stock courant.
type StockFunc func(current int) (int, error)

type Catalog interface {
	Categories(ctx context.Context) ([]models.Category, error)
	CategoryBySlug(ctx context.Context, slug string) (*models.Category, error)
	CreateCategory(ctx context.Context, c *models.Category) error

	ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error)
	ProductByID(ctx context.Context, id string) (*models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	SetAvailability(ctx context.Context, id string, available bool) error
	SetImageKey(ctx context.Context, id, key string) error
	// ApplyStock remplace le stock de façon conditionnelle et retourne l'ancien et le nouveau stock.
	ApplyStock(ctx context.Context, id string, fn StockFunc) (prev, next int, err error)
}

type Orders interface {
	// PlaceOrder persiste la commande, ses lignes et décrémente le stock en une seule unité.
	// Un stock insuffisant annule l'ensemble et retourne un *models.OutOfStockError.
	PlaceOrder(ctx context.Context, order *models.Order) error
	OrderByID(ctx context.Context, id string) (*models.Order, error)
	OrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	AllOrders(ctx context.Context) ([]models.Order, error)
	SetGatewayID(ctx context.Context, id, gatewayID string) error
	// MarkPaid passe une commande pending non payée à paid/processing.
	// changed vaut false si la commande était déjà payée. Un gatewayID vide conserve l'existant.
	MarkPaid(ctx context.Context, id, gatewayID string) (changed bool, err error)
	// UpdateStatus applique une transition conditionnée par le statut courant.
	UpdateStatus(ctx context.Context, id string, from, to models.OrderStatus) error
}

type Users interface {
	// CreateUser retourne models.ErrConflict si le nom d'utilisateur ou l'email est déjà pris.
	CreateUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id string) (*models.User, error)
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Store regroupe les trois dépôts d'un même backend.
type Store interface {
	Catalog
	Orders
	Users
	Close() error
}
