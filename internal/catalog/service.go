// Package catalog expose le catalogue : listes par catégorie, fiches produit, recherche et administration.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"boutique_back_end/internal/models"
	"boutique_back_end/internal/observability"
	"boutique_back_end/internal/store"
	"boutique_back_end/internal/validation"
)

// Indexer est implémenté par le moteur de recherche (Elasticsearch).
type Indexer interface {
	Index(ctx context.Context, p *models.Product) error
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// Images est implémenté par le stockage objet (MinIO).
type Images interface {
	ImageURL(ctx context.Context, key string) (string, error)
	PutImage(ctx context.Context, productID, filename string, r io.Reader) (string, error)
}

const searchLimit = 50

type Service struct {
	store  store.Catalog
	index  Indexer
	images Images
}

// NewService accepte un index et un stockage d'images nil : la recherche retombe alors sur le store.
func NewService(s store.Catalog, index Indexer, images Images) *Service {
	return &Service{store: s, index: index, images: images}
}

type Listing struct {
	Category   *models.Category  `json:"category,omitempty"`
	Categories []models.Category `json:"categories"`
	Products   []models.Product  `json:"products"`
}

// ListProducts retourne les produits disponibles, filtrés par catégorie si un slug est donné.
func (s *Service) ListProducts(ctx context.Context, categorySlug string) (*Listing, error) {
	categories, err := s.store.Categories(ctx)
	if err != nil {
		return nil, err
	}
	out := &Listing{Categories: categories}

	filter := store.ProductFilter{OnlyAvailable: true}
	if categorySlug != "" {
		c, err := s.store.CategoryBySlug(ctx, categorySlug)
		if err != nil {
			return nil, err
		}
		out.Category = c
		filter.CategoryID = c.ID
	}

	products, err := s.store.ListProducts(ctx, filter)
	if err != nil {
		return nil, err
	}
	out.Products = s.withImages(ctx, products)
	return out, nil
}

// GetProduct retourne un produit disponible dont l'identifiant et le slug correspondent.
func (s *Service) GetProduct(ctx context.Context, id, slug string) (*models.Product, error) {
	p, err := s.store.ProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Slug != slug || !p.Available {
		return nil, fmt.Errorf("produit %s/%s: %w", id, slug, models.ErrNotFound)
	}
	s.withImage(ctx, p)
	return p, nil
}

// GetProductByID retourne le produit, disponible ou non.
func (s *Service) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	return s.store.ProductByID(ctx, id)
}

func (s *Service) Categories(ctx context.Context) ([]models.Category, error) {
	return s.store.Categories(ctx)
}

// Search interroge Elasticsearch ; sans index, ou s'il est injoignable, on filtre le store.
func (s *Service) Search(ctx context.Context, query string) ([]models.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, models.NewValidationError("q", "ce champ est obligatoire")
	}

	if s.index != nil {
		ids, err := s.index.Search(ctx, query, searchLimit)
		if err == nil {
			return s.productsByIDs(ctx, ids)
		}
		observability.FromContext(ctx).Warn("⚠️ Recherche Elastic indisponible, repli sur la base", zap.Error(err))
	}

	products, err := s.store.ListProducts(ctx, store.ProductFilter{OnlyAvailable: true, Query: query})
	if err != nil {
		return nil, err
	}
	return s.withImages(ctx, products), nil
}

func (s *Service) productsByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	products := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		p, err := s.store.ProductByID(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if p.Available {
			products = append(products, *p)
		}
	}
	return s.withImages(ctx, products), nil
}

// --- Administration ---

type CategoryInput struct {
	Name string `json:"name" validate:"required,max=100"`
	Slug string `json:"slug" validate:"omitempty,max=100"`
}

func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*models.Category, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	c := &models.Category{ID: uuid.NewString(), Name: in.Name, Slug: in.Slug}
	if c.Slug == "" {
		c.Slug = Slugify(in.Name)
	}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.NewValidationError("slug", "ce slug existe déjà")
		}
		return nil, err
	}
	return c, nil
}

type ProductInput struct {
	CategorySlug string `json:"category" validate:"omitempty,max=100"`
	Name         string `json:"name" validate:"required,max=200"`
	Slug         string `json:"slug" validate:"omitempty,max=200"`
	Description  string `json:"description"`
	Price        string `json:"price" validate:"required"`
	Stock        int    `json:"stock" validate:"min=0"`
	Available    *bool  `json:"available"`
}

func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	price, err := decimal.NewFromString(in.Price)
	if err != nil || price.IsNegative() {
		return nil, models.NewValidationError("price", "prix invalide")
	}

	p := &models.Product{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Slug:        in.Slug,
		Description: in.Description,
		Price:       price.Round(2),
		Stock:       in.Stock,
		Available:   in.Available == nil || *in.Available,
	}
	if p.Slug == "" {
		p.Slug = Slugify(in.Name)
	}
	if in.CategorySlug != "" {
		c, err := s.store.CategoryBySlug(ctx, in.CategorySlug)
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NewValidationError("category", "catégorie inconnue")
		}
		if err != nil {
			return nil, err
		}
		p.CategoryID = c.ID
	}

	if err := s.store.CreateProduct(ctx, p); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.NewValidationError("slug", "ce slug existe déjà")
		}
		return nil, err
	}
	s.reindex(ctx, p.ID)
	return p, nil
}

const (
	MovementRestock    = "restock"
	MovementAdjustment = "adjustment"
)

type StockInput struct {
	Type     string `json:"type" validate:"required,oneof=restock adjustment"`
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason" validate:"max=250"`
}

// UpdateStock applique un réassort (ajout) ou un ajustement (delta signé) ; le stock reste positif ou nul.
func (s *Service) UpdateStock(ctx context.Context, id string, in StockInput) (*models.StockMovement, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.Type == MovementRestock && in.Quantity <= 0 {
		return nil, models.NewValidationError("quantity", "doit être strictement positive")
	}

	prev, next, err := s.store.ApplyStock(ctx, id, func(current int) (int, error) {
		n := current + in.Quantity
		if n < 0 {
			return 0, models.NewValidationError("quantity", fmt.Sprintf("le stock ne peut pas devenir négatif (actuel : %d)", current))
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}

	mv := &models.StockMovement{ProductID: id, Type: in.Type, Quantity: in.Quantity, PrevStock: prev, NewStock: next, Reason: in.Reason}
	observability.FromContext(ctx).Info("📦 Stock mis à jour",
		zap.String("product_id", id), zap.String("type", in.Type), zap.Int("prev", prev), zap.Int("new", next))
	s.reindex(ctx, id)
	return mv, nil
}

func (s *Service) SetAvailability(ctx context.Context, id string, available bool) (*models.Product, error) {
	if err := s.store.SetAvailability(ctx, id, available); err != nil {
		return nil, err
	}
	s.reindex(ctx, id)
	return s.store.ProductByID(ctx, id)
}

// UploadImage remplace l'image du produit.
func (s *Service) UploadImage(ctx context.Context, id, filename string, r io.Reader) (*models.Product, error) {
	if s.images == nil {
		return nil, errors.New("stockage d'images non configuré")
	}
	if _, err := s.store.ProductByID(ctx, id); err != nil {
		return nil, err
	}
	key, err := s.images.PutImage(ctx, id, filename, r)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetImageKey(ctx, id, key); err != nil {
		return nil, err
	}

	p, err := s.store.ProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.withImage(ctx, p)
	return p, nil
}

func (s *Service) reindex(ctx context.Context, id string) {
	if s.index == nil {
		return
	}
	p, err := s.store.ProductByID(ctx, id)
	if err == nil {
		err = s.index.Index(ctx, p)
	}
	if err != nil {
		observability.FromContext(ctx).Warn("⚠️ Indexation du produit impossible", zap.String("product_id", id), zap.Error(err))
	}
}

func (s *Service) withImages(ctx context.Context, products []models.Product) []models.Product {
	for i := range products {
		s.withImage(ctx, &products[i])
	}
	return products
}

func (s *Service) withImage(ctx context.Context, p *models.Product) {
	if s.images == nil || p.ImageKey == "" {
		return
	}
	u, err := s.images.ImageURL(ctx, p.ImageKey)
	if err != nil {
		observability.FromContext(ctx).Warn("⚠️ URL signée impossible", zap.String("product_id", p.ID), zap.Error(err))
		return
	}
	p.ImageURL = u
}

// Slugify produit un slug ASCII en minuscules : "Théière en fonte" → "theiere-en-fonte".
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range norm.NFD.String(strings.ToLower(s)) {
		switch {
		case unicode.Is(unicode.Mn, r):
			continue
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
