package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product est la fiche catalogue. Le prix est persisté en texte pour éviter toute dérive flottante.
type Product struct {
	ID          string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	CategoryID  string          `json:"category_id" gorm:"type:varchar(36);index"`
	Slug        string          `json:"slug" gorm:"uniqueIndex;not null"`
	Name        string          `json:"name" gorm:"not null"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price" gorm:"type:varchar(32);not null"`
	Stock       int             `json:"stock" gorm:"not null"`
	Available   bool            `json:"available" gorm:"not null"`
	ImageKey    string          `json:"-"`
	ImageURL    string          `json:"image_url,omitempty" gorm:"-"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// StockMovement trace un changement de stock manuel (réassort ou ajustement).
type StockMovement struct {
	ProductID string `json:"product_id"`
	Type      string `json:"type"` // "restock", "adjustment"
	Quantity  int    `json:"quantity"`
	PrevStock int    `json:"prev_stock"`
	NewStock  int    `json:"new_stock"`
	Reason    string `json:"reason"`
}
