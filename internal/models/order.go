package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
}

// Valid indique si le statut fait partie de l'énumération.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo applique le cycle de vie à sens unique des commandes.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Order struct {
	ID         string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID     string      `json:"user_id" gorm:"type:varchar(36);index"`
	FirstName  string      `json:"first_name"`
	LastName   string      `json:"last_name"`
	Email      string      `json:"email"`
	Address    string      `json:"address"`
	PostalCode string      `json:"postal_code"`
	City       string      `json:"city"`
	Paid       bool        `json:"paid" gorm:"not null"`
	Status     OrderStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	GatewayID  string      `json:"gateway_id,omitempty"`
	CreatedAt  time.Time   `json:"created_at" gorm:"index"`
	UpdatedAt  time.Time   `json:"updated_at"`
	Items      []OrderItem `json:"items" gorm:"foreignKey:OrderID"`
}

// Total additionne les lignes figées de la commande.
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Total())
	}
	return total
}

// OrderItem fige le prix au moment de la commande, indépendamment du prix catalogue.
type OrderItem struct {
	ID          string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID     string          `json:"order_id" gorm:"type:varchar(36);index;not null"`
	ProductID   string          `json:"product_id" gorm:"type:varchar(36);index;not null"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity" gorm:"not null"`
	Price       decimal.Decimal `json:"price" gorm:"type:varchar(32);not null"`
}

func (i OrderItem) Total() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
