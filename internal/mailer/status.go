package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/shopspring/decimal"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"boutique_back_end/internal/models"
	"boutique_back_end/internal/observability"
)

type statusNotice struct {
	Subject string
	Label   string
	Icon    string
	Color   template.CSS
	Message string
}

// Seuls ces statuts donnent lieu à un e-mail ; le paiement a sa propre confirmation.
var statusNotices = map[models.OrderStatus]statusNotice{
	models.StatusShipped: {
		Subject: "Votre commande %s a été expédiée",
		Label:   "Expédiée",
		Icon:    "📦",
		Color:   "#3b82f6",
		Message: "Bonne nouvelle ! Votre commande a été expédiée et est en route vers vous.",
	},
	models.StatusDelivered: {
		Subject: "Votre commande %s a été livrée",
		Label:   "Livrée",
		Icon:    "🎉",
		Color:   "#10b981",
		Message: "Votre commande a été livrée. Nous espérons qu'elle vous plaira !",
	},
	models.StatusCancelled: {
		Subject: "Votre commande %s a été annulée",
		Label:   "Annulée",
		Icon:    "❌",
		Color:   "#ef4444",
		Message: "Votre commande a été annulée. Pour toute question, n'hésitez pas à nous contacter.",
	},
}

type statusView struct {
	Order     *models.Order
	Reference string
	Total     decimal.Decimal
	Shop      string
	Notice    statusNotice
}

// OrderStatusChanged prévient l'acheteur ; les statuts sans notice sont ignorés.
func (m *Mailer) OrderStatusChanged(ctx context.Context, order *models.Order) error {
	msg, err := m.OrderStatusMessage(order)
	if err != nil || msg == nil {
		return err
	}

	if err := m.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("envoi notification %s: %w", order.ID, err)
	}
	observability.FromContext(ctx).Info("📧 E-mail de statut envoyé",
		zap.String("order_id", order.ID), zap.String("status", string(order.Status)))
	return nil
}

// OrderStatusMessage retourne nil quand le statut ne se notifie pas.
func (m *Mailer) OrderStatusMessage(order *models.Order) (*mail.Msg, error) {
	notice, ok := statusNotices[order.Status]
	if !ok {
		return nil, nil
	}
	ref := Reference(order)
	v := statusView{Order: order, Reference: ref, Total: order.Total(), Shop: m.shop, Notice: notice}

	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, "order_status.html", v); err != nil {
		return nil, fmt.Errorf("template statut: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, err
	}
	if err := msg.To(order.Email); err != nil {
		return nil, err
	}
	msg.Subject(fmt.Sprintf(notice.Subject, ref))
	msg.SetBodyString(mail.TypeTextHTML, body.String())
	return msg, nil
}
