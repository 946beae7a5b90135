// Package mailer envoie la confirmation de paiement (QR code, facture PDF en option) et les notifications de statut.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"boutique_back_end/internal/models"
	"boutique_back_end/internal/observability"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) + " €" },
}).ParseFS(templateFS, "templates/*.html"))

const qrName = "commande.png"

// Sender est satisfait par *mail.Client.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// InvoiceRenderer transforme la facture HTML en PDF.
type InvoiceRenderer interface {
	Render(ctx context.Context, html string) ([]byte, error)
}

type Mailer struct {
	sender   Sender
	from     string
	shop     string
	invoices InvoiceRenderer
}

// New accepte un renderer nil : le mail part alors sans facture.
func New(sender Sender, from, shop string, invoices InvoiceRenderer) *Mailer {
	return &Mailer{sender: sender, from: from, shop: shop, invoices: invoices}
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

func NewSMTPClient(cfg SMTPConfig) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("client smtp %s: %w", cfg.Host, err)
	}
	return client, nil
}

type view struct {
	Order     *models.Order
	Reference string
	Total     decimal.Decimal
	Shop      string
	QRName    string
	QRDataURL template.URL
}

// Reference est le numéro de commande affiché au client et encodé dans le QR code.
func Reference(o *models.Order) string {
	return "CMD-" + o.ID
}

// OrderPaid construit et envoie la confirmation de paiement.
func (m *Mailer) OrderPaid(ctx context.Context, order *models.Order) error {
	msg, err := m.OrderPaidMessage(ctx, order)
	if err != nil {
		return err
	}

	log := observability.FromContext(ctx)
	log.Info("📤 Envoi de l'e-mail de confirmation", zap.String("order_id", order.ID), zap.String("to", order.Email))
	if err := m.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("envoi confirmation %s: %w", order.ID, err)
	}
	log.Info("📧 E-mail de confirmation envoyé", zap.String("order_id", order.ID))
	return nil
}

// OrderPaidMessage prépare le message sans l'envoyer.
func (m *Mailer) OrderPaidMessage(ctx context.Context, order *models.Order) (*mail.Msg, error) {
	ref := Reference(order)
	png, err := qrcode.Encode(fmt.Sprintf("%s\n%s EUR", ref, order.Total().StringFixed(2)), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("génération QR: %w", err)
	}
	v := view{
		Order:     order,
		Reference: ref,
		Total:     order.Total(),
		Shop:      m.shop,
		QRName:    qrName,
		QRDataURL: template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png)),
	}

	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, "order_paid.html", v); err != nil {
		return nil, fmt.Errorf("template confirmation: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, err
	}
	if err := msg.To(order.Email); err != nil {
		return nil, err
	}
	msg.Subject(fmt.Sprintf("Confirmation de votre commande %s", ref))
	msg.SetBodyString(mail.TypeTextHTML, body.String())
	if err := msg.EmbedReader(qrName, bytes.NewReader(png)); err != nil {
		return nil, err
	}

	if m.invoices != nil {
		pdf, err := m.invoice(ctx, v)
		if err != nil {
			// la confirmation part quand même
			observability.FromContext(ctx).Error("❌ Erreur génération PDF", zap.String("order_id", order.ID), zap.Error(err))
		} else if err := msg.AttachReader("facture_"+ref+".pdf", bytes.NewReader(pdf)); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

func (m *Mailer) invoice(ctx context.Context, v view) ([]byte, error) {
	var html bytes.Buffer
	if err := templates.ExecuteTemplate(&html, "invoice.html", v); err != nil {
		return nil, fmt.Errorf("template facture: %w", err)
	}
	return m.invoices.Render(ctx, html.String())
}

// LogSender remplace le SMTP en développement : les messages sont seulement journalisés.
type LogSender struct {
	Logger *zap.Logger
}

func (s LogSender) DialAndSendWithContext(_ context.Context, messages ...*mail.Msg) error {
	for _, msg := range messages {
		to, _ := msg.GetRecipients()
		s.Logger.Info("📧 E-mail non envoyé (SMTP non configuré)",
			zap.Strings("to", to), zap.Strings("subject", msg.GetGenHeader(mail.HeaderSubject)))
	}
	return nil
}
