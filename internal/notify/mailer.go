package notify

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/funnycal/fulfillment/internal/order"
)

// Config holds SMTP delivery settings. Delivery is entirely optional: when
// the required fields are absent the mailer silently does nothing.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	StaffTo  string
}

func (c Config) senderConfigured() bool {
	return c.Host != "" && c.Port != 0 && c.Username != "" && c.Password != "" && c.From != ""
}

// Mailer sends plain-text order notifications over SMTP. Both
// notifications are best-effort side channels: the returned error is for
// the caller to log and swallow, never to roll back the operation that
// triggered it.
type Mailer struct {
	cfg    Config
	logger *zap.Logger

	send func(m *gomail.Message) error
}

func NewMailer(cfg Config, logger *zap.Logger) *Mailer {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &Mailer{
		cfg:    cfg,
		logger: logger,
		send: func(m *gomail.Message) error {
			return dialer.DialAndSend(m)
		},
	}
}

// StaffNewOrder emails the configured staff recipient about a freshly
// placed order. No-op when SMTP or the staff recipient is not configured.
func (m *Mailer) StaffNewOrder(o *order.Order) error {
	if !m.cfg.senderConfigured() || m.cfg.StaffTo == "" {
		m.logger.Debug("staff notification skipped, mail not configured",
			zap.String("order_id", o.OrderID))
		return nil
	}

	lines := []string{
		fmt.Sprintf("Order ID: %s", o.OrderID),
		fmt.Sprintf("Placed: %s", o.CreatedAt.Format("2006-01-02 15:04:05 MST")),
		fmt.Sprintf("Customer: %s <%s>", orNA(o.Customer.Name), orNA(o.Customer.Email)),
		addressLine(o.Customer.Address),
		"Items:",
	}
	for _, it := range o.Items {
		lines = append(lines, fmt.Sprintf(" - %s [%s]", it.TemplateName, it.OutputFolderID))
	}

	return m.deliver(m.cfg.StaffTo,
		fmt.Sprintf("New FunnyCal Order: %s", o.OrderID),
		strings.Join(lines, "\n"))
}

// CustomerStatusChange emails the buyer after an admin status change.
// Only attempted when the order carries a captured email address.
func (m *Mailer) CustomerStatusChange(o *order.Order) error {
	if o.Customer.Email == "" {
		return nil
	}
	if !m.cfg.senderConfigured() {
		m.logger.Debug("customer notification skipped, mail not configured",
			zap.String("order_id", o.OrderID))
		return nil
	}

	greeting := "Hello"
	if o.Customer.Name != "" {
		greeting += " " + o.Customer.Name
	}
	body := fmt.Sprintf("%s,\n\nYour order is now marked as: %s.\n\n"+
		"We will notify you again when there are further updates.\n\n"+
		"Thanks for choosing FunnyCal!\nFunnyCal LLC\nsupport@funnycal.com\n",
		greeting, o.Status)

	return m.deliver(o.Customer.Email,
		fmt.Sprintf("Your FunnyCal Order %s - %s", o.OrderID, strings.ToUpper(string(o.Status))),
		body)
}

func (m *Mailer) deliver(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.send(msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func addressLine(a *order.Address) string {
	if a == nil {
		return "Address: N/A"
	}
	return fmt.Sprintf("Address: %s %s, %s, %s %s",
		a.Line1, a.Line2, a.City, a.State, a.PostalCode)
}
