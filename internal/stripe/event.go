package stripe

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventCheckoutSessionCompleted is the only event type the fulfillment
// subsystem acts on; everything else is acknowledged and dropped.
const EventCheckoutSessionCompleted = "checkout.session.completed"

// MetadataSeparator joins the per-item folder/template/name lists into the
// session metadata at checkout time; the three lists are position-aligned.
const MetadataSeparator = "|"

type WebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object CheckoutSession `json:"object"`
	} `json:"data"`
}

type CheckoutSession struct {
	ID              string            `json:"id"`
	Created         int64             `json:"created"`
	PaymentStatus   string            `json:"payment_status"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails *CustomerDetails  `json:"customer_details"`
	ShippingDetails *ShippingDetails  `json:"shipping_details"`
	Metadata        map[string]string `json:"metadata"`
}

type CustomerDetails struct {
	Email   string          `json:"email"`
	Name    string          `json:"name"`
	Address *SessionAddress `json:"address"`
}

type ShippingDetails struct {
	Address *SessionAddress `json:"address"`
}

type SessionAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Email prefers the address Stripe captured at checkout over the one the
// session was created with.
func (s *CheckoutSession) Email() string {
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		return s.CustomerDetails.Email
	}
	return s.CustomerEmail
}

func (s *CheckoutSession) Name() string {
	if s.CustomerDetails != nil {
		return s.CustomerDetails.Name
	}
	return ""
}

func (s *CheckoutSession) Address() *SessionAddress {
	if s.CustomerDetails != nil && s.CustomerDetails.Address != nil {
		return s.CustomerDetails.Address
	}
	if s.ShippingDetails != nil {
		return s.ShippingDetails.Address
	}
	return nil
}

// MetadataList splits one of the pipe-delimited parallel lists out of the
// session metadata, dropping empty segments.
func (s *CheckoutSession) MetadataList(key string) []string {
	raw := s.Metadata[key]
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, MetadataSeparator)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func ParseWebhookEvent(payload []byte) (*WebhookEvent, error) {
	var evt WebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	if evt.Type == "" {
		return nil, fmt.Errorf("webhook event missing type")
	}
	return &evt, nil
}
