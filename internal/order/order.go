package order

import (
	"errors"
	"fmt"
	"time"
)

// Status is the fulfillment state of an order. "placed" is the state a
// webhook-created order starts in; the admin dashboard treats it as "new".
type Status string

const (
	StatusPlaced     Status = "placed"
	StatusNew        Status = "new"
	StatusProcessing Status = "processing"
	StatusShipping   Status = "shipping"
	StatusComplete   Status = "complete"
)

var ErrInvalidStatus = errors.New("invalid order status")

// ParseStatus validates an externally supplied status string. Only the five
// enumerated values are accepted.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPlaced, StatusNew, StatusProcessing, StatusShipping, StatusComplete:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// IsOpen reports whether the order has not been picked up for fulfillment
// yet. placed and new are the same logical state under different labels.
func (s Status) IsOpen() bool {
	return s == StatusPlaced || s == StatusNew
}

// Address uses the payment provider's field names so records round-trip
// unchanged through the store.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Customer is captured once from the payment event and never re-collected.
type Customer struct {
	Name    string   `json:"name,omitempty"`
	Email   string   `json:"email,omitempty"`
	Address *Address `json:"address,omitempty"`
}

// Item is one purchased calendar. Position in the Items slice matches the
// position in the original purchase and must be preserved.
type Item struct {
	TemplateName   string `json:"templateName"`
	Template       string `json:"template,omitempty"`
	OutputFolderID string `json:"outputFolderId,omitempty"`
}

// Order is the durable record of one paid transaction. OrderID comes from
// the payment provider's checkout session and is never generated locally.
type Order struct {
	OrderID   string    `json:"orderId"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Customer  Customer  `json:"customer"`
	Items     []Item    `json:"items"`
}

// FolderIDs returns the output folder ids of all items that have one,
// in item order.
func (o *Order) FolderIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		if it.OutputFolderID != "" {
			ids = append(ids, it.OutputFolderID)
		}
	}
	return ids
}
