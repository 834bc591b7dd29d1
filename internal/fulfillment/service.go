package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/funnycal/fulfillment/internal/events"
	"github.com/funnycal/fulfillment/internal/metrics"
	"github.com/funnycal/fulfillment/internal/order"
	"github.com/funnycal/fulfillment/internal/storage"
)

// Store is the order persistence contract the state machine runs against.
type Store interface {
	Create(o *order.Order) error
	Get(orderID string) (*order.Order, error)
	Update(orderID string, mutate func(*order.Order) error) (*order.Order, error)
	List() ([]*order.Order, error)
	Archive(orderID string) error
}

// ArtifactStore manages the order-scoped copies of generated images.
type ArtifactStore interface {
	CopyOrderArtifacts(orderID string, folderIDs []string) error
	DeleteOrderFiles(orderID string) error
	WriteZip(w io.Writer, o *order.Order, orderID string) error
}

// Notifier is the best-effort mail side channel.
type Notifier interface {
	StaffNewOrder(o *order.Order) error
	CustomerStatusChange(o *order.Order) error
}

// PaymentEvent is a provider-neutral payment-completed event. The three
// slices are position-aligned: element i of each describes item i of the
// purchase.
type PaymentEvent struct {
	SessionID     string
	CreatedAt     time.Time
	CustomerName  string
	CustomerEmail string
	Address       *order.Address
	Folders       []string
	Templates     []string
	Names         []string
}

// Service is the fulfillment state machine. Every transition (webhook
// creation, admin status change, the first-download heuristic, archival)
// goes through here, so the legal-transition checks live in one place.
type Service struct {
	store     Store
	artifacts ArtifactStore
	notifier  Notifier
	publisher *events.Publisher
	logger    *zap.Logger
}

func NewService(store Store, artifacts ArtifactStore, notifier Notifier, publisher *events.Publisher, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		artifacts: artifacts,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateFromPayment records a verified payment-completed event as a new
// order in state "placed". Recording the order is the primary path and its
// failure propagates to the caller; copying artifacts, emailing staff and
// publishing the event are best-effort side effects that never do.
func (s *Service) CreateFromPayment(ctx context.Context, evt PaymentEvent) (*order.Order, error) {
	if evt.SessionID == "" {
		return nil, errors.New("payment event missing session id")
	}

	items := make([]order.Item, 0, len(evt.Names))
	for i, name := range evt.Names {
		item := order.Item{TemplateName: name}
		if i < len(evt.Templates) {
			item.Template = evt.Templates[i]
		}
		if i < len(evt.Folders) {
			item.OutputFolderID = evt.Folders[i]
		}
		items = append(items, item)
	}

	createdAt := evt.CreatedAt.UTC()
	o := &order.Order{
		OrderID:   evt.SessionID,
		Status:    order.StatusPlaced,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		Customer: order.Customer{
			Name:    evt.CustomerName,
			Email:   evt.CustomerEmail,
			Address: evt.Address,
		},
		Items: items,
	}

	if err := s.store.Create(o); err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("create_order").Inc()
		return nil, fmt.Errorf("record order: %w", err)
	}
	metrics.OrdersCreatedTotal.Inc()
	s.logger.Info("order placed",
		zap.String("order_id", o.OrderID), zap.Int("items", len(o.Items)))

	if len(evt.Folders) > 0 {
		if err := s.artifacts.CopyOrderArtifacts(o.OrderID, evt.Folders); err != nil {
			metrics.OperationErrorsTotal.WithLabelValues("copy_artifacts").Inc()
			s.logger.Error("copy to orders area failed",
				zap.String("order_id", o.OrderID), zap.Error(err))
		}
	}

	if err := s.notifier.StaffNewOrder(o); err != nil {
		metrics.NotificationErrorsTotal.WithLabelValues("staff").Inc()
		s.logger.Warn("staff notification failed",
			zap.String("order_id", o.OrderID), zap.Error(err))
	}

	s.publisher.Publish(ctx, events.TypeOrderPlaced, o.OrderID, o.Status)
	return o, nil
}

// SetStatus is the admin transition command. The target status must be one
// of the five enumerated values; anything else is rejected before the
// store is touched.
func (s *Service) SetStatus(ctx context.Context, orderID, status string) (*order.Order, error) {
	target, err := order.ParseStatus(status)
	if err != nil {
		return nil, err
	}

	o, err := s.store.Update(orderID, func(o *order.Order) error {
		o.Status = target
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.StatusUpdatesTotal.WithLabelValues(string(target)).Inc()
	s.logger.Info("order status updated",
		zap.String("order_id", orderID), zap.String("status", string(target)))

	if err := s.notifier.CustomerStatusChange(o); err != nil {
		metrics.NotificationErrorsTotal.WithLabelValues("customer").Inc()
		s.logger.Warn("customer notification failed",
			zap.String("order_id", orderID), zap.Error(err))
	}

	s.publisher.Publish(ctx, events.TypeStatusChanged, orderID, target)
	return o, nil
}

// Archive relocates the order to the archive partition; archival is
// terminal and permitted from any status. With deleteFiles set the
// order's artifact directory is removed best-effort.
func (s *Service) Archive(ctx context.Context, orderID string, deleteFiles bool) error {
	if err := s.store.Archive(orderID); err != nil {
		return err
	}
	metrics.OrdersArchivedTotal.Inc()
	s.logger.Info("order archived",
		zap.String("order_id", orderID), zap.Bool("delete_files", deleteFiles))

	if deleteFiles {
		if err := s.artifacts.DeleteOrderFiles(orderID); err != nil {
			metrics.OperationErrorsTotal.WithLabelValues("delete_files").Inc()
			s.logger.Warn("deleting order files failed",
				zap.String("order_id", orderID), zap.Error(err))
		}
	}

	s.publisher.Publish(ctx, events.TypeOrderArchived, orderID, "")
	return nil
}

// ExportFiles streams a zip of the order's artifacts to w. An order still
// in placed/new is auto-advanced to processing afterwards: the first bulk
// download signals that someone has started fulfillment. The advance runs
// through the same update path as explicit admin changes.
func (s *Service) ExportFiles(ctx context.Context, orderID string, w io.Writer) error {
	o, err := s.store.Get(orderID)
	if err != nil {
		if !errors.Is(err, storage.ErrOrderNotFound) {
			return err
		}
		o = nil // fall back to zipping the raw directory, if any
	}

	if err := s.artifacts.WriteZip(w, o, orderID); err != nil {
		return err
	}
	metrics.ExportsTotal.Inc()

	if o != nil && o.Status.IsOpen() {
		if _, err := s.SetStatus(ctx, orderID, string(order.StatusProcessing)); err != nil {
			s.logger.Warn("first-download transition failed",
				zap.String("order_id", orderID), zap.Error(err))
		}
	}
	return nil
}

// ListOrders returns the live orders, newest first.
func (s *Service) ListOrders(ctx context.Context) ([]*order.Order, error) {
	return s.store.List()
}

// GetOrder resolves an order from the live partition or the archive.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	return s.store.Get(orderID)
}
