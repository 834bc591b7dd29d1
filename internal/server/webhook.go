package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/funnycal/fulfillment/internal/fulfillment"
	"github.com/funnycal/fulfillment/internal/metrics"
	"github.com/funnycal/fulfillment/internal/order"
	"github.com/funnycal/fulfillment/internal/storage"
	"github.com/funnycal/fulfillment/internal/stripe"
)

// maxWebhookBody bounds the payload read; real checkout events are a few
// kilobytes.
const maxWebhookBody = 1 << 20

// handleStripeWebhook is the payment-completed intake. A failure on the
// primary path (recording the order) answers 5xx so Stripe redelivers; a
// redelivery of an already-recorded session answers 200 so it stops.
func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "cannot read body")
		return
	}

	if err := s.verifier.VerifySignature(payload, r.Header.Get("Stripe-Signature")); err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("bad_signature").Inc()
		s.logger.Warn("webhook signature rejected", zap.Error(err))
		respondError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	evt, err := stripe.ParseWebhookEvent(payload)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		respondError(w, http.StatusBadRequest, "malformed event")
		return
	}

	if evt.Type != stripe.EventCheckoutSessionCompleted {
		metrics.WebhookEventsTotal.WithLabelValues("ignored").Inc()
		respondJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	session := evt.Data.Object
	paymentEvent := fulfillment.PaymentEvent{
		SessionID:     session.ID,
		CreatedAt:     time.Unix(session.Created, 0),
		CustomerName:  session.Name(),
		CustomerEmail: session.Email(),
		Address:       toOrderAddress(session.Address()),
		Folders:       session.MetadataList("folders"),
		Templates:     session.MetadataList("templates"),
		Names:         session.MetadataList("names"),
	}

	if _, err := s.fulfillment.CreateFromPayment(r.Context(), paymentEvent); err != nil {
		if errors.Is(err, storage.ErrOrderExists) {
			// Redelivery of an event we already handled.
			metrics.WebhookEventsTotal.WithLabelValues("duplicate").Inc()
			s.logger.Info("duplicate webhook delivery",
				zap.String("order_id", session.ID))
			respondJSON(w, http.StatusOK, map[string]bool{"received": true})
			return
		}
		metrics.WebhookEventsTotal.WithLabelValues("error").Inc()
		s.logger.Error("webhook handling failed",
			zap.String("order_id", session.ID), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to record order")
		return
	}

	metrics.WebhookEventsTotal.WithLabelValues("created").Inc()
	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func toOrderAddress(a *stripe.SessionAddress) *order.Address {
	if a == nil {
		return nil
	}
	return &order.Address{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}
