//go:generate mockgen -source ./server.go -destination=./mocks/server.go -package=server_mocks
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/funnycal/fulfillment/internal/fulfillment"
	"github.com/funnycal/fulfillment/internal/order"
	"github.com/funnycal/fulfillment/internal/reconcile"
)

// Fulfillment is the slice of the state machine the HTTP surface needs.
type Fulfillment interface {
	CreateFromPayment(ctx context.Context, evt fulfillment.PaymentEvent) (*order.Order, error)
	SetStatus(ctx context.Context, orderID, status string) (*order.Order, error)
	Archive(ctx context.Context, orderID string, deleteFiles bool) error
	ExportFiles(ctx context.Context, orderID string, w io.Writer) error
	ListOrders(ctx context.Context) ([]*order.Order, error)
	GetOrder(ctx context.Context, orderID string) (*order.Order, error)
}

// Reconciler produces the provider-vs-local diff report.
type Reconciler interface {
	Run(ctx context.Context, start, end time.Time) (*reconcile.Report, error)
}

// WebhookVerifier authenticates inbound payment webhook deliveries.
type WebhookVerifier interface {
	VerifySignature(payload []byte, header string) error
}

type Server struct {
	fulfillment Fulfillment
	reconciler  Reconciler
	verifier    WebhookVerifier
	logger      *zap.Logger

	adminTokenHash string
	server         *http.Server
}

func New(f Fulfillment, r Reconciler, v WebhookVerifier, adminTokenHash string, logger *zap.Logger) *Server {
	return &Server{
		fulfillment:    f,
		reconciler:     r,
		verifier:       v,
		logger:         logger,
		adminTokenHash: adminTokenHash,
	}
}

func (s *Server) Run(addr string) error {
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Routes(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: zip exports of large artifact sets can stream
		// for longer than any fixed limit would allow.
	}

	s.logger.Info("server starting", zap.String("addr", addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.server.Shutdown(ctx)
}

func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestLogMiddleware)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/api/stripe/webhook", s.handleStripeWebhook).Methods(http.MethodPost)

	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.Use(s.adminAuthMiddleware)
	admin.HandleFunc("/orders", s.handleListOrders).Methods(http.MethodGet)
	admin.HandleFunc("/orders/{id}", s.handleGetOrder).Methods(http.MethodGet)
	admin.HandleFunc("/orders/{id}/status", s.handleUpdateStatus).Methods(http.MethodPost)
	admin.HandleFunc("/orders/{id}/archive", s.handleArchiveOrder).Methods(http.MethodPost)
	admin.HandleFunc("/orders/{id}/files", s.handleExportFiles).Methods(http.MethodGet)
	admin.HandleFunc("/reconcile", s.handleReconcile).Methods(http.MethodGet)

	return r
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
