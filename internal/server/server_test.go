package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/funnycal/fulfillment/internal/artifacts"
	"github.com/funnycal/fulfillment/internal/fulfillment"
	"github.com/funnycal/fulfillment/internal/order"
	"github.com/funnycal/fulfillment/internal/reconcile"
	server_mocks "github.com/funnycal/fulfillment/internal/server/mocks"
	"github.com/funnycal/fulfillment/internal/storage"
)

type testMocks struct {
	fulfillment *server_mocks.MockFulfillment
	reconciler  *server_mocks.MockReconciler
	verifier    *server_mocks.MockWebhookVerifier
}

func newTestServer(t *testing.T, adminTokenHash string) (*Server, *testMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)

	m := &testMocks{
		fulfillment: server_mocks.NewMockFulfillment(ctrl),
		reconciler:  server_mocks.NewMockReconciler(ctrl),
		verifier:    server_mocks.NewMockWebhookVerifier(ctrl),
	}
	return New(m.fulfillment, m.reconciler, m.verifier, adminTokenHash, zap.NewNop()), m
}

func sampleOrder(id string, status order.Status) *order.Order {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &order.Order{
		OrderID:   id,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
		Customer:  order.Customer{Name: "Jo Smith", Email: "jo@example.com"},
		Items: []order.Item{
			{TemplateName: "Swimsuit Calendar", Template: "swimsuit", OutputFolderID: "f1"},
		},
	}
}

func TestHandleListOrders(t *testing.T) {
	tests := []struct {
		name           string
		setupMocks     func(m *testMocks)
		expectedStatus int
		check          func(t *testing.T, body string)
	}{
		{
			name: "two orders newest first",
			setupMocks: func(m *testMocks) {
				m.fulfillment.EXPECT().
					ListOrders(gomock.Any()).
					Return([]*order.Order{sampleOrder("cs_2", order.StatusNew), sampleOrder("cs_1", order.StatusPlaced)}, nil)
			},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, body string) {
				var resp struct {
					Orders []order.Order `json:"orders"`
				}
				require.NoError(t, json.Unmarshal([]byte(body), &resp))
				require.Len(t, resp.Orders, 2)
				assert.Equal(t, "cs_2", resp.Orders[0].OrderID)
			},
		},
		{
			name: "store failure",
			setupMocks: func(m *testMocks) {
				m.fulfillment.EXPECT().
					ListOrders(gomock.Any()).
					Return(nil, errors.New("disk exploded"))
			},
			expectedStatus: http.StatusInternalServerError,
			check: func(t *testing.T, body string) {
				assert.JSONEq(t, `{"error":"failed to list orders"}`, body)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, m := newTestServer(t, "")
			tc.setupMocks(m)

			req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
			rr := httptest.NewRecorder()
			srv.handleListOrders(rr, req)

			assert.Equal(t, tc.expectedStatus, rr.Code)
			tc.check(t, rr.Body.String())
		})
	}
}

func TestHandleGetOrder(t *testing.T) {
	tests := []struct {
		name           string
		orderID        string
		setupMocks     func(m *testMocks)
		expectedStatus int
	}{
		{
			name:    "found",
			orderID: "cs_1",
			setupMocks: func(m *testMocks) {
				m.fulfillment.EXPECT().
					GetOrder(gomock.Any(), "cs_1").
					Return(sampleOrder("cs_1", order.StatusPlaced), nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:    "unknown order",
			orderID: "cs_missing",
			setupMocks: func(m *testMocks) {
				m.fulfillment.EXPECT().
					GetOrder(gomock.Any(), "cs_missing").
					Return(nil, storage.ErrOrderNotFound)
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, m := newTestServer(t, "")
			tc.setupMocks(m)

			req := httptest.NewRequest(http.MethodGet, "/api/admin/orders/"+tc.orderID, nil)
			req = mux.SetURLVars(req, map[string]string{"id": tc.orderID})
			rr := httptest.NewRecorder()
			srv.handleGetOrder(rr, req)

			assert.Equal(t, tc.expectedStatus, rr.Code)
		})
	}
}

func TestHandleUpdateStatus(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMocks     func(m *testMocks)
		expectedStatus int
	}{
		{
			name: "valid transition",
			body: `{"status":"shipping"}`,
			setupMocks: func(m *testMocks) {
				m.fulfillment.EXPECT().
					SetStatus(gomock.Any(), "cs_1", "shipping").
					Return(sampleOrder("cs_1", order.StatusShipping), nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing status",
			body:           `{}`,
			setupMocks:     func(m *testMocks) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "garbage body",
			body:           `{"status":`,
			setupMocks:     func(m *testMocks) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unknown status value",
			body: `{"status":"teleported"}`,
			setupMocks: func(m *testMocks) {
				m.fulfillment.EXPECT().
					SetStatus(gomock.Any(), "cs_1", "teleported").
					Return(nil, fmt.Errorf("%w: %q", order.ErrInvalidStatus, "teleported"))
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unknown order",
			body: `{"status":"shipping"}`,
			setupMocks: func(m *testMocks) {
				m.fulfillment.EXPECT().
					SetStatus(gomock.Any(), "cs_1", "shipping").
					Return(nil, storage.ErrOrderNotFound)
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, m := newTestServer(t, "")
			tc.setupMocks(m)

			req := httptest.NewRequest(http.MethodPost, "/api/admin/orders/cs_1/status", bytes.NewBufferString(tc.body))
			req = mux.SetURLVars(req, map[string]string{"id": "cs_1"})
			rr := httptest.NewRecorder()
			srv.handleUpdateStatus(rr, req)

			assert.Equal(t, tc.expectedStatus, rr.Code)
		})
	}
}

func TestHandleArchiveOrder(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMocks     func(m *testMocks)
		expectedStatus int
	}{
		{
			name: "empty body keeps files",
			body: "",
			setupMocks: func(m *testMocks) {
				m.fulfillment.EXPECT().
					Archive(gomock.Any(), "cs_1", false).
					Return(nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "explicit file deletion",
			body: `{"deleteFiles":true}`,
			setupMocks: func(m *testMocks) {
				m.fulfillment.EXPECT().
					Archive(gomock.Any(), "cs_1", true).
					Return(nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "unknown order",
			body: "",
			setupMocks: func(m *testMocks) {
				m.fulfillment.EXPECT().
					Archive(gomock.Any(), "cs_1", false).
					Return(storage.ErrOrderNotFound)
			},
			expectedStatus: http.StatusNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, m := newTestServer(t, "")
			tc.setupMocks(m)

			req := httptest.NewRequest(http.MethodPost, "/api/admin/orders/cs_1/archive", bytes.NewBufferString(tc.body))
			req = mux.SetURLVars(req, map[string]string{"id": "cs_1"})
			rr := httptest.NewRecorder()
			srv.handleArchiveOrder(rr, req)

			assert.Equal(t, tc.expectedStatus, rr.Code)
		})
	}
}

func TestHandleExportFiles(t *testing.T) {
	t.Run("streams zip with download headers", func(t *testing.T) {
		srv, m := newTestServer(t, "")
		m.fulfillment.EXPECT().
			ExportFiles(gomock.Any(), "cs_1", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, w io.Writer) error {
				_, err := w.Write([]byte("PK zip bytes"))
				return err
			})

		req := httptest.NewRequest(http.MethodGet, "/api/admin/orders/cs_1/files", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "cs_1"})
		rr := httptest.NewRecorder()
		srv.handleExportFiles(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/zip", rr.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="cs_1.zip"`, rr.Header().Get("Content-Disposition"))
		assert.Equal(t, "PK zip bytes", rr.Body.String())
	})

	t.Run("no artifacts", func(t *testing.T) {
		srv, m := newTestServer(t, "")
		m.fulfillment.EXPECT().
			ExportFiles(gomock.Any(), "cs_gone", gomock.Any()).
			Return(artifacts.ErrNoArtifacts)

		req := httptest.NewRequest(http.MethodGet, "/api/admin/orders/cs_gone/files", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "cs_gone"})
		rr := httptest.NewRecorder()
		srv.handleExportFiles(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestHandleReconcile(t *testing.T) {
	t.Run("defaults to trailing 24 hours", func(t *testing.T) {
		srv, m := newTestServer(t, "")
		m.reconciler.EXPECT().
			Run(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, start, end time.Time) (*reconcile.Report, error) {
				assert.WithinDuration(t, time.Now(), end, 5*time.Second)
				assert.Equal(t, 24*time.Hour, end.Sub(start))
				return &reconcile.Report{}, nil
			})

		req := httptest.NewRequest(http.MethodGet, "/api/admin/reconcile", nil)
		rr := httptest.NewRecorder()
		srv.handleReconcile(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("explicit window", func(t *testing.T) {
		srv, m := newTestServer(t, "")
		start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
		m.reconciler.EXPECT().
			Run(gomock.Any(), start, end).
			Return(&reconcile.Report{StripePaidCount: 3, LocalOrderCount: 3}, nil)

		url := fmt.Sprintf("/api/admin/reconcile?start=%s&end=%s",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
		req := httptest.NewRequest(http.MethodGet, url, nil)
		rr := httptest.NewRecorder()
		srv.handleReconcile(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		var report reconcile.Report
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
		assert.Equal(t, 3, report.StripePaidCount)
	})

	t.Run("bad start param", func(t *testing.T) {
		srv, _ := newTestServer(t, "")

		req := httptest.NewRequest(http.MethodGet, "/api/admin/reconcile?start=yesterday", nil)
		rr := httptest.NewRecorder()
		srv.handleReconcile(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("provider unreachable", func(t *testing.T) {
		srv, m := newTestServer(t, "")
		m.reconciler.EXPECT().
			Run(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.New("stripe: 500"))

		req := httptest.NewRequest(http.MethodGet, "/api/admin/reconcile", nil)
		rr := httptest.NewRecorder()
		srv.handleReconcile(rr, req)

		assert.Equal(t, http.StatusBadGateway, rr.Code)
	})
}

func webhookPayload() string {
	return `{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test_1",
				"created": 1709294400,
				"payment_status": "paid",
				"customer_details": {
					"name": "Jo Smith",
					"email": "jo@example.com",
					"address": {"line1": "1 Main St", "city": "Springfield", "state": "IL", "postal_code": "62701", "country": "US"}
				},
				"metadata": {
					"folders": "f1|f2",
					"templates": "swimsuit|superhero",
					"names": "Swimsuit Calendar|Superhero Calendar"
				}
			}
		}
	}`
}

func TestHandleStripeWebhook(t *testing.T) {
	t.Run("creates order from checkout session", func(t *testing.T) {
		srv, m := newTestServer(t, "")
		m.verifier.EXPECT().VerifySignature(gomock.Any(), "sig-header").Return(nil)
		m.fulfillment.EXPECT().
			CreateFromPayment(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, evt fulfillment.PaymentEvent) (*order.Order, error) {
				assert.Equal(t, "cs_test_1", evt.SessionID)
				assert.Equal(t, time.Unix(1709294400, 0), evt.CreatedAt)
				assert.Equal(t, "Jo Smith", evt.CustomerName)
				assert.Equal(t, "jo@example.com", evt.CustomerEmail)
				require.NotNil(t, evt.Address)
				assert.Equal(t, "Springfield", evt.Address.City)
				assert.Equal(t, []string{"f1", "f2"}, evt.Folders)
				assert.Equal(t, []string{"swimsuit", "superhero"}, evt.Templates)
				assert.Equal(t, []string{"Swimsuit Calendar", "Superhero Calendar"}, evt.Names)
				return sampleOrder("cs_test_1", order.StatusPlaced), nil
			})

		req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewBufferString(webhookPayload()))
		req.Header.Set("Stripe-Signature", "sig-header")
		rr := httptest.NewRecorder()
		srv.handleStripeWebhook(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"received":true}`, rr.Body.String())
	})

	t.Run("rejects bad signature", func(t *testing.T) {
		srv, m := newTestServer(t, "")
		m.verifier.EXPECT().
			VerifySignature(gomock.Any(), gomock.Any()).
			Return(errors.New("signature mismatch"))

		req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewBufferString(webhookPayload()))
		rr := httptest.NewRecorder()
		srv.handleStripeWebhook(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rejects malformed event", func(t *testing.T) {
		srv, m := newTestServer(t, "")
		m.verifier.EXPECT().VerifySignature(gomock.Any(), gomock.Any()).Return(nil)

		req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewBufferString("{not json"))
		rr := httptest.NewRecorder()
		srv.handleStripeWebhook(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("acknowledges unrelated event types", func(t *testing.T) {
		srv, m := newTestServer(t, "")
		m.verifier.EXPECT().VerifySignature(gomock.Any(), gomock.Any()).Return(nil)

		body := `{"id":"evt_2","type":"invoice.paid","data":{"object":{"id":"in_1"}}}`
		req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewBufferString(body))
		rr := httptest.NewRecorder()
		srv.handleStripeWebhook(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"received":true}`, rr.Body.String())
	})

	t.Run("acknowledges redelivery of a recorded session", func(t *testing.T) {
		srv, m := newTestServer(t, "")
		m.verifier.EXPECT().VerifySignature(gomock.Any(), gomock.Any()).Return(nil)
		m.fulfillment.EXPECT().
			CreateFromPayment(gomock.Any(), gomock.Any()).
			Return(nil, storage.ErrOrderExists)

		req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewBufferString(webhookPayload()))
		rr := httptest.NewRecorder()
		srv.handleStripeWebhook(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"received":true}`, rr.Body.String())
	})

	t.Run("asks for redelivery when recording fails", func(t *testing.T) {
		srv, m := newTestServer(t, "")
		m.verifier.EXPECT().VerifySignature(gomock.Any(), gomock.Any()).Return(nil)
		m.fulfillment.EXPECT().
			CreateFromPayment(gomock.Any(), gomock.Any()).
			Return(nil, errors.New("disk full"))

		req := httptest.NewRequest(http.MethodPost, "/api/stripe/webhook", bytes.NewBufferString(webhookPayload()))
		rr := httptest.NewRecorder()
		srv.handleStripeWebhook(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestAdminAuthMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name           string
		tokenHash      string
		authorization  string
		setupMocks     func(m *testMocks)
		expectedStatus int
	}{
		{
			name:           "no hash configured",
			tokenHash:      "",
			authorization:  "Bearer letmein",
			setupMocks:     func(m *testMocks) {},
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:           "missing header",
			tokenHash:      string(hash),
			authorization:  "",
			setupMocks:     func(m *testMocks) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "wrong token",
			tokenHash:      string(hash),
			authorization:  "Bearer nope",
			setupMocks:     func(m *testMocks) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:          "valid token",
			tokenHash:     string(hash),
			authorization: "Bearer letmein",
			setupMocks: func(m *testMocks) {
				m.fulfillment.EXPECT().
					ListOrders(gomock.Any()).
					Return([]*order.Order{}, nil)
			},
			expectedStatus: http.StatusOK,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, m := newTestServer(t, tc.tokenHash)
			tc.setupMocks(m)

			req := httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
			if tc.authorization != "" {
				req.Header.Set("Authorization", tc.authorization)
			}
			rr := httptest.NewRecorder()
			srv.Routes().ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedStatus, rr.Code)
			assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))
		})
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}
