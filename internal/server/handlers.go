package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/funnycal/fulfillment/internal/artifacts"
	"github.com/funnycal/fulfillment/internal/order"
	"github.com/funnycal/fulfillment/internal/storage"
)

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.fulfillment.ListOrders(r.Context())
	if err != nil {
		s.logger.Error("list orders failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"orders": orders})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	o, err := s.fulfillment.GetOrder(r.Context(), orderID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"order": o})
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		respondError(w, http.StatusBadRequest, "missing status")
		return
	}

	o, err := s.fulfillment.SetStatus(r.Context(), orderID, req.Status)
	if err != nil {
		if errors.Is(err, order.ErrInvalidStatus) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "order": o})
}

func (s *Server) handleArchiveOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	var req struct {
		DeleteFiles bool `json:"deleteFiles"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := s.fulfillment.Archive(r.Context(), orderID, req.DeleteFiles); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleExportFiles(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["id"]

	// Headers must go out before the first zip byte; on a NotFound the
	// service guarantees nothing has been written yet.
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", orderID+".zip"))

	if err := s.fulfillment.ExportFiles(r.Context(), orderID, w); err != nil {
		if errors.Is(err, artifacts.ErrNoArtifacts) {
			respondError(w, http.StatusNotFound, "no files for this order")
			return
		}
		// Mid-stream failures cannot be reported to the client anymore.
		s.logger.Error("export failed", zap.String("order_id", orderID), zap.Error(err))
	}
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	end := time.Now()
	start := end.Add(-24 * time.Hour)

	var err error
	if v := r.URL.Query().Get("start"); v != "" {
		if start, err = time.Parse(time.RFC3339, v); err != nil {
			respondError(w, http.StatusBadRequest, "invalid start time, use RFC3339")
			return
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if end, err = time.Parse(time.RFC3339, v); err != nil {
			respondError(w, http.StatusBadRequest, "invalid end time, use RFC3339")
			return
		}
	}

	report, err := s.reconciler.Run(r.Context(), start, end)
	if err != nil {
		s.logger.Error("reconciliation failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, "reconciliation failed")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, storage.ErrOrderExists):
		respondError(w, http.StatusConflict, "order already exists")
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
