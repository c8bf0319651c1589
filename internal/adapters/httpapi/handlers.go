package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/harborline/idemgate/internal/app/orders"
)

// Server exposes the demo order endpoints the idempotency filter protects.
type Server struct {
	Orders *orders.Service
}

func NewServer(ordersSvc *orders.Service) *Server {
	return &Server{Orders: ordersSvc}
}

func (s *Server) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var in orders.CreateOrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "request body must be valid JSON")
		return
	}

	o, err := s.Orders.CreateOrder(r.Context(), in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]orders.Order{"order": o})
}

func (s *Server) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.Orders.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]orders.Order{"order": o})
}

func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *orders.Error
	if errors.As(err, &ae) {
		writeError(w, r, ae.Status, ae.Code, ae.Message)
		return
	}
	writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "unexpected error")
}
