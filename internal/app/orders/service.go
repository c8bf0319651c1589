package orders

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	clockport "github.com/harborline/idemgate/internal/ports/out/clock"
)

// Order is the demo resource the idempotency filter protects: creating one is
// a write a client must be able to retry safely.
type Order struct {
	ID          string    `json:"orderId"`
	CustomerID  string    `json:"customerId"`
	AmountCents int64     `json:"amountCents"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"createdAt"`
}

type CreateOrderInput struct {
	CustomerID  string `json:"customerId"`
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency"`
}

// Service holds orders in memory. It exists to give the filter a real
// downstream side effect; persistence is not the point of this repo.
type Service struct {
	clk        clockport.Clock
	newOrderID func() string

	mu     sync.Mutex
	orders map[string]Order
}

func NewService(clk clockport.Clock) *Service {
	return &Service{
		clk:        clk,
		newOrderID: uuid.NewString,
		orders:     make(map[string]Order),
	}
}

func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (Order, error) {
	_ = ctx
	if strings.TrimSpace(in.CustomerID) == "" {
		return Order{}, &Error{Status: http.StatusUnprocessableEntity, Code: "VALIDATION_ERROR", Message: "customerId is required"}
	}
	if in.AmountCents <= 0 {
		return Order{}, &Error{Status: http.StatusUnprocessableEntity, Code: "VALIDATION_ERROR", Message: "amountCents must be positive"}
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "USD"
	}

	o := Order{
		ID:          s.newOrderID(),
		CustomerID:  in.CustomerID,
		AmountCents: in.AmountCents,
		Currency:    currency,
		CreatedAt:   s.clk.Now(),
	}

	s.mu.Lock()
	s.orders[o.ID] = o
	s.mu.Unlock()
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (Order, error) {
	_ = ctx
	s.mu.Lock()
	o, ok := s.orders[id]
	s.mu.Unlock()
	if !ok {
		return Order{}, &Error{Status: http.StatusNotFound, Code: "ORDER_NOT_FOUND", Message: "no order with this id"}
	}
	return o, nil
}

// Count reports how many orders exist. Tests use it to prove a replayed
// duplicate did not create a second order.
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}
