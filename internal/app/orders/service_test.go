package orders

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestService_CreateOrder(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0).UTC()
	svc := NewService(fixedClock{t: now})

	o, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		CustomerID:  "c-1",
		AmountCents: 4200,
		Currency:    "usd",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if o.ID == "" || o.Currency != "USD" || !o.CreatedAt.Equal(now) {
		t.Fatalf("unexpected order: %+v", o)
	}

	got, err := svc.GetOrder(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got != o {
		t.Fatalf("GetOrder=%+v, want %+v", got, o)
	}
	if svc.Count() != 1 {
		t.Fatalf("Count=%d", svc.Count())
	}
}

func TestService_CreateOrderValidation(t *testing.T) {
	t.Parallel()

	svc := NewService(fixedClock{t: time.Unix(0, 0).UTC()})

	cases := []CreateOrderInput{
		{CustomerID: "", AmountCents: 100},
		{CustomerID: "c-1", AmountCents: 0},
		{CustomerID: "c-1", AmountCents: -5},
	}
	for _, in := range cases {
		_, err := svc.CreateOrder(context.Background(), in)
		ae := (*Error)(nil)
		if !errors.As(err, &ae) || ae.Status != http.StatusUnprocessableEntity {
			t.Fatalf("CreateOrder(%+v) err=%v, want 422 app error", in, err)
		}
	}
}

func TestService_GetOrderNotFound(t *testing.T) {
	t.Parallel()

	svc := NewService(fixedClock{t: time.Unix(0, 0).UTC()})
	_, err := svc.GetOrder(context.Background(), "missing")
	ae := (*Error)(nil)
	if !errors.As(err, &ae) || ae.Status != http.StatusNotFound {
		t.Fatalf("GetOrder err=%v, want 404 app error", err)
	}
}
