package domain

import "testing"

func TestParseOrderStatus(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  OrderStatus
		ok    bool
	}{
		{name: "exact", input: "Delivering", want: OrderStatusDelivering, ok: true},
		{name: "lower case", input: "paymentsuccess", want: OrderStatusPaymentSuccess, ok: true},
		{name: "upper case with spaces", input: "  CANCELLED ", want: OrderStatusCancelled, ok: true},
		{name: "dead state still parses", input: "dataconfirmed", want: OrderStatusDataConfirmed, ok: true},
		{name: "unknown", input: "scammed", ok: false},
		{name: "blank", input: "   ", ok: false},
		{name: "snake case is not a member name", input: "pending_payment", ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseOrderStatus(tc.input)
			if ok != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, ok)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestReservesStockFrom(t *testing.T) {
	for _, prev := range OrderStatuses() {
		for _, next := range OrderStatuses() {
			want := prev == OrderStatusPaymentSuccess && next == OrderStatusDelivering
			if got := next.ReservesStockFrom(prev); got != want {
				t.Fatalf("%s -> %s: expected %v, got %v", prev, next, want, got)
			}
		}
	}
}

func TestSumLineItems(t *testing.T) {
	items := []OrderItem{
		{ItemID: 1, Quantity: 2, Price: 1000},
		{ItemID: 2, Quantity: 1, Price: 350},
	}
	if got := SumLineItems(items); got != 2350 {
		t.Fatalf("expected 2350, got %d", got)
	}
	if got := SumLineItems(nil); got != 0 {
		t.Fatalf("expected 0 for no lines, got %d", got)
	}
}
