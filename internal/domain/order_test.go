package domain

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{"pending to processing", OrderStatusPending, OrderStatusProcessing, true},
		{"pending to cancelled", OrderStatusPending, OrderStatusCancelled, true},
		{"pending to refunded", OrderStatusPending, OrderStatusRefunded, true},
		{"pending to shipped skips processing", OrderStatusPending, OrderStatusShipped, false},
		{"pending to delivered skips everything", OrderStatusPending, OrderStatusDelivered, false},
		{"processing to shipped", OrderStatusProcessing, OrderStatusShipped, true},
		{"processing to cancelled", OrderStatusProcessing, OrderStatusCancelled, true},
		{"processing to refunded", OrderStatusProcessing, OrderStatusRefunded, true},
		{"processing back to pending", OrderStatusProcessing, OrderStatusPending, false},
		{"shipped to delivered", OrderStatusShipped, OrderStatusDelivered, true},
		{"shipped cannot be cancelled", OrderStatusShipped, OrderStatusCancelled, false},
		{"shipped cannot be refunded", OrderStatusShipped, OrderStatusRefunded, false},
		{"delivered is terminal", OrderStatusDelivered, OrderStatusRefunded, false},
		{"cancelled is terminal", OrderStatusCancelled, OrderStatusPending, false},
		{"refunded is terminal", OrderStatusRefunded, OrderStatusProcessing, false},
		{"no self transition", OrderStatusPending, OrderStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.allowed {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestValidOrderStatus(t *testing.T) {
	for _, s := range []OrderStatus{
		OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded,
	} {
		if !ValidOrderStatus(s) {
			t.Errorf("ValidOrderStatus(%s) = false, want true", s)
		}
	}
	if ValidOrderStatus("returned") {
		t.Error("ValidOrderStatus accepted an unknown status")
	}
}

func TestRestoresStock(t *testing.T) {
	if !RestoresStock(OrderStatusCancelled) || !RestoresStock(OrderStatusRefunded) {
		t.Error("cancelled and refunded must restore stock")
	}
	for _, s := range []OrderStatus{OrderStatusPending, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered} {
		if RestoresStock(s) {
			t.Errorf("RestoresStock(%s) = true, want false", s)
		}
	}
}

func TestProperty_TerminalStatesHaveNoExits(t *testing.T) {
	properties := gopter.NewProperties(nil)

	allStatuses := []OrderStatus{
		OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded,
	}

	properties.Property("no transition leaves delivered, cancelled or refunded", prop.ForAll(
		func(fromIdx, toIdx int) bool {
			from := allStatuses[fromIdx%len(allStatuses)]
			to := allStatuses[toIdx%len(allStatuses)]

			if from == OrderStatusDelivered || from == OrderStatusCancelled || from == OrderStatusRefunded {
				return !CanTransition(from, to)
			}
			return true
		},
		gen.IntRange(0, len(allStatuses)-1),
		gen.IntRange(0, len(allStatuses)-1),
	))

	properties.Property("every allowed transition targets a valid status", prop.ForAll(
		func(fromIdx, toIdx int) bool {
			from := allStatuses[fromIdx%len(allStatuses)]
			to := allStatuses[toIdx%len(allStatuses)]
			if CanTransition(from, to) {
				return ValidOrderStatus(to) && from != to
			}
			return true
		},
		gen.IntRange(0, len(allStatuses)-1),
		gen.IntRange(0, len(allStatuses)-1),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
