package domain

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestClampQuantity(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		stock     int
		want      int
	}{
		{"within bounds", 3, 50, 3},
		{"above per-line ceiling", 15, 50, 10},
		{"exactly at ceiling", 10, 50, 10},
		{"clamped to stock", 8, 4, 4},
		{"stock above ceiling still capped", 100, 100, 10},
		{"zero requested bumps to one", 0, 5, 1},
		{"negative requested bumps to one", -3, 5, 1},
		{"out of stock", 2, 0, 0},
		{"negative stock", 2, -1, 0},
		{"single unit left", 10, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampQuantity(tt.requested, tt.stock); got != tt.want {
				t.Errorf("ClampQuantity(%d, %d) = %d, want %d", tt.requested, tt.stock, got, tt.want)
			}
		})
	}
}

func TestProperty_ClampQuantityBounds(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("result is always within [0, min(10, stock)]", prop.ForAll(
		func(requested, stock int) bool {
			got := ClampQuantity(requested, stock)

			limit := MaxCartQuantity
			if stock < limit {
				limit = stock
			}

			if limit < 1 {
				return got == 0
			}
			return got >= 1 && got <= limit
		},
		gen.IntRange(-100, 1000),
		gen.IntRange(-10, 1000),
	))

	properties.Property("a valid requested quantity is never changed", prop.ForAll(
		func(requested, stock int) bool {
			if requested >= 1 && requested <= MaxCartQuantity && requested <= stock {
				return ClampQuantity(requested, stock) == requested
			}
			return true
		},
		gen.IntRange(1, 20),
		gen.IntRange(1, 40),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
