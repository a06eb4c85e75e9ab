package domain

import (
	"errors"
	"math/big"
	"testing"
)

func testMarket(t *testing.T) PerpMarket {
	t.Helper()
	m, err := NewPerpMarket(
		testTokenID, testToken2ID, "BTC",
		8, 6,
		big.NewInt(500_000), // price tick: 0.5 quote
		big.NewInt(10_000),  // size tick: 0.0001 base
		big.NewInt(65_000_000_000),
	)
	if err != nil {
		t.Fatalf("NewPerpMarket failed: %v", err)
	}
	return m
}

func TestNewPerpMarketValidation(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		accountID string
		priceTick *big.Int
		qtyTick   *big.Int
	}{
		{"bad market id", "nope", testToken2ID, big.NewInt(1), big.NewInt(1)},
		{"bad account id", testTokenID, "nope", big.NewInt(1), big.NewInt(1)},
		{"zero price tick", testTokenID, testToken2ID, big.NewInt(0), big.NewInt(1)},
		{"nil quantity tick", testTokenID, testToken2ID, big.NewInt(1), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPerpMarket(tt.id, tt.accountID, "BTC", 8, 6, tt.priceTick, tt.qtyTick, nil)
			if err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidatePriceTick(t *testing.T) {
	m := testMarket(t)

	if err := m.ValidatePriceTick(big.NewInt(65_000_500_000)); err != nil {
		t.Errorf("aligned price rejected: %v", err)
	}

	err := m.ValidatePriceTick(big.NewInt(65_000_700_000))
	var tickErr *TickSizeError
	if !errors.As(err, &tickErr) {
		t.Fatalf("misaligned price: got %v, want TickSizeError", err)
	}
	if tickErr.Field != "price" {
		t.Errorf("Field = %q, want price", tickErr.Field)
	}
	// 65_000_700_000 rounds to 65_000_500_000, rendered at quote denomination 6.
	if tickErr.Nearest != "65000.5" {
		t.Errorf("Nearest = %q, want 65000.5", tickErr.Nearest)
	}
}

func TestValidateSizeTick(t *testing.T) {
	m := testMarket(t)

	if err := m.ValidateSizeTick(big.NewInt(20_000)); err != nil {
		t.Errorf("aligned size rejected: %v", err)
	}

	err := m.ValidateSizeTick(big.NewInt(26_000))
	var tickErr *TickSizeError
	if !errors.As(err, &tickErr) {
		t.Fatalf("misaligned size: got %v, want TickSizeError", err)
	}
	if tickErr.Field != "size" {
		t.Errorf("Field = %q, want size", tickErr.Field)
	}
	// 26_000 rounds to 30_000; sub-unit values keep the full denomination
	// width, so no trailing zeros are stripped.
	if tickErr.Nearest != "0.00030000" {
		t.Errorf("Nearest = %q, want 0.00030000", tickErr.Nearest)
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   bool
	}{
		{OrderStatusNew, false},
		{OrderStatusPartiallyFilled, false},
		{OrderStatusFilled, true},
		{OrderStatusCanceled, true},
		{OrderStatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
	if OrderStatus("Whatever").Valid() {
		t.Error("unknown status reported valid")
	}
}

func TestMarketReadableConversions(t *testing.T) {
	m := testMarket(t)

	price, err := m.PriceFromReadable("65000.5")
	if err != nil {
		t.Fatalf("PriceFromReadable failed: %v", err)
	}
	if price.Int64() != 65_000_500_000 {
		t.Errorf("PriceFromReadable = %d, want 65000500000", price.Int64())
	}

	size, err := m.SizeFromReadable("0.0002")
	if err != nil {
		t.Fatalf("SizeFromReadable failed: %v", err)
	}
	if size.Int64() != 20_000 {
		t.Errorf("SizeFromReadable = %d, want 20000", size.Int64())
	}
}
