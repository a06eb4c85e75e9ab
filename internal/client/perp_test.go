package client

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/perplexfi/perplex-go/internal/domain"
	"github.com/perplexfi/perplex-go/internal/platform/ao"
	"github.com/perplexfi/perplex-go/internal/platform/gateway"
)

func limitOrderParams(t *testing.T) PerpOrderParams {
	t.Helper()
	return PerpOrderParams{
		Market: testPerpMarket(t),
		Type:   domain.OrderTypeLimit,
		Side:   domain.OrderSideBuy,
		Size:   big.NewInt(20_000),
		Price:  big.NewInt(64_500_000_000),
	}
}

func TestPlacePerpOrderLimitBooked(t *testing.T) {
	booked := &domain.AoMessage{
		ID:   "update-1",
		From: testMarketID,
		Tags: map[string]string{
			"Action":              "Order-Booked",
			"X-Original-Quantity": "20000",
			"X-Order-Price":       "64500000000",
		},
	}
	gw := &fakeGateway{msgs: []*domain.AoMessage{booked}}
	msgr := &fakeMessenger{submitID: "order-1"}
	journal := &fakeJournal{}

	c := newTestClient(t, gw, msgr).WithJournal(journal)

	order, err := c.PlacePerpOrder(context.Background(), limitOrderParams(t), fakeSigner{})
	if err != nil {
		t.Fatalf("PlacePerpOrder: %v", err)
	}

	if order.ID != "order-1" || order.Status != domain.OrderStatusNew {
		t.Errorf("order = %s status %s", order.ID, order.Status)
	}
	if order.OriginalQuantity.Quantity.Int64() != 20_000 {
		t.Errorf("original quantity = %s", order.OriginalQuantity.Quantity)
	}
	if order.ExecutedQuantity.Quantity.Sign() != 0 {
		t.Errorf("executed quantity = %s, want 0", order.ExecutedQuantity.Quantity)
	}
	if order.InitialPrice == nil || order.InitialPrice.Int64() != 64_500_000_000 {
		t.Errorf("initial price = %v", order.InitialPrice)
	}

	// The order rides a zero-quantity transfer into the clearing account.
	submitted := msgr.submits[0]
	if submitted.process != testAccountID {
		t.Errorf("submitted to %s, want the clearing account", submitted.process)
	}
	for name, want := range map[string]string{
		"Action":       "Transfer",
		"Recipient":    testMarketID,
		"Quantity":     "0",
		"X-Order-Type": "Limit",
		"X-Order-Side": "Buy",
		"X-Order-Size": "20000",
	} {
		if got := submitted.tags.Get(name); got != want {
			t.Errorf("tag %s = %q, want %q", name, got, want)
		}
	}
	if submitted.tags.Has("X-Reduce-Only") {
		t.Error("reduce-only tag present on a regular order")
	}

	if len(journal.orders) != 1 || journal.orders[0].marketID != testMarketID {
		t.Errorf("journal = %+v", journal.orders)
	}
}

func TestPlacePerpOrderMarketWaitsForTerminalStatus(t *testing.T) {
	booked := &domain.AoMessage{
		ID: "update-1", From: testMarketID,
		Tags: map[string]string{"Action": "Order-Booked"},
	}
	filled := &domain.AoMessage{
		ID: "update-2", From: testMarketID,
		Tags: map[string]string{
			"X-Order-Status":      "Filled",
			"X-Original-Quantity": "20000",
			"X-Executed-Quantity": "20000",
			"X-Executed-Value":    "1300000000",
		},
	}
	gw := &fakeGateway{msgs: []*domain.AoMessage{booked, filled}}
	c := newTestClient(t, gw, &fakeMessenger{submitID: "order-1"})

	params := limitOrderParams(t)
	params.Type = domain.OrderTypeMarket
	params.Price = nil

	order, err := c.PlacePerpOrder(context.Background(), params, fakeSigner{})
	if err != nil {
		t.Fatalf("PlacePerpOrder: %v", err)
	}
	if order.Status != domain.OrderStatusFilled {
		t.Errorf("status = %s, want Filled; a booking ack is not definitive for market orders", order.Status)
	}
	if order.ExecutedQuantity.Quantity.Int64() != 20_000 {
		t.Errorf("executed quantity = %s", order.ExecutedQuantity.Quantity)
	}
	if order.ExecutedValue.Int64() != 1_300_000_000 {
		t.Errorf("executed value = %s", order.ExecutedValue)
	}
}

func TestPlacePerpOrderRemoteFailure(t *testing.T) {
	rejected := &domain.AoMessage{
		ID: "update-1", From: testMarketID,
		Tags: map[string]string{
			"X-Order-Status": "Failed",
			"X-Error":        "insufficient margin",
		},
	}
	gw := &fakeGateway{msgs: []*domain.AoMessage{rejected}}
	c := newTestClient(t, gw, &fakeMessenger{submitID: "order-1"})

	_, err := c.PlacePerpOrder(context.Background(), limitOrderParams(t), fakeSigner{})
	var rerr *domain.RemoteFailureError
	if !errors.As(err, &rerr) {
		t.Fatalf("got %v, want RemoteFailureError", err)
	}
	if rerr.Reason != "insufficient margin" {
		t.Errorf("reason = %q", rerr.Reason)
	}
}

func TestPlacePerpOrderFailedStatusWithoutErrorTag(t *testing.T) {
	failed := &domain.AoMessage{
		ID: "update-1", From: testMarketID,
		Tags: map[string]string{"X-Order-Status": "Failed"},
	}
	gw := &fakeGateway{msgs: []*domain.AoMessage{failed}}
	c := newTestClient(t, gw, &fakeMessenger{submitID: "order-1"})

	order, err := c.PlacePerpOrder(context.Background(), limitOrderParams(t), fakeSigner{})
	var rerr *domain.RemoteFailureError
	if !errors.As(err, &rerr) {
		t.Fatalf("got %v, want RemoteFailureError", err)
	}
	if order.Status != domain.OrderStatusFailed {
		t.Errorf("failed order state not returned alongside the error: %+v", order)
	}
}

func TestPlacePerpOrderTimeout(t *testing.T) {
	gw := &fakeGateway{err: gateway.ErrExhausted}
	c := newTestClient(t, gw, &fakeMessenger{submitID: "order-1"})

	_, err := c.PlacePerpOrder(context.Background(), limitOrderParams(t), fakeSigner{})
	var terr *domain.ConfirmationTimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("got %v, want ConfirmationTimeoutError", err)
	}
	if terr.MessageID != "order-1" {
		t.Errorf("timeout message id = %s", terr.MessageID)
	}
}

func TestPerpOrderParamValidation(t *testing.T) {
	market := testPerpMarket(t)

	tests := []struct {
		name   string
		mutate func(*PerpOrderParams)
	}{
		{"unknown type", func(p *PerpOrderParams) { p.Type = "Stop" }},
		{"unknown side", func(p *PerpOrderParams) { p.Side = "Long" }},
		{"nil size", func(p *PerpOrderParams) { p.Size = nil }},
		{"negative size", func(p *PerpOrderParams) { p.Size = big.NewInt(-1) }},
		{"limit without price", func(p *PerpOrderParams) { p.Price = nil }},
		{"market with price", func(p *PerpOrderParams) {
			p.Type = domain.OrderTypeMarket
		}},
	}

	c := newTestClient(t, &fakeGateway{}, &fakeMessenger{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := PerpOrderParams{
				Market: market,
				Type:   domain.OrderTypeLimit,
				Side:   domain.OrderSideBuy,
				Size:   big.NewInt(20_000),
				Price:  big.NewInt(64_500_000_000),
			}
			tt.mutate(&params)
			if _, err := c.PlacePerpOrder(context.Background(), params, fakeSigner{}); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	t.Run("off-tick size", func(t *testing.T) {
		params := limitOrderParams(t)
		params.Size = big.NewInt(26_000)
		_, err := c.PlacePerpOrder(context.Background(), params, fakeSigner{})
		var terr *domain.TickSizeError
		if !errors.As(err, &terr) || terr.Field != "size" {
			t.Errorf("got %v, want size tick error", err)
		}
	})

	t.Run("off-tick price", func(t *testing.T) {
		params := limitOrderParams(t)
		params.Price = big.NewInt(64_500_000_001)
		_, err := c.PlacePerpOrder(context.Background(), params, fakeSigner{})
		var terr *domain.TickSizeError
		if !errors.As(err, &terr) || terr.Field != "price" {
			t.Errorf("got %v, want price tick error", err)
		}
	})
}

func TestCancelPerpOrder(t *testing.T) {
	canceled := &domain.AoMessage{
		ID: "update-1", From: testMarketID,
		Tags: map[string]string{
			"X-Order-Status":      "Canceled",
			"X-Order-Type":        "Limit",
			"X-Order-Side":        "Buy",
			"X-Original-Quantity": "20000",
		},
	}
	gw := &fakeGateway{msgs: []*domain.AoMessage{canceled}}
	msgr := &fakeMessenger{submitID: "cancel-1"}
	c := newTestClient(t, gw, msgr)

	order, err := c.CancelPerpOrder(context.Background(), testPerpMarket(t), "order-7", fakeSigner{})
	if err != nil {
		t.Fatalf("CancelPerpOrder: %v", err)
	}
	if order.ID != "order-7" || order.Status != domain.OrderStatusCanceled {
		t.Errorf("order = %s status %s", order.ID, order.Status)
	}
	if order.Type != domain.OrderTypeLimit || order.Side != domain.OrderSideBuy {
		t.Errorf("order type/side = %s/%s", order.Type, order.Side)
	}

	submitted := msgr.submits[0]
	if submitted.tags.Get("Action") != "Cancel-Order" || submitted.tags.Get("Order-Id") != "order-7" {
		t.Errorf("cancel tags = %+v", submitted.tags)
	}

	if _, err := c.CancelPerpOrder(context.Background(), testPerpMarket(t), "", fakeSigner{}); err == nil {
		t.Error("empty order id accepted")
	}
}

func TestCancelPerpOrderRejected(t *testing.T) {
	rejected := &domain.AoMessage{
		ID: "update-1", From: testMarketID,
		Tags: map[string]string{"X-Error": "order already filled"},
	}
	gw := &fakeGateway{msgs: []*domain.AoMessage{rejected}}
	c := newTestClient(t, gw, &fakeMessenger{submitID: "cancel-1"})

	_, err := c.CancelPerpOrder(context.Background(), testPerpMarket(t), "order-7", fakeSigner{})
	var rerr *domain.RemoteFailureError
	if !errors.As(err, &rerr) {
		t.Fatalf("got %v, want RemoteFailureError", err)
	}
	if rerr.Reason != "order already filled" {
		t.Errorf("reason = %q", rerr.Reason)
	}
}

func TestDepositCollateralConfirmed(t *testing.T) {
	confirmation := &domain.AoMessage{
		ID: "effect-1", From: testAccountID,
		Tags: map[string]string{"Action": "Deposit-Confirmation"},
	}
	gw := &fakeGateway{msgs: []*domain.AoMessage{confirmation}}
	msgr := &fakeMessenger{submitID: "deposit-1"}
	c := newTestClient(t, gw, msgr)

	_, quote := testTokenPair(t)
	deposit, err := c.DepositCollateral(context.Background(), testPerpMarket(t), quote, big.NewInt(1_000_000), fakeSigner{})
	if err != nil {
		t.Fatalf("DepositCollateral: %v", err)
	}
	if deposit.ID != "deposit-1" || deposit.Quantity.Int64() != 1_000_000 {
		t.Errorf("deposit = %+v", deposit)
	}

	submitted := msgr.submits[0]
	if submitted.process != testQuoteID {
		t.Errorf("submitted to %s, want the token process", submitted.process)
	}
	if submitted.tags.Get("Recipient") != testAccountID || submitted.tags.Get("X-Operation-Type") != "Deposit" {
		t.Errorf("deposit tags = %+v", submitted.tags)
	}
}

func TestDepositCollateralShortCircuitsOnErrorResult(t *testing.T) {
	gw := &fakeGateway{}
	msgr := &fakeMessenger{
		submitID: "deposit-1",
		results: []ao.ProcessMessage{{
			Target: testWallet,
			Tags:   domain.Tags{{Name: "Error", Value: "transfer rejected"}},
		}},
	}
	c := newTestClient(t, gw, msgr)

	_, quote := testTokenPair(t)
	_, err := c.DepositCollateral(context.Background(), testPerpMarket(t), quote, big.NewInt(1_000_000), fakeSigner{})
	var rerr *domain.RemoteFailureError
	if !errors.As(err, &rerr) {
		t.Fatalf("got %v, want RemoteFailureError", err)
	}
	if rerr.Reason != "transfer rejected" {
		t.Errorf("reason = %q", rerr.Reason)
	}
	if gw.calls != 0 {
		t.Error("short-circuited deposit must not reach the confirmation poll")
	}
}

func TestDepositCollateralRejectedInEffectStream(t *testing.T) {
	rejection := &domain.AoMessage{
		ID: "effect-1", From: testAccountID,
		Tags: map[string]string{"X-Error": "unsupported collateral token"},
	}
	gw := &fakeGateway{msgs: []*domain.AoMessage{rejection}}
	c := newTestClient(t, gw, &fakeMessenger{submitID: "deposit-1"})

	_, quote := testTokenPair(t)
	_, err := c.DepositCollateral(context.Background(), testPerpMarket(t), quote, big.NewInt(1_000_000), fakeSigner{})
	var rerr *domain.RemoteFailureError
	if !errors.As(err, &rerr) {
		t.Fatalf("got %v, want RemoteFailureError", err)
	}
	if rerr.Reason != "unsupported collateral token" {
		t.Errorf("reason = %q", rerr.Reason)
	}
}
