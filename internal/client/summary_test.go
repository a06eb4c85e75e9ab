package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/perplexfi/perplex-go/internal/domain"
	"github.com/perplexfi/perplex-go/internal/platform/ao"
)

const fullSummaryJSON = `{
	"collaterals": {
		"%s": "5000000",
		"%s": "777"
	},
	"positions": {
		"%s": {"size": "-20000", "fundingQty": "150", "entryPrice": "64500000000"}
	},
	"orders": {
		"%s": {
			"order-7": {
				"id": "order-7", "type": "Limit", "side": "Buy", "status": "Partially-Filled",
				"originalQty": "20000", "executedQty": "10000",
				"executedValue": "645000000", "price": "64500000000"
			}
		}
	},
	"marginDetails": {
		"totalMargin": "5000000",
		"marginBeforeLiquidation": "4200000",
		"marginAvailableForOrders": "3100000",
		"requiredInitialMargin": "900000",
		"requiredMaintenanceMargin": "450000",
		"unrealizedPnL": "-12000"
	}
}`

func summaryMessenger(data string) *fakeMessenger {
	return &fakeMessenger{dryrunFn: func(process string, tags domain.Tags) ([]ao.ProcessMessage, error) {
		if process != testAccountID || tags.Get("Action") != "Account-Summary" || tags.Get("Target") != testWallet {
			return nil, fmt.Errorf("unexpected dryrun %s %+v", process, tags)
		}
		return []ao.ProcessMessage{{Data: data}}, nil
	}}
}

func TestAccountSummary(t *testing.T) {
	market := testPerpMarket(t)
	_, quote := testTokenPair(t)
	unknownTokenID := strings.Repeat("U", 43)

	data := fmt.Sprintf(fullSummaryJSON, testQuoteID, unknownTokenID, testMarketID, testMarketID)
	msgr := summaryMessenger(data)
	c := newTestClient(t, &fakeGateway{}, msgr)
	c.cache.PutTokens([]domain.Token{quote})
	c.cache.PutPerpMarkets([]domain.PerpMarket{market})

	summary, err := c.AccountSummary(context.Background(), market, testWallet)
	if err != nil {
		t.Fatalf("AccountSummary: %v", err)
	}

	known := summary.Collaterals[testQuoteID]
	if known.Token.Ticker != "wAR" || known.Quantity.Int64() != 5_000_000 {
		t.Errorf("known collateral = %+v", known)
	}
	// Collateral on a token the directory does not know shows up under a
	// placeholder descriptor instead of failing the read.
	unknown := summary.Collaterals[unknownTokenID]
	if unknown.Token.Name != "_UNKNOWN_TOKEN_" || unknown.Token.Ticker != "???" || unknown.Token.Denomination != 0 {
		t.Errorf("unknown collateral token = %+v", unknown.Token)
	}
	if unknown.Quantity.Int64() != 777 {
		t.Errorf("unknown collateral amount = %s", unknown.Quantity)
	}

	pos := summary.Positions[testMarketID]
	if pos.Size.Quantity.Int64() != -20_000 || pos.Size.Token.Ticker != "BTC" {
		t.Errorf("position size = %+v", pos.Size)
	}
	if pos.EntryPrice.Int64() != 64_500_000_000 {
		t.Errorf("entry price = %s", pos.EntryPrice)
	}
	if pos.FundingQuantity.Quantity.Int64() != 150 {
		t.Errorf("funding = %s", pos.FundingQuantity.Quantity)
	}

	order := summary.Orders[testMarketID]["order-7"]
	if order.Status != domain.OrderStatusPartiallyFilled || order.ExecutedQuantity.Quantity.Int64() != 10_000 {
		t.Errorf("order = %+v", order)
	}
	if order.InitialPrice == nil || order.InitialPrice.Int64() != 64_500_000_000 {
		t.Errorf("order price = %v", order.InitialPrice)
	}
	if order.ExecutedValue.Int64() != 645_000_000 {
		t.Errorf("executed value = %s", order.ExecutedValue)
	}

	if summary.Margin.TotalMargin.Quantity.Int64() != 5_000_000 {
		t.Errorf("total margin = %s", summary.Margin.TotalMargin.Quantity)
	}
	if summary.Margin.UnrealizedPnL.Quantity.Int64() != -12_000 {
		t.Errorf("unrealized pnl = %s", summary.Margin.UnrealizedPnL.Quantity)
	}
	if summary.Margin.TotalMargin.Token.Denomination != market.QuoteDenomination {
		t.Errorf("margin denominated at %d", summary.Margin.TotalMargin.Token.Denomination)
	}

	// Within the TTL the cached summary is served without a dryrun.
	if _, err := c.AccountSummary(context.Background(), market, testWallet); err != nil {
		t.Fatal(err)
	}
	if msgr.dryrunCalls != 1 {
		t.Errorf("dryrun called %d times, want 1", msgr.dryrunCalls)
	}
}

func TestAccountSummaryEmptyTables(t *testing.T) {
	// Empty Lua tables serialize as arrays. The decoder must treat [] as an
	// empty map for every record field.
	data := `{
		"collaterals": [],
		"positions": [],
		"orders": [],
		"marginDetails": {
			"totalMargin": "0",
			"marginBeforeLiquidation": "0",
			"marginAvailableForOrders": "0",
			"requiredInitialMargin": "0",
			"requiredMaintenanceMargin": "0",
			"unrealizedPnL": "0"
		}
	}`
	market := testPerpMarket(t)
	c := newTestClient(t, &fakeGateway{}, summaryMessenger(data))
	c.cache.PutPerpMarkets([]domain.PerpMarket{market})

	summary, err := c.AccountSummary(context.Background(), market, testWallet)
	if err != nil {
		t.Fatalf("AccountSummary: %v", err)
	}
	if len(summary.Collaterals) != 0 || len(summary.Positions) != 0 || len(summary.Orders) != 0 {
		t.Errorf("empty summary = %+v", summary)
	}
}

func TestAccountSummaryUnknownMarket(t *testing.T) {
	market := testPerpMarket(t)
	strangeMarket := strings.Repeat("Z", 43)
	data := fmt.Sprintf(`{
		"collaterals": [],
		"positions": {
			"%s": {"size": "1", "fundingQty": "0", "entryPrice": "1"}
		},
		"orders": [],
		"marginDetails": {
			"totalMargin": "0",
			"marginBeforeLiquidation": "0",
			"marginAvailableForOrders": "0",
			"requiredInitialMargin": "0",
			"requiredMaintenanceMargin": "0",
			"unrealizedPnL": "0"
		}
	}`, strangeMarket)

	c := newTestClient(t, &fakeGateway{}, summaryMessenger(data))
	c.cache.PutPerpMarkets([]domain.PerpMarket{market})

	_, err := c.AccountSummary(context.Background(), market, testWallet)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound for a position on an unknown market", err)
	}
}

func TestAccountSummaryMalformed(t *testing.T) {
	market := testPerpMarket(t)

	tests := []struct {
		name string
		data string
	}{
		{"empty reply", ""},
		{"not json", "nil"},
		{"bad margin field", `{
			"collaterals": [], "positions": [], "orders": [],
			"marginDetails": {
				"totalMargin": "abc",
				"marginBeforeLiquidation": "0",
				"marginAvailableForOrders": "0",
				"requiredInitialMargin": "0",
				"requiredMaintenanceMargin": "0",
				"unrealizedPnL": "0"
			}
		}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, &fakeGateway{}, summaryMessenger(tt.data))
			c.cache.PutPerpMarkets([]domain.PerpMarket{market})
			if _, err := c.AccountSummary(context.Background(), market, testWallet); err == nil {
				t.Error("expected error")
			}
		})
	}
}
