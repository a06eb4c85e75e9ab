package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/perplexfi/perplex-go/internal/domain"
)

// summaryPayload is the clearing account's Account-Summary reply. Map fields
// are raw because empty Lua tables serialize as [] rather than {}.
type summaryPayload struct {
	Collaterals   json.RawMessage      `json:"collaterals"`
	Positions     json.RawMessage      `json:"positions"`
	Orders        json.RawMessage      `json:"orders"`
	MarginDetails marginDetailsPayload `json:"marginDetails"`
}

type marginDetailsPayload struct {
	TotalMargin               string `json:"totalMargin"`
	MarginBeforeLiquidation   string `json:"marginBeforeLiquidation"`
	MarginAvailableForOrders  string `json:"marginAvailableForOrders"`
	RequiredInitialMargin     string `json:"requiredInitialMargin"`
	RequiredMaintenanceMargin string `json:"requiredMaintenanceMargin"`
	UnrealizedPnL             string `json:"unrealizedPnL"`
}

type positionPayload struct {
	Size       string `json:"size"`
	FundingQty string `json:"fundingQty"`
	EntryPrice string `json:"entryPrice"`
}

type orderPayload struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Side        string `json:"side"`
	Status      string `json:"status"`
	OriginalQty string `json:"originalQty"`
	ExecutedQty string `json:"executedQty"`
	ExecutedVal string `json:"executedValue"`
	Price       string `json:"price"`
}

// decodeRecord unmarshals an object field, tolerating [] for an empty map.
func decodeRecord(raw json.RawMessage, out any) error {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("[]")) {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// AccountSummary fetches the wallet's state on the market's clearing
// account: collateral balances, open positions, resting orders, and margin
// details. Summaries are cached per account/wallet pair for the summary TTL.
func (c *Client) AccountSummary(ctx context.Context, market domain.PerpMarket, wallet string) (domain.AccountSummary, error) {
	key := market.AccountID + "/" + wallet

	c.summaryMu.RLock()
	entry, ok := c.summaries[key]
	c.summaryMu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < c.cfg.SummaryTTL {
		return entry.summary, nil
	}

	tags := domain.Tags{
		{Name: "Action", Value: "Account-Summary"},
		{Name: "Target", Value: wallet},
	}
	msgs, err := c.messenger.Dryrun(ctx, market.AccountID, tags, nil)
	if err != nil {
		return domain.AccountSummary{}, fmt.Errorf("client: account summary of %s: %w", wallet, err)
	}
	if len(msgs) == 0 || msgs[0].Data == "" {
		return domain.AccountSummary{}, fmt.Errorf("client: account summary of %s: %w", wallet, domain.ErrUpstreamUnavailable)
	}

	var payload summaryPayload
	if err := json.Unmarshal([]byte(msgs[0].Data), &payload); err != nil {
		return domain.AccountSummary{}, fmt.Errorf("client: decode account summary of %s: %w", wallet, err)
	}

	summary, err := c.buildSummary(market, payload)
	if err != nil {
		return domain.AccountSummary{}, fmt.Errorf("client: account summary of %s: %w", wallet, err)
	}

	c.summaryMu.Lock()
	c.summaries[key] = summaryEntry{fetchedAt: time.Now(), summary: summary}
	c.summaryMu.Unlock()

	return summary, nil
}

func (c *Client) buildSummary(market domain.PerpMarket, payload summaryPayload) (domain.AccountSummary, error) {
	settlement := market.QuoteToken()

	var rawCollaterals map[string]string
	if err := decodeRecord(payload.Collaterals, &rawCollaterals); err != nil {
		return domain.AccountSummary{}, fmt.Errorf("decode collaterals: %w", err)
	}
	collaterals := make(map[string]domain.TokenQuantity, len(rawCollaterals))
	for tokenID, raw := range rawCollaterals {
		quantity, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return domain.AccountSummary{}, fmt.Errorf("malformed collateral amount %q for token %s", raw, tokenID)
		}
		// Collateral on a token the directory does not know is still
		// reported, under a placeholder descriptor.
		token, ok := c.cache.Token(tokenID)
		if !ok {
			token = domain.Token{ID: tokenID, Name: "_UNKNOWN_TOKEN_", Ticker: "???", Denomination: 0}
		}
		collaterals[tokenID] = domain.TokenQuantity{Token: token, Quantity: quantity}
	}

	var rawPositions map[string]positionPayload
	if err := decodeRecord(payload.Positions, &rawPositions); err != nil {
		return domain.AccountSummary{}, fmt.Errorf("decode positions: %w", err)
	}
	positions := make(map[string]domain.PerpPosition, len(rawPositions))
	for marketID, pos := range rawPositions {
		m, ok := c.cache.PerpMarket(marketID)
		if !ok {
			return domain.AccountSummary{}, fmt.Errorf("position on unknown market %s: %w", marketID, domain.ErrNotFound)
		}
		position, err := buildPosition(m, pos)
		if err != nil {
			return domain.AccountSummary{}, fmt.Errorf("position on market %s: %w", marketID, err)
		}
		positions[marketID] = position
	}

	var rawOrders map[string]json.RawMessage
	if err := decodeRecord(payload.Orders, &rawOrders); err != nil {
		return domain.AccountSummary{}, fmt.Errorf("decode orders: %w", err)
	}
	orders := make(map[string]map[string]domain.PerpOrder, len(rawOrders))
	for marketID, rawMarketOrders := range rawOrders {
		m, ok := c.cache.PerpMarket(marketID)
		if !ok {
			return domain.AccountSummary{}, fmt.Errorf("order on unknown market %s: %w", marketID, domain.ErrNotFound)
		}
		var byID map[string]orderPayload
		if err := decodeRecord(rawMarketOrders, &byID); err != nil {
			return domain.AccountSummary{}, fmt.Errorf("decode orders on market %s: %w", marketID, err)
		}
		marketOrders := make(map[string]domain.PerpOrder, len(byID))
		for orderID, raw := range byID {
			order, err := buildOrder(m, raw)
			if err != nil {
				return domain.AccountSummary{}, fmt.Errorf("order %s on market %s: %w", orderID, marketID, err)
			}
			marketOrders[orderID] = order
		}
		orders[marketID] = marketOrders
	}

	margin, err := buildMargin(settlement, payload.MarginDetails)
	if err != nil {
		return domain.AccountSummary{}, err
	}

	return domain.AccountSummary{
		Collaterals: collaterals,
		Positions:   positions,
		Orders:      orders,
		Margin:      margin,
	}, nil
}

func buildPosition(market domain.PerpMarket, payload positionPayload) (domain.PerpPosition, error) {
	size, ok := new(big.Int).SetString(payload.Size, 10)
	if !ok {
		return domain.PerpPosition{}, fmt.Errorf("malformed size %q", payload.Size)
	}
	funding, ok := new(big.Int).SetString(payload.FundingQty, 10)
	if !ok {
		return domain.PerpPosition{}, fmt.Errorf("malformed fundingQty %q", payload.FundingQty)
	}
	entryPrice, ok := new(big.Int).SetString(payload.EntryPrice, 10)
	if !ok {
		return domain.PerpPosition{}, fmt.Errorf("malformed entryPrice %q", payload.EntryPrice)
	}
	return domain.PerpPosition{
		Market:          market,
		EntryPrice:      entryPrice,
		Size:            domain.TokenQuantity{Token: market.BaseToken(), Quantity: size},
		FundingQuantity: domain.TokenQuantity{Token: market.QuoteToken(), Quantity: funding},
	}, nil
}

func buildOrder(market domain.PerpMarket, payload orderPayload) (domain.PerpOrder, error) {
	typ := domain.OrderType(payload.Type)
	if !typ.Valid() {
		return domain.PerpOrder{}, fmt.Errorf("unknown order type %q", payload.Type)
	}
	side := domain.OrderSide(payload.Side)
	if !side.Valid() {
		return domain.PerpOrder{}, fmt.Errorf("unknown order side %q", payload.Side)
	}
	status := domain.OrderStatus(payload.Status)
	if !status.Valid() {
		return domain.PerpOrder{}, fmt.Errorf("unknown order status %q", payload.Status)
	}

	base := market.BaseToken()
	original, ok := new(big.Int).SetString(payload.OriginalQty, 10)
	if !ok {
		return domain.PerpOrder{}, fmt.Errorf("malformed originalQty %q", payload.OriginalQty)
	}
	executed, ok := new(big.Int).SetString(payload.ExecutedQty, 10)
	if !ok {
		return domain.PerpOrder{}, fmt.Errorf("malformed executedQty %q", payload.ExecutedQty)
	}

	order := domain.PerpOrder{
		ID:               payload.ID,
		Type:             typ,
		Side:             side,
		Status:           status,
		OriginalQuantity: domain.TokenQuantity{Token: base, Quantity: original},
		ExecutedQuantity: domain.TokenQuantity{Token: base, Quantity: executed},
		ExecutedValue:    big.NewInt(0),
	}
	if payload.ExecutedVal != "" {
		value, ok := new(big.Int).SetString(payload.ExecutedVal, 10)
		if !ok {
			return domain.PerpOrder{}, fmt.Errorf("malformed executedValue %q", payload.ExecutedVal)
		}
		order.ExecutedValue = value
	}
	if payload.Price != "" {
		price, ok := new(big.Int).SetString(payload.Price, 10)
		if !ok {
			return domain.PerpOrder{}, fmt.Errorf("malformed price %q", payload.Price)
		}
		order.InitialPrice = price
	}
	return order, nil
}

func buildMargin(settlement domain.Token, payload marginDetailsPayload) (domain.MarginDetails, error) {
	parse := func(field, raw string) (domain.TokenQuantity, error) {
		v, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return domain.TokenQuantity{}, fmt.Errorf("malformed %s %q", field, raw)
		}
		return domain.TokenQuantity{Token: settlement, Quantity: v}, nil
	}

	total, err := parse("totalMargin", payload.TotalMargin)
	if err != nil {
		return domain.MarginDetails{}, err
	}
	beforeLiq, err := parse("marginBeforeLiquidation", payload.MarginBeforeLiquidation)
	if err != nil {
		return domain.MarginDetails{}, err
	}
	available, err := parse("marginAvailableForOrders", payload.MarginAvailableForOrders)
	if err != nil {
		return domain.MarginDetails{}, err
	}
	initial, err := parse("requiredInitialMargin", payload.RequiredInitialMargin)
	if err != nil {
		return domain.MarginDetails{}, err
	}
	maintenance, err := parse("requiredMaintenanceMargin", payload.RequiredMaintenanceMargin)
	if err != nil {
		return domain.MarginDetails{}, err
	}
	pnl, err := parse("unrealizedPnL", payload.UnrealizedPnL)
	if err != nil {
		return domain.MarginDetails{}, err
	}

	return domain.MarginDetails{
		TotalMargin:               total,
		MarginBeforeLiquidation:   beforeLiq,
		MarginAvailableForOrders:  available,
		RequiredInitialMargin:     initial,
		RequiredMaintenanceMargin: maintenance,
		UnrealizedPnL:             pnl,
	}, nil
}
