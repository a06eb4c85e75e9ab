package client

import (
	"context"
	"fmt"

	"github.com/perplexfi/perplex-go/internal/domain"
)

// OrderBook fetches the current depth of a perp market from the metadata
// API. Depth is a point-in-time read and is never cached.
func (c *Client) OrderBook(ctx context.Context, market domain.PerpMarket) (domain.OrderBook, error) {
	book, err := c.api.MarketDepth(ctx, market.ID)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("client: order book of %s: %w", market.ID, err)
	}
	return book, nil
}

// FundingRate fetches the latest funding rate of a perp market as the
// API-reported decimal string.
func (c *Client) FundingRate(ctx context.Context, market domain.PerpMarket) (string, error) {
	rate, err := c.api.LatestFundingRate(ctx, market.ID)
	if err != nil {
		return "", fmt.Errorf("client: funding rate of %s: %w", market.ID, err)
	}
	return rate, nil
}

// OpenPositions fetches the wallet's open positions across all markets and
// joins them against the market directory. A position on a market the
// directory does not know is an inconsistency between the API and the
// session cache and fails the whole read.
func (c *Client) OpenPositions(ctx context.Context, wallet string) ([]domain.PerpPosition, error) {
	raw, err := c.api.Positions(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("client: positions of %s: %w", wallet, err)
	}

	positions := make([]domain.PerpPosition, 0, len(raw))
	for _, pos := range raw {
		market, ok := c.cache.PerpMarket(pos.MarketID)
		if !ok {
			return nil, fmt.Errorf("client: position on unknown market %s: %w", pos.MarketID, domain.ErrNotFound)
		}
		base := market.BaseToken()
		quote := market.QuoteToken()
		positions = append(positions, domain.PerpPosition{
			Market:          market,
			EntryPrice:      pos.EntryPrice,
			Size:            domain.TokenQuantity{Token: base, Quantity: pos.Size},
			FundingQuantity: domain.TokenQuantity{Token: quote, Quantity: pos.FundingQuantity},
		})
	}
	return positions, nil
}
