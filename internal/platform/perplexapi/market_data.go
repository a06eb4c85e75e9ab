package perplexapi

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/perplexfi/perplex-go/internal/domain"
)

const marketDepthQuery = `
	query marketDepth($marketId: ID!) {
		marketDepth(marketId: $marketId) {
			asks { price size }
			bids { price size }
		}
	}
`

// levelPayload is one depth level as returned by the API, integer strings.
type levelPayload struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

func (p levelPayload) level() (domain.PriceLevel, error) {
	price, ok := new(big.Int).SetString(p.Price, 10)
	if !ok {
		return domain.PriceLevel{}, fmt.Errorf("invalid price %q", p.Price)
	}
	size, ok := new(big.Int).SetString(p.Size, 10)
	if !ok {
		return domain.PriceLevel{}, fmt.Errorf("invalid size %q", p.Size)
	}
	return domain.PriceLevel{Price: price, Size: size}, nil
}

// MarketDepth fetches the order-book depth snapshot for a perp market.
func (c *Client) MarketDepth(ctx context.Context, marketID string) (domain.OrderBook, error) {
	raw, err := c.gql.ExecRaw(ctx, marketDepthQuery, map[string]any{"marketId": marketID})
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("perplexapi: fetch market depth: %w", err)
	}

	var result struct {
		MarketDepth struct {
			Asks []levelPayload `json:"asks"`
			Bids []levelPayload `json:"bids"`
		} `json:"marketDepth"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.OrderBook{}, fmt.Errorf("perplexapi: decode market depth: %w", err)
	}

	var book domain.OrderBook
	for _, p := range result.MarketDepth.Asks {
		lvl, err := p.level()
		if err != nil {
			return domain.OrderBook{}, fmt.Errorf("perplexapi: market depth ask: %w", err)
		}
		book.Asks = append(book.Asks, lvl)
	}
	for _, p := range result.MarketDepth.Bids {
		lvl, err := p.level()
		if err != nil {
			return domain.OrderBook{}, fmt.Errorf("perplexapi: market depth bid: %w", err)
		}
		book.Bids = append(book.Bids, lvl)
	}
	return book, nil
}

const latestFundingRateQuery = `
	query latestFundingRate($marketId: ID!) {
		latestFundingRate(marketId: $marketId)
	}
`

// LatestFundingRate fetches the most recent funding rate of a perp market.
// It returns domain.ErrNotFound when no funding round has settled yet.
func (c *Client) LatestFundingRate(ctx context.Context, marketID string) (string, error) {
	raw, err := c.gql.ExecRaw(ctx, latestFundingRateQuery, map[string]any{"marketId": marketID})
	if err != nil {
		return "", fmt.Errorf("perplexapi: fetch funding rate: %w", err)
	}

	var result struct {
		LatestFundingRate *string `json:"latestFundingRate"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("perplexapi: decode funding rate: %w", err)
	}
	if result.LatestFundingRate == nil {
		return "", domain.ErrNotFound
	}
	return *result.LatestFundingRate, nil
}

const positionsQuery = `
	query positions($wallet: String!) {
		positions(wallet: $wallet, limit: 100) {
			size
			fundingQuantity
			entryPrice
			market { id }
		}
	}
`

// RawPosition is a position record before market resolution; the facade
// joins it with its cached PerpMarket.
type RawPosition struct {
	MarketID        string
	Size            *big.Int
	FundingQuantity *big.Int
	EntryPrice      *big.Int
}

// Positions fetches the open positions of a wallet.
func (c *Client) Positions(ctx context.Context, wallet string) ([]RawPosition, error) {
	raw, err := c.gql.ExecRaw(ctx, positionsQuery, map[string]any{"wallet": wallet})
	if err != nil {
		return nil, fmt.Errorf("perplexapi: fetch positions: %w", err)
	}

	var result struct {
		Positions []struct {
			Size            string `json:"size"`
			FundingQuantity string `json:"fundingQuantity"`
			EntryPrice      string `json:"entryPrice"`
			Market          struct {
				ID string `json:"id"`
			} `json:"market"`
		} `json:"positions"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("perplexapi: decode positions: %w", err)
	}

	positions := make([]RawPosition, 0, len(result.Positions))
	for _, p := range result.Positions {
		size, ok := new(big.Int).SetString(p.Size, 10)
		if !ok {
			return nil, fmt.Errorf("perplexapi: position on %s: invalid size %q", p.Market.ID, p.Size)
		}
		funding, ok := new(big.Int).SetString(p.FundingQuantity, 10)
		if !ok {
			return nil, fmt.Errorf("perplexapi: position on %s: invalid funding quantity %q", p.Market.ID, p.FundingQuantity)
		}
		entry, ok := new(big.Int).SetString(p.EntryPrice, 10)
		if !ok {
			return nil, fmt.Errorf("perplexapi: position on %s: invalid entry price %q", p.Market.ID, p.EntryPrice)
		}
		positions = append(positions, RawPosition{
			MarketID:        p.Market.ID,
			Size:            size,
			FundingQuantity: funding,
			EntryPrice:      entry,
		})
	}
	return positions, nil
}
