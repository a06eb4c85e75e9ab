// Package perplexapi is the client for the exchange's metadata GraphQL API:
// the token/pool/market directories, order-book depth, funding rates, and
// open positions. Payloads are validated into domain types at this boundary
// so the rest of the SDK can rely on the type system.
package perplexapi

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	graphql "github.com/hasura/go-graphql-client"

	"github.com/perplexfi/perplex-go/internal/domain"
)

// Client queries the exchange metadata API.
type Client struct {
	gql *graphql.Client
}

// NewClient creates a metadata API client for the given GraphQL endpoint.
func NewClient(apiURL string) *Client {
	return &Client{
		gql: graphql.NewClient(apiURL, &http.Client{Timeout: 30 * time.Second}),
	}
}

// tokenPayload is the API's token record shape.
type tokenPayload struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Ticker       string `json:"ticker"`
	Denomination int    `json:"denomination"`
	Logo         string `json:"logo"`
}

func (p tokenPayload) token() (domain.Token, error) {
	return domain.NewToken(p.ID, p.Name, p.Ticker, p.Denomination, p.Logo)
}

const tokensQuery = `
	query tokens {
		tokens {
			id
			name
			ticker
			denomination
			logo
		}
	}
`

// Tokens fetches the full token directory.
func (c *Client) Tokens(ctx context.Context) ([]domain.Token, error) {
	raw, err := c.gql.ExecRaw(ctx, tokensQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("perplexapi: fetch tokens: %w", err)
	}

	var result struct {
		Tokens []tokenPayload `json:"tokens"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("perplexapi: decode tokens: %w", err)
	}

	tokens := make([]domain.Token, 0, len(result.Tokens))
	for _, p := range result.Tokens {
		token, err := p.token()
		if err != nil {
			return nil, fmt.Errorf("perplexapi: token %s: %w", p.ID, err)
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

const poolsQuery = `
	query pools {
		ammPools {
			id
			feeRate
			base { id name ticker denomination logo }
			quote { id name ticker denomination logo }
		}
	}
`

// Pools fetches the AMM pool directory.
func (c *Client) Pools(ctx context.Context) ([]domain.Pool, error) {
	raw, err := c.gql.ExecRaw(ctx, poolsQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("perplexapi: fetch pools: %w", err)
	}

	var result struct {
		AmmPools []struct {
			ID      string       `json:"id"`
			FeeRate json.Number  `json:"feeRate"`
			Base    tokenPayload `json:"base"`
			Quote   tokenPayload `json:"quote"`
		} `json:"ammPools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("perplexapi: decode pools: %w", err)
	}

	pools := make([]domain.Pool, 0, len(result.AmmPools))
	for _, p := range result.AmmPools {
		base, err := p.Base.token()
		if err != nil {
			return nil, fmt.Errorf("perplexapi: pool %s base: %w", p.ID, err)
		}
		quote, err := p.Quote.token()
		if err != nil {
			return nil, fmt.Errorf("perplexapi: pool %s quote: %w", p.ID, err)
		}
		feeRate, err := p.FeeRate.Float64()
		if err != nil {
			return nil, fmt.Errorf("perplexapi: pool %s feeRate: %w", p.ID, err)
		}
		pool, err := domain.NewPool(p.ID, base, quote, feeRate)
		if err != nil {
			return nil, fmt.Errorf("perplexapi: pool %s: %w", p.ID, err)
		}
		pools = append(pools, pool)
	}
	return pools, nil
}

const perpMarketsQuery = `
	query perpMarkets {
		markets(marketType: PERP) {
			... on PerpMarket {
				id
				minPriceTickSize
				minQuantityTickSize
				oraclePrice
				base { ticker denomination }
				quote { id denomination }
			}
		}
	}
`

// PerpMarkets fetches the perp market directory. Tick sizes arrive as
// human-readable decimals and are converted to base units using the
// relevant side's denomination.
func (c *Client) PerpMarkets(ctx context.Context) ([]domain.PerpMarket, error) {
	raw, err := c.gql.ExecRaw(ctx, perpMarketsQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("perplexapi: fetch perp markets: %w", err)
	}

	var result struct {
		Markets []struct {
			ID                  string `json:"id"`
			MinPriceTickSize    string `json:"minPriceTickSize"`
			MinQuantityTickSize string `json:"minQuantityTickSize"`
			OraclePrice         string `json:"oraclePrice"`
			Base                struct {
				Ticker       string `json:"ticker"`
				Denomination int    `json:"denomination"`
			} `json:"base"`
			Quote struct {
				ID           string `json:"id"`
				Denomination int    `json:"denomination"`
			} `json:"quote"`
		} `json:"markets"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("perplexapi: decode perp markets: %w", err)
	}

	markets := make([]domain.PerpMarket, 0, len(result.Markets))
	for _, m := range result.Markets {
		priceTick, err := domain.UnitsFromReadable(m.MinPriceTickSize, m.Quote.Denomination)
		if err != nil {
			return nil, fmt.Errorf("perplexapi: market %s price tick: %w", m.ID, err)
		}
		qtyTick, err := domain.UnitsFromReadable(m.MinQuantityTickSize, m.Base.Denomination)
		if err != nil {
			return nil, fmt.Errorf("perplexapi: market %s quantity tick: %w", m.ID, err)
		}
		oracle, ok := new(big.Int).SetString(m.OraclePrice, 10)
		if !ok {
			return nil, fmt.Errorf("perplexapi: market %s: invalid oracle price %q", m.ID, m.OraclePrice)
		}
		market, err := domain.NewPerpMarket(
			m.ID, m.Quote.ID, m.Base.Ticker,
			m.Base.Denomination, m.Quote.Denomination,
			priceTick, qtyTick, oracle,
		)
		if err != nil {
			return nil, fmt.Errorf("perplexapi: market %s: %w", m.ID, err)
		}
		markets = append(markets, market)
	}
	return markets, nil
}
