package cache

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/perplexfi/perplex-go/internal/domain"
)

// Snapshot is the cold-cache serialization of the directory state. Balances
// and reserves are deliberately excluded: they are live data and always
// re-fetched. Each array is optional on load; a missing array means empty.
type Snapshot struct {
	Tokens      []domain.Token     `json:"tokens,omitempty"`
	Pools       []domain.Pool      `json:"pools,omitempty"`
	PerpMarkets []perpMarketRecord `json:"perpMarkets,omitempty"`
}

// perpMarketRecord is the JSON form of a PerpMarket, big integers as
// strings.
type perpMarketRecord struct {
	ID                  string `json:"id"`
	AccountID           string `json:"accountId"`
	BaseTicker          string `json:"baseTicker"`
	BaseDenomination    int    `json:"baseDenomination"`
	QuoteDenomination   int    `json:"quoteDenomination"`
	MinPriceTickSize    string `json:"minPriceTickSize"`
	MinQuantityTickSize string `json:"minQuantityTickSize"`
	OraclePrice         string `json:"oraclePrice,omitempty"`
}

func marketRecord(m domain.PerpMarket) perpMarketRecord {
	r := perpMarketRecord{
		ID:                  m.ID,
		AccountID:           m.AccountID,
		BaseTicker:          m.BaseTicker,
		BaseDenomination:    m.BaseDenomination,
		QuoteDenomination:   m.QuoteDenomination,
		MinPriceTickSize:    m.MinPriceTickSize.String(),
		MinQuantityTickSize: m.MinQuantityTickSize.String(),
	}
	if m.OraclePrice != nil {
		r.OraclePrice = m.OraclePrice.String()
	}
	return r
}

func (r perpMarketRecord) market() (domain.PerpMarket, error) {
	priceTick, ok := new(big.Int).SetString(r.MinPriceTickSize, 10)
	if !ok {
		return domain.PerpMarket{}, fmt.Errorf("invalid minPriceTickSize %q", r.MinPriceTickSize)
	}
	qtyTick, ok := new(big.Int).SetString(r.MinQuantityTickSize, 10)
	if !ok {
		return domain.PerpMarket{}, fmt.Errorf("invalid minQuantityTickSize %q", r.MinQuantityTickSize)
	}
	var oracle *big.Int
	if r.OraclePrice != "" {
		oracle, ok = new(big.Int).SetString(r.OraclePrice, 10)
		if !ok {
			return domain.PerpMarket{}, fmt.Errorf("invalid oraclePrice %q", r.OraclePrice)
		}
	}
	return domain.NewPerpMarket(
		r.ID, r.AccountID, r.BaseTicker,
		r.BaseDenomination, r.QuoteDenomination,
		priceTick, qtyTick, oracle,
	)
}

// Snapshot captures the current directory state for cold serialization.
func (c *Cache) Snapshot() Snapshot {
	snap := Snapshot{
		Tokens: c.Tokens(),
		Pools:  c.Pools(),
	}
	for _, m := range c.PerpMarkets() {
		snap.PerpMarkets = append(snap.PerpMarkets, marketRecord(m))
	}
	return snap
}

// FromSnapshot builds a cache seeded with a previously serialized snapshot.
// Every record is re-validated through the domain constructors, since the
// snapshot crosses a trust boundary.
func FromSnapshot(snap Snapshot) (*Cache, error) {
	c := New()

	for _, t := range snap.Tokens {
		token, err := domain.NewToken(t.ID, t.Name, t.Ticker, t.Denomination, t.Logo)
		if err != nil {
			return nil, fmt.Errorf("cache: snapshot token %s: %w", t.ID, err)
		}
		c.PutTokens([]domain.Token{token})
	}
	for _, p := range snap.Pools {
		pool, err := domain.NewPool(p.ID, p.TokenBase, p.TokenQuote, p.FeeRate)
		if err != nil {
			return nil, fmt.Errorf("cache: snapshot pool %s: %w", p.ID, err)
		}
		c.PutPools([]domain.Pool{pool})
	}
	for _, r := range snap.PerpMarkets {
		market, err := r.market()
		if err != nil {
			return nil, fmt.Errorf("cache: snapshot market %s: %w", r.ID, err)
		}
		c.PutPerpMarkets([]domain.PerpMarket{market})
	}
	return c, nil
}

// DecodeSnapshot parses serialized cold-cache JSON.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("cache: decode snapshot: %w", err)
	}
	return snap, nil
}

// EncodeSnapshot serializes a snapshot to JSON.
func EncodeSnapshot(snap Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("cache: encode snapshot: %w", err)
	}
	return data, nil
}
