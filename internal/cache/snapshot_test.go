package cache

import (
	"math/big"
	"strings"
	"testing"

	"github.com/perplexfi/perplex-go/internal/domain"
)

func TestSnapshotRoundTrip(t *testing.T) {
	c := New()
	base, quote := testTokens(t)
	c.PutTokens([]domain.Token{base, quote})
	c.PutPools([]domain.Pool{testPool(t)})
	c.PutPerpMarkets([]domain.PerpMarket{testPerpMarket(t)})

	data, err := EncodeSnapshot(c.Snapshot())
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}

	snap, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	restored, err := FromSnapshot(snap)
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}

	tok, ok := restored.TokenByTicker("wAR")
	if !ok || tok.ID != testBaseID || tok.Denomination != 12 {
		t.Errorf("restored token = %+v, %v", tok, ok)
	}
	pool, ok := restored.PoolByPair("wAR/qUSD")
	if !ok || pool.FeeRate != 0.0025 {
		t.Errorf("restored pool = %+v, %v", pool, ok)
	}
	m, ok := restored.PerpMarket(testMarketID)
	if !ok {
		t.Fatal("restored cache missing perp market")
	}
	if m.MinPriceTickSize.Int64() != 500_000 || m.MinQuantityTickSize.Int64() != 10_000 {
		t.Errorf("restored market ticks = %s / %s", m.MinPriceTickSize, m.MinQuantityTickSize)
	}
	if m.OraclePrice == nil || m.OraclePrice.Int64() != 65_000_000_000 {
		t.Errorf("restored oracle price = %v", m.OraclePrice)
	}
}

func TestSnapshotExcludesLiveState(t *testing.T) {
	c := New()
	c.PutTokens([]domain.Token{mustToken(t)})
	c.SetBalance(testBaseID, big.NewInt(12_345))
	c.SetReserves(testPoolID, big.NewInt(1), big.NewInt(2))

	restored, err := FromSnapshot(c.Snapshot())
	if err != nil {
		t.Fatalf("FromSnapshot: %v", err)
	}
	if _, ok := restored.Balance(testBaseID); ok {
		t.Error("balances must not survive a snapshot")
	}
	if _, ok := restored.Reserves(testPoolID); ok {
		t.Error("reserves must not survive a snapshot")
	}
}

func TestFromSnapshotRevalidates(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
	}{
		{
			name: "bad token id",
			snap: Snapshot{Tokens: []domain.Token{{ID: "short", Ticker: "X", Denomination: 6}}},
		},
		{
			name: "negative denomination",
			snap: Snapshot{Tokens: []domain.Token{{ID: testBaseID, Ticker: "X", Denomination: -1}}},
		},
		{
			name: "bad market tick",
			snap: Snapshot{PerpMarkets: []perpMarketRecord{{
				ID:                  testMarketID,
				AccountID:           strings.Repeat("N", 43),
				BaseTicker:          "BTC",
				BaseDenomination:    8,
				QuoteDenomination:   6,
				MinPriceTickSize:    "not-a-number",
				MinQuantityTickSize: "1",
			}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromSnapshot(tt.snap); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDecodeSnapshotRejectsGarbage(t *testing.T) {
	if _, err := DecodeSnapshot([]byte("{not json")); err == nil {
		t.Error("expected decode error")
	}
}

func mustToken(t *testing.T) domain.Token {
	t.Helper()
	tok, err := domain.NewToken(testBaseID, "Wrapped AR", "wAR", 12, "")
	if err != nil {
		t.Fatal(err)
	}
	return tok
}
