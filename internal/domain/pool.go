package domain

import (
	"math"
	"math/big"
	"time"
)

// Pool describes an AMM pool process holding a base/quote token pair. The
// pool record carries no reserve amounts; reserves are cached separately and
// stamped with their fetch time.
type Pool struct {
	ID         string  `json:"id"`
	TokenBase  Token   `json:"tokenBase"`
	TokenQuote Token   `json:"tokenQuote"`
	FeeRate    float64 `json:"feeRate"`
}

// NewPool validates the pool fields and returns the value.
func NewPool(id string, base, quote Token, feeRate float64) (Pool, error) {
	if !IsAddress(id) {
		return Pool{}, &ValidationError{Field: "pool.id", Reason: "must be a 43-char base64url address"}
	}
	if base.ID == quote.ID {
		return Pool{}, &ValidationError{Field: "pool.tokenQuote", Reason: "base and quote must be different tokens"}
	}
	if feeRate < 0 || feeRate > 1 {
		return Pool{}, &ValidationError{Field: "pool.feeRate", Reason: "must be between 0 and 1"}
	}
	return Pool{ID: id, TokenBase: base, TokenQuote: quote, FeeRate: feeRate}, nil
}

// FeeBps returns the fee rate converted to integer basis points,
// round(feeRate * 10000). The rounding is part of the pricing contract.
func (p Pool) FeeBps() int64 {
	return int64(math.Round(p.FeeRate * 10_000))
}

// HasToken reports whether t is one of the pool's two tokens.
func (p Pool) HasToken(t Token) bool {
	return t.ID == p.TokenBase.ID || t.ID == p.TokenQuote.ID
}

// OppositeToken returns the pool token on the other side of t.
func (p Pool) OppositeToken(t Token) (Token, error) {
	switch t.ID {
	case p.TokenBase.ID:
		return p.TokenQuote, nil
	case p.TokenQuote.ID:
		return p.TokenBase, nil
	}
	return Token{}, ErrInvalidToken
}

// TickerPair returns the "BASE/QUOTE" directory key for the pool.
func (p Pool) TickerPair() string {
	return p.TokenBase.Ticker + "/" + p.TokenQuote.Ticker
}

// PoolReserves is an atomic snapshot of a pool's two balances. The whole
// value is always replaced together, never patched field by field.
type PoolReserves struct {
	Base      *big.Int
	Quote     *big.Int
	FetchedAt time.Time
}

// ForToken returns reserves oriented from t's side of the pool: the reserve
// of t itself and the reserve of the opposite token.
func (r PoolReserves) ForToken(p Pool, t Token) (in, out *big.Int, err error) {
	switch t.ID {
	case p.TokenBase.ID:
		return r.Base, r.Quote, nil
	case p.TokenQuote.ID:
		return r.Quote, r.Base, nil
	}
	return nil, nil, ErrInvalidToken
}
