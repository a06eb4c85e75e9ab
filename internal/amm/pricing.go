// Package amm implements the constant-product pricing math for spot pools.
//
// Everything here is exact integer arithmetic on math/big. The fee and the
// slippage tolerance are each rounded to basis points independently and
// applied in that order; both steps use floor division. Reordering or
// combining the roundings changes outputs, so the sequence is fixed.
package amm

import (
	"math"
	"math/big"

	"github.com/perplexfi/perplex-go/internal/domain"
)

var bps = big.NewInt(10_000)

// ExpectedOutput computes the minimum output of swapping input units against
// a constant-product pool with the given oriented reserves:
//
//	k      = reserveIn * reserveOut
//	newOut = k / (reserveIn + input)
//	out    = reserveOut - newOut
//	out    = out * (10000 - round(feeRate*10000))  / 10000
//	out    = out * (10000 - round(slippage*10000)) / 10000
//
// The result is the slippage-guarded minimum sent on-chain; with slippage 0
// it is the expected swap output itself.
func ExpectedOutput(reserveIn, reserveOut, input *big.Int, feeRate, slippage float64) (*big.Int, error) {
	if slippage < 0 || slippage > 1 {
		return nil, domain.ErrInvalidSlippage
	}
	if feeRate < 0 || feeRate > 1 {
		return nil, &domain.ValidationError{Field: "feeRate", Reason: "must be between 0 and 1"}
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, domain.ErrReservesUnavailable
	}
	if input == nil || input.Sign() <= 0 {
		return nil, &domain.ValidationError{Field: "quantity", Reason: "must be positive"}
	}

	k := new(big.Int).Mul(reserveIn, reserveOut)

	newReserveOut := new(big.Int).Add(reserveIn, input)
	newReserveOut.Quo(k, newReserveOut)

	out := new(big.Int).Sub(reserveOut, newReserveOut)

	out = applyBps(out, round(feeRate))
	out = applyBps(out, round(slippage))

	return out, nil
}

// round converts a rate in [0,1] to nearest-integer basis points.
func round(rate float64) int64 {
	return int64(math.Round(rate * 10_000))
}

// applyBps scales v by (10000 - cut) / 10000 with floor division.
func applyBps(v *big.Int, cut int64) *big.Int {
	r := new(big.Int).Mul(v, big.NewInt(10_000-cut))
	return r.Quo(r, bps)
}
