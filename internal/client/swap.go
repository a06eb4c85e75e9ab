package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"

	"github.com/perplexfi/perplex-go/internal/amm"
	"github.com/perplexfi/perplex-go/internal/domain"
	"github.com/perplexfi/perplex-go/internal/platform/ao"
	"github.com/perplexfi/perplex-go/internal/platform/gateway"
)

// SwapParams is the caller's order for a spot swap: sell Quantity of Token
// into Pool, reject settlement below MinExpectedOutput.
type SwapParams struct {
	Pool              domain.Pool
	Token             domain.Token
	Quantity          *big.Int
	MinExpectedOutput *big.Int
}

func (p SwapParams) validate() error {
	if !p.Pool.HasToken(p.Token) {
		return domain.ErrInvalidToken
	}
	if p.Quantity == nil || p.Quantity.Sign() <= 0 {
		return &domain.ValidationError{Field: "swap.quantity", Reason: "must be a positive integer"}
	}
	if p.MinExpectedOutput == nil || p.MinExpectedOutput.Sign() <= 0 {
		return &domain.ValidationError{Field: "swap.minExpectedOutput", Reason: "must be a positive integer"}
	}
	return nil
}

// ExpectedSwapOutput prices a hypothetical swap against the cached reserves
// without touching the network. The result already carries the pool fee and
// the caller's slippage tolerance, so it is directly usable as a swap's
// MinExpectedOutput.
func (c *Client) ExpectedSwapOutput(pool domain.Pool, token domain.Token, quantity *big.Int, slippage float64) (*big.Int, error) {
	if !pool.HasToken(token) {
		return nil, domain.ErrInvalidToken
	}
	reserves, ok := c.cache.Reserves(pool.ID)
	if !ok {
		return nil, fmt.Errorf("client: pool %s: %w", pool.ID, domain.ErrReservesUnavailable)
	}
	in, out, err := reserves.ForToken(pool, token)
	if err != nil {
		return nil, err
	}
	return amm.ExpectedOutput(in, out, quantity, pool.FeeRate, slippage)
}

// Swap sells p.Quantity of p.Token into p.Pool and blocks until the pool's
// settlement transfer is observed on the gateway. A refund transfer (the
// pool returning the input token) means the pool rejected the trade and is
// surfaced as a RemoteFailureError. A ConfirmationTimeoutError still carries
// the submitted message id so the caller can keep looking on their own.
func (c *Client) Swap(ctx context.Context, p SwapParams, signer ao.Signer) (domain.Swap, error) {
	if err := p.validate(); err != nil {
		return domain.Swap{}, err
	}

	tokenOut, err := p.Pool.OppositeToken(p.Token)
	if err != nil {
		return domain.Swap{}, err
	}

	tags := domain.Tags{
		{Name: "Action", Value: "Transfer"},
		{Name: "Recipient", Value: p.Pool.ID},
		{Name: "Quantity", Value: p.Quantity.String()},
		{Name: "X-Operation-Type", Value: "Swap"},
		{Name: "X-Minimum-Expected-Output", Value: p.MinExpectedOutput.String()},
	}

	transferID, err := c.messenger.Submit(ctx, p.Token.ID, tags, nil, signer)
	if err != nil {
		return domain.Swap{}, fmt.Errorf("client: submit swap transfer: %w", err)
	}

	log := c.logger.With(
		slog.String("transfer_id", transferID),
		slog.String("pool_id", p.Pool.ID),
		slog.String("token_in", p.Token.Ticker),
	)
	log.Info("swap transfer submitted", slog.String("quantity", p.Quantity.String()))

	// Cheap liveness checkpoint: the compute unit blocks until the token
	// process has evaluated the transfer, and an immediate Transfer-Error
	// back to the sender skips the whole confirmation poll.
	if results, err := c.messenger.AwaitResult(ctx, transferID, p.Token.ID); err != nil {
		log.Warn("result lookup failed, falling through to confirmation poll", slog.String("error", err.Error()))
	} else {
		for _, msg := range results {
			if msg.Target == signer.Address() && msg.Tags.Has("Error") {
				return domain.Swap{}, &domain.RemoteFailureError{
					MessageID: transferID,
					Reason:    msg.Tags.Get("Error"),
				}
			}
		}
	}

	msg, err := c.gateway.LookForMessage(ctx, gateway.SwapConfirmationFilters(transferID, p.Pool.ID), acceptAny, c.cfg.Poll)
	if err != nil {
		if errors.Is(err, gateway.ErrExhausted) {
			return domain.Swap{}, &domain.ConfirmationTimeoutError{MessageID: transferID, Retries: c.cfg.Poll.MaxRetries}
		}
		return domain.Swap{}, fmt.Errorf("client: confirm swap %s: %w", transferID, err)
	}

	// The pool settles by transferring the opposite token. A transfer on
	// the input token is a refund: the trade was rejected, usually because
	// the minimum output could not be met.
	if msg.To == p.Token.ID {
		reason := msg.Tag("X-Refund-Reason")
		if reason == "" {
			reason = "pool refunded the input transfer"
		}
		return domain.Swap{}, &domain.RemoteFailureError{MessageID: transferID, Reason: reason}
	}

	swap, err := parseSwapConfirmation(msg, transferID, p, tokenOut)
	if err != nil {
		return domain.Swap{}, err
	}

	c.applySwapToReserves(p.Pool, p.Token, swap)
	c.recordSwap(ctx, signer.Address(), swap)

	log.Info("swap confirmed",
		slog.String("token_out", tokenOut.Ticker),
		slog.String("quantity_out", swap.QuantityOut.String()),
	)
	return swap, nil
}

// acceptAny takes the first message matching the filters; classification
// happens after correlation, not inside the poll.
func acceptAny(*domain.AoMessage) bool { return true }

func parseSwapConfirmation(msg *domain.AoMessage, transferID string, p SwapParams, tokenOut domain.Token) (domain.Swap, error) {
	quantityOut, ok := new(big.Int).SetString(msg.Tag("Quantity"), 10)
	if !ok {
		return domain.Swap{}, fmt.Errorf("client: swap %s: malformed Quantity tag %q", transferID, msg.Tag("Quantity"))
	}

	fees := big.NewInt(0)
	if raw := msg.Tag("X-Fees"); raw != "" {
		fees, ok = new(big.Int).SetString(raw, 10)
		if !ok {
			return domain.Swap{}, fmt.Errorf("client: swap %s: malformed X-Fees tag %q", transferID, raw)
		}
	}

	var price float64
	if raw := msg.Tag("X-Price"); raw != "" {
		price, _ = strconv.ParseFloat(raw, 64)
	}

	return domain.Swap{
		ID:          transferID,
		TokenIn:     p.Token,
		QuantityIn:  new(big.Int).Set(p.Quantity),
		TokenOut:    tokenOut,
		QuantityOut: quantityOut,
		Fees:        fees,
		Price:       price,
	}, nil
}

// applySwapToReserves moves the cached reserves by the trade amounts instead
// of refetching. The fetch timestamp is left alone so the regular TTL still
// forces a real refresh.
func (c *Client) applySwapToReserves(pool domain.Pool, tokenIn domain.Token, swap domain.Swap) {
	inDelta := new(big.Int).Set(swap.QuantityIn)
	outDelta := new(big.Int).Neg(swap.QuantityOut)
	if tokenIn.ID == pool.TokenBase.ID {
		c.cache.AdjustReserves(pool.ID, inDelta, outDelta)
	} else {
		c.cache.AdjustReserves(pool.ID, outDelta, inDelta)
	}
}

func (c *Client) recordSwap(ctx context.Context, wallet string, swap domain.Swap) {
	if c.journal == nil {
		return
	}
	if err := c.journal.RecordSwap(ctx, wallet, swap); err != nil {
		c.logger.Warn("journal swap failed", slog.String("swap_id", swap.ID), slog.String("error", err.Error()))
	}
}
