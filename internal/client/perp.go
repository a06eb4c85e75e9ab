package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/perplexfi/perplex-go/internal/domain"
	"github.com/perplexfi/perplex-go/internal/platform/ao"
	"github.com/perplexfi/perplex-go/internal/platform/gateway"
)

// PerpOrderParams is the caller's order for a perp market. Size is in base
// units of the market's base asset; Price is in base units of the settlement
// token and must be nil for market orders.
type PerpOrderParams struct {
	Market     domain.PerpMarket
	Type       domain.OrderType
	Side       domain.OrderSide
	Size       *big.Int
	Price      *big.Int
	ReduceOnly bool
}

func (p PerpOrderParams) validate() error {
	if !p.Type.Valid() {
		return &domain.ValidationError{Field: "order.type", Reason: fmt.Sprintf("unknown order type %q", p.Type)}
	}
	if !p.Side.Valid() {
		return &domain.ValidationError{Field: "order.side", Reason: fmt.Sprintf("unknown order side %q", p.Side)}
	}
	if p.Size == nil || p.Size.Sign() <= 0 {
		return &domain.ValidationError{Field: "order.size", Reason: "must be a positive integer"}
	}
	if err := p.Market.ValidateSizeTick(p.Size); err != nil {
		return err
	}
	if p.Type == domain.OrderTypeMarket {
		if p.Price != nil {
			return &domain.ValidationError{Field: "order.price", Reason: "market orders carry no price"}
		}
		return nil
	}
	if p.Price == nil || p.Price.Sign() <= 0 {
		return &domain.ValidationError{Field: "order.price", Reason: "must be a positive integer"}
	}
	return p.Market.ValidatePriceTick(p.Price)
}

func (p PerpOrderParams) tags() domain.Tags {
	tags := domain.Tags{
		{Name: "Action", Value: "Transfer"},
		{Name: "Recipient", Value: p.Market.ID},
		{Name: "Quantity", Value: "0"},
		{Name: "X-Order-Type", Value: string(p.Type)},
		{Name: "X-Order-Side", Value: string(p.Side)},
		{Name: "X-Order-Size", Value: p.Size.String()},
	}
	if p.Price != nil {
		tags = append(tags, domain.Tag{Name: "X-Order-Price", Value: p.Price.String()})
	}
	if p.ReduceOnly {
		tags = append(tags, domain.Tag{Name: "X-Reduce-Only", Value: "true"})
	}
	return tags
}

// PlacePerpOrder submits a perp order through the market's clearing account
// and blocks until the market reports a definitive state for it. For limit
// orders the resting acknowledgment (Order-Booked) is definitive; market
// orders wait for a terminal status.
func (c *Client) PlacePerpOrder(ctx context.Context, p PerpOrderParams, signer ao.Signer) (domain.PerpOrder, error) {
	if err := p.validate(); err != nil {
		return domain.PerpOrder{}, err
	}

	orderID, err := c.messenger.Submit(ctx, p.Market.AccountID, p.tags(), nil, signer)
	if err != nil {
		return domain.PerpOrder{}, fmt.Errorf("client: submit perp order: %w", err)
	}

	log := c.logger.With(
		slog.String("order_id", orderID),
		slog.String("market_id", p.Market.ID),
		slog.String("side", string(p.Side)),
		slog.String("type", string(p.Type)),
	)
	log.Info("perp order submitted", slog.String("size", p.Size.String()))

	definitive := func(msg *domain.AoMessage) bool {
		if msg.Tag("Action") == "Order-Booked" {
			return p.Type != domain.OrderTypeMarket
		}
		return domain.OrderStatus(msg.Tag("X-Order-Status")).Terminal()
	}

	msg, err := c.gateway.LookForMessage(ctx, gateway.OrderUpdateFilters(orderID, p.Market.ID), definitive, c.cfg.Poll)
	if err != nil {
		if errors.Is(err, gateway.ErrExhausted) {
			return domain.PerpOrder{}, &domain.ConfirmationTimeoutError{MessageID: orderID, Retries: c.cfg.Poll.MaxRetries}
		}
		return domain.PerpOrder{}, fmt.Errorf("client: confirm perp order %s: %w", orderID, err)
	}
	if reason := msg.Tag("X-Error"); reason != "" {
		return domain.PerpOrder{}, &domain.RemoteFailureError{MessageID: orderID, Reason: reason}
	}

	order, err := parsePerpOrder(msg, orderID, p.Market, p.Type, p.Side)
	if err != nil {
		return domain.PerpOrder{}, err
	}
	if order.Status == domain.OrderStatusFailed {
		return order, &domain.RemoteFailureError{MessageID: orderID, Reason: "order rejected by market"}
	}

	c.recordOrder(ctx, signer.Address(), p.Market.ID, order)
	log.Info("perp order confirmed", slog.String("status", string(order.Status)))
	return order, nil
}

// CancelPerpOrder cancels a resting order and blocks until the market
// acknowledges the cancellation.
func (c *Client) CancelPerpOrder(ctx context.Context, market domain.PerpMarket, orderID string, signer ao.Signer) (domain.PerpOrder, error) {
	if orderID == "" {
		return domain.PerpOrder{}, &domain.ValidationError{Field: "orderId", Reason: "must not be empty"}
	}

	tags := domain.Tags{
		{Name: "Action", Value: "Cancel-Order"},
		{Name: "X-Market-Id", Value: market.ID},
		{Name: "Order-Id", Value: orderID},
	}

	cancelID, err := c.messenger.Submit(ctx, market.AccountID, tags, nil, signer)
	if err != nil {
		return domain.PerpOrder{}, fmt.Errorf("client: submit cancel: %w", err)
	}
	c.logger.Info("cancel submitted",
		slog.String("cancel_id", cancelID),
		slog.String("order_id", orderID),
		slog.String("market_id", market.ID),
	)

	msg, err := c.gateway.LookForMessage(ctx, gateway.PushedForFilters(cancelID, market.ID), acceptAny, c.cfg.Poll)
	if err != nil {
		if errors.Is(err, gateway.ErrExhausted) {
			return domain.PerpOrder{}, &domain.ConfirmationTimeoutError{MessageID: cancelID, Retries: c.cfg.Poll.MaxRetries}
		}
		return domain.PerpOrder{}, fmt.Errorf("client: confirm cancel %s: %w", cancelID, err)
	}
	if reason := msg.Tag("X-Error"); reason != "" {
		return domain.PerpOrder{}, &domain.RemoteFailureError{MessageID: cancelID, Reason: reason}
	}

	return parsePerpOrder(msg, orderID, market, domain.OrderType(msg.Tag("X-Order-Type")), domain.OrderSide(msg.Tag("X-Order-Side")))
}

// DepositCollateral transfers quantity of token into the market's clearing
// account. A definitive rejection on the transfer's own result (an Error
// effect back to the sender) short-circuits the confirmation poll.
func (c *Client) DepositCollateral(ctx context.Context, market domain.PerpMarket, token domain.Token, quantity *big.Int, signer ao.Signer) (domain.Deposit, error) {
	if quantity == nil || quantity.Sign() <= 0 {
		return domain.Deposit{}, &domain.ValidationError{Field: "deposit.quantity", Reason: "must be a positive integer"}
	}

	tags := domain.Tags{
		{Name: "Action", Value: "Transfer"},
		{Name: "Recipient", Value: market.AccountID},
		{Name: "Quantity", Value: quantity.String()},
		{Name: "X-Operation-Type", Value: "Deposit"},
	}

	transferID, err := c.messenger.Submit(ctx, token.ID, tags, nil, signer)
	if err != nil {
		return domain.Deposit{}, fmt.Errorf("client: submit deposit: %w", err)
	}
	c.logger.Info("deposit submitted",
		slog.String("transfer_id", transferID),
		slog.String("token", token.Ticker),
		slog.String("quantity", quantity.String()),
	)

	if results, err := c.messenger.AwaitResult(ctx, transferID, token.ID); err != nil {
		c.logger.Warn("result lookup failed, falling through to confirmation poll",
			slog.String("transfer_id", transferID), slog.String("error", err.Error()))
	} else {
		for _, res := range results {
			if res.Target == signer.Address() && res.Tags.Has("Error") {
				return domain.Deposit{}, &domain.RemoteFailureError{MessageID: transferID, Reason: res.Tags.Get("Error")}
			}
		}
	}

	definitive := func(msg *domain.AoMessage) bool {
		return msg.Tag("Action") == "Deposit-Confirmation" || msg.HasTag("X-Error")
	}

	msg, err := c.gateway.LookForMessage(ctx, gateway.PushedForFilters(transferID, market.AccountID), definitive, c.cfg.Poll)
	if err != nil {
		if errors.Is(err, gateway.ErrExhausted) {
			return domain.Deposit{}, &domain.ConfirmationTimeoutError{MessageID: transferID, Retries: c.cfg.Poll.MaxRetries}
		}
		return domain.Deposit{}, fmt.Errorf("client: confirm deposit %s: %w", transferID, err)
	}
	if reason := msg.Tag("X-Error"); reason != "" {
		return domain.Deposit{}, &domain.RemoteFailureError{MessageID: transferID, Reason: reason}
	}

	c.logger.Info("deposit confirmed", slog.String("transfer_id", transferID))
	return domain.Deposit{ID: transferID, Token: token, Quantity: new(big.Int).Set(quantity)}, nil
}

// parsePerpOrder builds a PerpOrder from an order update's tags. Tag
// omissions degrade to zero values except for the executed quantities, which
// must parse when present.
func parsePerpOrder(msg *domain.AoMessage, orderID string, market domain.PerpMarket, typ domain.OrderType, side domain.OrderSide) (domain.PerpOrder, error) {
	status := domain.OrderStatus(msg.Tag("X-Order-Status"))
	if msg.Tag("Action") == "Order-Booked" && status == "" {
		status = domain.OrderStatusNew
	}
	if !status.Valid() {
		return domain.PerpOrder{}, fmt.Errorf("client: order %s: unknown status %q", orderID, msg.Tag("X-Order-Status"))
	}

	base := market.BaseToken()
	original, err := tagQuantity(msg, "X-Original-Quantity", base)
	if err != nil {
		return domain.PerpOrder{}, fmt.Errorf("client: order %s: %w", orderID, err)
	}
	executed, err := tagQuantity(msg, "X-Executed-Quantity", base)
	if err != nil {
		return domain.PerpOrder{}, fmt.Errorf("client: order %s: %w", orderID, err)
	}

	order := domain.PerpOrder{
		ID:               orderID,
		Type:             typ,
		Side:             side,
		Status:           status,
		OriginalQuantity: original,
		ExecutedQuantity: executed,
		ExecutedValue:    big.NewInt(0),
	}
	if raw := msg.Tag("X-Order-Price"); raw != "" {
		price, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return domain.PerpOrder{}, fmt.Errorf("client: order %s: malformed X-Order-Price tag %q", orderID, raw)
		}
		order.InitialPrice = price
	}
	if raw := msg.Tag("X-Executed-Value"); raw != "" {
		value, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return domain.PerpOrder{}, fmt.Errorf("client: order %s: malformed X-Executed-Value tag %q", orderID, raw)
		}
		order.ExecutedValue = value
	}
	return order, nil
}

func tagQuantity(msg *domain.AoMessage, name string, token domain.Token) (domain.TokenQuantity, error) {
	raw := msg.Tag(name)
	if raw == "" {
		return domain.TokenQuantity{Token: token, Quantity: big.NewInt(0)}, nil
	}
	units, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return domain.TokenQuantity{}, fmt.Errorf("malformed %s tag %q", name, raw)
	}
	return domain.TokenQuantity{Token: token, Quantity: units}, nil
}

func (c *Client) recordOrder(ctx context.Context, wallet, marketID string, order domain.PerpOrder) {
	if c.journal == nil {
		return
	}
	if err := c.journal.RecordOrder(ctx, wallet, marketID, order); err != nil {
		c.logger.Warn("journal order failed", slog.String("order_id", order.ID), slog.String("error", err.Error()))
	}
}
