package domain

import (
	"math/big"
)

// OrderSide is the direction of a perp order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "Buy"
	OrderSideSell OrderSide = "Sell"
)

// Valid reports whether s is a known order side.
func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// OrderType selects the execution policy of a perp order.
type OrderType string

const (
	OrderTypeMarket     OrderType = "Market"
	OrderTypeLimit      OrderType = "Limit"
	OrderTypeLimitMaker OrderType = "Limit-Maker" // post-only
)

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool {
	return t == OrderTypeMarket || t == OrderTypeLimit || t == OrderTypeLimitMaker
}

// OrderStatus tracks the perp order lifecycle.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "New"
	OrderStatusPartiallyFilled OrderStatus = "Partially-Filled"
	OrderStatusFilled          OrderStatus = "Filled"
	OrderStatusCanceled        OrderStatus = "Canceled"
	OrderStatusFailed          OrderStatus = "Failed"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusNew, OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusCanceled, OrderStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status is final: the order will never change
// again and polling for further updates is pointless.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCanceled || s == OrderStatusFailed
}

// PerpMarket describes a perpetual futures market process. The quote side is
// always the clearing account's settlement token, so its denomination is
// fixed by the account.
type PerpMarket struct {
	ID                  string   `json:"id"`
	AccountID           string   `json:"accountId"`
	BaseTicker          string   `json:"baseTicker"`
	BaseDenomination    int      `json:"baseDenomination"`
	QuoteDenomination   int      `json:"quoteDenomination"`
	MinPriceTickSize    *big.Int `json:"-"`
	MinQuantityTickSize *big.Int `json:"-"`
	OraclePrice         *big.Int `json:"-"`
}

// NewPerpMarket validates the market fields and returns the value.
func NewPerpMarket(id, accountID, baseTicker string, baseDenom, quoteDenom int, priceTick, qtyTick, oraclePrice *big.Int) (PerpMarket, error) {
	if !IsAddress(id) {
		return PerpMarket{}, &ValidationError{Field: "market.id", Reason: "must be a 43-char base64url address"}
	}
	if !IsAddress(accountID) {
		return PerpMarket{}, &ValidationError{Field: "market.accountId", Reason: "must be a 43-char base64url address"}
	}
	if baseDenom < 0 || quoteDenom < 0 {
		return PerpMarket{}, &ValidationError{Field: "market.denomination", Reason: "must be non-negative"}
	}
	if priceTick == nil || priceTick.Sign() <= 0 {
		return PerpMarket{}, &ValidationError{Field: "market.minPriceTickSize", Reason: "must be positive"}
	}
	if qtyTick == nil || qtyTick.Sign() <= 0 {
		return PerpMarket{}, &ValidationError{Field: "market.minQuantityTickSize", Reason: "must be positive"}
	}
	m := PerpMarket{
		ID:                  id,
		AccountID:           accountID,
		BaseTicker:          baseTicker,
		BaseDenomination:    baseDenom,
		QuoteDenomination:   quoteDenom,
		MinPriceTickSize:    new(big.Int).Set(priceTick),
		MinQuantityTickSize: new(big.Int).Set(qtyTick),
	}
	if oraclePrice != nil {
		m.OraclePrice = new(big.Int).Set(oraclePrice)
	}
	return m, nil
}

// BaseToken returns the market's synthetic base token descriptor. The market
// process itself acts as the base token's process id.
func (m PerpMarket) BaseToken() Token {
	return Token{ID: m.ID, Name: m.BaseTicker, Ticker: m.BaseTicker, Denomination: m.BaseDenomination}
}

// QuoteToken returns the clearing account's settlement token descriptor.
func (m PerpMarket) QuoteToken() Token {
	return Token{ID: m.AccountID, Name: m.BaseTicker + " quote", Ticker: "USD", Denomination: m.QuoteDenomination}
}

// PriceFromReadable parses a human-readable quote price into base units.
func (m PerpMarket) PriceFromReadable(s string) (*big.Int, error) {
	return UnitsFromReadable(s, m.QuoteDenomination)
}

// SizeFromReadable parses a human-readable base size into base units.
func (m PerpMarket) SizeFromReadable(s string) (*big.Int, error) {
	return UnitsFromReadable(s, m.BaseDenomination)
}

// ValidatePriceTick checks that price is an exact multiple of the market's
// price tick. On violation it returns a TickSizeError naming the nearest
// valid human-readable price.
func (m PerpMarket) ValidatePriceTick(price *big.Int) error {
	if new(big.Int).Mod(price, m.MinPriceTickSize).Sign() == 0 {
		return nil
	}
	nearest := RoundToTick(price, m.MinPriceTickSize)
	return &TickSizeError{Field: "price", Nearest: ReadableFromUnits(nearest, m.QuoteDenomination)}
}

// ValidateSizeTick checks that size is an exact multiple of the market's
// quantity tick. On violation it returns a TickSizeError naming the nearest
// valid human-readable size.
func (m PerpMarket) ValidateSizeTick(size *big.Int) error {
	if new(big.Int).Mod(size, m.MinQuantityTickSize).Sign() == 0 {
		return nil
	}
	nearest := RoundToTick(size, m.MinQuantityTickSize)
	return &TickSizeError{Field: "size", Nearest: ReadableFromUnits(nearest, m.BaseDenomination)}
}

// PerpOrder is the state of a perp order as reported by the market process.
type PerpOrder struct {
	ID               string
	Type             OrderType
	Side             OrderSide
	Status           OrderStatus
	OriginalQuantity TokenQuantity
	ExecutedQuantity TokenQuantity
	InitialPrice     *big.Int // nil for market orders
	ExecutedValue    *big.Int
}

// PerpPosition is an open position on a perp market.
type PerpPosition struct {
	Market          PerpMarket
	EntryPrice      *big.Int
	Size            TokenQuantity
	FundingQuantity TokenQuantity
}
