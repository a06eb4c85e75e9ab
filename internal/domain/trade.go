package domain

import "math/big"

// Swap is the confirmed result of an AMM swap. ID is the submitted transfer
// message id, usable as a trace reference. Price is the human-facing
// executed price ratio and is the only floating-point field in the package.
type Swap struct {
	ID          string
	TokenIn     Token
	QuantityIn  *big.Int
	TokenOut    Token
	QuantityOut *big.Int
	Fees        *big.Int
	Price       float64
}

// Deposit is the confirmed result of a collateral deposit into a clearing
// account.
type Deposit struct {
	ID       string
	Token    Token
	Quantity *big.Int
}

// PriceLevel is one side entry of an order book at a given price.
type PriceLevel struct {
	Price *big.Int
	Size  *big.Int
}

// OrderBook is a depth snapshot for a perp market.
type OrderBook struct {
	Asks []PriceLevel
	Bids []PriceLevel
}

// MarginDetails summarizes the margin state of a clearing account, all
// amounts in the account's settlement token.
type MarginDetails struct {
	TotalMargin               TokenQuantity
	MarginBeforeLiquidation   TokenQuantity
	MarginAvailableForOrders  TokenQuantity
	RequiredInitialMargin     TokenQuantity
	RequiredMaintenanceMargin TokenQuantity
	UnrealizedPnL             TokenQuantity
}

// AccountSummary is the full clearing-account state for one wallet:
// collaterals by token id, positions and open orders by market id, and the
// margin figures.
type AccountSummary struct {
	Collaterals map[string]TokenQuantity
	Positions   map[string]PerpPosition
	Orders      map[string]map[string]PerpOrder
	Margin      MarginDetails
}
