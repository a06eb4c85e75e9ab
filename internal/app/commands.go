package app

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/perplexfi/perplex-go/internal/client"
	"github.com/perplexfi/perplex-go/internal/domain"
)

// Run dispatches one CLI subcommand. Commands that submit messages require
// a configured wallet.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("app: no command given (try: tokens, pools, markets, quote, swap, reserves, balance, order, cancel, deposit, summary, book, funding, positions, archive, restore, watch)")
	}

	cmd, rest := args[0], args[1:]

	switch cmd {
	case "watch":
		return a.Watch(ctx)
	case "restore":
		return a.Restore(ctx)
	}

	if err := a.Initialize(ctx); err != nil {
		return err
	}

	switch cmd {
	case "tokens":
		for _, t := range a.client.Tokens() {
			fmt.Printf("%s\t%s\t(denomination %d)\n", t.Ticker, t.ID, t.Denomination)
		}
		return nil

	case "pools":
		for _, p := range a.client.Pools() {
			fmt.Printf("%s\t%s\t(fee %.4f)\n", p.TickerPair(), p.ID, p.FeeRate)
		}
		return nil

	case "markets":
		for _, m := range a.client.PerpMarkets() {
			fmt.Printf("%s\t%s\t(account %s)\n", m.BaseTicker, m.ID, m.AccountID)
		}
		return nil

	case "quote":
		return a.runQuote(ctx, rest)

	case "swap":
		return a.runSwap(ctx, rest)

	case "reserves":
		return a.runReserves(ctx, rest)

	case "balance":
		return a.runBalance(ctx, rest)

	case "order":
		return a.runOrder(ctx, rest)

	case "cancel":
		return a.runCancel(ctx, rest)

	case "deposit":
		return a.runDeposit(ctx, rest)

	case "summary":
		return a.runSummary(ctx, rest)

	case "book":
		return a.runBook(ctx, rest)

	case "funding":
		return a.runFunding(ctx, rest)

	case "positions":
		return a.runPositions(ctx, rest)

	case "archive":
		_, err := a.Archive(ctx)
		return err

	default:
		return fmt.Errorf("app: unknown command %q", cmd)
	}
}

func (a *App) requireSigner() error {
	if a.signer == nil {
		return fmt.Errorf("app: this command needs a wallet (set wallet.private_key or wallet.keyfile_path)")
	}
	return nil
}

// runQuote prices a swap from cached reserves: quote <pair> <ticker> <amount> [slippage]
func (a *App) runQuote(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: quote <BASE/QUOTE> <ticker> <readable-amount> [slippage]")
	}

	pool, token, quantity, err := a.resolveSwapLeg(args[0], args[1], args[2])
	if err != nil {
		return err
	}

	slippage := 0.01
	if len(args) > 3 {
		slippage, err = strconv.ParseFloat(args[3], 64)
		if err != nil {
			return fmt.Errorf("app: malformed slippage %q: %w", args[3], err)
		}
	}

	if _, err := a.client.UpdatePoolReserves(ctx, pool); err != nil {
		return err
	}

	out, err := a.client.ExpectedSwapOutput(pool, token, quantity, slippage)
	if err != nil {
		return err
	}

	opposite, err := pool.OppositeToken(token)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s -> at least %s %s\n",
		token.Units(quantity).Readable(), token.Ticker,
		opposite.Units(out).Readable(), opposite.Ticker,
	)
	return nil
}

// runSwap executes a swap: swap <pair> <ticker> <amount> [slippage]
func (a *App) runSwap(ctx context.Context, args []string) error {
	if err := a.requireSigner(); err != nil {
		return err
	}
	if len(args) < 3 {
		return fmt.Errorf("usage: swap <BASE/QUOTE> <ticker> <readable-amount> [slippage]")
	}

	pool, token, quantity, err := a.resolveSwapLeg(args[0], args[1], args[2])
	if err != nil {
		return err
	}

	slippage := 0.01
	if len(args) > 3 {
		slippage, err = strconv.ParseFloat(args[3], 64)
		if err != nil {
			return fmt.Errorf("app: malformed slippage %q: %w", args[3], err)
		}
	}

	if _, err := a.client.UpdatePoolReserves(ctx, pool); err != nil {
		return err
	}
	minOut, err := a.client.ExpectedSwapOutput(pool, token, quantity, slippage)
	if err != nil {
		return err
	}

	swap, err := a.client.Swap(ctx, client.SwapParams{
		Pool:              pool,
		Token:             token,
		Quantity:          quantity,
		MinExpectedOutput: minOut,
	}, a.signer)
	if err != nil {
		return err
	}

	fmt.Printf("swap %s: %s %s -> %s %s (fees %s)\n",
		swap.ID,
		swap.TokenIn.Units(swap.QuantityIn).Readable(), swap.TokenIn.Ticker,
		swap.TokenOut.Units(swap.QuantityOut).Readable(), swap.TokenOut.Ticker,
		swap.Fees.String(),
	)
	return nil
}

// runReserves refreshes reserves: reserves [pair]
func (a *App) runReserves(ctx context.Context, args []string) error {
	if len(args) == 0 {
		results := a.client.UpdateAllPoolReserves(ctx)
		for poolID, res := range results {
			if res.Err != nil {
				fmt.Printf("%s\terror: %v\n", poolID, res.Err)
				continue
			}
			fmt.Printf("%s\tbase=%s quote=%s\n", poolID, res.Reserves.Base, res.Reserves.Quote)
		}
		return nil
	}

	pool, err := a.client.GetPool(args[0])
	if err != nil {
		return err
	}
	reserves, err := a.client.UpdatePoolReserves(ctx, pool)
	if err != nil {
		return err
	}
	fmt.Printf("%s\tbase=%s quote=%s\n", pool.TickerPair(), reserves.Base, reserves.Quote)
	return nil
}

// runBalance fetches wallet balances: balance [ticker]
func (a *App) runBalance(ctx context.Context, args []string) error {
	if err := a.requireSigner(); err != nil {
		return err
	}
	wallet := a.signer.Address()

	if len(args) == 0 {
		results := a.client.UpdateAllTokenBalances(ctx, wallet)
		for tokenID, res := range results {
			if res.Err != nil {
				fmt.Printf("%s\terror: %v\n", tokenID, res.Err)
				continue
			}
			token, err := a.client.GetTokenByID(tokenID)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\n", token.Ticker, token.Units(res.Balance).Readable())
		}
		return nil
	}

	token, err := a.client.GetToken(args[0])
	if err != nil {
		return err
	}
	balance, err := a.client.UpdateTokenBalance(ctx, token, wallet)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\n", token.Ticker, token.Units(balance).Readable())
	return nil
}

// runOrder places a perp order: order <ticker> <buy|sell> <market|limit|limit-maker> <size> [price]
func (a *App) runOrder(ctx context.Context, args []string) error {
	if err := a.requireSigner(); err != nil {
		return err
	}
	if len(args) < 4 {
		return fmt.Errorf("usage: order <ticker> <buy|sell> <market|limit|limit-maker> <readable-size> [readable-price]")
	}

	market, err := a.client.GetPerpMarket(args[0])
	if err != nil {
		return err
	}

	var side domain.OrderSide
	switch args[1] {
	case "buy":
		side = domain.OrderSideBuy
	case "sell":
		side = domain.OrderSideSell
	default:
		return fmt.Errorf("app: unknown side %q", args[1])
	}

	var typ domain.OrderType
	switch args[2] {
	case "market":
		typ = domain.OrderTypeMarket
	case "limit":
		typ = domain.OrderTypeLimit
	case "limit-maker":
		typ = domain.OrderTypeLimitMaker
	default:
		return fmt.Errorf("app: unknown order type %q", args[2])
	}

	size, err := market.SizeFromReadable(args[3])
	if err != nil {
		return err
	}

	var price *big.Int
	if len(args) > 4 {
		price, err = market.PriceFromReadable(args[4])
		if err != nil {
			return err
		}
	}

	order, err := a.client.PlacePerpOrder(ctx, client.PerpOrderParams{
		Market: market,
		Type:   typ,
		Side:   side,
		Size:   size,
		Price:  price,
	}, a.signer)
	if err != nil {
		return err
	}

	fmt.Printf("order %s: %s %s %s, status %s\n", order.ID, order.Side, order.Type,
		order.OriginalQuantity.Readable(), order.Status)
	return nil
}

// runCancel cancels a resting order: cancel <ticker> <order-id>
func (a *App) runCancel(ctx context.Context, args []string) error {
	if err := a.requireSigner(); err != nil {
		return err
	}
	if len(args) < 2 {
		return fmt.Errorf("usage: cancel <ticker> <order-id>")
	}

	market, err := a.client.GetPerpMarket(args[0])
	if err != nil {
		return err
	}
	order, err := a.client.CancelPerpOrder(ctx, market, args[1], a.signer)
	if err != nil {
		return err
	}
	fmt.Printf("order %s: status %s\n", order.ID, order.Status)
	return nil
}

// runDeposit deposits collateral: deposit <ticker> <token-ticker> <amount>
func (a *App) runDeposit(ctx context.Context, args []string) error {
	if err := a.requireSigner(); err != nil {
		return err
	}
	if len(args) < 3 {
		return fmt.Errorf("usage: deposit <ticker> <token-ticker> <readable-amount>")
	}

	market, err := a.client.GetPerpMarket(args[0])
	if err != nil {
		return err
	}
	token, err := a.client.GetToken(args[1])
	if err != nil {
		return err
	}
	quantity, err := token.FromReadable(args[2])
	if err != nil {
		return err
	}

	deposit, err := a.client.DepositCollateral(ctx, market, token, quantity.Quantity, a.signer)
	if err != nil {
		return err
	}
	fmt.Printf("deposit %s: %s %s\n", deposit.ID,
		deposit.Token.Units(deposit.Quantity).Readable(), deposit.Token.Ticker)
	return nil
}

// runSummary prints the account summary: summary <ticker> [wallet]
func (a *App) runSummary(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: summary <ticker> [wallet]")
	}

	market, err := a.client.GetPerpMarket(args[0])
	if err != nil {
		return err
	}

	var wallet string
	if len(args) > 1 {
		wallet = args[1]
	} else {
		if err := a.requireSigner(); err != nil {
			return err
		}
		wallet = a.signer.Address()
	}

	summary, err := a.client.AccountSummary(ctx, market, wallet)
	if err != nil {
		return err
	}

	for tokenID, q := range summary.Collaterals {
		fmt.Printf("collateral\t%s\t%s %s\n", tokenID, q.Readable(), q.Token.Ticker)
	}
	for marketID, pos := range summary.Positions {
		fmt.Printf("position\t%s\tsize=%s entry=%s\n", marketID, pos.Size.Readable(), pos.EntryPrice)
	}
	for marketID, orders := range summary.Orders {
		for orderID, order := range orders {
			fmt.Printf("order\t%s\t%s\t%s %s, status %s\n", marketID, orderID,
				order.Side, order.OriginalQuantity.Readable(), order.Status)
		}
	}
	fmt.Printf("margin\ttotal=%s available=%s pnl=%s\n",
		summary.Margin.TotalMargin.Readable(),
		summary.Margin.MarginAvailableForOrders.Readable(),
		summary.Margin.UnrealizedPnL.Readable(),
	)
	return nil
}

// runBook prints market depth: book <ticker>
func (a *App) runBook(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: book <ticker>")
	}

	market, err := a.client.GetPerpMarket(args[0])
	if err != nil {
		return err
	}
	book, err := a.client.OrderBook(ctx, market)
	if err != nil {
		return err
	}

	for i := len(book.Asks) - 1; i >= 0; i-- {
		fmt.Printf("ask\t%s\t%s\n", book.Asks[i].Price, book.Asks[i].Size)
	}
	for _, level := range book.Bids {
		fmt.Printf("bid\t%s\t%s\n", level.Price, level.Size)
	}
	return nil
}

// runFunding prints the latest funding rate: funding <ticker>
func (a *App) runFunding(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: funding <ticker>")
	}

	market, err := a.client.GetPerpMarket(args[0])
	if err != nil {
		return err
	}
	rate, err := a.client.FundingRate(ctx, market)
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\n", market.BaseTicker, rate)
	return nil
}

// runPositions prints open positions: positions [wallet]
func (a *App) runPositions(ctx context.Context, args []string) error {
	var wallet string
	if len(args) > 0 {
		wallet = args[0]
	} else {
		if err := a.requireSigner(); err != nil {
			return err
		}
		wallet = a.signer.Address()
	}

	positions, err := a.client.OpenPositions(ctx, wallet)
	if err != nil {
		return err
	}
	for _, pos := range positions {
		fmt.Printf("%s\tsize=%s entry=%s funding=%s\n",
			pos.Market.BaseTicker, pos.Size.Readable(), pos.EntryPrice, pos.FundingQuantity.Readable())
	}
	return nil
}

// resolveSwapLeg resolves a pool, the input token by ticker, and a readable
// input amount.
func (a *App) resolveSwapLeg(pair, ticker, amount string) (domain.Pool, domain.Token, *big.Int, error) {
	pool, err := a.client.GetPool(pair)
	if err != nil {
		return domain.Pool{}, domain.Token{}, nil, err
	}
	token, err := a.client.GetToken(ticker)
	if err != nil {
		return domain.Pool{}, domain.Token{}, nil, err
	}
	quantity, err := token.FromReadable(amount)
	if err != nil {
		return domain.Pool{}, domain.Token{}, nil, err
	}
	return pool, token, quantity.Quantity, nil
}
