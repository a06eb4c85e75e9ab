package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/perplexfi/perplex-go/internal/domain"
	"github.com/perplexfi/perplex-go/internal/platform/ao"
)

func reservesDryrun(t *testing.T, base, quote *big.Int) func(string, domain.Tags) ([]ao.ProcessMessage, error) {
	t.Helper()
	data, err := json.Marshal(map[string]string{
		testBaseID:  base.String(),
		testQuoteID: quote.String(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return func(process string, tags domain.Tags) ([]ao.ProcessMessage, error) {
		if process != testPoolID || tags.Get("Action") != "Reserves" {
			return nil, fmt.Errorf("unexpected dryrun %s %+v", process, tags)
		}
		return []ao.ProcessMessage{{Data: string(data)}}, nil
	}
}

func TestUpdatePoolReserves(t *testing.T) {
	pool := testSpotPool(t)
	msgr := &fakeMessenger{dryrunFn: reservesDryrun(t, reserveBase, reserveQuote)}
	c := newTestClient(t, &fakeGateway{}, msgr)

	reserves, err := c.UpdatePoolReserves(context.Background(), pool)
	if err != nil {
		t.Fatalf("UpdatePoolReserves: %v", err)
	}
	if reserves.Base.Cmp(reserveBase) != 0 || reserves.Quote.Cmp(reserveQuote) != 0 {
		t.Errorf("reserves = %s / %s", reserves.Base, reserves.Quote)
	}
	if msgr.dryrunCalls != 1 {
		t.Fatalf("dryrun called %d times, want 1", msgr.dryrunCalls)
	}

	// Within the TTL the cached snapshot is served without traffic.
	if _, err := c.UpdatePoolReserves(context.Background(), pool); err != nil {
		t.Fatal(err)
	}
	if msgr.dryrunCalls != 1 {
		t.Errorf("dryrun called %d times after warm read, want 1", msgr.dryrunCalls)
	}

	// An expired TTL forces a real refetch.
	c.cfg.ReservesTTL = time.Nanosecond
	time.Sleep(time.Microsecond)
	if _, err := c.UpdatePoolReserves(context.Background(), pool); err != nil {
		t.Fatal(err)
	}
	if msgr.dryrunCalls != 2 {
		t.Errorf("dryrun called %d times after expiry, want 2", msgr.dryrunCalls)
	}
}

func TestUpdatePoolReservesMalformedReply(t *testing.T) {
	pool := testSpotPool(t)

	tests := []struct {
		name string
		msgs []ao.ProcessMessage
	}{
		{"no messages", nil},
		{"empty data", []ao.ProcessMessage{{Data: ""}}},
		{"not json", []ao.ProcessMessage{{Data: "nope"}}},
		{"missing token entry", []ao.ProcessMessage{{Data: fmt.Sprintf(`{%q:"1"}`, testBaseID)}}},
		{"bad amount", []ao.ProcessMessage{{Data: fmt.Sprintf(`{%q:"x",%q:"1"}`, testBaseID, testQuoteID)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgr := &fakeMessenger{dryrunFn: func(string, domain.Tags) ([]ao.ProcessMessage, error) {
				return tt.msgs, nil
			}}
			c := newTestClient(t, &fakeGateway{}, msgr)
			if _, err := c.UpdatePoolReserves(context.Background(), pool); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestUpdateAllPoolReserves(t *testing.T) {
	pool := testSpotPool(t)
	msgr := &fakeMessenger{dryrunFn: reservesDryrun(t, reserveBase, reserveQuote)}
	c := newTestClient(t, &fakeGateway{}, msgr)
	c.cache.PutPools([]domain.Pool{pool})

	results := c.UpdateAllPoolReserves(context.Background())
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	res := results[pool.ID]
	if res.Err != nil {
		t.Fatalf("pool result error: %v", res.Err)
	}
	if res.Reserves.Base.Cmp(reserveBase) != 0 {
		t.Errorf("base = %s", res.Reserves.Base)
	}
}

func TestUpdateTokenBalance(t *testing.T) {
	base, _ := testTokenPair(t)

	t.Run("balance tag", func(t *testing.T) {
		msgr := &fakeMessenger{dryrunFn: func(process string, tags domain.Tags) ([]ao.ProcessMessage, error) {
			if process != testBaseID || tags.Get("Action") != "Balance" || tags.Get("Recipient") != testWallet {
				return nil, fmt.Errorf("unexpected dryrun %s %+v", process, tags)
			}
			return []ao.ProcessMessage{{
				Tags: domain.Tags{{Name: "Balance", Value: "123456789"}},
				Data: "ignored",
			}}, nil
		}}
		c := newTestClient(t, &fakeGateway{}, msgr)

		balance, err := c.UpdateTokenBalance(context.Background(), base, testWallet)
		if err != nil {
			t.Fatalf("UpdateTokenBalance: %v", err)
		}
		if balance.Int64() != 123_456_789 {
			t.Errorf("balance = %s", balance)
		}
		cached, ok := c.cache.Balance(testBaseID)
		if !ok || cached.Int64() != 123_456_789 {
			t.Errorf("cached balance = %v, %v", cached, ok)
		}
	})

	t.Run("data fallback", func(t *testing.T) {
		msgr := &fakeMessenger{dryrunFn: func(string, domain.Tags) ([]ao.ProcessMessage, error) {
			return []ao.ProcessMessage{{Data: "42"}}, nil
		}}
		c := newTestClient(t, &fakeGateway{}, msgr)

		balance, err := c.UpdateTokenBalance(context.Background(), base, testWallet)
		if err != nil {
			t.Fatalf("UpdateTokenBalance: %v", err)
		}
		if balance.Int64() != 42 {
			t.Errorf("balance = %s", balance)
		}
	})

	t.Run("malformed amount", func(t *testing.T) {
		msgr := &fakeMessenger{dryrunFn: func(string, domain.Tags) ([]ao.ProcessMessage, error) {
			return []ao.ProcessMessage{{Data: "not-a-number"}}, nil
		}}
		c := newTestClient(t, &fakeGateway{}, msgr)

		if _, err := c.UpdateTokenBalance(context.Background(), base, testWallet); err == nil {
			t.Error("expected error")
		}
	})
}

func TestUpdateAllTokenBalances(t *testing.T) {
	base, quote := testTokenPair(t)
	msgr := &fakeMessenger{dryrunFn: func(process string, _ domain.Tags) ([]ao.ProcessMessage, error) {
		if process == testBaseID {
			return []ao.ProcessMessage{{Data: "10"}}, nil
		}
		return nil, fmt.Errorf("process %s unavailable", process)
	}}
	c := newTestClient(t, &fakeGateway{}, msgr)
	c.cache.PutTokens([]domain.Token{base, quote})

	results := c.UpdateAllTokenBalances(context.Background(), testWallet)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if res := results[testBaseID]; res.Err != nil || res.Balance.Int64() != 10 {
		t.Errorf("base result = %+v", res)
	}
	if res := results[testQuoteID]; res.Err == nil {
		t.Error("quote failure swallowed by the sweep")
	}
}
