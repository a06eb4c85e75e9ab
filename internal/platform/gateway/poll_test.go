package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/perplexfi/perplex-go/internal/domain"
)

// fakeGateway serves canned GraphQL transaction pages and records every
// request's variables so tests can assert on the watermark.
type fakeGateway struct {
	calls   atomic.Int64
	mins    chan int64
	respond func(call int64) string
}

func (f *fakeGateway) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Variables struct {
				Min int64 `json:"min"`
			} `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		select {
		case f.mins <- req.Variables.Min:
		default:
		}
		call := f.calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, f.respond(call))
	}
}

func emptyPage() string {
	return `{"data":{"transactions":{"edges":[]}}}`
}

func transactionPage(nodes ...string) string {
	return fmt.Sprintf(`{"data":{"transactions":{"edges":[%s]}}}`, join(nodes))
}

func node(id string, ingestedAt int64, tags map[string]string) string {
	pairs := ""
	for name, value := range tags {
		if pairs != "" {
			pairs += ","
		}
		pairs += fmt.Sprintf(`{"name":%q,"value":%q}`, name, value)
	}
	return fmt.Sprintf(
		`{"node":{"id":%q,"ingested_at":%d,"owner":{"address":"owner"},"recipient":"proc","tags":[%s]}}`,
		id, ingestedAt, pairs,
	)
}

func join(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

func fastOpts(retries int) PollOptions {
	return PollOptions{MaxRetries: retries, RetryAfter: time.Millisecond}
}

func TestLookForMessageAcceptsNthRound(t *testing.T) {
	fake := &fakeGateway{
		mins: make(chan int64, 16),
		respond: func(call int64) string {
			if call < 3 {
				return emptyPage()
			}
			return transactionPage(node("msg-3", 1_700_000_100, map[string]string{"Action": "Transfer"}))
		},
	}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client := NewClient(srv.URL)
	filters := PushedForFilters("submitted-id", "proc")

	msg, err := client.LookForMessage(context.Background(), filters, func(m *domain.AoMessage) bool {
		return m.ID == "msg-3"
	}, fastOpts(10))
	if err != nil {
		t.Fatalf("LookForMessage: %v", err)
	}
	if msg.ID != "msg-3" {
		t.Errorf("got message %q, want msg-3", msg.ID)
	}
	if got := fake.calls.Load(); got != 3 {
		t.Errorf("gateway queried %d times, want 3", got)
	}
}

func TestLookForMessageExhaustsBudget(t *testing.T) {
	fake := &fakeGateway{
		mins:    make(chan int64, 16),
		respond: func(int64) string { return emptyPage() },
	}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client := NewClient(srv.URL)

	_, err := client.LookForMessage(context.Background(), nil, func(*domain.AoMessage) bool {
		return false
	}, fastOpts(5))
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("got error %v, want ErrExhausted", err)
	}
	if got := fake.calls.Load(); got != 5 {
		t.Errorf("gateway queried %d times, want exactly 5", got)
	}
}

func TestLookForMessageRejectedCandidateAdvancesWatermark(t *testing.T) {
	fake := &fakeGateway{
		mins: make(chan int64, 16),
		respond: func(call int64) string {
			if call == 1 {
				return transactionPage(node("decoy", 9_999_999_999, nil))
			}
			return emptyPage()
		},
	}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client := NewClient(srv.URL)

	_, err := client.LookForMessage(context.Background(), nil, func(*domain.AoMessage) bool {
		return false
	}, fastOpts(3))
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("got error %v, want ErrExhausted", err)
	}

	<-fake.mins // first round polls from roughly now
	second := <-fake.mins
	if second != 9_999_999_999 {
		t.Errorf("second round min = %d, want watermark 9999999999", second)
	}
}

func TestLookForMessageQueryErrorsCountAgainstBudget(t *testing.T) {
	fake := &fakeGateway{
		mins: make(chan int64, 16),
		respond: func(int64) string {
			return `{"errors":[{"message":"gateway unavailable"}]}`
		},
	}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client := NewClient(srv.URL)

	_, err := client.LookForMessage(context.Background(), nil, func(*domain.AoMessage) bool {
		return true
	}, fastOpts(4))
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("got error %v, want ErrExhausted", err)
	}
	if got := fake.calls.Load(); got != 4 {
		t.Errorf("gateway queried %d times, want 4", got)
	}
}

func TestLookForMessageContextCancelled(t *testing.T) {
	fake := &fakeGateway{
		mins:    make(chan int64, 16),
		respond: func(int64) string { return emptyPage() },
	}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client := NewClient(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.LookForMessage(ctx, nil, func(*domain.AoMessage) bool {
		return true
	}, DefaultPollOptions)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got error %v, want context.Canceled", err)
	}
}

func TestLookForMessageClampsRetryDelay(t *testing.T) {
	opts := PollOptions{MaxRetries: 1, RetryAfter: time.Nanosecond}
	if got := opts.delay(); got != minRetryAfter {
		t.Errorf("delay = %v, want clamped to %v", got, minRetryAfter)
	}
	opts.RetryAfter = time.Second
	if got := opts.delay(); got != time.Second {
		t.Errorf("delay = %v, want 1s", got)
	}
}

func TestLookForMessageCursorWalksPages(t *testing.T) {
	pages := []string{
		`{"data":{"transactions":{"pageInfo":{"hasNextPage":true},"edges":[` +
			`{"cursor":"c1","node":{"id":"a","ingested_at":1,"owner":{"address":"x"},"recipient":"p","tags":[]}}]}}}`,
		`{"data":{"transactions":{"pageInfo":{"hasNextPage":false},"edges":[` +
			`{"cursor":"c2","node":{"id":"b","ingested_at":2,"owner":{"address":"x"},"recipient":"p","tags":[]}}]}}}`,
	}
	fake := &fakeGateway{
		mins: make(chan int64, 16),
		respond: func(call int64) string {
			if int(call) <= len(pages) {
				return pages[call-1]
			}
			return `{"data":{"transactions":{"pageInfo":{"hasNextPage":false},"edges":[]}}}`
		},
	}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client := NewClient(srv.URL)

	msg, err := client.LookForMessageCursor(context.Background(), nil, func(m *domain.AoMessage) bool {
		return m.ID == "b"
	}, fastOpts(3))
	if err != nil {
		t.Fatalf("LookForMessageCursor: %v", err)
	}
	if msg.ID != "b" {
		t.Errorf("got message %q, want b", msg.ID)
	}
	if got := fake.calls.Load(); got != 2 {
		t.Errorf("gateway queried %d times, want 2", got)
	}
}

func TestGetMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Variables struct {
				ID string `json:"id"`
			} `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		if req.Variables.ID == "known" {
			fmt.Fprint(w, `{"data":{"transaction":{"id":"known","ingested_at":7,`+
				`"owner":{"address":"sender"},"recipient":"proc",`+
				`"tags":[{"name":"Action","value":"Transfer"}]}}}`)
			return
		}
		fmt.Fprint(w, `{"data":{"transaction":null}}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)

	msg, err := client.GetMessage(context.Background(), "known")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if msg.From != "sender" || msg.To != "proc" || msg.Tag("Action") != "Transfer" {
		t.Errorf("unexpected message %+v", msg)
	}

	_, err = client.GetMessage(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
}

func TestFilterConstructors(t *testing.T) {
	swap := SwapConfirmationFilters("transfer-1", "pool-1")
	if len(swap) != 3 || swap[0].Name != "Pushed-For" || swap[0].Values[0] != "transfer-1" {
		t.Errorf("unexpected swap filters %+v", swap)
	}
	if swap[1].Values[0] != "pool-1" || swap[2].Values[0] != "Transfer" {
		t.Errorf("unexpected swap filters %+v", swap)
	}

	order := OrderUpdateFilters("order-1", "market-1")
	if len(order) != 2 || order[0].Name != "X-Order-Id" || order[1].Values[0] != "market-1" {
		t.Errorf("unexpected order filters %+v", order)
	}
}
