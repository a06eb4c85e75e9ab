package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/perplexfi/perplex-go/internal/domain"
)

// ErrExhausted is returned by the poll loop when the retry budget runs out
// without a validator-accepted message. Callers translate it into a
// ConfirmationTimeoutError carrying the submitted message id.
var ErrExhausted = errors.New("gateway: poll budget exhausted")

// minRetryAfter is the floor on the inter-round delay, protecting the
// gateway from hot polling loops.
const minRetryAfter = 100 * time.Millisecond

// PollOptions bounds a correlation poll. The conventional budget is
// 40 retries at 500ms, i.e. 20 seconds of polling.
type PollOptions struct {
	MaxRetries int
	RetryAfter time.Duration
}

// DefaultPollOptions is the conventional 40x500ms budget.
var DefaultPollOptions = PollOptions{MaxRetries: 40, RetryAfter: 500 * time.Millisecond}

func (o PollOptions) delay() time.Duration {
	if o.RetryAfter < minRetryAfter {
		return minRetryAfter
	}
	return o.RetryAfter
}

// Validator inspects a candidate message and reports whether it is the one
// the operation is waiting for. Validators must be precise enough to avoid
// false positives: correlate on a unique tag such as Pushed-For or
// X-Order-Id equal to the submitted message id.
type Validator func(*domain.AoMessage) bool

// LookForMessage polls the gateway until a message matching the filters is
// accepted by validate, or the retry budget is exhausted (ErrExhausted).
//
// Each round re-queries from the maximum ingestion timestamp observed so
// far, so the watermark only moves forward. Within a round the first
// accepted message wins, in the gateway's ingestion-ascending order. Query
// errors count against the budget: gateway lag and transient failures look
// the same to the caller, and the budget is the only bound on the
// operation's lifetime.
func (c *Client) LookForMessage(ctx context.Context, filters []TagFilter, validate Validator, opts PollOptions) (*domain.AoMessage, error) {
	min := time.Now().Unix()

	for retry := 0; retry < opts.MaxRetries; retry++ {
		edges, err := c.QueryMessages(ctx, filters, min)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Debug("gateway poll round failed",
				slog.Int("retry", retry),
				slog.String("error", err.Error()),
			)
		}

		for _, edge := range edges {
			if edge.IngestedAt > min {
				min = edge.IngestedAt
			}
			if validate(edge.Message) {
				return edge.Message, nil
			}
		}

		if err := sleep(ctx, opts.delay()); err != nil {
			return nil, err
		}
	}

	return nil, ErrExhausted
}

// LookForMessageCursor is the cursor-paginated variant of LookForMessage for
// gateways without ingestion-time filtering. Within each retry round it
// walks every page after the last seen cursor before sleeping, so a round
// observes all messages ingested up to that point.
func (c *Client) LookForMessageCursor(ctx context.Context, filters []TagFilter, validate Validator, opts PollOptions) (*domain.AoMessage, error) {
	var cursor string

	for retry := 0; retry < opts.MaxRetries; retry++ {
		for {
			page, err := c.QueryMessagesAfter(ctx, filters, cursor)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				slog.Debug("gateway cursor poll round failed",
					slog.Int("retry", retry),
					slog.String("error", err.Error()),
				)
				break
			}

			for _, edge := range page.Edges {
				cursor = edge.Cursor
				if validate(edge.Message) {
					return edge.Message, nil
				}
			}
			if !page.HasNextPage {
				break
			}
		}

		if err := sleep(ctx, opts.delay()); err != nil {
			return nil, err
		}
	}

	return nil, ErrExhausted
}

// sleep suspends the calling operation between rounds without blocking
// other operations sharing the client.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
