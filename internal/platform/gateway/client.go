// Package gateway is the GraphQL client for the ledger gateway/indexer. It
// queries transactions by conjunctive tag filters and implements the polling
// message-correlation protocol used to confirm submitted writes.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/perplexfi/perplex-go/internal/domain"
)

// Client is a GraphQL client for a gateway search endpoint, e.g.
// "https://arweave-search.goldsky.com/graphql".
type Client struct {
	graphqlURL string
	httpClient *http.Client
}

// NewClient creates a gateway client for the given GraphQL endpoint.
func NewClient(graphqlURL string) *Client {
	return &Client{
		graphqlURL: graphqlURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// transactionNode is the gateway's transaction record shape.
type transactionNode struct {
	ID         string `json:"id"`
	IngestedAt int64  `json:"ingested_at"`
	Recipient  string `json:"recipient"`
	Owner      struct {
		Address string `json:"address"`
	} `json:"owner"`
	Tags []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"tags"`
}

// message converts a gateway transaction node into the confirmation-message
// shape consumed by validators.
func (n transactionNode) message() *domain.AoMessage {
	tags := make(map[string]string, len(n.Tags))
	for _, t := range n.Tags {
		tags[t.Name] = t.Value
	}
	return &domain.AoMessage{
		ID:   n.ID,
		From: n.Owner.Address,
		To:   n.Recipient,
		Tags: tags,
	}
}

// Edge is one result of a transactions query: the parsed message plus the
// pagination cursor and ingestion timestamp of the underlying record.
type Edge struct {
	Cursor     string
	IngestedAt int64
	Message    *domain.AoMessage
}

// Page is one page of a cursor-paginated transactions query.
type Page struct {
	Edges       []Edge
	HasNextPage bool
}

const getTransactionsQuery = `
	query transactions($tagsFilter: [TagFilter!]!, $min: Int!) {
		transactions(
			first: 100,
			sort: INGESTED_AT_ASC,
			ingested_at: { min: $min },
			tags: $tagsFilter
		) {
			edges {
				node {
					id
					ingested_at
					owner { address }
					recipient
					tags { name value }
				}
			}
		}
	}
`

// QueryMessages fetches transactions matching the tag filters whose
// ingestion timestamp is at least min, in ingestion-ascending order.
func (c *Client) QueryMessages(ctx context.Context, filters []TagFilter, min int64) ([]Edge, error) {
	variables := map[string]any{
		"tagsFilter": filters,
		"min":        min,
	}

	respData, err := c.doQuery(ctx, getTransactionsQuery, variables)
	if err != nil {
		return nil, fmt.Errorf("gateway: query messages: %w", err)
	}

	var result struct {
		Transactions struct {
			Edges []struct {
				Node transactionNode `json:"node"`
			} `json:"edges"`
		} `json:"transactions"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("gateway: decode messages: %w", err)
	}

	edges := make([]Edge, 0, len(result.Transactions.Edges))
	for _, e := range result.Transactions.Edges {
		edges = append(edges, Edge{
			IngestedAt: e.Node.IngestedAt,
			Message:    e.Node.message(),
		})
	}
	return edges, nil
}

const getTransactionsAfterQuery = `
	query transactions($tagsFilter: [TagFilter!]!, $after: String) {
		transactions(
			first: 100,
			after: $after,
			tags: $tagsFilter
		) {
			pageInfo { hasNextPage }
			edges {
				cursor
				node {
					id
					ingested_at
					owner { address }
					recipient
					tags { name value }
				}
			}
		}
	}
`

// QueryMessagesAfter fetches one page of transactions matching the tag
// filters, starting after the given cursor ("" for the first page).
func (c *Client) QueryMessagesAfter(ctx context.Context, filters []TagFilter, after string) (Page, error) {
	variables := map[string]any{
		"tagsFilter": filters,
	}
	if after != "" {
		variables["after"] = after
	}

	respData, err := c.doQuery(ctx, getTransactionsAfterQuery, variables)
	if err != nil {
		return Page{}, fmt.Errorf("gateway: query messages after %q: %w", after, err)
	}

	var result struct {
		Transactions struct {
			PageInfo struct {
				HasNextPage bool `json:"hasNextPage"`
			} `json:"pageInfo"`
			Edges []struct {
				Cursor string          `json:"cursor"`
				Node   transactionNode `json:"node"`
			} `json:"edges"`
		} `json:"transactions"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return Page{}, fmt.Errorf("gateway: decode messages: %w", err)
	}

	page := Page{HasNextPage: result.Transactions.PageInfo.HasNextPage}
	for _, e := range result.Transactions.Edges {
		page.Edges = append(page.Edges, Edge{
			Cursor:     e.Cursor,
			IngestedAt: e.Node.IngestedAt,
			Message:    e.Node.message(),
		})
	}
	return page, nil
}

const getTransactionByIDQuery = `
	query transactionById($id: ID!) {
		transaction(id: $id) {
			id
			ingested_at
			owner { address }
			recipient
			tags { name value }
		}
	}
`

// GetMessage fetches a single transaction by id. It returns
// domain.ErrNotFound when the gateway has not ingested the id.
func (c *Client) GetMessage(ctx context.Context, id string) (*domain.AoMessage, error) {
	respData, err := c.doQuery(ctx, getTransactionByIDQuery, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("gateway: get message %s: %w", id, err)
	}

	var result struct {
		Transaction *transactionNode `json:"transaction"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, fmt.Errorf("gateway: decode message %s: %w", id, err)
	}
	if result.Transaction == nil {
		return nil, domain.ErrNotFound
	}
	return result.Transaction.message(), nil
}

// doQuery executes a GraphQL query against the gateway and returns the raw
// "data" field from the response.
func (c *Client) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	jsonBody, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}
	return gqlResp.Data, nil
}
