// Package ao is the client for the ledger's message-submission and dry-run
// services. Writes go to a messenger unit (mu) as signed data items; reads
// go to a compute unit (cu) as non-committing dryruns. The package does no
// retrying of its own: confirmation retry/backoff is entirely the
// correlation protocol's concern.
package ao

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/perplexfi/perplex-go/internal/domain"
)

// DataItem is the signable unit of a write: a target process, an anchor for
// uniqueness, and the ordered tag set.
type DataItem struct {
	Target string
	Anchor string
	Tags   domain.Tags
	Data   []byte
}

// Signer produces a signature over a data item. The SDK never inspects the
// credential behind it.
type Signer interface {
	// Address returns the 43-char ledger address of the signing identity.
	Address() string
	// SignDataItem returns the signature bytes for the item.
	SignDataItem(item DataItem) ([]byte, error)
}

// ProcessMessage is one synthetic or caused message returned by a dryrun or
// result lookup.
type ProcessMessage struct {
	Target string      `json:"Target"`
	Data   string      `json:"Data"`
	Tags   domain.Tags `json:"Tags"`
}

// Messenger abstracts message submission and process reads so operations can
// be tested against fakes.
type Messenger interface {
	Submit(ctx context.Context, process string, tags domain.Tags, data []byte, signer Signer) (string, error)
	Dryrun(ctx context.Context, process string, tags domain.Tags, data []byte) ([]ProcessMessage, error)
	AwaitResult(ctx context.Context, messageID, process string) ([]ProcessMessage, error)
}

// Client is the HTTP Messenger implementation.
type Client struct {
	muURL      string
	cuURL      string
	httpClient *http.Client
}

// NewClient creates a messenger client for the given messenger-unit and
// compute-unit endpoints.
func NewClient(muURL, cuURL string) *Client {
	return &Client{
		muURL: muURL,
		cuURL: cuURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// submitRequest is the wire form of a signed data item.
type submitRequest struct {
	Target    string      `json:"target"`
	Anchor    string      `json:"anchor"`
	Tags      domain.Tags `json:"tags"`
	Data      []byte      `json:"data,omitempty"`
	Owner     string      `json:"owner"`
	Signature []byte      `json:"signature"`
}

// Submit signs and broadcasts a message to the target process and returns
// the assigned message id. Submission is complete once the id is returned;
// there is no blocking on settlement. A unique X-Client-Ref tag is appended
// for client-side tracing.
func (c *Client) Submit(ctx context.Context, process string, tags domain.Tags, data []byte, signer Signer) (string, error) {
	item := DataItem{
		Target: process,
		Anchor: uuid.NewString(),
		Tags:   append(append(domain.Tags{}, tags...), domain.Tag{Name: "X-Client-Ref", Value: uuid.NewString()}),
		Data:   data,
	}

	sig, err := signer.SignDataItem(item)
	if err != nil {
		return "", fmt.Errorf("ao: sign data item: %w", err)
	}

	body, err := json.Marshal(submitRequest{
		Target:    item.Target,
		Anchor:    item.Anchor,
		Tags:      item.Tags,
		Data:      item.Data,
		Owner:     signer.Address(),
		Signature: sig,
	})
	if err != nil {
		return "", fmt.Errorf("ao: marshal submit request: %w", err)
	}

	respBody, err := c.post(ctx, c.muURL, body)
	if err != nil {
		return "", fmt.Errorf("ao: submit to %s: %w", process, err)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("ao: decode submit response: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("ao: submit to %s: %w", process, domain.ErrUpstreamUnavailable)
	}
	return result.ID, nil
}

// dryrunRequest is the wire form of a dryrun call.
type dryrunRequest struct {
	Target string      `json:"Target"`
	Tags   domain.Tags `json:"Tags"`
	Data   string      `json:"Data,omitempty"`
}

// processResult is the compute unit's evaluation result envelope.
type processResult struct {
	Messages []ProcessMessage `json:"Messages"`
	Error    string           `json:"Error,omitempty"`
}

// Dryrun simulates sending a message to a process without committing it and
// returns the messages the process would emit. This is the read path for
// process state: reserves, balances, account summaries.
func (c *Client) Dryrun(ctx context.Context, process string, tags domain.Tags, data []byte) ([]ProcessMessage, error) {
	body, err := json.Marshal(dryrunRequest{
		Target: process,
		Tags:   tags,
		Data:   string(data),
	})
	if err != nil {
		return nil, fmt.Errorf("ao: marshal dryrun request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/dry-run?process-id=%s", c.cuURL, url.QueryEscape(process))
	respBody, err := c.post(ctx, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("ao: dryrun on %s: %w", process, err)
	}

	var result processResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("ao: decode dryrun response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("ao: dryrun on %s: %s", process, result.Error)
	}
	return result.Messages, nil
}

// AwaitResult fetches the effect messages caused by a previously submitted
// message. The compute unit blocks until the message has been evaluated, so
// this doubles as a cheap liveness checkpoint before full correlation
// polling.
func (c *Client) AwaitResult(ctx context.Context, messageID, process string) ([]ProcessMessage, error) {
	endpoint := fmt.Sprintf("%s/result/%s?process-id=%s", c.cuURL, url.PathEscape(messageID), url.QueryEscape(process))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("ao: create result request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ao: result of %s: %w", messageID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ao: read result response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ao: result of %s: HTTP %d: %s", messageID, resp.StatusCode, string(respBody))
	}

	var result processResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("ao: decode result response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("ao: result of %s: %s", messageID, result.Error)
	}
	return result.Messages, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
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

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
