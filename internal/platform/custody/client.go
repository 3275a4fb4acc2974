// Package custody moves the staking asset between user wallets and market
// escrow. Client talks to the custody service over signed HTTP; Sandbox keeps
// balances in memory for local runs.
package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/afrifutures/marketd/internal/crypto"
	"github.com/afrifutures/marketd/internal/domain"
)

// Client is the REST client for the custody service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       *crypto.HMACAuth
}

var _ domain.AssetTransfer = (*Client)(nil)

// NewClient creates a custody client. Requests are HMAC-signed with auth.
func NewClient(baseURL string, auth *crypto.HMACAuth, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		auth:       auth,
	}
}

type transferRequest struct {
	User           string `json:"user"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

type transferResponse struct {
	ReceiptID string `json:"receipt_id"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

// TransferIn debits user and credits escrow.
func (c *Client) TransferIn(ctx context.Context, user string, amount int64) (domain.Receipt, error) {
	return c.transfer(ctx, domain.TransferIn, user, amount)
}

// TransferOut debits escrow and credits user.
func (c *Client) TransferOut(ctx context.Context, user string, amount int64) (domain.Receipt, error) {
	return c.transfer(ctx, domain.TransferOut, user, amount)
}

func (c *Client) transfer(ctx context.Context, dir domain.TransferDirection, user string, amount int64) (domain.Receipt, error) {
	path := "/v1/transfers/" + string(dir)
	key, ok := domain.IdempotencyKey(ctx)
	if !ok {
		key = uuid.NewString()
	}
	req := transferRequest{User: user, Amount: amount, IdempotencyKey: key}

	body, err := c.doPost(ctx, path, req)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("custody: transfer %s %s: %w", dir, user, err)
	}

	var resp transferResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Receipt{}, fmt.Errorf("custody: decode transfer %s: %w: %w", dir, domain.ErrTransferFailed, err)
	}
	if resp.Status != "" && resp.Status != "completed" {
		return domain.Receipt{}, fmt.Errorf("custody: transfer %s status %q: %w", dir, resp.Status, domain.ErrTransferFailed)
	}

	created := time.Now().UTC()
	if resp.CreatedAt > 0 {
		created = time.Unix(resp.CreatedAt, 0).UTC()
	}
	return domain.Receipt{
		ID:        resp.ReceiptID,
		User:      user,
		Amount:    amount,
		Direction: dir,
		CreatedAt: created,
	}, nil
}

func (c *Client) doPost(ctx context.Context, path string, payload any) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.auth != nil {
		for k, v := range c.auth.Headers(http.MethodPost, path, string(jsonBody)) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %w", domain.ErrTransferFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", domain.ErrTransferFailed, err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to transfer errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s", domain.ErrInsufficientFunds, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w: %s", domain.ErrTransferFailed, domain.ErrUnauthorized, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrTransferFailed, statusCode, bodyStr)
	}
}
