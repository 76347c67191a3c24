package mempool

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/wire"
	"golang.org/x/time/rate"
)

// Config configures the mempool.space API client.
type Config struct {
	// BaseURL is the API root, e.g. https://mempool.space/api.
	BaseURL string

	// RateLimit caps outbound requests per second.
	RateLimit int

	// Timeout bounds a single HTTP round trip.
	Timeout time.Duration

	// RetryAttempts is how many times a failed request is retried.
	RetryAttempts int

	// RetryDelay is the base delay between retries; it grows with the
	// attempt number.
	RetryDelay time.Duration
}

// DefaultConfig returns sane defaults for talking to the public
// mempool.space instance.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       "https://mempool.space/api",
		RateLimit:     10,
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}
}

// Client is a rate-limited, retrying HTTP client for the mempool.space
// REST API.
type Client struct {
	cfg *Config

	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewClient builds a Client. A nil cfg uses DefaultConfig.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &Client{
		cfg:         cfg,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit),
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	url := c.cfg.BaseURL + path

	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryAttempts; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("mempool client: rate limiter: %w", err)
		}

		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
		if err != nil {
			return nil, fmt.Errorf("mempool client: build request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("mempool client: request: %w", err)
			if attempt < c.cfg.RetryAttempts {
				time.Sleep(c.cfg.RetryDelay * time.Duration(attempt+1))
				continue
			}
			return nil, lastErr
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("mempool client: read response: %w", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return respBody, nil
		}

		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			lastErr = fmt.Errorf("mempool client: rate limited by server")
			if attempt < c.cfg.RetryAttempts {
				time.Sleep(c.cfg.RetryDelay * time.Duration(attempt+1) * 2)
				continue
			}
		case http.StatusNotFound:
			return nil, fmt.Errorf("mempool client: not found: %s", string(respBody))
		case http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			lastErr = fmt.Errorf("mempool client: server error %d: %s", resp.StatusCode, string(respBody))
			if attempt < c.cfg.RetryAttempts {
				time.Sleep(c.cfg.RetryDelay * time.Duration(attempt+1))
				continue
			}
		default:
			return nil, fmt.Errorf("mempool client: unexpected status %d: %s", resp.StatusCode, string(respBody))
		}
	}

	return nil, fmt.Errorf("mempool client: exhausted %d retries: %w", c.cfg.RetryAttempts, lastErr)
}

// GetCurrentHeight returns the chain tip height.
func (c *Client) GetCurrentHeight(ctx context.Context) (uint32, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/blocks/tip/height", nil)
	if err != nil {
		return 0, err
	}

	var height uint32
	if err := json.Unmarshal(body, &height); err != nil {
		return 0, fmt.Errorf("mempool client: parse height: %w", err)
	}
	return height, nil
}

// GetBlockHash returns the block hash at a given height.
func (c *Client) GetBlockHash(ctx context.Context, height int64) (string, error) {
	body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/block-height/%d", height), nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// GetBlock returns a block's header fields by its hash.
func (c *Client) GetBlock(ctx context.Context, blockHash string) (*BlockResponse, error) {
	body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/block/%s", blockHash), nil)
	if err != nil {
		return nil, err
	}

	var block BlockResponse
	if err := json.Unmarshal(body, &block); err != nil {
		return nil, fmt.Errorf("mempool client: parse block: %w", err)
	}
	return &block, nil
}

// GetBlockTxids returns the txids of every transaction in a block, in
// block order, for inclusion-proof construction.
func (c *Client) GetBlockTxids(ctx context.Context, blockHash string) ([]string, error) {
	body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/block/%s/txids", blockHash), nil)
	if err != nil {
		return nil, err
	}

	var txids []string
	if err := json.Unmarshal(body, &txids); err != nil {
		return nil, fmt.Errorf("mempool client: parse txids: %w", err)
	}
	return txids, nil
}

// GetTransactionHex returns a transaction's raw hex encoding, for full
// completeness-proof transaction reconstruction.
func (c *Client) GetTransactionHex(ctx context.Context, txid string) (string, error) {
	body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/tx/%s/hex", txid), nil)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// GetTransaction returns a transaction's metadata and confirmation status.
func (c *Client) GetTransaction(ctx context.Context, txid string) (*TransactionResponse, error) {
	body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/tx/%s", txid), nil)
	if err != nil {
		return nil, err
	}

	var tx TransactionResponse
	if err := json.Unmarshal(body, &tx); err != nil {
		return nil, fmt.Errorf("mempool client: parse transaction: %w", err)
	}
	return &tx, nil
}

// GetAddressUTXOs returns the spendable outputs currently sitting at an
// address, for sequencer wallet funding.
func (c *Client) GetAddressUTXOs(ctx context.Context, address string) ([]UTXOResponse, error) {
	body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/address/%s/utxo", address), nil)
	if err != nil {
		return nil, err
	}

	var utxos []UTXOResponse
	if err := json.Unmarshal(body, &utxos); err != nil {
		return nil, fmt.Errorf("mempool client: parse utxos: %w", err)
	}
	return utxos, nil
}

// BroadcastTransaction submits a signed transaction to the network.
func (c *Client) BroadcastTransaction(ctx context.Context, tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("mempool client: serialize transaction: %w", err)
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/tx", []byte(hex.EncodeToString(buf.Bytes())))
	if err != nil {
		return "", fmt.Errorf("mempool client: broadcast: %w", err)
	}
	return string(respBody), nil
}

// GetFeeEstimates returns fee rate recommendations, in sat/vB.
func (c *Client) GetFeeEstimates(ctx context.Context) (*FeeEstimates, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/v1/fees/recommended", nil)
	if err != nil {
		return nil, err
	}

	var fees FeeEstimates
	if err := json.Unmarshal(body, &fees); err != nil {
		return nil, fmt.Errorf("mempool client: parse fee estimates: %w", err)
	}
	return &fees, nil
}
