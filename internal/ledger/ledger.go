// Package ledger implements the write boundary to the certificate contract.
// The chain itself is opaque: minting goes through a relayer service that
// signs and submits the transaction, and this package polls the returned
// transaction handle until it is finalized.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrRejected means the relayer (or the user through their wallet)
	// declined to sign the mint transaction.
	ErrRejected = errors.New("mint transaction rejected")
	// ErrChain wraps network or chain-level failures.
	ErrChain = errors.New("chain error")
)

// TxHandle identifies a submitted transaction.
type TxHandle struct {
	Hash string `json:"hash"`
}

// Writer is the ledger write boundary: a single mint call returning a
// transaction handle, and a wait for its finalization.
type Writer interface {
	// Mint submits a certificate mint for the destination address and
	// metadata URI.
	Mint(ctx context.Context, to, metadataURI string) (TxHandle, error)

	// WaitFinalized blocks until the transaction is finalized, the chain
	// reports failure, or the context is cancelled.
	WaitFinalized(ctx context.Context, handle TxHandle) error
}

// Config holds configuration for the relayer client.
type Config struct {
	BaseURL         string
	ContractAddress string
	RequestTimeout  time.Duration
	PollInterval    time.Duration
	PollMaxInterval time.Duration
}

// DefaultConfig returns default relayer client configuration.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:  30 * time.Second,
		PollInterval:    2 * time.Second,
		PollMaxInterval: 15 * time.Second,
	}
}

// RelayerClient implements Writer against the HTTP relayer service.
type RelayerClient struct {
	cfg  Config
	http *http.Client
}

// NewRelayerClient creates a relayer-backed ledger writer.
func NewRelayerClient(cfg Config) *RelayerClient {
	def := DefaultConfig()
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.PollMaxInterval <= 0 {
		cfg.PollMaxInterval = def.PollMaxInterval
	}
	return &RelayerClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

type mintRequest struct {
	Contract    string `json:"contract"`
	To          string `json:"to"`
	MetadataURI string `json:"metadata_uri"`
}

type mintResponse struct {
	TxHash string `json:"tx_hash"`
	Error  string `json:"error,omitempty"`
}

type txStatusResponse struct {
	Status string `json:"status"` // "pending", "finalized", "failed", "rejected"
	Error  string `json:"error,omitempty"`
}

// Mint submits the mint transaction through the relayer.
func (c *RelayerClient) Mint(ctx context.Context, to, metadataURI string) (TxHandle, error) {
	body, err := json.Marshal(mintRequest{
		Contract:    c.cfg.ContractAddress,
		To:          to,
		MetadataURI: metadataURI,
	})
	if err != nil {
		return TxHandle{}, fmt.Errorf("encode mint request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/mint", bytes.NewReader(body))
	if err != nil {
		return TxHandle{}, fmt.Errorf("build mint request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return TxHandle{}, fmt.Errorf("%w: %v", ErrChain, err)
	}
	defer resp.Body.Close()

	var out mintResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return TxHandle{}, fmt.Errorf("%w: decode mint response: %v", ErrChain, err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		if out.TxHash == "" {
			return TxHandle{}, fmt.Errorf("%w: relayer returned no tx hash", ErrChain)
		}
		return TxHandle{Hash: out.TxHash}, nil
	case http.StatusForbidden:
		return TxHandle{}, fmt.Errorf("%w: %s", ErrRejected, out.Error)
	default:
		return TxHandle{}, fmt.Errorf("%w: status %d: %s", ErrChain, resp.StatusCode, out.Error)
	}
}

// WaitFinalized polls the relayer for transaction status with backoff until
// the transaction settles or the context is cancelled.
func (c *RelayerClient) WaitFinalized(ctx context.Context, handle TxHandle) error {
	interval := c.cfg.PollInterval

	for {
		status, err := c.txStatus(ctx, handle)
		if err == nil {
			switch status.Status {
			case "finalized":
				return nil
			case "failed":
				return fmt.Errorf("%w: %s", ErrChain, status.Error)
			case "rejected":
				return fmt.Errorf("%w: %s", ErrRejected, status.Error)
			}
			// "pending" falls through to the next poll.
		} else if ctx.Err() != nil {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		interval *= 2
		if interval > c.cfg.PollMaxInterval {
			interval = c.cfg.PollMaxInterval
		}
	}
}

func (c *RelayerClient) txStatus(ctx context.Context, handle TxHandle) (*txStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/tx/"+handle.Hash, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChain, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrChain, resp.StatusCode)
	}

	var out txStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode status response: %v", ErrChain, err)
	}
	return &out, nil
}

// Health checks that the relayer is reachable.
func (c *RelayerClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrChain, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrChain, resp.StatusCode)
	}
	return nil
}
