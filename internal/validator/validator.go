// Package validator implements the client for the external AI code
// validation service. The service judges submitted Solidity code against a
// problem statement; this package turns its response into a tagged
// domain.Verdict so a negative verdict is never confused with a transport
// failure.
package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aibekov/chaincademy/internal/domain"
)

// ErrUnavailable wraps transport and protocol failures talking to the
// validation service. A wrapped ErrUnavailable means "no verdict", not
// "code rejected".
var ErrUnavailable = errors.New("validation service unavailable")

// Client produces a validation verdict for submitted code.
type Client interface {
	// Validate judges code against a problem statement. A nil error with
	// Verdict.Valid == false is a normal negative result.
	Validate(ctx context.Context, problemStatement, code string) (*domain.Verdict, error)
}

// Config holds configuration for the HTTP validator client.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 60 * time.Second,
	}
}

// HTTPClient is the JSON-over-HTTP implementation of Client.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient creates a validator client for the given base URL.
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().RequestTimeout
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type validateRequest struct {
	ProblemStatement string `json:"problem_statement"`
	Code             string `json:"code"`
}

type validateResponse struct {
	Status         bool     `json:"status"`
	SyntaxCorrect  bool     `json:"syntax_correct"`
	CompilableCode bool     `json:"compilable_code"`
	Error          string   `json:"error"`
	Score          *float64 `json:"score,omitempty"`
}

// Validate posts the problem statement and code to the validation service.
func (c *HTTPClient) Validate(ctx context.Context, problemStatement, code string) (*domain.Verdict, error) {
	body, err := json.Marshal(validateRequest{
		ProblemStatement: problemStatement,
		Code:             code,
	})
	if err != nil {
		return nil, fmt.Errorf("encode validation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/validate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build validation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	var out validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	return &domain.Verdict{
		Valid:         out.Status,
		SyntaxCorrect: out.SyntaxCorrect,
		Compilable:    out.CompilableCode,
		ErrorText:     out.Error,
		Score:         out.Score,
	}, nil
}

// Health checks that the validation service is reachable.
func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}
