package reporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"streamflix/internal/models"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

var (
	ErrNetworkFailure     = errors.New("ledger unreachable")
	ErrRejected           = errors.New("report rejected")
	ErrStorageUnavailable = errors.New("ledger storage unavailable")
	ErrMalformedResponse  = errors.New("malformed ledger response")
)

const (
	DefaultRequestTimeout = 5 * time.Second
	readTimeout           = time.Second
	maxResponseSize       = 1 << 20
)

// Reporter delivers one seeding report to the ledger.
type Reporter interface {
	Report(ctx context.Context, report *models.SeedingReport) (*LedgerUpdate, error)
}

// LedgerUpdate is the credit response. Every field is optional on the wire and
// checked by Validate before use.
type LedgerUpdate struct {
	Success      *bool                `json:"success"`
	TokensEarned *float64             `json:"tokensEarned"`
	TotalTokens  *float64             `json:"totalTokens"`
	SeedingStats *models.SeedingStats `json:"seedingStats"`
	SeedingRank  *models.Rank         `json:"seedingRank"`
	Duplicate    *bool                `json:"duplicate"`
}

func (u *LedgerUpdate) Validate() error {
	if u.Success == nil || !*u.Success {
		return fmt.Errorf("%w: success is not true", ErrMalformedResponse)
	}
	if u.TotalTokens == nil {
		return fmt.Errorf("%w: totalTokens missing", ErrMalformedResponse)
	}
	return nil
}

// Credentials identify the seeder. InitData wins over UserID when both are set.
type Credentials struct {
	UserID   string
	InitData string
}

type LedgerClient struct {
	baseURL     string
	http        *http.Client
	credentials Credentials
}

func NewLedgerClient(baseURL string, credentials Credentials, timeout time.Duration) *LedgerClient {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &LedgerClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: timeout},
		credentials: credentials,
	}
}

func (c *LedgerClient) Report(ctx context.Context, report *models.SeedingReport) (*LedgerUpdate, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	var update LedgerUpdate
	if err := c.do(ctx, http.MethodPost, "/metrics/seeding", body, &update); err != nil {
		return nil, err
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}
	return &update, nil
}

type userMetricsEnvelope struct {
	Success bool `json:"success"`
	models.UserMetrics
}

// UserMetrics reads the caller's ledger projection.
func (c *LedgerClient) UserMetrics(ctx context.Context) (*models.UserMetrics, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var env userMetricsEnvelope
	if err := c.do(ctx, http.MethodGet, "/metrics/user", nil, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("%w: success is not true", ErrMalformedResponse)
	}
	return &env.UserMetrics, nil
}

func (c *LedgerClient) Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	var env struct {
		Success     bool                      `json:"success"`
		Leaderboard []models.LeaderboardEntry `json:"leaderboard"`
	}
	if err := c.do(ctx, http.MethodGet, "/metrics/leaderboard", nil, &env); err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, fmt.Errorf("%w: success is not true", ErrMalformedResponse)
	}
	return env.Leaderboard, nil
}

func (c *LedgerClient) authorize(req *http.Request) {
	switch {
	case c.credentials.InitData != "":
		req.Header.Set("Authorization", "tma "+c.credentials.InitData)
	case c.credentials.UserID != "":
		req.Header.Set("X-User-Id", c.credentials.UserID)
	}
}

// do sends the request and decodes a 2xx body into out. Failures are mapped to
// the package errors so callers can branch with errors.Is.
func (c *LedgerClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrNetworkFailure, err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", ErrStorageUnavailable, serverMessage(resp.StatusCode, data))
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrRejected, serverMessage(resp.StatusCode, data))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}

func serverMessage(status int, data []byte) string {
	var env struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &env) == nil && env.Error != "" {
		return fmt.Sprintf("%d %s", status, env.Error)
	}
	return http.StatusText(status)
}
