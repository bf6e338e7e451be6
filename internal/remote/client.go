package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Requester executes one GraphQL document and decodes response data into out.
type Requester interface {
	Request(ctx context.Context, query string, variables map[string]any, out any) error
}

// Config configures HTTPClient.
type Config struct {
	Domain      string
	AccessToken string
	APIVersion  string
	Timeout     time.Duration
	// MinAvailable is the cost-bucket level below which the client pauses.
	MinAvailable float64
	// MaxRetries bounds retries of THROTTLED responses.
	MaxRetries int
}

// HTTPClient speaks the Admin GraphQL API over HTTPS.
type HTTPClient struct {
	endpoint string
	token    string
	http     *http.Client
	logger   *slog.Logger
	minAvail float64
	retries  int
	sleep    func(context.Context, time.Duration) error
}

// NewHTTPClient constructs an HTTPClient. A nil httpClient uses a client with
// cfg.Timeout.
func NewHTTPClient(cfg Config, httpClient *http.Client, logger *slog.Logger) (*HTTPClient, error) {
	if cfg.Domain == "" || cfg.AccessToken == "" {
		return nil, errors.New("remote: domain and access token are required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-04"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MinAvailable <= 0 {
		cfg.MinAvailable = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	base := cfg.Domain
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return &HTTPClient{
		endpoint: strings.TrimRight(base, "/") + "/admin/api/" + cfg.APIVersion + "/graphql.json",
		token:    cfg.AccessToken,
		http:     httpClient,
		logger:   logger,
		minAvail: cfg.MinAvailable,
		retries:  cfg.MaxRetries,
		sleep:    sleepContext,
	}, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data       json.RawMessage `json:"data"`
	Errors     []ErrorEntry    `json:"errors"`
	Extensions *extensions     `json:"extensions"`
}

type extensions struct {
	Cost struct {
		RequestedQueryCost float64 `json:"requestedQueryCost"`
		ThrottleStatus     struct {
			MaximumAvailable   float64 `json:"maximumAvailable"`
			CurrentlyAvailable float64 `json:"currentlyAvailable"`
			RestoreRate        float64 `json:"restoreRate"`
		} `json:"throttleStatus"`
	} `json:"cost"`
}

// Request implements Requester.
func (c *HTTPClient) Request(ctx context.Context, query string, variables map[string]any, out any) error {
	for attempt := 0; ; attempt++ {
		resp, err := c.do(ctx, query, variables)
		if err != nil {
			return err
		}
		wait := c.backoff(resp.Extensions)
		if len(resp.Errors) > 0 {
			gqlErr := &GraphQLError{Entries: resp.Errors}
			if errors.Is(gqlErr, ErrThrottled) && attempt < c.retries {
				if wait <= 0 {
					wait = time.Second
				}
				c.logger.Warn("remote throttled, retrying", slog.Duration("wait", wait), slog.Int("attempt", attempt+1))
				if err := c.sleep(ctx, wait); err != nil {
					return err
				}
				continue
			}
			return gqlErr
		}
		if out != nil && len(resp.Data) > 0 {
			if err := json.Unmarshal(resp.Data, out); err != nil {
				return &TransportError{Op: "decode", Err: err}
			}
		}
		if wait > 0 {
			c.logger.Debug("remote cost bucket low, pausing", slog.Duration("wait", wait))
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
		}
		return nil
	}
}

func (c *HTTPClient) do(ctx context.Context, query string, variables map[string]any) (*graphQLResponse, error) {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("remote: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Op: "request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.token)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "request", Err: err}
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &TransportError{Op: "read", StatusCode: res.StatusCode, Err: err}
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &TransportError{Op: "request", StatusCode: res.StatusCode, Err: errors.New(summarize(body))}
	}
	var resp graphQLResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &TransportError{Op: "decode", StatusCode: res.StatusCode, Err: err}
	}
	return &resp, nil
}

// backoff returns how long to wait for the bucket to refill above minAvail.
func (c *HTTPClient) backoff(ext *extensions) time.Duration {
	if ext == nil {
		return 0
	}
	status := ext.Cost.ThrottleStatus
	if status.RestoreRate <= 0 || status.CurrentlyAvailable >= c.minAvail {
		return 0
	}
	need := c.minAvail - status.CurrentlyAvailable
	if ext.Cost.RequestedQueryCost > need {
		need = ext.Cost.RequestedQueryCost
	}
	return time.Duration(need / status.RestoreRate * float64(time.Second))
}

func summarize(body []byte) string {
	var env struct {
		Errors any `json:"errors"`
	}
	if json.Unmarshal(body, &env) == nil && env.Errors != nil {
		if s, ok := env.Errors.(string); ok {
			return s
		}
		b, _ := json.Marshal(env.Errors)
		return string(b)
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 256 {
		text = text[:256]
	}
	if text == "" {
		return "empty body"
	}
	return text
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
