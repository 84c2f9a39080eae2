// Package weather reads the latest sol from the NASA InSight feed.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

const (
	FallbackTemperature = -63
	SourceInSight       = "NASA InSight"
	SourceUnavailable   = "Average (API unavailable)"
	SourceError         = "Average (API error)"
	unknownSol          = "Unknown"
)

// Report is the payload of a weather message.
type Report struct {
	Temperature int       `json:"temperature"`
	Sol         string    `json:"sol"`
	Source      string    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewClient returns a Client for baseURL. A nil httpClient gets timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger.Named("weather"),
		now:        time.Now,
	}
}

type solData struct {
	AT *struct {
		Av *float64 `json:"av"`
		Mn *float64 `json:"mn"`
	} `json:"AT"`
}

// Fetch never fails. Transport and decode problems yield the fallback
// report with SourceError, an empty feed yields SourceUnavailable.
func (c *Client) Fetch(ctx context.Context) Report {
	report, err := c.fetch(ctx)
	if err != nil {
		c.logger.Warn("Failed to fetch Mars weather, using fallback", zap.Error(err))
		return c.fallback(SourceError)
	}
	return report
}

func (c *Client) fetch(ctx context.Context) (Report, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return Report{}, fmt.Errorf("parse weather url: %w", err)
	}
	q := u.Query()
	q.Set("api_key", c.apiKey)
	q.Set("feedtype", "json")
	q.Set("ver", "1.0")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Report{}, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Report{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Report{}, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Report{}, fmt.Errorf("weather API returned status %d", resp.StatusCode)
	}

	var feed map[string]json.RawMessage
	if err := json.Unmarshal(body, &feed); err != nil {
		return Report{}, fmt.Errorf("decode feed: %w", err)
	}

	var solKeys []string
	if raw, ok := feed["sol_keys"]; ok {
		if err := json.Unmarshal(raw, &solKeys); err != nil {
			return Report{}, fmt.Errorf("decode sol_keys: %w", err)
		}
	}
	if len(solKeys) == 0 {
		c.logger.Debug("Weather feed has no sols")
		return c.fallback(SourceUnavailable), nil
	}

	latest := solKeys[len(solKeys)-1]
	var sol solData
	if raw, ok := feed[latest]; ok {
		if err := json.Unmarshal(raw, &sol); err != nil {
			return Report{}, fmt.Errorf("decode sol %s: %w", latest, err)
		}
	}

	temp := FallbackTemperature
	if sol.AT != nil {
		switch {
		case sol.AT.Av != nil:
			temp = int(math.Round(*sol.AT.Av))
		case sol.AT.Mn != nil:
			temp = int(math.Round(*sol.AT.Mn))
		}
	}
	return Report{
		Temperature: temp,
		Sol:         latest,
		Source:      SourceInSight,
		Timestamp:   c.now().UTC(),
	}, nil
}

func (c *Client) fallback(source string) Report {
	return Report{
		Temperature: FallbackTemperature,
		Sol:         unknownSol,
		Source:      source,
		Timestamp:   c.now().UTC(),
	}
}
