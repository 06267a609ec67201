// Package geodata adapts the external mapping provider (distance/time
// matrices, polyline routing, geocoding) and the matrix cache in front of it.
package geodata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/openfleet/lastmile/internal/domain/dispatch"
	"github.com/openfleet/lastmile/internal/domain/routing"
	"github.com/openfleet/lastmile/internal/domain/shared"
)

const (
	defaultTimeout = 30 * time.Second
	// unreachableSentinel marks provider matrix cells with no road connection.
	unreachableSentinel = 999999
)

// ClientConfig configures the mapping provider client.
type ClientConfig struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond int
	Burst             int
	MaxFailures       int
	BreakerTimeout    time.Duration
}

// Client is the HTTP mapping-provider adapter (C1). Safe for concurrent use;
// all calls go through a shared rate limiter and circuit breaker.
type Client struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	breaker     *CircuitBreaker
	baseURL     string
	apiKey      string
}

var _ routing.GeodataProvider = (*Client)(nil)

// NewClient creates a mapping provider client. Rate limit defaults to
// 10 req/s with burst 10 when unset.
func NewClient(cfg ClientConfig, clock shared.Clock) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = rps
	}
	maxFailures := cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	breakerTimeout := cfg.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 30 * time.Second
	}

	return &Client{
		httpClient:  &http.Client{Timeout: defaultTimeout},
		rateLimiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker:     NewCircuitBreaker(maxFailures, breakerTimeout, clock),
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
	}
}

// Geocode resolves free text to a coordinate.
func (c *Client) Geocode(ctx context.Context, text string) (shared.Coordinate, error) {
	var response struct {
		Results []struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"results"`
	}

	params := url.Values{}
	params.Set("q", text)
	if err := c.get(ctx, "/geocode", params, &response); err != nil {
		return shared.Coordinate{}, err
	}
	if len(response.Results) == 0 {
		return shared.Coordinate{}, shared.NewNotFoundError("geocode result", text)
	}
	return shared.NewCoordinate(response.Results[0].Lat, response.Results[0].Lon)
}

// Route computes a polyline route with traffic segments between two points.
func (c *Client) Route(ctx context.Context, origin, dest shared.Coordinate, waypoints []shared.Coordinate, departAt time.Time, kind dispatch.VehicleKind) (*routing.RouteResult, error) {
	var response struct {
		Polyline string `json:"polyline"`
		Distance struct {
			Value int `json:"value"`
		} `json:"distance"`
		Duration struct {
			Value int `json:"value"`
		} `json:"duration"`
		DurationInTraffic struct {
			Value int `json:"value"`
		} `json:"duration_in_traffic"`
		Segments []struct {
			Level    int     `json:"level"`
			SpeedKmh float64 `json:"speed_kmh"`
			LengthM  float64 `json:"length_m"`
		} `json:"segments"`
	}

	params := url.Values{}
	params.Set("origin", formatPoint(origin))
	params.Set("destination", formatPoint(dest))
	if len(waypoints) > 0 {
		params.Set("waypoints", formatPoints(waypoints))
	}
	params.Set("mode", string(kind))
	if !departAt.IsZero() {
		params.Set("depart_at", departAt.UTC().Format(time.RFC3339))
	}

	if err := c.get(ctx, "/route", params, &response); err != nil {
		return nil, err
	}

	segments := make([]routing.TrafficSegment, len(response.Segments))
	for i, s := range response.Segments {
		segments[i] = routing.TrafficSegment{Level: s.Level, SpeedKmh: s.SpeedKmh, LengthM: s.LengthM}
	}
	return &routing.RouteResult{
		Polyline:     response.Polyline,
		DistanceM:    response.Distance.Value,
		FreeTimeS:    response.Duration.Value,
		TrafficTimeS: response.DurationInTraffic.Value,
		Segments:     segments,
	}, nil
}

// Matrix fetches a distance/time matrix. Origins and destinations travel on
// the wire as pipe-joined "lon,lat" pairs; unreachable cells carry the
// provider sentinel and are mapped onto it unchanged.
func (c *Client) Matrix(ctx context.Context, origins, destinations []shared.Coordinate, departAt time.Time, kind dispatch.VehicleKind) (*routing.Matrices, error) {
	var response struct {
		Rows []struct {
			Elements []struct {
				Distance struct {
					Value int `json:"value"`
				} `json:"distance"`
				Duration struct {
					Value int `json:"value"`
				} `json:"duration"`
				DurationInTraffic struct {
					Value int `json:"value"`
				} `json:"duration_in_traffic"`
				Status string `json:"status"`
			} `json:"elements"`
		} `json:"rows"`
	}

	params := url.Values{}
	params.Set("origins", formatPoints(origins))
	params.Set("destinations", formatPoints(destinations))
	params.Set("mode", string(kind))
	if !departAt.IsZero() {
		params.Set("depart_at", departAt.UTC().Format(time.RFC3339))
	}

	if err := c.get(ctx, "/matrix", params, &response); err != nil {
		return nil, err
	}

	if len(response.Rows) != len(origins) {
		return nil, shared.NewDomainError(shared.KindServiceUnavailable,
			fmt.Sprintf("provider returned %d rows, want %d", len(response.Rows), len(origins)))
	}

	m := &routing.Matrices{
		DistanceM:    make([][]int, len(origins)),
		TimeS:        make([][]int, len(origins)),
		TrafficTimeS: make([][]int, len(origins)),
	}
	for i, row := range response.Rows {
		if len(row.Elements) != len(destinations) {
			return nil, shared.NewDomainError(shared.KindServiceUnavailable,
				fmt.Sprintf("provider row %d has %d elements, want %d", i, len(row.Elements), len(destinations)))
		}
		m.DistanceM[i] = make([]int, len(destinations))
		m.TimeS[i] = make([]int, len(destinations))
		m.TrafficTimeS[i] = make([]int, len(destinations))
		for j, el := range row.Elements {
			if el.Status != "" && el.Status != "OK" {
				m.DistanceM[i][j] = unreachableSentinel
				m.TimeS[i][j] = unreachableSentinel
				m.TrafficTimeS[i][j] = unreachableSentinel
				continue
			}
			m.DistanceM[i][j] = el.Distance.Value
			m.TimeS[i][j] = el.Duration.Value
			traffic := el.DurationInTraffic.Value
			if traffic == 0 {
				traffic = el.Duration.Value
			}
			m.TrafficTimeS[i][j] = traffic
		}
	}
	return m, nil
}

// get performs a rate-limited, breaker-protected GET and decodes JSON.
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	return c.breaker.Call(func() error {
		if c.apiKey != "" {
			params.Set("key", c.apiKey)
		}
		reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return shared.WrapDomainError(shared.KindServiceUnavailable, "mapping provider unreachable", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return shared.NewDomainError(shared.KindQuotaExceeded, "mapping provider rate limit exceeded")
		case resp.StatusCode >= 500:
			return shared.NewDomainError(shared.KindServiceUnavailable,
				fmt.Sprintf("mapping provider returned %d", resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return fmt.Errorf("mapping provider returned %d: %s", resp.StatusCode, string(body))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return shared.WrapDomainError(shared.KindServiceUnavailable, "failed to decode provider response", err)
		}
		return nil
	})
}

// formatPoint renders a coordinate as the provider's "lon,lat" pair.
func formatPoint(c shared.Coordinate) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lon, c.Lat)
}

func formatPoints(coords []shared.Coordinate) string {
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = formatPoint(c)
	}
	return strings.Join(parts, "|")
}
