package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/renewcast/internal/contracts"
	"github.com/wonny/renewcast/pkg/config"
	"github.com/wonny/renewcast/pkg/httputil"
)

const (
	forecastPath    = "/forecast"
	timeFormat      = "unixtime"
	maxResponseSize = 8 << 20
)

// Client fetches hourly forecasts from the Open-Meteo API
// ⭐ SSOT: 날씨 API 호출은 이 클라이언트를 통해서만 수행
type Client struct {
	http    *httputil.Client
	baseURL string
	log     zerolog.Logger
}

// NewClient creates a weather client on top of the shared HTTP client
func NewClient(httpClient *httputil.Client, baseURL string, log zerolog.Logger) *Client {
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.With().Str("component", "weather.client").Logger(),
	}
}

// forecastResponse is the subset of the provider payload we read.
// hourly stays raw so absent and null series can be told apart.
type forecastResponse struct {
	Latitude         float64                    `json:"latitude"`
	Longitude        float64                    `json:"longitude"`
	Timezone         string                     `json:"timezone"`
	UTCOffsetSeconds int                        `json:"utc_offset_seconds"`
	Hourly           map[string]json.RawMessage `json:"hourly"`
}

type providerError struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

// Fetch resolves the location descriptor and fetches the projection of t.
// It implements contracts.WeatherSource.
func (c *Client) Fetch(ctx context.Context, location string, days int, t contracts.GenerationType) ([]contracts.WeatherObservation, error) {
	projection, ok := ProjectionFor(t)
	if !ok {
		return nil, &contracts.IngestionError{Message: fmt.Sprintf("no weather projection for generation type %q", t)}
	}

	coords, parsed := ParseCoordinates(location)
	if !parsed {
		c.log.Warn().
			Str("location", location).
			Float64("latitude", coords.Latitude).
			Float64("longitude", coords.Longitude).
			Msg("unparseable location, using default coordinates")
	}

	return c.FetchProjection(ctx, coords, days, projection)
}

// FetchSolar fetches the solar projection for coords
func (c *Client) FetchSolar(ctx context.Context, coords Coordinates, days int) ([]contracts.WeatherObservation, error) {
	return c.FetchProjection(ctx, coords, days, SolarProjection)
}

// FetchWind fetches the wind projection for coords
func (c *Client) FetchWind(ctx context.Context, coords Coordinates, days int) ([]contracts.WeatherObservation, error) {
	return c.FetchProjection(ctx, coords, days, WindProjection)
}

// FetchProjection performs one all-or-nothing fetch.
// Any transport failure, non-2xx status or malformed series is an IngestionError.
func (c *Client) FetchProjection(ctx context.Context, coords Coordinates, days int, p Projection) ([]contracts.WeatherObservation, error) {
	if days < 1 || days > config.MaxForecastDays {
		return nil, &contracts.IngestionError{Message: fmt.Sprintf("forecast horizon %d out of range 1..%d", days, config.MaxForecastDays)}
	}

	start := time.Now()
	resp, err := c.http.Get(ctx, c.requestURL(coords, days, p))
	if err != nil {
		return nil, &contracts.IngestionError{Message: "weather provider unreachable", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &contracts.IngestionError{Message: "read weather response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("weather provider returned status %d", resp.StatusCode)
		var pe providerError
		if json.Unmarshal(body, &pe) == nil && pe.Reason != "" {
			msg += ": " + pe.Reason
		}
		return nil, &contracts.IngestionError{Message: msg}
	}

	var payload forecastResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &contracts.IngestionError{Message: "malformed weather response", Err: err}
	}

	observations, err := decodeHourly(payload, p)
	if err != nil {
		return nil, &contracts.IngestionError{Message: "malformed hourly series", Err: err}
	}

	if want := 24 * days; len(observations) != want {
		c.log.Warn().
			Int("expected", want).
			Int("received", len(observations)).
			Str("timezone", payload.Timezone).
			Msg("hourly series length differs from horizon")
	}

	c.log.Debug().
		Str("generation_type", string(p.Type)).
		Float64("latitude", coords.Latitude).
		Float64("longitude", coords.Longitude).
		Int("observations", len(observations)).
		Dur("duration", time.Since(start)).
		Msg("weather fetched")

	return observations, nil
}

func (c *Client) requestURL(coords Coordinates, days int, p Projection) string {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(coords.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(coords.Longitude, 'f', -1, 64))
	q.Set("hourly", strings.Join(p.Variables(), ","))
	q.Set("timezone", "auto")
	// DST 전환 구간에서도 단조 증가하도록 epoch 초로 받음
	q.Set("timeformat", timeFormat)
	q.Set("forecast_days", strconv.Itoa(days))
	for k, v := range p.params {
		q.Set(k, v)
	}
	return c.baseURL + forecastPath + "?" + q.Encode()
}

// decodeHourly turns the parallel hourly arrays into observations
func decodeHourly(payload forecastResponse, p Projection) ([]contracts.WeatherObservation, error) {
	rawTimes, ok := payload.Hourly["time"]
	if !ok {
		return nil, fmt.Errorf("hourly.time missing")
	}
	var times []int64
	if err := json.Unmarshal(rawTimes, &times); err != nil {
		return nil, fmt.Errorf("hourly.time: %w", err)
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("hourly.time empty")
	}

	loc := providerLocation(payload)
	observations := make([]contracts.WeatherObservation, len(times))
	var prev time.Time
	for i, sec := range times {
		ts := truncateHour(time.Unix(sec, 0).In(loc))
		if i > 0 && !ts.After(prev) {
			return nil, fmt.Errorf("hourly.time[%d] %s not after %s", i, ts.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
		prev = ts
		observations[i] = contracts.WeatherObservation{
			Time:  ts,
			Month: int(ts.Month()),
			Hour:  ts.Hour(),
		}
	}

	for _, v := range p.variables {
		raw, ok := payload.Hourly[v.name]
		if !ok {
			return nil, fmt.Errorf("hourly.%s missing", v.name)
		}
		var values []*float64
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, fmt.Errorf("hourly.%s: %w", v.name, err)
		}
		if len(values) != len(times) {
			return nil, fmt.Errorf("hourly.%s has %d values for %d timestamps", v.name, len(values), len(times))
		}
		for i, val := range values {
			if val == nil {
				return nil, fmt.Errorf("hourly.%s[%d] is null", v.name, i)
			}
			v.assign(&observations[i], *val)
		}
	}

	return observations, nil
}

// providerLocation prefers the IANA zone and falls back to the fixed offset
func providerLocation(payload forecastResponse) *time.Location {
	if payload.Timezone != "" {
		if loc, err := time.LoadLocation(payload.Timezone); err == nil {
			return loc
		}
	}
	if payload.UTCOffsetSeconds == 0 && (payload.Timezone == "" || payload.Timezone == "GMT") {
		return time.UTC
	}
	return time.FixedZone(payload.Timezone, payload.UTCOffsetSeconds)
}

// truncateHour drops minutes in local wall-clock terms.
// It works on the instant so the repeated hour of a DST fall-back stays distinct.
func truncateHour(t time.Time) time.Time {
	past := time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
	return t.Add(-past)
}
