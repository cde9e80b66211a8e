// Package upstream talks to the dataset service that builds and serves the
// yearly frames and per-year heat geography.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"grid_adequacy/internal/metrics"
	"grid_adequacy/internal/models"

	geojson "github.com/paulmach/go.geojson"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 64 << 20

	opRebuild = "rebuild"
	opFrames  = "frames"
	opHeat    = "heat"
)

// ErrEmptyBaseURL is returned by New when no upstream address is configured.
var ErrEmptyBaseURL = errors.New("upstream base url is empty")

// StatusError reports a non-2xx upstream answer.
type StatusError struct {
	Op     string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s: unexpected status %s", e.Op, e.Status)
}

// Temporary reports whether retrying the same request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// RebuildParams are forwarded to the rebuild endpoint.
type RebuildParams struct {
	Horizon       int
	StepDeg       float64
	DemandGrowth  float64
	ReserveMargin float64
}

// DefaultRebuildParams mirrors the dataset service defaults.
func DefaultRebuildParams() RebuildParams {
	return RebuildParams{Horizon: 15, StepDeg: 0.12, DemandGrowth: 0.045, ReserveMargin: 0.15}
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	params  RebuildParams
}

// New builds a client for baseURL. A nil httpClient gets a default with timeout.
func New(baseURL string, httpClient *http.Client, timeout time.Duration, params RebuildParams) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrEmptyBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse upstream base url %q: %w", baseURL, err)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: baseURL, http: httpClient, params: params}, nil
}

// Rebuild asks the dataset service to (re)materialize the series. Idempotent.
func (c *Client) Rebuild(ctx context.Context) error {
	q := url.Values{}
	q.Set("horizon", strconv.Itoa(c.params.Horizon))
	q.Set("step_deg", strconv.FormatFloat(c.params.StepDeg, 'f', -1, 64))
	q.Set("demand_growth", strconv.FormatFloat(c.params.DemandGrowth, 'f', -1, 64))
	q.Set("reserve_margin", strconv.FormatFloat(c.params.ReserveMargin, 'f', -1, 64))

	body, err := c.do(ctx, opRebuild, http.MethodPost, "/admin/rebuild?"+q.Encode())
	if err != nil {
		return err
	}
	_ = body.Close()
	return nil
}

// framesResponse is the wire shape of GET /frames.
type framesResponse struct {
	Years  []models.Year `json:"years"`
	Frames []struct {
		Year    models.Year            `json:"year"`
		Metrics map[string]json.Number `json:"metrics"`
	} `json:"frames"`
}

// GetFrames returns the ordered years and per-year metrics. The result is not validated.
func (c *Client) GetFrames(ctx context.Context) (models.FrameSet, error) {
	body, err := c.do(ctx, opFrames, http.MethodGet, "/frames")
	if err != nil {
		return models.FrameSet{}, err
	}
	defer func() { _ = body.Close() }()

	var wire framesResponse
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&wire); err != nil {
		return models.FrameSet{}, fmt.Errorf("decode frames: %w", err)
	}

	fs := models.FrameSet{Years: wire.Years, Frames: make([]models.Frame, 0, len(wire.Frames))}
	for _, f := range wire.Frames {
		m := make(models.Metrics, len(f.Metrics))
		for k, n := range f.Metrics {
			// non-numeric entries are dropped and read back as missing
			if v, err := n.Float64(); err == nil {
				m[k] = v
			}
		}
		fs.Frames = append(fs.Frames, models.Frame{Year: f.Year, Metrics: m})
	}
	return fs, nil
}

// GetHeat returns the density feature collection of one year.
func (c *Client) GetHeat(ctx context.Context, year models.Year) (*geojson.FeatureCollection, error) {
	body, err := c.do(ctx, opHeat, http.MethodGet, "/heat/"+strconv.Itoa(year))
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read heat %d: %w", year, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("decode heat %d: %w", year, err)
	}
	return fc, nil
}

// do issues the request and returns the body of a 2xx answer.
func (c *Client) do(ctx context.Context, op, method, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	t0 := time.Now()
	resp, err := c.http.Do(req)
	metrics.UpstreamDurationMs.WithLabelValues(op).Observe(float64(time.Since(t0).Milliseconds()))
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("upstream %s: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		metrics.UpstreamRequestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()
		return nil, &StatusError{Op: op, Code: resp.StatusCode, Status: resp.Status}
	}
	metrics.UpstreamRequestsTotal.WithLabelValues(op, "ok").Inc()
	return resp.Body, nil
}
