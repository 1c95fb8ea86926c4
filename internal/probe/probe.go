// Package probe checks HTTP APIs: a probe issues one GET and evaluates every
// expectation on the response, reporting all violations at once.
package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/antchfx/jsonquery"
	"github.com/jakopako/sitecheckr/internal/log"
	"github.com/jakopako/sitecheckr/internal/types"
)

const maxBodySize = 10 << 20

// Config configures the prober and the defaults of declared probes.
type Config struct {
	Root              string        `yaml:"root" env:"PROBE_ROOT" env-default:"https://api.zippopotam.us"`
	ContentType       string        `yaml:"content_type" env-default:"json"`
	MaxLatency        time.Duration `yaml:"max_latency" env:"PROBE_MAX_LATENCY" env-default:"1s"`
	Timeout           time.Duration `yaml:"timeout" env-default:"10s"`
	Concurrency       int           `yaml:"concurrency" env-default:"4"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env-default:"5"`
	UserAgent         string        `yaml:"user_agent"`
	PostalCases       string        `yaml:"postal_cases"`
}

// Expectation is what a response has to satisfy. Zero fields are not
// checked.
type Expectation struct {
	Status      int
	ContentType string
	MaxLatency  time.Duration
	Body        func(doc *jsonquery.Node) error
}

// Result is the outcome of one probe. OK is true iff Diagnostics is empty.
type Result struct {
	URL         string        `json:"url"`
	Status      int           `json:"status"`
	ContentType string        `json:"contentType"`
	Latency     time.Duration `json:"latency"`
	OK          bool          `json:"ok"`
	Diagnostics []string      `json:"diagnostics,omitempty"`
}

// Err returns nil for a passed probe and an ErrProbeFailed error listing the
// diagnostics otherwise.
func (r *Result) Err() error {
	if r.OK {
		return nil
	}
	return &types.Error{
		Kind:    types.ErrProbeFailed,
		Op:      "probe",
		Locator: r.URL,
		Err:     errors.New(strings.Join(r.Diagnostics, "; ")),
	}
}

// Prober issues probes. It holds no state besides its http client and is safe
// for concurrent use.
type Prober struct {
	client    *http.Client
	userAgent string
}

func NewProber(c *Config) *Prober {
	return &Prober{
		client:    &http.Client{Timeout: c.Timeout},
		userAgent: c.UserAgent,
	}
}

// NewProberWithClient returns a prober using client for its requests.
func NewProberWithClient(client *http.Client) *Prober {
	return &Prober{client: client}
}

// Probe issues a GET to url and checks the response against exp. Latency is
// measured until the response headers arrive. A failed request is returned as
// an ErrTransport error, failed expectations only show in the result.
func (p *Prober) Probe(ctx context.Context, url string, exp Expectation) (*Result, error) {
	logger := log.LoggerFromContext(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &types.Error{Kind: types.ErrTransport, Op: "GET", Locator: url, Err: err}
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	start := time.Now()
	resp, err := p.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &types.Error{Kind: types.ErrTransport, Op: "GET", Locator: url, Err: err}
	}
	defer resp.Body.Close()

	res := &Result{
		URL:         url,
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Latency:     latency,
	}
	logger.Debug("probe response", slog.String("url", url), slog.Int("status", res.Status), slog.Duration("latency", latency))

	var diags []string
	if exp.Status != 0 && res.Status != exp.Status {
		diags = append(diags, fmt.Sprintf("status: expected %d, got %d", exp.Status, res.Status))
	}
	if exp.ContentType != "" && !strings.Contains(res.ContentType, exp.ContentType) {
		diags = append(diags, fmt.Sprintf("content type: expected %q in %q", exp.ContentType, res.ContentType))
	}
	if exp.MaxLatency > 0 && latency >= exp.MaxLatency {
		diags = append(diags, fmt.Sprintf("latency: expected below %s, got %s", exp.MaxLatency, latency))
	}
	if exp.Body != nil {
		diags = append(diags, checkBody(resp.Body, exp.Body)...)
	}
	res.Diagnostics = diags
	res.OK = len(diags) == 0
	return res, nil
}

func checkBody(body io.Reader, pred func(*jsonquery.Node) error) []string {
	b, err := io.ReadAll(io.LimitReader(body, maxBodySize))
	if err != nil {
		return []string{fmt.Sprintf("body: failed to read: %v", err)}
	}
	doc, err := jsonquery.Parse(bytes.NewReader(b))
	if err != nil {
		return []string{fmt.Sprintf("body: invalid json: %v", err)}
	}
	err = pred(doc)
	if err == nil {
		return nil
	}
	var diags []string
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			diags = append(diags, "body: "+e.Error())
		}
		return diags
	}
	return []string{"body: " + err.Error()}
}

// CheckLink reports whether url answers with status. It lets the scenario
// runner verify links found on pages.
func (p *Prober) CheckLink(ctx context.Context, url string, status int) error {
	res, err := p.Probe(ctx, url, Expectation{Status: status})
	if err != nil {
		return err
	}
	return res.Err()
}
