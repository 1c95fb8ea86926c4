package probe

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jakopako/sitecheckr/internal/log"
	"github.com/jakopako/sitecheckr/internal/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Observer is notified of every finished probe.
type Observer interface {
	ObserveProbe(r types.ProbeReport)
}

// Batch runs many probes concurrently while bounding both the number of
// requests in flight and the request rate.
type Batch struct {
	prober      *Prober
	config      *Config
	limiter     *rate.Limiter
	concurrency int
	observer    Observer
}

func NewBatch(p *Prober, c *Config, o Observer) *Batch {
	limit := rate.Inf
	if c.RequestsPerSecond > 0 {
		limit = rate.Limit(c.RequestsPerSecond)
	}
	concurrency := c.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Batch{
		prober:      p,
		config:      c,
		limiter:     rate.NewLimiter(limit, concurrency),
		concurrency: concurrency,
		observer:    o,
	}
}

// Run probes every spec and sends one report per spec to reports. It only
// fails if ctx is done, failed probes are reported, not returned.
func (b *Batch) Run(ctx context.Context, specs []Spec, reports chan<- types.ProbeReport) error {
	logger := log.LoggerFromContext(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for _, s := range specs {
		g.Go(func() error {
			if err := b.limiter.Wait(gctx); err != nil {
				return err
			}
			pctx := log.ContextWithLogger(gctx, logger.With(slog.String("probe", s.Name)))
			r := b.probe(pctx, s)
			if b.observer != nil {
				b.observer.ObserveProbe(r)
			}
			select {
			case reports <- r:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	return g.Wait()
}

func (b *Batch) probe(ctx context.Context, s Spec) types.ProbeReport {
	url := s.URL(b.config)
	r := types.ProbeReport{
		ID:      uuid.NewString(),
		Name:    s.Name,
		URL:     url,
		Checked: time.Now(),
	}
	res, err := b.prober.Probe(ctx, url, s.Expectation(b.config))
	if err != nil {
		r.Error = err.Error()
		log.LoggerFromContext(ctx).Error("probe failed", slog.String("url", url), slog.String("err", r.Error))
		return r
	}
	r.StatusCode = res.Status
	r.ContentType = res.ContentType
	r.Latency = res.Latency
	r.OK = res.OK
	r.Diagnostics = res.Diagnostics
	if !r.OK {
		log.LoggerFromContext(ctx).Warn("probe expectations not met", slog.String("url", url), slog.Any("diagnostics", r.Diagnostics))
	}
	return r
}
