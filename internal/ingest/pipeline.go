// Package ingest runs photos through normalize then upload on a bounded
// number of workers.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"backend-lacakair/internal/imaging"
	"backend-lacakair/internal/shared/logging"
	"backend-lacakair/internal/upload"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	StageNormalize = "normalize"
	StageUpload    = "upload"
)

// Observer receives per-stage timings with the outcome kind.
type Observer interface {
	ObserveStage(stage string, elapsed time.Duration, kind string)
	ObserveUploadBytes(n int)
}

type Result struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Bytes  int    `json:"bytes"`
}

type Pipeline struct {
	normalizer *imaging.Normalizer
	uploader   upload.Uploader
	workers    int
	sem        *semaphore.Weighted
	observer   Observer
	log        *slog.Logger
}

type Option func(*Pipeline)

func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

func New(normalizer *imaging.Normalizer, uploader upload.Uploader, workers int, opts ...Option) *Pipeline {
	if workers <= 0 {
		workers = 1
	}
	p := &Pipeline{
		normalizer: normalizer,
		uploader:   uploader,
		workers:    workers,
		sem:        semaphore.NewWeighted(int64(workers)),
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.observer == nil {
		p.observer = nopObserver{}
	}
	p.log = logging.OrDefault(p.log)
	return p
}

func (p *Pipeline) Workers() int { return p.workers }

// Process normalizes and uploads one photo. Errors are returned as produced
// by the normalizer or uploader; nothing is retried. Callers must not submit
// the same photo twice concurrently.
func (p *Pipeline) Process(ctx context.Context, raw imaging.RawImage) (Result, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	defer p.sem.Release(1)

	start := time.Now()
	img, err := p.normalizer.Normalize(raw)
	p.observer.ObserveStage(StageNormalize, time.Since(start), Kind(err))
	if err != nil {
		p.log.Warn("normalize failed", "uri", raw.URI, "kind", Kind(err), "error", err)
		return Result{}, err
	}

	start = time.Now()
	hosted, err := p.uploader.Upload(ctx, img)
	p.observer.ObserveStage(StageUpload, time.Since(start), Kind(err))
	if err != nil {
		p.log.Warn("upload failed", "uri", raw.URI, "kind", Kind(err), "retryable", upload.Retryable(err), "error", err)
		return Result{}, err
	}
	p.observer.ObserveUploadBytes(len(img.Data))

	return Result{URL: hosted, Width: img.Width, Height: img.Height, Bytes: len(img.Data)}, nil
}

// ProcessBatch processes independent photos concurrently. results[i] and
// errs[i] belong to raws[i]; one failure does not stop the others.
func (p *Pipeline) ProcessBatch(ctx context.Context, raws []imaging.RawImage) ([]Result, []error) {
	results := make([]Result, len(raws))
	errs := make([]error, len(raws))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, raw := range raws {
		g.Go(func() error {
			results[i], errs[i] = p.Process(ctx, raw)
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}

// Kind labels an error from the pipeline for logs and metrics.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}

	var (
		decodeErr    *imaging.DecodeError
		encodeErr    *imaging.EncodeError
		netErr       *upload.NetworkError
		statusErr    *upload.HTTPStatusError
		apiErr       *upload.APIError
		malformedErr *upload.MalformedResponseError
	)
	switch {
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.As(err, &encodeErr):
		return "encode"
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		return "network"
	case errors.As(err, &statusErr):
		return "http_status"
	case errors.As(err, &apiErr):
		return "api"
	case errors.As(err, &malformedErr):
		return "malformed"
	default:
		return "unknown"
	}
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, time.Duration, string) {}
func (nopObserver) ObserveUploadBytes(int)                     {}
