package tasks

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracksig/internal/models"
	"github.com/desertthunder/tracksig/internal/shared"
)

// PipelineOptions controls batching of the signature pipeline.
type PipelineOptions struct {
	BatchSize  int           // tracks per batch and per grouped write-back
	BatchDelay time.Duration // pause between batches
}

// TrackFailure records a track whose signature could not be computed.
type TrackFailure struct {
	TrackID string `json:"track_id"`
	Title   string `json:"title"`
	Err     error  `json:"-"`
	Error   string `json:"error"`
}

// PipelineResult summarises a signature run.
type PipelineResult struct {
	Total        int            `json:"total"`
	Computed     int            `json:"computed"`
	Failed       int            `json:"failed"`
	Persisted    int            `json:"persisted"`
	Batches      int            `json:"batches"`
	FailedWrites int            `json:"failed_writes"` // batches whose write-back failed
	Failures     []TrackFailure `json:"failures,omitempty"`
	Elapsed      time.Duration  `json:"elapsed"`
}

// SignaturePipeline computes signatures batch by batch.
//
// Batches run strictly one after another. Inside a batch every track is computed on the worker pool, and the
// batch is written back in one grouped write once every unit has resolved. Failed tracks are left out of the
// write-back and stay eligible for a later run.
type SignaturePipeline struct {
	computer SignatureComputer
	store    SignatureStore
	pool     *WorkerPool
	opts     PipelineOptions
	logger   *log.Logger
}

// NewSignaturePipeline creates a SignaturePipeline.
func NewSignaturePipeline(computer SignatureComputer, store SignatureStore, pool *WorkerPool, opts PipelineOptions, logger *log.Logger) *SignaturePipeline {
	if pool == nil {
		pool = NewWorkerPool(0, 0)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	logger = shared.WithLogger(logger, "component", "signatures")
	return &SignaturePipeline{computer: computer, store: store, pool: pool, opts: opts, logger: logger}
}

// RunPending loads up to limit tracks without a signature (0 = all) and runs them.
func (p *SignaturePipeline) RunPending(ctx context.Context, progress chan<- ProgressUpdate, limit int) (*PipelineResult, error) {
	tracks, err := p.store.WithoutSignature(limit)
	if err != nil {
		return nil, err
	}
	p.logger.Info("loaded tracks without signature", "count", len(tracks))
	return p.Run(ctx, progress, tracks, 0)
}

// Run computes and stores signatures for tracks in batches of batchSize (0 uses the configured size).
//
// Per-track and storage failures are recorded in the result and never returned. Only cancellation of ctx
// makes Run return an error, together with the partial result.
func (p *SignaturePipeline) Run(ctx context.Context, progress chan<- ProgressUpdate, tracks []*models.Track, batchSize int) (*PipelineResult, error) {
	if batchSize <= 0 {
		batchSize = p.opts.BatchSize
	}

	start := time.Now()
	result := &PipelineResult{Total: len(tracks)}
	defer func() { result.Elapsed = time.Since(start) }()

	ranges := batches(len(tracks), batchSize)
	var resolved atomic.Int64

	for b, r := range ranges {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch := tracks[r[0]:r[1]]
		sendProgress(progress, computeUpdate(b+1, len(ranges), len(batch)))

		results := p.pool.Run(ctx, batch, p.computer.Compute, func(res SignatureResult) {
			sendProgress(progress, computedUpdate(int(resolved.Add(1)), len(tracks), res.Track, res.Err))
		})
		result.Batches++

		updates := make([]models.SignatureUpdate, 0, len(results))
		for _, res := range results {
			if res.Err != nil {
				result.Failed++
				result.Failures = append(result.Failures, TrackFailure{
					TrackID: res.Track.ID,
					Title:   res.Track.Title,
					Err:     res.Err,
					Error:   res.Err.Error(),
				})
				p.logger.Warn("signature failed", "track", res.Track.ID, "title", res.Track.Title, "error", res.Err)
				continue
			}
			result.Computed++
			updates = append(updates, models.SignatureUpdate{TrackID: res.Track.ID, Signature: res.Signature})
		}

		if len(updates) > 0 {
			saved, err := p.store.SaveSignatures(updates)
			if err != nil {
				result.FailedWrites++
				p.logger.Error("failed to save batch", "batch", b+1, "signatures", len(updates), "error", err)
			} else {
				result.Persisted += saved
				sendProgress(progress, saveSignaturesUpdate(b+1, len(ranges), saved))
			}
		}

		if err := ctx.Err(); err != nil {
			return result, err
		}

		if b < len(ranges)-1 && p.opts.BatchDelay > 0 {
			sendProgress(progress, throttleUpdate(b+1, len(ranges), p.opts.BatchDelay))
			if err := wait(ctx, p.opts.BatchDelay); err != nil {
				return result, err
			}
		}
	}

	p.logger.Info("signature run finished",
		"total", result.Total, "computed", result.Computed, "failed", result.Failed, "persisted", result.Persisted)
	return result, nil
}
