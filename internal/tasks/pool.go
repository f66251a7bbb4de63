package tasks

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/desertthunder/tracksig/internal/models"
	"golang.org/x/time/rate"
)

// SignatureResult is the outcome of one unit of work. Exactly one of Signature and Err is set.
type SignatureResult struct {
	Track     *models.Track
	Signature []float64
	Err       error
	Elapsed   time.Duration
}

// ComputeFunc computes the signature of one track.
type ComputeFunc func(ctx context.Context, track *models.Track) ([]float64, error)

// WorkerPool runs one unit of work per track on at most Size goroutines.
//
// Limiter, when set, throttles the start of each unit (preview downloads hit a rate-limited CDN).
type WorkerPool struct {
	Size    int
	Limiter *rate.Limiter
}

// NewWorkerPool creates a pool of size workers starting at most perSecond units per second (0 = unlimited).
func NewWorkerPool(size int, perSecond float64) *WorkerPool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	var limiter *rate.Limiter
	if perSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return &WorkerPool{Size: size, Limiter: limiter}
}

// Run computes every track and returns once all units have resolved.
//
// results[i] belongs to tracks[i]. A panicking unit becomes an error result. Units not yet started when ctx is
// canceled resolve with the context error. done, when non-nil, is called from the worker after each unit resolves.
func (p *WorkerPool) Run(ctx context.Context, tracks []*models.Track, fn ComputeFunc, done func(SignatureResult)) []SignatureResult {
	results := make([]SignatureResult, len(tracks))
	if len(tracks) == 0 {
		return results
	}

	jobs := make(chan int, len(tracks))
	for i := range tracks {
		jobs <- i
	}
	close(jobs)

	workers := min(max(p.Size, 1), len(tracks))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = p.runOne(ctx, tracks[i], fn)
				if done != nil {
					done(results[i])
				}
			}
		}()
	}
	wg.Wait()

	return results
}

func (p *WorkerPool) runOne(ctx context.Context, track *models.Track, fn ComputeFunc) (res SignatureResult) {
	res.Track = track
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Signature = nil
			res.Err = fmt.Errorf("signature computation panicked: %v", r)
		}
		res.Elapsed = time.Since(start)
	}()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			res.Err = err
			return res
		}
	}

	sig, err := fn(ctx, track)
	if err != nil {
		res.Err = err
		return res
	}
	res.Signature = sig
	return res
}
