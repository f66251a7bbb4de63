// package tasks implements catalog ingestion and batch signature computation.
//
// Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"time"

	"github.com/desertthunder/tracksig/internal/models"
	"github.com/desertthunder/tracksig/internal/repositories"
)

const defaultBatchSize = 10

// TrackStore persists ingested tracks. Implemented by [repositories.TrackRepository].
type TrackStore interface {
	InsertTracks(tracks []*models.Track) (repositories.InsertResult, error)
}

// SignatureStore loads tracks awaiting a signature and writes computed ones back.
// Implemented by [repositories.TrackRepository].
type SignatureStore interface {
	WithoutSignature(limit int) ([]*models.Track, error)
	SaveSignatures(updates []models.SignatureUpdate) (int, error)
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// wait pauses for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// batches splits n items into consecutive [start, end) ranges of at most size items.
func batches(n, size int) [][2]int {
	if size <= 0 {
		size = defaultBatchSize
	}
	out := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}
