package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracksig/internal/models"
	"github.com/desertthunder/tracksig/internal/services"
	"github.com/desertthunder/tracksig/internal/shared"
)

// IngestOptions controls how ingested tracks are grouped and written.
type IngestOptions struct {
	BatchSize  int           // tracks per grouped insert
	BatchDelay time.Duration // pause between batches
}

// IngestResult counts the outcome of one ingestion run.
type IngestResult struct {
	Discovered       int `json:"discovered"`         // tracks listed by the catalog
	Inserted         int `json:"inserted"`           // new rows
	Duplicates       int `json:"duplicates"`         // preview URLs already stored
	SkippedNoPreview int `json:"skipped_no_preview"` // tracks the catalog has no clip for
	FailedTracks     int `json:"failed_tracks"`      // rows the store rejected
	FailedBatches    int `json:"failed_batches"`     // batches with no row written
	Batches          int `json:"batches"`
}

// Ingestor walks the catalog from an artist or album down to per-track previews and stores what it finds.
//
// Upstream failures abort the run and propagate to the caller. Storage failures are logged and counted.
type Ingestor struct {
	catalog services.Catalog
	store   TrackStore
	opts    IngestOptions
	logger  *log.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(catalog services.Catalog, store TrackStore, opts IngestOptions, logger *log.Logger) *Ingestor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Ingestor{catalog: catalog, store: store, opts: opts, logger: shared.WithLogger(logger, "component", "ingest")}
}

// IngestArtist stores every previewable track of every album of the artist.
//
// Album listings only carry simplified tracks, so each track is resolved through its href to obtain the preview URL.
func (i *Ingestor) IngestArtist(ctx context.Context, progress chan<- ProgressUpdate, artistID string) (*IngestResult, error) {
	if artistID == "" {
		return nil, fmt.Errorf("%w: artist id", shared.ErrMissingArgument)
	}

	sendProgress(progress, fetchAlbumsUpdate(artistID))
	albums, err := i.catalog.ArtistAlbums(ctx, artistID)
	if err != nil {
		return nil, fmt.Errorf("failed to list albums of artist %s: %w", artistID, err)
	}
	i.logger.Info("listed artist albums", "artist", artistID, "albums", len(albums))

	var listed []services.SpotifyTrack
	seen := make(map[string]bool)
	for n, album := range albums {
		sendProgress(progress, fetchTracksUpdate(n+1, len(albums), album.Name))

		tracks, err := i.catalog.AlbumTracks(ctx, album.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list tracks of album %s: %w", album.ID, err)
		}
		for _, t := range tracks {
			key := t.Href
			if key == "" {
				key = t.ID
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			listed = append(listed, t)
		}
	}

	return i.ingest(ctx, progress, listed, func(ctx context.Context, t services.SpotifyTrack) (*services.SpotifyTrack, error) {
		if t.Href == "" {
			return &t, nil
		}
		return i.catalog.TrackByHref(ctx, t.Href)
	})
}

// IngestAlbum stores every previewable track of the album. Album track listings carry the preview URL directly.
func (i *Ingestor) IngestAlbum(ctx context.Context, progress chan<- ProgressUpdate, albumID string) (*IngestResult, error) {
	if albumID == "" {
		return nil, fmt.Errorf("%w: album id", shared.ErrMissingArgument)
	}

	sendProgress(progress, fetchTracksUpdate(1, 1, albumID))
	tracks, err := i.catalog.AlbumTracks(ctx, albumID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks of album %s: %w", albumID, err)
	}

	return i.ingest(ctx, progress, tracks, func(_ context.Context, t services.SpotifyTrack) (*services.SpotifyTrack, error) {
		return &t, nil
	})
}

type resolveFunc func(ctx context.Context, t services.SpotifyTrack) (*services.SpotifyTrack, error)

// ingest resolves listed tracks batch by batch, writes each batch in one grouped insert and waits between batches.
func (i *Ingestor) ingest(ctx context.Context, progress chan<- ProgressUpdate, listed []services.SpotifyTrack, resolve resolveFunc) (*IngestResult, error) {
	result := &IngestResult{Discovered: len(listed)}
	ranges := batches(len(listed), i.opts.BatchSize)

	for b, r := range ranges {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var records []*models.Track
		for n := r[0]; n < r[1]; n++ {
			sendProgress(progress, fetchPreviewUpdate(n+1, len(listed), listed[n].Name))

			full, err := resolve(ctx, listed[n])
			if err != nil {
				return result, fmt.Errorf("failed to fetch track %q: %w", listed[n].Name, err)
			}
			if !full.HasPreview() {
				result.SkippedNoPreview++
				i.logger.Debug("track has no preview", "track", full.ID, "title", full.Name)
				continue
			}
			records = append(records, full.ToModel())
		}

		result.Batches++
		if len(records) > 0 {
			sendProgress(progress, saveTracksUpdate(b+1, len(ranges), len(records)))

			res, err := i.store.InsertTracks(records)
			result.Inserted += res.Inserted
			result.Duplicates += res.Duplicates
			result.FailedTracks += res.Failed
			if err != nil {
				result.FailedBatches++
				i.logger.Error("failed to store batch", "batch", b+1, "tracks", len(records), "error", err)
			} else {
				i.logger.Info("stored batch", "batch", b+1, "inserted", res.Inserted, "duplicates", res.Duplicates, "failed", res.Failed)
			}
		}

		if b < len(ranges)-1 && i.opts.BatchDelay > 0 {
			sendProgress(progress, throttleUpdate(b+1, len(ranges), i.opts.BatchDelay))
			if err := wait(ctx, i.opts.BatchDelay); err != nil {
				return result, err
			}
		}
	}

	return result, nil
}
