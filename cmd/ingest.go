package main

import (
	"context"

	"github.com/desertthunder/tracksig/internal/tasks"
	"github.com/urfave/cli/v3"
)

// IngestArtist stores every previewable track of an artist's albums and singles.
func (r *Runner) IngestArtist(ctx context.Context, cmd *cli.Command) error {
	return r.ingest(ctx, cmd.String("id"), "artist", func(i *tasks.Ingestor, progress chan<- tasks.ProgressUpdate, id string) (*tasks.IngestResult, error) {
		return i.IngestArtist(ctx, progress, id)
	})
}

// IngestAlbum stores every previewable track of one album.
func (r *Runner) IngestAlbum(ctx context.Context, cmd *cli.Command) error {
	return r.ingest(ctx, cmd.String("id"), "album", func(i *tasks.Ingestor, progress chan<- tasks.ProgressUpdate, id string) (*tasks.IngestResult, error) {
		return i.IngestAlbum(ctx, progress, id)
	})
}

type ingestRun func(*tasks.Ingestor, chan<- tasks.ProgressUpdate, string) (*tasks.IngestResult, error)

func (r *Runner) ingest(ctx context.Context, id, kind string, run ingestRun) error {
	catalog, err := r.catalogService()
	if err != nil {
		return err
	}
	store, err := r.trackStore()
	if err != nil {
		return err
	}
	defer r.Close()

	opts := tasks.IngestOptions{BatchSize: r.config.Ingest.BatchSize, BatchDelay: r.config.Ingest.BatchDelay.Duration}
	ingestor := tasks.NewIngestor(catalog, store, opts, r.logger)

	r.logger.Info("starting ingestion", kind, id)
	r.writePlain("Ingesting %s %s...\n\n", kind, id)

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.FetchAlbums:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.FetchTracks, tasks.FetchPreviews:
				r.writePlain("   %s\n", update.Message)
			case tasks.SaveTracks:
				r.writePlain("💾 %s\n", update.Message)
			case tasks.Throttle:
				r.writePlain("⏳ %s\n", update.Message)
			}
		}
	}()

	result, err := run(ingestor, progressCh, id)
	close(progressCh)
	<-done

	if result != nil {
		r.writePlain("\n")
		r.writePlainHeader("Ingestion Summary")
		r.writePlain("Discovered: %d\n", result.Discovered)
		r.writePlain("Inserted: %d\n", result.Inserted)
		r.writePlain("Duplicates: %d\n", result.Duplicates)
		r.writePlain("Skipped (no preview): %d\n", result.SkippedNoPreview)
		if result.FailedTracks > 0 || result.FailedBatches > 0 {
			r.writePlain("Failed tracks: %d (failed batches: %d)\n", result.FailedTracks, result.FailedBatches)
		}
	}
	return err
}
