package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/tracksig/internal/formatter"
	"github.com/desertthunder/tracksig/internal/shared"
	"github.com/desertthunder/tracksig/internal/tasks"
	"github.com/urfave/cli/v3"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// SignaturesCompute runs the signature pipeline over stored tracks lacking a signature.
func (r *Runner) SignaturesCompute(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")
	batchSize := cmd.Int("batch-size")
	workers := cmd.Int("workers")
	quiet := cmd.Bool("quiet")

	if limit < 0 || batchSize < 0 || workers < 0 {
		return fmt.Errorf("%w: --limit, --batch-size and --workers must not be negative", shared.ErrInvalidArgument)
	}

	pipeline, store, err := r.signaturePipeline(workers)
	if err != nil {
		return err
	}
	defer r.Close()

	pending, err := store.WithoutSignature(limit)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		r.writePlain("Every stored track already has a signature.\n")
		return nil
	}

	r.logger.Info("computing signatures", "tracks", len(pending), "batch_size", batchSize, "workers", workers)

	var (
		progress *mpb.Progress
		bar      *mpb.Bar
	)
	if !quiet {
		progress = mpb.NewWithContext(ctx, mpb.WithOutput(r.output), mpb.WithWidth(64))
		bar = progress.AddBar(int64(len(pending)),
			mpb.PrependDecorators(
				decor.Name("Signatures: "),
				decor.CountersNoUnit("%d / %d"),
			),
			mpb.AppendDecorators(
				decor.Percentage(),
				decor.Name(" "),
				decor.EwmaETA(decor.ET_STYLE_GO, 30),
			),
		)
	}

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		last := time.Now()
		for update := range progressCh {
			if update.Phase != tasks.ComputeSignatures || update.Data == nil {
				continue
			}
			if update.Failed {
				r.logger.Warn(update.Message)
			}
			if bar != nil {
				bar.EwmaIncrement(time.Since(last))
				last = time.Now()
			}
		}
	}()

	result, err := pipeline.Run(ctx, progressCh, pending, batchSize)
	close(progressCh)
	<-done

	if progress != nil {
		if err != nil {
			bar.Abort(false)
		}
		progress.Wait()
	}

	if result != nil {
		r.writePlain("\n")
		r.writePlainHeader("Signature Run Summary")
		r.writePlain("Tracks: %d\n", result.Total)
		r.writePlain("Computed: %d\n", result.Computed)
		r.writePlain("Persisted: %d\n", result.Persisted)
		r.writePlain("Batches: %d\n", result.Batches)
		r.writePlain("Elapsed: %s\n", result.Elapsed.Round(time.Millisecond))

		if len(result.Failures) > 0 {
			r.writePlain("\nFailed to compute %d tracks:\n", len(result.Failures))
			for _, f := range result.Failures {
				r.writePlain("  - %s (%s): %s\n", f.Title, f.TrackID, f.Error)
			}
		}
		if result.FailedWrites > 0 {
			r.writePlain("\n%d batch write-backs failed; those tracks remain pending\n", result.FailedWrites)
		}
	}
	return err
}

// SignaturesShow prints the stored signature of one track.
func (r *Runner) SignaturesShow(ctx context.Context, cmd *cli.Command) error {
	store, err := r.trackStore()
	if err != nil {
		return err
	}
	defer r.Close()

	track, err := store.Get(cmd.String("id"))
	if err != nil {
		return err
	}
	if !track.HasSignature() {
		return fmt.Errorf("%w: %s", shared.ErrNoSignature, track.ID)
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"id": track.ID, "dimension": len(track.Signature), "signature": track.Signature}, false)
	}
	_, err = r.output.Write(formatter.SignatureToText(track))
	return err
}
