package main

import (
	"context"

	"github.com/desertthunder/tracksig/internal/formatter"
	"github.com/desertthunder/tracksig/internal/similarity"
	"github.com/urfave/cli/v3"
)

// autoOutput asks [formatter.WriteSimilarExport] for its default filename.
const autoOutput = "auto"

// TracksGet prints one stored track as JSON.
func (r *Runner) TracksGet(ctx context.Context, cmd *cli.Command) error {
	store, err := r.trackStore()
	if err != nil {
		return err
	}
	defer r.Close()

	track, err := store.Get(cmd.String("id"))
	if err != nil {
		return err
	}
	return r.writeJSON(track, cmd.Bool("pretty"))
}

// TracksSearch lists stored tracks whose title or artists match the query.
func (r *Runner) TracksSearch(ctx context.Context, cmd *cli.Command) error {
	store, err := r.trackStore()
	if err != nil {
		return err
	}
	defer r.Close()

	tracks, err := store.Search(cmd.String("query"), cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(tracks, false)
	}

	if len(tracks) == 0 {
		r.writePlain("No tracks match %q\n", cmd.String("query"))
		return nil
	}
	for _, t := range tracks {
		status := "✓"
		if !t.HasSignature() {
			status = "·"
		}
		r.writePlain("%s %s  %s - %s\n", status, t.ID, t.ArtistLine(), t.Title)
	}
	return nil
}

// TracksSimilar ranks stored tracks against a reference track and prints or writes the export.
func (r *Runner) TracksSimilar(ctx context.Context, cmd *cli.Command) error {
	metric, err := similarity.ParseMetric(cmd.String("metric"))
	if err != nil {
		return err
	}

	store, err := r.trackStore()
	if err != nil {
		return err
	}
	defer r.Close()

	ref, err := store.Get(cmd.String("id"))
	if err != nil {
		return err
	}
	matches, err := store.Similar(ref.ID, metric, cmd.Int("limit"))
	if err != nil {
		return err
	}

	export := &formatter.SimilarExport{Reference: ref, Metric: metric, Matches: matches}
	format := cmd.String("format")

	if output := cmd.String("output"); output != "" {
		if output == autoOutput {
			output = ""
		}
		path, err := formatter.WriteSimilarExport(export, format, output)
		if err != nil {
			return err
		}
		r.logger.Info("wrote similarity export", "path", path, "matches", len(matches))
		r.writePlain("✓ Wrote %d matches to %s\n", len(matches), path)
		return nil
	}

	data, err := formatter.RenderSimilar(export, format)
	if err != nil {
		return err
	}
	_, err = r.output.Write(data)
	return err
}
