package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/desertthunder/tracksig/internal/server"
	"github.com/desertthunder/tracksig/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Serve runs the JSON API and the websocket progress stream until interrupted.
//
// Without catalog credentials the ingestion routes answer 503 and everything else keeps working.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	store, err := r.trackStore()
	if err != nil {
		return err
	}
	defer r.Close()

	var ingester server.Ingester
	if catalog, err := r.catalogService(); err != nil {
		r.logger.Warn("catalog unavailable, ingestion disabled", "error", err)
	} else {
		opts := tasks.IngestOptions{BatchSize: r.config.Ingest.BatchSize, BatchDelay: r.config.Ingest.BatchDelay.Duration}
		ingester = tasks.NewIngestor(catalog, store, opts, r.logger)
	}

	var runner server.SignatureRunner
	if pipeline, _, err := r.signaturePipeline(0); err != nil {
		r.logger.Warn("signature pipeline unavailable", "error", err)
	} else {
		runner = pipeline
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	hub := server.NewProgressHub(r.logger)
	api := server.NewAPI(store, ingester, runner, hub, r.logger)
	router := server.NewRouter(api, r.logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r.writePlain("Serving on http://%s (progress stream at ws://%s/api/progress)\n", addr, addr)
	return server.ListenAndServe(ctx, addr, router, r.logger)
}
