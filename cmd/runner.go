package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracksig/internal/repositories"
	"github.com/desertthunder/tracksig/internal/services"
	"github.com/desertthunder/tracksig/internal/shared"
	"github.com/desertthunder/tracksig/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Storage, the catalog client and the signature computer are built on first use so that commands which
// need none of them (compare, setup) work without credentials or a database.
type Runner struct {
	config     *shared.Config
	configPath string
	catalog    services.Catalog
	computer   tasks.SignatureComputer
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	db         *sql.DB
	tracks     *repositories.TrackRepository
	cache      *repositories.PreviewCache
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Catalog    services.Catalog        // built from credentials when nil
	Computer   tasks.SignatureComputer // built from the signatures config when nil
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		catalog:    opts.Catalog,
		computer:   opts.Computer,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// SetLogger replaces the runner's logger, e.g. with a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, dbCommand, ingestCommand, signaturesCommand, tracksCommand, compareCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Close releases the database and preview cache if they were opened.
func (r *Runner) Close() error {
	var errs []error
	if r.cache != nil {
		if err := r.cache.Close(); err != nil {
			errs = append(errs, err)
		}
		r.cache = nil
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, err)
		}
		r.db = nil
		r.tracks = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close resources: %v", errs)
	}
	return nil
}

// trackStore opens the configured database, applies pending migrations and returns the track repository.
func (r *Runner) trackStore() (*repositories.TrackRepository, error) {
	if r.tracks != nil {
		return r.tracks, nil
	}

	db, err := shared.OpenConfigured(r.config.Database)
	if err != nil {
		return nil, err
	}

	r.db = db
	r.tracks = repositories.NewTrackRepository(db, r.logger)
	r.tracks.SetSearchBreadth(r.config.Database.SearchBreadth)
	return r.tracks, nil
}

// catalogService returns the injected catalog or builds a Spotify client from the configured credentials.
func (r *Runner) catalogService() (services.Catalog, error) {
	if r.catalog != nil {
		return r.catalog, nil
	}

	auth, err := services.NewAuthSession(r.config.Credentials.Spotify, r.httpClient)
	if err != nil {
		return nil, err
	}
	r.catalog = services.NewSpotifyService(auth, r.httpClient, services.SpotifyOptionsFromConfig(r.config, r.logger))
	return r.catalog, nil
}

// previewCache opens the badger preview cache when one is configured. A nil cache disables caching.
func (r *Runner) previewCache() (*repositories.PreviewCache, error) {
	if r.cache != nil {
		return r.cache, nil
	}

	cfg := r.config.Cache
	if cfg.Path == "" && !cfg.InMemory {
		return nil, nil
	}

	cache, err := repositories.OpenPreviewCache(cfg.Path, cfg.InMemory, 0)
	if err != nil {
		return nil, err
	}
	r.cache = cache
	return cache, nil
}

// signatureComputer returns the injected computer or an [tasks.AudioComputer] reading previews over HTTP.
func (r *Runner) signatureComputer() (tasks.SignatureComputer, error) {
	if r.computer != nil {
		return r.computer, nil
	}

	cache, err := r.previewCache()
	if err != nil {
		return nil, err
	}

	var fetcher *services.PreviewFetcher
	if cache != nil {
		fetcher = services.NewPreviewFetcher(r.httpClient, cache, r.config.Signatures.FetchTimeout.Duration, r.logger)
	} else {
		fetcher = services.NewPreviewFetcher(r.httpClient, nil, r.config.Signatures.FetchTimeout.Duration, r.logger)
	}

	computer, err := tasks.NewAudioComputerFromConfig(fetcher, r.config.Signatures)
	if err != nil {
		return nil, err
	}
	r.computer = computer
	return computer, nil
}

// signaturePipeline wires the computer, the track store and a worker pool. workers <= 0 uses the configured
// pool size.
func (r *Runner) signaturePipeline(workers int) (*tasks.SignaturePipeline, *repositories.TrackRepository, error) {
	store, err := r.trackStore()
	if err != nil {
		return nil, nil, err
	}
	computer, err := r.signatureComputer()
	if err != nil {
		return nil, nil, err
	}

	cfg := r.config.Signatures
	if workers <= 0 {
		workers = cfg.Workers
	}
	pool := tasks.NewWorkerPool(workers, cfg.FetchRate)
	opts := tasks.PipelineOptions{BatchSize: cfg.BatchSize, BatchDelay: cfg.BatchDelay.Duration}
	return tasks.NewSignaturePipeline(computer, store, pool, opts, r.logger), store, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
