package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracksig/internal/models"
	"github.com/desertthunder/tracksig/internal/repositories"
	"github.com/desertthunder/tracksig/internal/shared"
	"github.com/desertthunder/tracksig/internal/similarity"
	"github.com/desertthunder/tracksig/internal/tasks"
)

// TrackStore is the read side of track storage. Implemented by [repositories.TrackRepository].
type TrackStore interface {
	Get(id string) (*models.Track, error)
	Search(query string, limit int) ([]*models.Track, error)
	Similar(id string, metric similarity.Metric, limit int) ([]repositories.SimilarTrack, error)
	WithoutSignature(limit int) ([]*models.Track, error)
	Count() (total, pending int, err error)
}

// Ingester starts catalog ingestion. Implemented by [tasks.Ingestor].
type Ingester interface {
	IngestArtist(ctx context.Context, progress chan<- tasks.ProgressUpdate, artistID string) (*tasks.IngestResult, error)
	IngestAlbum(ctx context.Context, progress chan<- tasks.ProgressUpdate, albumID string) (*tasks.IngestResult, error)
}

// SignatureRunner computes signatures for a set of tracks. Implemented by [tasks.SignaturePipeline].
type SignatureRunner interface {
	Run(ctx context.Context, progress chan<- tasks.ProgressUpdate, tracks []*models.Track, batchSize int) (*tasks.PipelineResult, error)
}

// API holds the JSON handlers. Every handler is thin glue over the storage and task layers.
type API struct {
	tracks     TrackStore
	ingester   Ingester
	signatures SignatureRunner
	hub        *ProgressHub
	logger     *log.Logger
}

// NewAPI creates the JSON API. ingester and signatures may be nil when the catalog is not configured; their
// routes then answer 503.
func NewAPI(tracks TrackStore, ingester Ingester, signatures SignatureRunner, hub *ProgressHub, logger *log.Logger) *API {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if hub == nil {
		hub = NewProgressHub(logger)
	}
	return &API{tracks: tracks, ingester: ingester, signatures: signatures, hub: hub, logger: logger}
}

// Register adds every route of the API to router.
func (a *API) Register(router Router) {
	router.Handle(http.MethodGet, "/api/health", http.HandlerFunc(a.Health))
	router.Handle(http.MethodPost, "/api/ingest/artist/{id}", http.HandlerFunc(a.IngestArtist))
	router.Handle(http.MethodPost, "/api/ingest/album/{id}", http.HandlerFunc(a.IngestAlbum))
	router.Handle(http.MethodPost, "/api/signatures/compute", http.HandlerFunc(a.ComputeSignatures))
	router.Handle(http.MethodGet, "/api/tracks", http.HandlerFunc(a.SearchTracks))
	router.Handle(http.MethodGet, "/api/tracks/{id}", http.HandlerFunc(a.GetTrack))
	router.Handle(http.MethodGet, "/api/tracks/similar/{id}", http.HandlerFunc(a.SimilarTracks))
	router.Handler(a.hub)
}

// NewRouter builds a [BasicRouter] with recovery and logging middleware and every API route.
func NewRouter(api *API, logger *log.Logger) *BasicRouter {
	router := NewBasicRouter()
	router.Use(RecoverMiddleware(logger), LoggingMiddleware(logger))
	api.Register(router)
	return router
}

// progress returns a channel forwarded to the hub, and a function that closes it once the job is done.
func (a *API) progress() (chan<- tasks.ProgressUpdate, func()) {
	ch := make(chan tasks.ProgressUpdate, subscriberBuffer)
	go a.hub.Pump(ch)
	return ch, func() { close(ch) }
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", shared.ErrInvalidArgument, name)
	}
	return n, nil
}

// Health reports storage counts and connected progress subscribers.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	total, pending, err := a.tracks.Count()
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err))
		return
	}
	writeSuccess(w, map[string]any{
		"tracks":      total,
		"pending":     pending,
		"subscribers": a.hub.Subscribers(),
	})
}

type ingestFunc func(context.Context, chan<- tasks.ProgressUpdate, string) (*tasks.IngestResult, error)

func (a *API) ingest(w http.ResponseWriter, r *http.Request, pick func(Ingester) ingestFunc) {
	if a.ingester == nil {
		writeError(w, fmt.Errorf("%w: catalog credentials are not configured", shared.ErrServiceUnavailable))
		return
	}

	progress, done := a.progress()
	res, err := pick(a.ingester)(r.Context(), progress, r.PathValue("id"))
	done()

	if err != nil {
		a.logger.Error("ingestion failed", "path", r.URL.Path, "error", err)
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]any{"result": res})
}

// IngestArtist ingests every previewable track of the artist in the path.
func (a *API) IngestArtist(w http.ResponseWriter, r *http.Request) {
	a.ingest(w, r, func(i Ingester) ingestFunc { return i.IngestArtist })
}

// IngestAlbum ingests every previewable track of the album in the path.
func (a *API) IngestAlbum(w http.ResponseWriter, r *http.Request) {
	a.ingest(w, r, func(i Ingester) ingestFunc { return i.IngestAlbum })
}

// ComputeSignatures runs the signature pipeline over stored tracks lacking a signature.
//
// Query parameters: limit (0 = all pending tracks) and batch_size (0 = configured size).
func (a *API) ComputeSignatures(w http.ResponseWriter, r *http.Request) {
	if a.signatures == nil {
		writeError(w, fmt.Errorf("%w: signature pipeline is not configured", shared.ErrServiceUnavailable))
		return
	}

	limit, err := intParam(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	batchSize, err := intParam(r, "batch_size", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	pending, err := a.tracks.WithoutSignature(limit)
	if err != nil {
		writeError(w, err)
		return
	}

	progress, done := a.progress()
	res, err := a.signatures.Run(r.Context(), progress, pending, batchSize)
	done()

	if err != nil {
		a.logger.Error("signature run interrupted", "error", err)
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]any{"result": res})
}

// GetTrack returns one stored track.
func (a *API) GetTrack(w http.ResponseWriter, r *http.Request) {
	track, err := a.tracks.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]any{"track": track})
}

// SearchTracks matches ?query= against titles and artists.
func (a *API) SearchTracks(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", repositories.DefaultSearchLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	tracks, err := a.tracks.Search(r.URL.Query().Get("query"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]any{"tracks": tracks, "count": len(tracks)})
}

// SimilarTracks ranks stored tracks against the signature of the track in the path.
//
// Query parameters: metric (default cosine) and limit (default 20).
func (a *API) SimilarTracks(w http.ResponseWriter, r *http.Request) {
	metric := similarity.Cosine
	if raw := r.URL.Query().Get("metric"); raw != "" {
		m, err := similarity.ParseMetric(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		metric = m
	}

	limit, err := intParam(r, "limit", repositories.DefaultSimilarLimit)
	if err != nil {
		writeError(w, err)
		return
	}

	matches, err := a.tracks.Similar(r.PathValue("id"), metric, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, map[string]any{"metric": metric, "matches": matches})
}
