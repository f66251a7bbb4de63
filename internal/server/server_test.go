package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracksig/internal/models"
	"github.com/desertthunder/tracksig/internal/repositories"
	"github.com/desertthunder/tracksig/internal/shared"
	"github.com/desertthunder/tracksig/internal/tasks"
	"github.com/gorilla/websocket"
)

func quietLogger() *log.Logger {
	return shared.NewLogger(io.Discard)
}

func newRepo(t *testing.T) *repositories.TrackRepository {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return repositories.NewTrackRepository(db, quietLogger())
}

func seed(t *testing.T, repo *repositories.TrackRepository, signatures map[int][]float64) []*models.Track {
	t.Helper()

	tracks := make([]*models.Track, 4)
	for i := range tracks {
		tracks[i] = &models.Track{
			CatalogID:  fmt.Sprintf("cat%d", i),
			Title:      fmt.Sprintf("Song %d", i),
			Artists:    []string{"Artist"},
			PreviewURL: fmt.Sprintf("https://p.scdn.co/mp3-preview/%d", i),
		}
	}
	if _, err := repo.InsertTracks(tracks); err != nil {
		t.Fatalf("failed to insert tracks: %v", err)
	}

	var updates []models.SignatureUpdate
	for i, sig := range signatures {
		updates = append(updates, models.SignatureUpdate{TrackID: tracks[i].ID, Signature: sig})
	}
	if len(updates) > 0 {
		if _, err := repo.SaveSignatures(updates); err != nil {
			t.Fatalf("failed to save signatures: %v", err)
		}
	}
	return tracks
}

type fakeIngester struct {
	result *tasks.IngestResult
	err    error
	calls  []string
}

func (f *fakeIngester) IngestArtist(ctx context.Context, progress chan<- tasks.ProgressUpdate, artistID string) (*tasks.IngestResult, error) {
	f.calls = append(f.calls, "artist:"+artistID)
	progress <- tasks.ProgressUpdate{Phase: tasks.FetchAlbums, Message: artistID}
	return f.result, f.err
}

func (f *fakeIngester) IngestAlbum(ctx context.Context, progress chan<- tasks.ProgressUpdate, albumID string) (*tasks.IngestResult, error) {
	f.calls = append(f.calls, "album:"+albumID)
	return f.result, f.err
}

type fakeRunner struct {
	mu        sync.Mutex
	got       []*models.Track
	batchSize int
	release   chan struct{}
	updates   []tasks.ProgressUpdate
}

func (f *fakeRunner) Run(ctx context.Context, progress chan<- tasks.ProgressUpdate, tracks []*models.Track, batchSize int) (*tasks.PipelineResult, error) {
	f.mu.Lock()
	f.got = tracks
	f.batchSize = batchSize
	f.mu.Unlock()

	if f.release != nil {
		<-f.release
	}
	for _, u := range f.updates {
		progress <- u
	}
	return &tasks.PipelineResult{Total: len(tracks), Computed: len(tracks), Persisted: len(tracks)}, nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func do(router http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: x", shared.ErrUnknownMetric), http.StatusBadRequest},
		{shared.ErrDimensionMismatch, http.StatusBadRequest},
		{shared.ErrTrackNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: id", shared.ErrNoSignature), http.StatusConflict},
		{&shared.UpstreamError{StatusCode: 401, Err: shared.ErrAuthExhausted}, http.StatusBadGateway},
		{&shared.UpstreamError{StatusCode: 403, Err: shared.ErrEgressBlocked}, http.StatusBadGateway},
		{&shared.UpstreamError{StatusCode: 500, Err: shared.ErrUnknownUpstream}, http.StatusBadGateway},
		{shared.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestBasicRouter(t *testing.T) {
	t.Run("Method Mismatch", func(t *testing.T) {
		router := NewBasicRouter()
		router.HandleFunc(http.MethodPost, "/thing", func(w http.ResponseWriter, r *http.Request) {})

		if rec := do(router, http.MethodGet, "/thing"); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("Middleware Order", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		router := NewBasicRouter()
		router.Use(mark("outer"), mark("inner"))
		router.HandleFunc(http.MethodGet, "/thing", func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		})
		do(router, http.MethodGet, "/thing")

		if strings.Join(order, ",") != "outer,inner,handler" {
			t.Errorf("unexpected middleware order %v", order)
		}
	})

	t.Run("Recover", func(t *testing.T) {
		router := NewBasicRouter()
		router.Use(RecoverMiddleware(quietLogger()))
		router.HandleFunc(http.MethodGet, "/panic", func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})

		rec := do(router, http.MethodGet, "/panic")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
		if body := decode(t, rec); body["status"] != "error" {
			t.Errorf("expected error body, got %v", body)
		}
	})
}

func TestAPI(t *testing.T) {
	t.Run("Health", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo, map[int][]float64{0: {1, 0}})
		router := NewRouter(NewAPI(repo, nil, nil, nil, quietLogger()), quietLogger())

		rec := do(router, http.MethodGet, "/api/health")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := decode(t, rec)
		if body["status"] != "success" || body["tracks"] != float64(4) || body["pending"] != float64(3) {
			t.Errorf("unexpected health body %v", body)
		}
	})

	t.Run("Get Track", func(t *testing.T) {
		repo := newRepo(t)
		tracks := seed(t, repo, nil)
		router := NewRouter(NewAPI(repo, nil, nil, nil, quietLogger()), quietLogger())

		rec := do(router, http.MethodGet, "/api/tracks/"+tracks[1].ID)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		track := decode(t, rec)["track"].(map[string]any)
		if track["title"] != "Song 1" {
			t.Errorf("expected Song 1, got %v", track["title"])
		}

		if rec := do(router, http.MethodGet, "/api/tracks/missing"); rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 for unknown track, got %d", rec.Code)
		}
	})

	t.Run("Search", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo, nil)
		router := NewRouter(NewAPI(repo, nil, nil, nil, quietLogger()), quietLogger())

		rec := do(router, http.MethodGet, "/api/tracks?query=song+2")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if body := decode(t, rec); body["count"] != float64(1) {
			t.Errorf("expected one match, got %v", body)
		}

		if rec := do(router, http.MethodGet, "/api/tracks"); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for empty query, got %d", rec.Code)
		}
		if rec := do(router, http.MethodGet, "/api/tracks?query=song&limit=-1"); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for negative limit, got %d", rec.Code)
		}
	})

	t.Run("Similar", func(t *testing.T) {
		repo := newRepo(t)
		tracks := seed(t, repo, map[int][]float64{
			0: {1, 0, 0},
			1: {0.9, 0.1, 0},
			2: {0, 0, 1},
		})
		router := NewRouter(NewAPI(repo, nil, nil, nil, quietLogger()), quietLogger())

		rec := do(router, http.MethodGet, "/api/tracks/similar/"+tracks[0].ID+"?metric=euclidean&limit=1")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		body := decode(t, rec)
		if body["metric"] != "euclidean" {
			t.Errorf("expected euclidean metric, got %v", body["metric"])
		}
		matches := body["matches"].([]any)
		if len(matches) != 1 {
			t.Fatalf("expected 1 match, got %d", len(matches))
		}
		best := matches[0].(map[string]any)["track"].(map[string]any)
		if best["id"] != tracks[1].ID {
			t.Errorf("expected nearest track %s, got %v", tracks[1].ID, best["id"])
		}

		cases := []struct {
			target string
			want   int
		}{
			{"/api/tracks/similar/" + tracks[0].ID + "?metric=hamming", http.StatusBadRequest},
			{"/api/tracks/similar/" + tracks[3].ID, http.StatusConflict},
			{"/api/tracks/similar/missing", http.StatusNotFound},
		}
		for _, c := range cases {
			if rec := do(router, http.MethodGet, c.target); rec.Code != c.want {
				t.Errorf("%s: expected %d, got %d", c.target, c.want, rec.Code)
			}
		}
	})

	t.Run("Degenerate Signatures", func(t *testing.T) {
		repo := newRepo(t)
		tracks := seed(t, repo, map[int][]float64{
			0: {1, 2, 3},
			1: {0, 0, 0},
			2: {math.NaN(), math.NaN(), math.NaN()},
		})
		router := NewRouter(NewAPI(repo, nil, nil, nil, quietLogger()), quietLogger())

		for _, metric := range []string{"cosine", "correlation", "euclidean", "manhattan"} {
			rec := do(router, http.MethodGet, "/api/tracks/similar/"+tracks[0].ID+"?metric="+metric)
			if rec.Code != http.StatusOK {
				t.Fatalf("%s: expected 200, got %d: %s", metric, rec.Code, rec.Body.String())
			}
			matches := decode(t, rec)["matches"].([]any)
			if len(matches) != 2 {
				t.Fatalf("%s: expected 2 matches, got %d", metric, len(matches))
			}
			last := matches[1].(map[string]any)
			if last["distance"] != nil {
				t.Errorf("%s: expected null distance for the NaN signature, got %v", metric, last["distance"])
			}
		}

		rec := do(router, http.MethodGet, "/api/tracks/similar/"+tracks[2].ID)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 ranking against a NaN signature, got %d: %s", rec.Code, rec.Body.String())
		}

		rec = do(router, http.MethodGet, "/api/tracks/"+tracks[2].ID)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		sig := decode(t, rec)["track"].(map[string]any)["signature"].([]any)
		if len(sig) != 3 || sig[0] != nil {
			t.Errorf("expected three null signature values, got %v", sig)
		}
	})

	t.Run("Ingest", func(t *testing.T) {
		repo := newRepo(t)
		ingester := &fakeIngester{result: &tasks.IngestResult{Discovered: 3, Inserted: 2}}
		router := NewRouter(NewAPI(repo, ingester, nil, nil, quietLogger()), quietLogger())

		rec := do(router, http.MethodPost, "/api/ingest/artist/abc")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		do(router, http.MethodPost, "/api/ingest/album/xyz")

		if strings.Join(ingester.calls, ",") != "artist:abc,album:xyz" {
			t.Errorf("unexpected ingest calls %v", ingester.calls)
		}
		result := decode(t, rec)["result"].(map[string]any)
		if len(result) == 0 {
			t.Error("expected ingest result in body")
		}

		if rec := do(router, http.MethodGet, "/api/ingest/artist/abc"); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405 for GET, got %d", rec.Code)
		}
	})

	t.Run("Ingest Upstream Failure", func(t *testing.T) {
		repo := newRepo(t)
		ingester := &fakeIngester{err: &shared.UpstreamError{StatusCode: 403, URL: "x", Err: shared.ErrEgressBlocked}}
		router := NewRouter(NewAPI(repo, ingester, nil, nil, quietLogger()), quietLogger())

		if rec := do(router, http.MethodPost, "/api/ingest/artist/abc"); rec.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rec.Code)
		}
	})

	t.Run("Not Configured", func(t *testing.T) {
		repo := newRepo(t)
		router := NewRouter(NewAPI(repo, nil, nil, nil, quietLogger()), quietLogger())

		for _, target := range []string{"/api/ingest/artist/abc", "/api/signatures/compute"} {
			if rec := do(router, http.MethodPost, target); rec.Code != http.StatusServiceUnavailable {
				t.Errorf("%s: expected 503, got %d", target, rec.Code)
			}
		}
	})

	t.Run("Compute Signatures", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo, map[int][]float64{0: {1}})
		runner := &fakeRunner{}
		router := NewRouter(NewAPI(repo, nil, runner, nil, quietLogger()), quietLogger())

		rec := do(router, http.MethodPost, "/api/signatures/compute?limit=2&batch_size=5")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if len(runner.got) != 2 || runner.batchSize != 5 {
			t.Errorf("expected 2 pending tracks at batch size 5, got %d at %d", len(runner.got), runner.batchSize)
		}

		if rec := do(router, http.MethodPost, "/api/signatures/compute?batch_size=x"); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for bad batch size, got %d", rec.Code)
		}
	})
}

func TestProgressHub(t *testing.T) {
	t.Run("Publish Does Not Block", func(t *testing.T) {
		hub := NewProgressHub(quietLogger())
		updates, unsubscribe := hub.Subscribe()
		defer unsubscribe()

		for i := 0; i < subscriberBuffer+10; i++ {
			hub.Publish(tasks.ProgressUpdate{Step: i})
		}
		if len(updates) != subscriberBuffer {
			t.Errorf("expected a full buffer of %d, got %d", subscriberBuffer, len(updates))
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		hub := NewProgressHub(quietLogger())
		_, unsubscribe := hub.Subscribe()
		if hub.Subscribers() != 1 {
			t.Fatalf("expected 1 subscriber, got %d", hub.Subscribers())
		}
		unsubscribe()
		unsubscribe()
		if hub.Subscribers() != 0 {
			t.Errorf("expected 0 subscribers, got %d", hub.Subscribers())
		}
	})

	t.Run("Websocket Stream", func(t *testing.T) {
		repo := newRepo(t)
		seed(t, repo, nil)

		hub := NewProgressHub(quietLogger())
		runner := &fakeRunner{
			release: make(chan struct{}),
			updates: []tasks.ProgressUpdate{
				{Phase: tasks.ComputeSignatures, Step: 1, Total: 4, Message: "computing"},
			},
		}
		srv := httptest.NewServer(NewRouter(NewAPI(repo, nil, runner, hub, quietLogger()), quietLogger()))
		defer srv.Close()

		wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/progress"
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("failed to dial progress stream: %v", err)
		}
		defer conn.Close()

		deadline := time.Now().Add(2 * time.Second)
		for hub.Subscribers() == 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}

		errs := make(chan error, 1)
		go func() {
			resp, err := http.Post(srv.URL+"/api/signatures/compute", "application/json", nil)
			if err == nil {
				resp.Body.Close()
			}
			errs <- err
		}()
		close(runner.release)

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got tasks.ProgressUpdate
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("failed to read progress update: %v", err)
		}
		if got.Phase != tasks.ComputeSignatures || got.Message != "computing" {
			t.Errorf("unexpected update %+v", got)
		}

		if err := <-errs; err != nil {
			t.Errorf("compute request failed: %v", err)
		}
	})
}
