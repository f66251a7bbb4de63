package repositories

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"reflect"
	"testing"

	"github.com/desertthunder/tracksig/internal/models"
	"github.com/desertthunder/tracksig/internal/shared"
	"github.com/desertthunder/tracksig/internal/similarity"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func newRepo(t *testing.T) *TrackRepository {
	t.Helper()
	return NewTrackRepository(setupTestDB(t), shared.NewLogger(io.Discard))
}

func makeTrack(n int) *models.Track {
	return &models.Track{
		CatalogID:  fmt.Sprintf("cat%d", n),
		Title:      fmt.Sprintf("Song %d", n),
		Artists:    []string{"Artist", fmt.Sprintf("Feature %d", n)},
		PreviewURL: fmt.Sprintf("https://p.scdn.co/mp3-preview/%d", n),
	}
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	defer tx.Rollback()

	for want := 1; want <= 3; want++ {
		got, err := NextSequence(tx, "tracks")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("expected sequence %d, got %d", want, got)
		}
	}

	if _, err := NextSequence(tx, "missing"); err == nil {
		t.Error("expected error for unknown sequence table")
	}
}

func TestTrackRepository(t *testing.T) {
	t.Run("InsertTracks", func(t *testing.T) {
		repo := newRepo(t)
		tracks := []*models.Track{makeTrack(1), makeTrack(2), makeTrack(3)}

		res, err := repo.InsertTracks(tracks)
		if err != nil {
			t.Fatalf("failed to insert tracks: %v", err)
		}
		if res.Inserted != 3 || res.Duplicates != 0 || res.Failed != 0 {
			t.Errorf("unexpected result %+v", res)
		}

		for i, tr := range tracks {
			if tr.ID == "" {
				t.Errorf("track %d should have an ID", i)
			}
			if tr.Sequence != i+1 {
				t.Errorf("track %d: expected sequence %d, got %d", i, i+1, tr.Sequence)
			}
		}

		got, err := repo.Get(tracks[1].ID)
		if err != nil {
			t.Fatalf("failed to get track: %v", err)
		}
		if got.Title != "Song 2" || !reflect.DeepEqual(got.Artists, tracks[1].Artists) || got.HasSignature() {
			t.Errorf("unexpected stored track %+v", got)
		}
	})

	t.Run("Duplicates are skipped", func(t *testing.T) {
		repo := newRepo(t)
		first := makeTrack(1)
		if _, err := repo.InsertTracks([]*models.Track{first}); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}

		again := makeTrack(1)
		again.Title = "Renamed"
		second := makeTrack(2)
		res, err := repo.InsertTracks([]*models.Track{again, second, makeTrack(2)})
		if err != nil {
			t.Fatalf("failed to insert: %v", err)
		}
		if res.Inserted != 1 || res.Duplicates != 2 {
			t.Errorf("unexpected result %+v", res)
		}
		if second.Sequence != 2 {
			t.Errorf("duplicates should not consume sequence numbers, got sequence %d", second.Sequence)
		}

		third := makeTrack(3)
		if _, err := repo.InsertTracks([]*models.Track{third}); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}
		if third.Sequence != 3 {
			t.Errorf("expected gap-free sequence 3, got %d", third.Sequence)
		}
		if again.ID != first.ID {
			t.Errorf("duplicate should carry the stored ID %s, got %s", first.ID, again.ID)
		}

		stored, _ := repo.GetByPreviewURL(first.PreviewURL)
		if stored.Title != "Song 1" {
			t.Errorf("existing row should be untouched, got %q", stored.Title)
		}
	})

	t.Run("Bad record falls back to per-record inserts", func(t *testing.T) {
		repo := newRepo(t)
		bad := makeTrack(2)
		bad.Title = ""

		res, err := repo.InsertTracks([]*models.Track{makeTrack(1), bad, makeTrack(3)})
		if err != nil {
			t.Fatalf("expected partial success, got %v", err)
		}
		if res.Inserted != 2 || res.Failed != 1 {
			t.Errorf("unexpected result %+v", res)
		}

		total, pending, err := repo.Count()
		if err != nil || total != 2 || pending != 2 {
			t.Errorf("expected 2 pending tracks, got total=%d pending=%d err=%v", total, pending, err)
		}
	})

	t.Run("All records failing is an error", func(t *testing.T) {
		repo := newRepo(t)
		bad := makeTrack(1)
		bad.PreviewURL = ""
		if _, err := repo.InsertTracks([]*models.Track{bad}); err == nil {
			t.Error("expected error when nothing could be inserted")
		}
	})

	t.Run("Get not found", func(t *testing.T) {
		repo := newRepo(t)
		if _, err := repo.Get("nope"); !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", err)
		}
	})

	t.Run("Search", func(t *testing.T) {
		repo := newRepo(t)
		tracks := []*models.Track{makeTrack(1), makeTrack(2), makeTrack(12)}
		tracks[2].Artists = []string{"100%_Pure"}
		if _, err := repo.InsertTracks(tracks); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}

		got, err := repo.Search("song 1", 0)
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 matches for 'song 1', got %d", len(got))
		}

		got, _ = repo.Search("feature 2", 10)
		if len(got) != 1 || got[0].Title != "Song 2" {
			t.Errorf("expected artist match on Song 2, got %v", got)
		}

		got, _ = repo.Search("0%_", 10)
		if len(got) != 1 {
			t.Errorf("expected literal wildcard match, got %d", len(got))
		}

		if _, err := repo.Search("  ", 10); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Signatures", func(t *testing.T) {
		repo := newRepo(t)
		tracks := []*models.Track{makeTrack(1), makeTrack(2), makeTrack(3)}
		if _, err := repo.InsertTracks(tracks); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}

		pending, err := repo.WithoutSignature(0)
		if err != nil || len(pending) != 3 {
			t.Fatalf("expected 3 pending, got %d (%v)", len(pending), err)
		}

		sig := []float64{0.1, 0.2, 0.30000000000000004}
		saved, err := repo.SaveSignatures([]models.SignatureUpdate{
			{TrackID: tracks[0].ID, Signature: sig},
			{TrackID: "missing", Signature: sig},
		})
		if err != nil {
			t.Fatalf("failed to save signatures: %v", err)
		}
		if saved != 1 {
			t.Errorf("expected 1 saved signature, got %d", saved)
		}

		got, _ := repo.Get(tracks[0].ID)
		if !reflect.DeepEqual(got.Signature, sig) {
			t.Errorf("expected exact signature %v, got %v", sig, got.Signature)
		}

		has, err := repo.HasSignature(tracks[0].ID)
		if err != nil || !has {
			t.Errorf("expected signature, got %v %v", has, err)
		}
		has, _ = repo.HasSignature(tracks[1].ID)
		if has {
			t.Error("expected no signature")
		}
		if _, err := repo.HasSignature("missing"); !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", err)
		}

		pending, _ = repo.WithoutSignature(1)
		if len(pending) != 1 || pending[0].ID != tracks[1].ID {
			t.Errorf("expected next pending to be track 2, got %v", pending)
		}

		total, left, _ := repo.Count()
		if total != 3 || left != 2 {
			t.Errorf("expected 3 total and 2 pending, got %d and %d", total, left)
		}
	})

	t.Run("SaveSignatures is all or nothing", func(t *testing.T) {
		repo := newRepo(t)
		tracks := []*models.Track{makeTrack(1), makeTrack(2)}
		if _, err := repo.InsertTracks(tracks); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}

		saved, err := repo.SaveSignatures([]models.SignatureUpdate{
			{TrackID: tracks[0].ID, Signature: []float64{1}},
			{TrackID: tracks[1].ID},
		})
		if err == nil || saved != 0 {
			t.Errorf("expected failure with nothing saved, got %d, %v", saved, err)
		}
		if has, _ := repo.HasSignature(tracks[0].ID); has {
			t.Error("first signature should have been rolled back")
		}
	})

	t.Run("Similar", func(t *testing.T) {
		repo := newRepo(t)
		tracks := []*models.Track{makeTrack(1), makeTrack(2), makeTrack(3), makeTrack(4), makeTrack(5)}
		if _, err := repo.InsertTracks(tracks); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}

		_, err := repo.SaveSignatures([]models.SignatureUpdate{
			{TrackID: tracks[0].ID, Signature: []float64{0, 0}},
			{TrackID: tracks[1].ID, Signature: []float64{5, 5}},
			{TrackID: tracks[2].ID, Signature: []float64{1, 0}},
			{TrackID: tracks[3].ID, Signature: []float64{1, 1, 1}},
		})
		if err != nil {
			t.Fatalf("failed to save: %v", err)
		}

		got, err := repo.Similar(tracks[0].ID, similarity.Euclidean, 0)
		if err != nil {
			t.Fatalf("similar failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 same-dimension matches, got %d", len(got))
		}
		if got[0].Track.ID != tracks[2].ID || got[0].Distance != 1 {
			t.Errorf("expected nearest to be track 3 at distance 1, got %+v", got[0])
		}

		repo.SetSearchBreadth(1)
		got, _ = repo.Similar(tracks[2].ID, similarity.Euclidean, 0)
		if len(got) != 1 || got[0].Track.ID != tracks[0].ID {
			t.Errorf("expected breadth to limit candidates to the oldest row, got %+v", got)
		}

		if _, err := repo.Similar(tracks[4].ID, similarity.Euclidean, 0); !errors.Is(err, shared.ErrNoSignature) {
			t.Errorf("expected ErrNoSignature, got %v", err)
		}
		if _, err := repo.Similar("missing", similarity.Euclidean, 0); !errors.Is(err, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", err)
		}
		if _, err := repo.Similar(tracks[0].ID, "bogus", 0); !errors.Is(err, shared.ErrUnknownMetric) {
			t.Errorf("expected ErrUnknownMetric, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := newRepo(t)
		if _, err := repo.InsertTracks([]*models.Track{makeTrack(1), makeTrack(2), makeTrack(3)}); err != nil {
			t.Fatalf("failed to insert: %v", err)
		}

		all, err := repo.List(0, 0)
		if err != nil || len(all) != 3 {
			t.Fatalf("expected 3 tracks, got %d (%v)", len(all), err)
		}
		page, _ := repo.List(1, 1)
		if len(page) != 1 || page[0].Title != "Song 2" {
			t.Errorf("unexpected page %v", page)
		}
	})
}

func TestPreviewCache(t *testing.T) {
	cache, err := OpenPreviewCache("", true, 0)
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	defer cache.Close()

	url := "https://p.scdn.co/mp3-preview/abc"
	if _, ok, err := cache.Get(url); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	data := []byte("RIFF....WAVE")
	if err := cache.Put(url, data); err != nil {
		t.Fatalf("failed to put: %v", err)
	}

	got, ok, err := cache.Get(url)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("expected %q, got %q", data, got)
	}

	if _, ok, _ := cache.Get(url + "?other"); ok {
		t.Error("expected different URL to miss")
	}
}
