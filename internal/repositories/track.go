package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tracksig/internal/models"
	"github.com/desertthunder/tracksig/internal/shared"
	"github.com/desertthunder/tracksig/internal/similarity"
)

const (
	DefaultSearchLimit  = 30
	DefaultSimilarLimit = 20
)

const trackColumns = `id, sequence, catalog_id, title, artists, preview_url, signature, created_at, updated_at`

// InsertResult counts the outcome of a grouped insert.
type InsertResult struct {
	Inserted   int
	Duplicates int
	Failed     int
}

// SimilarTrack is a stored track ranked against a reference signature.
type SimilarTrack struct {
	Track    *models.Track `json:"track"`
	Distance float64       `json:"distance"`
}

// MarshalJSON writes a NaN distance as null so one degenerate signature cannot break a ranking response.
func (s SimilarTrack) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Track    *models.Track `json:"track"`
		Distance *float64      `json:"distance"`
	}{s.Track, similarity.Nullable(s.Distance)})
}

// TrackRepository stores tracks keyed by their unique preview URL.
//
// Signatures are stored in their comma-separated transport form alongside their dimension,
// and similarity queries rank stored signatures in Go with [similarity.Engine].
type TrackRepository struct {
	db      *sql.DB
	logger  *log.Logger
	engine  similarity.Engine
	breadth int
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB, logger *log.Logger) *TrackRepository {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &TrackRepository{db: db, logger: logger}
}

// SetSearchBreadth caps the number of stored signatures a similarity query scans. 0 scans all.
func (r *TrackRepository) SetSearchBreadth(n int) {
	r.breadth = max(n, 0)
}

// InsertTracks inserts tracks in one transaction, skipping preview URLs that already exist.
//
// When the grouped write fails every track is retried on its own, so one bad record only costs itself.
// Inserted tracks get their generated ID and sequence; duplicates get the ID of the stored row.
// An error is returned only when no track could be written.
func (r *TrackRepository) InsertTracks(tracks []*models.Track) (InsertResult, error) {
	if len(tracks) == 0 {
		return InsertResult{}, nil
	}

	res, err := r.insertGrouped(tracks)
	if err == nil {
		return res, nil
	}

	r.logger.Warn("grouped insert failed, inserting tracks individually", "count", len(tracks), "error", err)

	res = InsertResult{}
	var lastErr error
	for _, track := range tracks {
		inserted, err := r.insertSingle(track)
		switch {
		case err != nil:
			res.Failed++
			lastErr = err
			r.logger.Warn("failed to insert track", "title", track.Title, "preview_url", track.PreviewURL, "error", err)
		case inserted:
			res.Inserted++
		default:
			res.Duplicates++
		}
	}

	if res.Failed == len(tracks) {
		return res, fmt.Errorf("failed to insert tracks: %w", lastErr)
	}
	return res, nil
}

func (r *TrackRepository) insertGrouped(tracks []*models.Track) (InsertResult, error) {
	var res InsertResult

	tx, err := r.db.Begin()
	if err != nil {
		return res, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, len(tracks))
	seqs := make([]int, len(tracks))
	for i, track := range tracks {
		inserted, id, seq, err := r.insertTx(tx, track)
		if err != nil {
			return InsertResult{}, err
		}
		ids[i], seqs[i] = id, seq
		if inserted {
			res.Inserted++
		} else {
			res.Duplicates++
		}
	}

	if err := tx.Commit(); err != nil {
		return InsertResult{}, fmt.Errorf("failed to commit tracks: %w", err)
	}

	for i, track := range tracks {
		track.ID = ids[i]
		if seqs[i] > 0 {
			track.Sequence = seqs[i]
		}
	}
	return res, nil
}

func (r *TrackRepository) insertSingle(track *models.Track) (bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted, id, seq, err := r.insertTx(tx, track)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit track: %w", err)
	}

	track.ID = id
	if seq > 0 {
		track.Sequence = seq
	}
	return inserted, nil
}

// insertTx writes one track with ON CONFLICT(preview_url) DO NOTHING and reports whether a row was added.
func (r *TrackRepository) insertTx(tx *sql.Tx, track *models.Track) (inserted bool, id string, sequence int, err error) {
	if err := track.Validate(); err != nil {
		return false, "", 0, fmt.Errorf("validation failed: %w", err)
	}

	// Duplicates must not consume a sequence number.
	err = tx.QueryRow("SELECT id FROM tracks WHERE preview_url = ?", track.PreviewURL).Scan(&id)
	switch {
	case err == nil:
		return false, id, 0, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, "", 0, fmt.Errorf("failed to look up existing track: %w", err)
	}

	sequence, err = NextSequence(tx, "tracks")
	if err != nil {
		return false, "", 0, fmt.Errorf("failed to generate sequence: %w", err)
	}

	id = shared.GenerateID()
	now := time.Now().UTC()

	var signature any
	var dim any
	if track.HasSignature() {
		signature, dim = similarity.Serialize(track.Signature), len(track.Signature)
	}

	result, err := tx.Exec(`
		INSERT INTO tracks (id, sequence, catalog_id, title, artists, preview_url, signature, signature_dim, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(preview_url) DO NOTHING
	`, id, sequence, track.CatalogID, track.Title, track.ArtistLine(), track.PreviewURL, signature, dim, now, now)
	if err != nil {
		return false, "", 0, fmt.Errorf("failed to insert track: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, "", 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 1 {
		track.CreatedAt, track.UpdatedAt = now, now
		return true, id, sequence, nil
	}

	if err := tx.QueryRow("SELECT id FROM tracks WHERE preview_url = ?", track.PreviewURL).Scan(&id); err != nil {
		return false, "", 0, fmt.Errorf("failed to look up existing track: %w", err)
	}
	return false, id, 0, nil
}

// Get retrieves a track by ID
func (r *TrackRepository) Get(id string) (*models.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ?`
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByPreviewURL retrieves a track by its preview URL
func (r *TrackRepository) GetByPreviewURL(previewURL string) (*models.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE preview_url = ?`
	return r.scanOne(r.db.QueryRow(query, previewURL))
}

// Search matches query against titles and artist names, case-insensitively for ASCII.
func (r *TrackRepository) Search(query string, limit int) ([]*models.Track, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: search query is empty", shared.ErrMissingArgument)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	return r.queryTracks(`
		SELECT `+trackColumns+` FROM tracks
		WHERE title LIKE ? ESCAPE '\' OR artists LIKE ? ESCAPE '\'
		ORDER BY sequence ASC
		LIMIT ?
	`, pattern, pattern, limit)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// WithoutSignature lists tracks still lacking a signature in sequence order. limit <= 0 returns all.
func (r *TrackRepository) WithoutSignature(limit int) ([]*models.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE signature IS NULL ORDER BY sequence ASC`
	if limit > 0 {
		return r.queryTracks(query+` LIMIT ?`, limit)
	}
	return r.queryTracks(query)
}

// List returns tracks in sequence order. limit <= 0 returns all.
func (r *TrackRepository) List(limit, offset int) ([]*models.Track, error) {
	if limit <= 0 {
		limit = -1
	}
	return r.queryTracks(`SELECT `+trackColumns+` FROM tracks ORDER BY sequence ASC LIMIT ? OFFSET ?`, limit, max(offset, 0))
}

// SaveSignatures writes every update in one transaction.
//
// Updates are unconditional; tracks that no longer exist are skipped. Any failure rolls the
// whole group back and reports zero persisted signatures.
func (r *TrackRepository) SaveSignatures(updates []models.SignatureUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE tracks SET signature = ?, signature_dim = ?, updated_at = ? WHERE id = ?`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare signature update: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	saved := 0
	for _, u := range updates {
		if len(u.Signature) == 0 {
			return 0, fmt.Errorf("%w: empty signature for track %s", shared.ErrInvalidInput, u.TrackID)
		}
		result, err := stmt.Exec(similarity.Serialize(u.Signature), len(u.Signature), now, u.TrackID)
		if err != nil {
			return 0, fmt.Errorf("failed to save signature for %s: %w", u.TrackID, err)
		}
		if n, err := result.RowsAffected(); err == nil {
			saved += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit signatures: %w", err)
	}
	return saved, nil
}

// HasSignature reports whether the track has a stored signature.
func (r *TrackRepository) HasSignature(id string) (bool, error) {
	var has bool
	err := r.db.QueryRow(`SELECT signature IS NOT NULL FROM tracks WHERE id = ?`, id).Scan(&has)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, id)
	}
	if err != nil {
		return false, fmt.Errorf("failed to check signature: %w", err)
	}
	return has, nil
}

// Count returns the number of stored tracks and how many of them still lack a signature.
func (r *TrackRepository) Count() (total, pending int, err error) {
	err = r.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN signature IS NULL THEN 1 ELSE 0 END), 0) FROM tracks
	`).Scan(&total, &pending)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return total, pending, nil
}

// Similar ranks stored tracks by distance to the signature of track id, excluding the track itself.
func (r *TrackRepository) Similar(id string, metric similarity.Metric, limit int) ([]SimilarTrack, error) {
	ref, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if !ref.HasSignature() {
		return nil, fmt.Errorf("%w: %s", shared.ErrNoSignature, id)
	}
	return r.SimilarTo(ref.Signature, metric, limit, id)
}

// SimilarTo ranks stored tracks with a signature of the same dimension as vector.
//
// At most the configured search breadth of candidates is scanned, oldest first.
func (r *TrackRepository) SimilarTo(vector []float64, metric similarity.Metric, limit int, excludeID string) ([]SimilarTrack, error) {
	if limit <= 0 {
		limit = DefaultSimilarLimit
	}

	query := `SELECT ` + trackColumns + ` FROM tracks
		WHERE signature IS NOT NULL AND signature_dim = ? AND id != ?
		ORDER BY sequence ASC`
	args := []any{len(vector), excludeID}
	if r.breadth > 0 {
		query += ` LIMIT ?`
		args = append(args, r.breadth)
	}

	tracks, err := r.queryTracks(query, args...)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.Track, len(tracks))
	candidates := make([]similarity.Candidate, 0, len(tracks))
	for _, t := range tracks {
		byID[t.ID] = t
		candidates = append(candidates, similarity.Candidate{ID: t.ID, Vector: t.Signature})
	}

	matches, err := r.engine.Rank(vector, candidates, metric, limit)
	if err != nil {
		return nil, err
	}

	out := make([]SimilarTrack, len(matches))
	for i, m := range matches {
		out[i] = SimilarTrack{Track: byID[m.ID], Distance: m.Distance}
	}
	return out, nil
}

func (r *TrackRepository) queryTracks(query string, args ...any) ([]*models.Track, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*models.Track
	for rows.Next() {
		track, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tracks, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanOne scans a single [sql.Row] into a [models.Track]
func (r *TrackRepository) scanOne(row *sql.Row) (*models.Track, error) {
	track, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrTrackNotFound
	}
	return track, err
}

// scanRow scans a row from [sql.Rows] into a [models.Track]
func (r *TrackRepository) scanRow(rows *sql.Rows) (*models.Track, error) {
	return scanTrack(rows)
}

func scanTrack(s scanner) (*models.Track, error) {
	var (
		track     models.Track
		artists   string
		signature sql.NullString
	)

	err := s.Scan(&track.ID, &track.Sequence, &track.CatalogID, &track.Title, &artists,
		&track.PreviewURL, &signature, &track.CreatedAt, &track.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	track.Artists = models.SplitArtists(artists)
	if signature.Valid {
		track.Signature, err = similarity.DeserializeLenient(signature.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decode signature for %s: %w", track.ID, err)
		}
	}

	return &track, nil
}
