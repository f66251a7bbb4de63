// package models defines the data model for the track signature service
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/tracksig/internal/shared"
	"github.com/desertthunder/tracksig/internal/similarity"
)

// ArtistSeparator joins artist names in storage and display.
const ArtistSeparator = ", "

// Track is a catalog track with a preview clip and, once computed, its signature.
type Track struct {
	ID         string    `json:"id"`
	Sequence   int       `json:"sequence"`
	CatalogID  string    `json:"catalog_id"`
	Title      string    `json:"title"`
	Artists    []string  `json:"artists"`
	PreviewURL string    `json:"preview_url"`
	Signature  []float64 `json:"signature,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MarshalJSON writes non-finite signature values as null, which JSON can represent.
func (t Track) MarshalJSON() ([]byte, error) {
	type plain Track
	return json.Marshal(struct {
		plain
		Signature []*float64 `json:"signature,omitempty"`
	}{plain(t), similarity.NullableVector(t.Signature)})
}

// UnmarshalJSON reads null signature values back as NaN.
func (t *Track) UnmarshalJSON(data []byte) error {
	type plain Track
	aux := struct {
		*plain
		Signature []*float64 `json:"signature,omitempty"`
	}{plain: (*plain)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t.Signature = similarity.FromNullable(aux.Signature)
	return nil
}

// HasSignature reports whether a signature has been stored for the track.
func (t *Track) HasSignature() bool {
	return len(t.Signature) > 0
}

// ArtistLine returns the artist names joined for display and storage.
func (t *Track) ArtistLine() string {
	return strings.Join(t.Artists, ArtistSeparator)
}

// SplitArtists is the inverse of [Track.ArtistLine].
func SplitArtists(line string) []string {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	parts := strings.Split(line, ArtistSeparator)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Validate checks the fields required to store a track.
func (t *Track) Validate() error {
	switch {
	case strings.TrimSpace(t.Title) == "":
		return fmt.Errorf("%w: track title is required", shared.ErrInvalidInput)
	case strings.TrimSpace(t.PreviewURL) == "":
		return fmt.Errorf("%w: track %q has no preview url", shared.ErrInvalidInput, t.Title)
	}
	return nil
}

// SignatureUpdate pairs a track with its newly computed signature.
type SignatureUpdate struct {
	TrackID   string
	Signature []float64
}
