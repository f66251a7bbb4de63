// package services defines the catalog client used by ingestion and the preview downloader
//
// Spotify (client credentials), preview CDN
package services

import (
	"context"
	"strings"

	"github.com/desertthunder/tracksig/internal/models"
)

// Catalog defines the catalog operations ingestion walks through: artist → albums → tracks → track detail.
type Catalog interface {
	// ArtistAlbums returns every album of the artist, following pagination.
	ArtistAlbums(ctx context.Context, artistID string) ([]SpotifyAlbum, error)

	// AlbumTracks returns every track of the album, following pagination.
	AlbumTracks(ctx context.Context, albumID string) ([]SpotifyTrack, error)

	// TrackByHref fetches the full track object at href, which carries the preview URL.
	TrackByHref(ctx context.Context, href string) (*SpotifyTrack, error)
}

// ToModel maps a catalog track to a [models.Track]. Tracks without a preview map to an empty PreviewURL.
func (t SpotifyTrack) ToModel() *models.Track {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		if name := strings.TrimSpace(a.Name); name != "" {
			names = append(names, name)
		}
	}

	track := &models.Track{
		CatalogID: t.ID,
		Title:     t.Name,
		Artists:   names,
	}
	if t.PreviewURL != nil {
		track.PreviewURL = *t.PreviewURL
	}
	return track
}

// HasPreview reports whether the catalog exposes a preview clip for the track.
func (t SpotifyTrack) HasPreview() bool {
	return t.PreviewURL != nil && *t.PreviewURL != ""
}
