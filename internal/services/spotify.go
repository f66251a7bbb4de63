// Spotify catalog implementation of [Catalog]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tracksig/internal/shared"
	"golang.org/x/time/rate"
)

const (
	spotifyBaseURL = "https://api.spotify.com/v1"
	pageLimit      = 50
)

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Genres []string       `json:"genres"`
	Images []SpotifyImage `json:"images"`
	URI    string         `json:"uri"`
}

// SpotifyAlbum represents a Spotify album. Tracks is only populated by the album endpoint.
type SpotifyAlbum struct {
	ID          string                     `json:"id"`
	Name        string                     `json:"name"`
	AlbumType   string                     `json:"album_type"`
	Artists     []SpotifyArtist            `json:"artists"`
	ReleaseDate string                     `json:"release_date"`
	TotalTracks int                        `json:"total_tracks"`
	Images      []SpotifyImage             `json:"images"`
	URI         string                     `json:"uri"`
	Tracks      *SpotifyPage[SpotifyTrack] `json:"tracks,omitempty"`
}

// SpotifyTrack represents a Spotify track.
//
// Simplified tracks (album listings) have no Album. PreviewURL is null when the catalog has no clip.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Href       string          `json:"href"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      *SpotifyAlbum   `json:"album,omitempty"`
	DurationMS int             `json:"duration_ms"`
	Explicit   bool            `json:"explicit"`
	PreviewURL *string         `json:"preview_url"`
	URI        string          `json:"uri"`
}

// SpotifyPage is a paginated list response.
type SpotifyPage[T any] struct {
	Items    []T     `json:"items"`
	Total    int     `json:"total"`
	Limit    int     `json:"limit"`
	Offset   int     `json:"offset"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
}

// SpotifyOptions configures a [SpotifyService].
type SpotifyOptions struct {
	BaseURL     string
	AuthRetries int           // re-authentications allowed per request after a 401
	AuthBackoff time.Duration // wait between re-authentication and resubmission
	RequestRate float64       // requests per second, 0 = unlimited
	Logger      *log.Logger
}

// SpotifyOptionsFromConfig reads catalog options from the loaded configuration.
func SpotifyOptionsFromConfig(cfg *shared.Config, logger *log.Logger) SpotifyOptions {
	return SpotifyOptions{
		BaseURL:     cfg.Credentials.Spotify.BaseURL,
		AuthRetries: cfg.Ingest.AuthRetries,
		AuthBackoff: cfg.Ingest.AuthBackoff.Duration,
		RequestRate: cfg.Ingest.RequestRate,
		Logger:      logger,
	}
}

// SpotifyService implements [Catalog] against the Spotify Web API using a shared [AuthSession].
type SpotifyService struct {
	auth       *AuthSession
	httpClient *http.Client
	baseURL    string
	retries    int
	backoff    time.Duration
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewSpotifyService creates a catalog client. httpClient defaults to [http.DefaultClient].
func NewSpotifyService(auth *AuthSession, httpClient *http.Client, opts SpotifyOptions) *SpotifyService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if opts.BaseURL == "" {
		opts.BaseURL = spotifyBaseURL
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	var limiter *rate.Limiter
	if opts.RequestRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestRate), 1)
	}

	return &SpotifyService{
		auth:       auth,
		httpClient: httpClient,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		retries:    opts.AuthRetries,
		backoff:    opts.AuthBackoff,
		limiter:    limiter,
		logger:     opts.Logger,
	}
}

// doRequest performs an authenticated GET and decodes the JSON body into result.
//
// endpoint is either a path below the base URL or an absolute URL (pagination links, track hrefs).
// A 401 re-authenticates, waits the backoff and resubmits, at most AuthRetries times per call.
// A 403 means outbound traffic is being refused and is not retried. Any other non-200 status is returned as is.
func (s *SpotifyService) doRequest(ctx context.Context, endpoint string, result any) error {
	apiURL := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		apiURL = s.baseURL + endpoint
	}

	token, err := s.auth.Token(ctx)
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			defer resp.Body.Close()
			if result == nil {
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			return nil

		case http.StatusUnauthorized:
			drain(resp)
			if attempt >= s.retries {
				return &shared.UpstreamError{StatusCode: resp.StatusCode, URL: apiURL, Err: shared.ErrAuthExhausted}
			}

			s.logger.Warn("catalog rejected token, re-authenticating",
				"attempt", attempt+1, "max_retries", s.retries, "backoff", s.backoff, "url", apiURL)

			if token, err = s.auth.Refresh(ctx, token); err != nil {
				return err
			}
			if err := sleepWithContext(ctx, s.backoff); err != nil {
				return err
			}

		case http.StatusForbidden:
			drain(resp)
			return &shared.UpstreamError{StatusCode: resp.StatusCode, URL: apiURL, Err: shared.ErrEgressBlocked}

		default:
			drain(resp)
			return &shared.UpstreamError{StatusCode: resp.StatusCode, URL: apiURL, Err: shared.ErrUnknownUpstream}
		}
	}
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// collect follows next links starting at endpoint until the last page.
func collect[T any](ctx context.Context, s *SpotifyService, endpoint string) ([]T, error) {
	var items []T
	next := endpoint
	for next != "" {
		var page SpotifyPage[T]
		if err := s.doRequest(ctx, next, &page); err != nil {
			return nil, err
		}
		items = append(items, page.Items...)

		next = ""
		if page.Next != nil {
			next = *page.Next
		}
	}
	return items, nil
}

// ArtistAlbums retrieves every album and single of an artist.
func (s *SpotifyService) ArtistAlbums(ctx context.Context, artistID string) ([]SpotifyAlbum, error) {
	if artistID == "" {
		return nil, fmt.Errorf("%w: artist id", shared.ErrMissingArgument)
	}
	endpoint := fmt.Sprintf("/artists/%s/albums?include_groups=album,single&limit=%d", url.PathEscape(artistID), pageLimit)
	return collect[SpotifyAlbum](ctx, s, endpoint)
}

// AlbumTracks retrieves every track of an album.
func (s *SpotifyService) AlbumTracks(ctx context.Context, albumID string) ([]SpotifyTrack, error) {
	if albumID == "" {
		return nil, fmt.Errorf("%w: album id", shared.ErrMissingArgument)
	}
	endpoint := fmt.Sprintf("/albums/%s/tracks?limit=%d", url.PathEscape(albumID), pageLimit)
	return collect[SpotifyTrack](ctx, s, endpoint)
}

// TrackByHref retrieves the full track object at href.
func (s *SpotifyService) TrackByHref(ctx context.Context, href string) (*SpotifyTrack, error) {
	if href == "" {
		return nil, fmt.Errorf("%w: track href", shared.ErrMissingArgument)
	}
	var track SpotifyTrack
	if err := s.doRequest(ctx, href, &track); err != nil {
		return nil, err
	}
	return &track, nil
}

// Track retrieves a single track by ID.
func (s *SpotifyService) Track(ctx context.Context, trackID string) (*SpotifyTrack, error) {
	return s.TrackByHref(ctx, fmt.Sprintf("/tracks/%s", url.PathEscape(trackID)))
}

// SeveralTracks retrieves multiple tracks by their IDs (up to 50).
func (s *SpotifyService) SeveralTracks(ctx context.Context, trackIDs []string) ([]SpotifyTrack, error) {
	if len(trackIDs) == 0 {
		return nil, fmt.Errorf("%w: no track IDs provided", shared.ErrMissingArgument)
	}
	if len(trackIDs) > pageLimit {
		return nil, fmt.Errorf("%w: maximum %d track IDs allowed", shared.ErrInvalidArgument, pageLimit)
	}

	endpoint := fmt.Sprintf("/tracks?ids=%s", url.QueryEscape(strings.Join(trackIDs, ",")))

	var response struct {
		Tracks []SpotifyTrack `json:"tracks"`
	}
	if err := s.doRequest(ctx, endpoint, &response); err != nil {
		return nil, err
	}
	return response.Tracks, nil
}

// Album retrieves an album by ID, including its first page of tracks.
func (s *SpotifyService) Album(ctx context.Context, albumID string) (*SpotifyAlbum, error) {
	var album SpotifyAlbum
	if err := s.doRequest(ctx, fmt.Sprintf("/albums/%s", url.PathEscape(albumID)), &album); err != nil {
		return nil, err
	}
	return &album, nil
}

// Artist retrieves an artist by ID.
func (s *SpotifyService) Artist(ctx context.Context, artistID string) (*SpotifyArtist, error) {
	var artist SpotifyArtist
	if err := s.doRequest(ctx, fmt.Sprintf("/artists/%s", url.PathEscape(artistID)), &artist); err != nil {
		return nil, err
	}
	return &artist, nil
}
