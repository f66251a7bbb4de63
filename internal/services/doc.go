// Package services implements the catalog client used during ingestion and the preview downloader used by the
// signature pipeline.
//
// # Catalog Interface
//
// Ingestion depends only on [Catalog] (artist albums, album tracks, track detail), so tests can substitute a fake.
// [SpotifyService] implements it against the Spotify Web API.
//
// # Authentication
//
// [AuthSession] performs the client-credentials grant through [clientcredentials.Config] and is shared by every
// request. The token and issuance count are guarded by a mutex; [AuthSession.Refresh] takes the token the caller
// saw rejected, so concurrent refreshes collapse into a single exchange.
//
// # Upstream Responses
//
// doRequest handles each request as a small state machine:
//   - 200 : decode the JSON body
//   - 401 : refresh, back off and resubmit, up to AuthRetries times, then [shared.ErrAuthExhausted]
//   - 403 : [shared.ErrEgressBlocked], outbound traffic refused (usually the proxy)
//   - other : [shared.ErrUnknownUpstream]
//
// All three are returned as [shared.UpstreamError] carrying the status code and URL.
//
// # Previews
//
// [PreviewFetcher] downloads preview clips, reading through an optional [PreviewCache].
//
// # API Mappings
//
// [SpotifyTrack.ToModel] converts a catalog track to [models.Track], joining artist names and copying the
// nullable preview URL.
package services
