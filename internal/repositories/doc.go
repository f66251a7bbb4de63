// Package repositories implements SQLite persistence for tracks and a badger-backed cache for preview clips.
//
// Key Implementations:
//   - [TrackRepository] : tracks keyed by unique preview URL, grouped inserts with per-record fallback,
//     grouped signature write-back and similarity ranking over stored signatures
//   - [PreviewCache] : downloaded preview bytes keyed by the xxhash of their URL
//
// Sequence numbers provide stable, human-readable ordering (e.g., track #42) independent of UUIDs and creation timestamps.
// The [NextSequence] function increments the per-table counter inside the caller's transaction.
package repositories
