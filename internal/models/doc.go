// Package models defines domain entities shared by the catalog client, the signature pipeline and storage.
//
//   - [Track] : catalog metadata, the unique preview URL and the optional stored signature
//   - [SignatureUpdate] : one (track, signature) pair awaiting grouped write-back
//
// Artist names are kept ordered and stored as a single line joined with [ArtistSeparator].
package models
