// Package tasks orchestrates catalog ingestion and batch signature computation with real-time progress reporting.
//
// # Core Operations
//
//  1. [Ingestor.IngestArtist] : artist → albums → tracks → full track objects
//     - Lists every album, then every track of each album
//     - Resolves each track through its href to obtain the preview URL
//     - Writes tracks with a preview in grouped inserts of BatchSize, pausing BatchDelay between batches
//
//  2. [Ingestor.IngestAlbum] : album → tracks, same batching
//
//  3. [SignaturePipeline.Run] : tracks → signatures
//     - Splits tracks into batches, preserving order
//     - Computes every track of a batch on the [WorkerPool] and waits for all of them
//     - Writes the successful signatures of the batch in one grouped write, then pauses
//
// # Failure Isolation
//
// A track whose signature fails is logged and reported in [PipelineResult.Failures]; its siblings are unaffected.
// A failed write-back is logged and the next batch proceeds. Upstream errors during ingestion are terminal for
// the run and returned to the caller.
//
// # Progress Reporting
//
// # All operations use non-blocking channels for progress updates
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Implementation
//
// [Ingestor] depends on [services.Catalog] and a [TrackStore]; [SignaturePipeline] on a [SignatureComputer] and a
// [SignatureStore]. [repositories.TrackRepository] implements both stores and [AudioComputer] the computer.
package tasks
