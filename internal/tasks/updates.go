package tasks

import (
	"fmt"
	"time"

	"github.com/desertthunder/tracksig/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI, TUI or websocket subscribers for display.
type ProgressUpdate struct {
	Phase   Phase  `json:"phase"`            // Operation phase
	Step    int    `json:"step"`             // Current step number within phase
	Total   int    `json:"total"`            // Total steps in this phase
	Message string `json:"message"`          // Human-readable message for display
	Data    any    `json:"data,omitempty"`   // Optional phase-specific data for advanced UIs
	Failed  bool   `json:"failed,omitempty"` // Set when the step reports an isolated failure
}

// Operation phase enumeration
type Phase int

const (
	FetchAlbums Phase = iota
	FetchTracks
	FetchPreviews
	SaveTracks
	ComputeSignatures
	SaveSignatures
	Throttle
)

func (p Phase) String() string {
	switch p {
	case FetchAlbums:
		return "fetch_albums"
	case FetchTracks:
		return "fetch_tracks"
	case FetchPreviews:
		return "fetch_previews"
	case SaveTracks:
		return "save_tracks"
	case ComputeSignatures:
		return "compute_signatures"
	case SaveSignatures:
		return "save_signatures"
	case Throttle:
		return "throttle"
	default:
		return ""
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name written by [Phase.MarshalText].
func (p *Phase) UnmarshalText(text []byte) error {
	for q := FetchAlbums; q <= Throttle; q++ {
		if q.String() == string(text) {
			*p = q
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

func fetchAlbumsUpdate(id string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchAlbums,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching albums for artist %s...", id),
	}
}

func fetchTracksUpdate(step, total int, album string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTracks,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Fetching tracks of %s...", step, total, album),
	}
}

func fetchPreviewUpdate(step, total int, title string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPreviews,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s", step, total, title),
	}
}

func saveTracksUpdate(batch, batches, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SaveTracks,
		Step:    batch,
		Total:   batches,
		Message: fmt.Sprintf("Batch %d/%d: saving %d tracks...", batch, batches, count),
	}
}

func computeUpdate(batch, batches, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ComputeSignatures,
		Step:    batch,
		Total:   batches,
		Message: fmt.Sprintf("Batch %d/%d: computing %d signatures...", batch, batches, count),
	}
}

func computedUpdate(step, total int, track *models.Track, err error) ProgressUpdate {
	if err != nil {
		return ProgressUpdate{
			Phase:   ComputeSignatures,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, track.Title, err),
			Data:    track,
			Failed:  true,
		}
	}
	return ProgressUpdate{
		Phase:   ComputeSignatures,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, track.Title),
		Data:    track,
	}
}

func saveSignaturesUpdate(batch, batches, saved int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SaveSignatures,
		Step:    batch,
		Total:   batches,
		Message: fmt.Sprintf("Batch %d/%d: saved %d signatures", batch, batches, saved),
	}
}

func throttleUpdate(batch, batches int, d time.Duration) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Throttle,
		Step:    batch,
		Total:   batches,
		Message: fmt.Sprintf("Waiting %s before next batch...", d),
	}
}
