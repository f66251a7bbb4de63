package ui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tracksig/internal/models"
	"github.com/desertthunder/tracksig/internal/repositories"
	"github.com/desertthunder/tracksig/internal/shared"
	"github.com/desertthunder/tracksig/internal/similarity"
	"github.com/desertthunder/tracksig/internal/tasks"
)

type fakeLibrary struct {
	tracks  []*models.Track
	metrics []similarity.Metric
}

func (f *fakeLibrary) List(limit, offset int) ([]*models.Track, error) {
	return f.tracks, nil
}

func (f *fakeLibrary) Similar(id string, metric similarity.Metric, limit int) ([]repositories.SimilarTrack, error) {
	f.metrics = append(f.metrics, metric)
	if id == "bare" {
		return nil, shared.ErrNoSignature
	}
	return []repositories.SimilarTrack{{Track: f.tracks[1], Distance: 0.25}}, nil
}

func (f *fakeLibrary) WithoutSignature(limit int) ([]*models.Track, error) {
	var out []*models.Track
	for _, t := range f.tracks {
		if !t.HasSignature() {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeRunner struct{}

func (fakeRunner) Run(ctx context.Context, progress chan<- tasks.ProgressUpdate, tracks []*models.Track, batchSize int) (*tasks.PipelineResult, error) {
	for i, t := range tracks {
		progress <- tasks.ProgressUpdate{Phase: tasks.ComputeSignatures, Step: i + 1, Total: len(tracks), Message: t.Title, Data: t, Failed: i == 0}
	}
	return &tasks.PipelineResult{
		Total:     len(tracks),
		Computed:  len(tracks) - 1,
		Failed:    1,
		Persisted: len(tracks) - 1,
		Failures:  []tasks.TrackFailure{{TrackID: tracks[0].ID, Title: tracks[0].Title, Error: "decode failed"}},
	}, nil
}

func library() *fakeLibrary {
	return &fakeLibrary{tracks: []*models.Track{
		{ID: "a", Title: "Alpha", Artists: []string{"One"}, Signature: []float64{1, 2}},
		{ID: "b", Title: "Beta", Artists: []string{"Two"}, Signature: []float64{2, 1}},
		{ID: "bare", Title: "Gamma", Artists: []string{"Three"}},
	}}
}

// run executes cmd and feeds its message back into the model until no command remains.
func run(m *Model, cmd tea.Cmd) {
	for cmd != nil {
		msg := cmd()
		if msg == nil {
			return
		}
		if _, ok := msg.(Msg); !ok {
			return
		}
		_, cmd = m.Update(msg)
	}
}

func press(m *Model, keys string) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keys)})
	return cmd
}

func TestModel(t *testing.T) {
	t.Run("Library", func(t *testing.T) {
		m := NewModel(context.Background(), library(), nil, 10)
		m.Update(tea.WindowSizeMsg{Width: 80, Height: 40})
		run(m, m.Init())

		if got := len(m.trackList.Items()); got != 3 {
			t.Fatalf("expected 3 library items, got %d", got)
		}
		if !strings.Contains(m.View(), "Alpha") {
			t.Error("expected library view to list Alpha")
		}
	})

	t.Run("Similar and Metric Cycling", func(t *testing.T) {
		lib := library()
		m := NewModel(context.Background(), lib, nil, 10)
		m.Update(tea.WindowSizeMsg{Width: 80, Height: 40})
		run(m, m.Init())

		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		run(m, cmd)
		if m.view != SimilarView {
			t.Fatalf("expected similar view, got %v", m.view)
		}
		if !strings.Contains(m.View(), "Beta") {
			t.Error("expected Beta among matches")
		}

		run(m, press(m, "m"))
		if m.metric != similarity.Euclidean {
			t.Errorf("expected metric to advance to euclidean, got %s", m.metric)
		}
		if len(lib.metrics) != 2 || lib.metrics[0] != similarity.Cosine {
			t.Errorf("unexpected metric requests %v", lib.metrics)
		}

		m.Update(tea.KeyMsg{Type: tea.KeyEsc})
		if m.view != LibraryView {
			t.Errorf("expected esc to return to library, got %v", m.view)
		}
	})

	t.Run("Similar Without Signature", func(t *testing.T) {
		m := NewModel(context.Background(), library(), nil, 10)
		run(m, m.loadSimilar(&models.Track{ID: "bare", Title: "Gamma"}, similarity.Cosine))

		if m.view != LibraryView || m.notice != shared.ErrNoSignature.Error() {
			t.Errorf("expected notice in library view, got view=%v notice=%q", m.view, m.notice)
		}
	})

	t.Run("Compute Disabled", func(t *testing.T) {
		m := NewModel(context.Background(), library(), nil, 10)
		press(m, "c")
		if m.notice == "" || m.view != LibraryView {
			t.Errorf("expected a notice without a runner, got view=%v notice=%q", m.view, m.notice)
		}
	})

	t.Run("Compute", func(t *testing.T) {
		lib := library()
		lib.tracks[1].Signature = nil
		m := NewModel(context.Background(), lib, fakeRunner{}, 10)
		m.Update(tea.WindowSizeMsg{Width: 80, Height: 40})
		run(m, m.Init())

		run(m, press(m, "c"))
		if m.view != ConfirmView || len(m.pending) != 2 {
			t.Fatalf("expected confirm view with 2 pending, got view=%v pending=%d", m.view, len(m.pending))
		}

		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
		if m.view != ComputeView {
			t.Fatalf("expected compute view, got %v", m.view)
		}
		run(m, m.waitForProgress())

		if m.view != ResultView {
			t.Fatalf("expected result view, got %v", m.view)
		}
		if m.failed != 1 {
			t.Errorf("expected 1 failed update, got %d", m.failed)
		}
		if m.result == nil || m.result.Persisted != 1 {
			t.Errorf("unexpected result %+v", m.result)
		}
		view := m.View()
		if !strings.Contains(view, "decode failed") {
			t.Errorf("expected failure listed in result view:\n%s", view)
		}
	})
}

func TestNextMetric(t *testing.T) {
	metrics := similarity.Metrics()
	current := metrics[0]
	for range metrics {
		current = nextMetric(current)
	}
	if current != metrics[0] {
		t.Errorf("expected a full cycle to return to %s, got %s", metrics[0], current)
	}
}

func TestMatchItems(t *testing.T) {
	a := &models.Track{ID: "a", Title: "Near", Artists: []string{"X"}}
	b := &models.Track{ID: "b", Title: "Far", Artists: []string{"Y"}}
	items := matchItems([]repositories.SimilarTrack{{Track: a, Distance: 0.1}, {Track: b, Distance: 0.9}})

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	first := items[0].(matchItem)
	if first.rank != 1 || first.lo != 0.1 || first.hi != 0.9 {
		t.Errorf("unexpected first item %+v", first)
	}
	if !strings.HasPrefix(first.Title(), "1. Near") {
		t.Errorf("expected ranked title, got %q", first.Title())
	}
	if !strings.Contains(items[1].(matchItem).Description(), "0.9000") {
		t.Errorf("expected distance in description, got %q", items[1].(matchItem).Description())
	}

	if got := matchItems(nil); len(got) != 0 {
		t.Errorf("expected no items, got %d", len(got))
	}
}

func TestPaletteDistance(t *testing.T) {
	for _, tc := range []struct {
		d, lo, hi float64
		want      string
	}{
		{0.1, 0.1, 0.9, "0.1000"},
		{0.5, 0.1, 0.9, "0.5000"},
		{0.9, 0.1, 0.9, "0.9000"},
		{0.3, 0.3, 0.3, "0.3000"},
	} {
		if got := styles.distance(tc.d, tc.lo, tc.hi); !strings.Contains(got, tc.want) {
			t.Errorf("distance(%v, %v, %v) = %q, expected it to contain %q", tc.d, tc.lo, tc.hi, got, tc.want)
		}
	}
}
