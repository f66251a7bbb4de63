package formatter

import (
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/tracksig/internal/models"
	"github.com/desertthunder/tracksig/internal/repositories"
	"github.com/desertthunder/tracksig/internal/shared"
	"github.com/desertthunder/tracksig/internal/similarity"
	th "github.com/desertthunder/tracksig/internal/testing"
)

func testExport() *SimilarExport {
	return &SimilarExport{
		Reference: &models.Track{ID: "ref", Title: "Reference Song", Artists: []string{"Artist One"}},
		Metric:    similarity.Euclidean,
		Matches: []repositories.SimilarTrack{
			{
				Track:    &models.Track{ID: "track1", Title: "Song One", Artists: []string{"Artist One", "Guest"}, PreviewURL: "https://cdn.test/1.mp3"},
				Distance: 0.125,
			},
			{
				Track:    &models.Track{ID: "track2", Title: "Pipe | Song", Artists: []string{"Artist Two"}},
				Distance: 2.5,
			},
		},
	}
}

func TestExporters(t *testing.T) {
	t.Run("SimilarToCSV", func(t *testing.T) {
		data, err := SimilarToCSV(testExport())
		if err != nil {
			t.Fatalf("SimilarToCSV failed: %v", err)
		}

		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if lines[0] != "Rank,ID,Title,Artists,Distance,Preview" {
			t.Errorf("CSV missing headers, got: %s", lines[0])
		}
		if len(lines) != 3 {
			t.Fatalf("expected 3 lines, got %d", len(lines))
		}
		if lines[1] != `1,track1,Song One,"Artist One, Guest",0.125000,https://cdn.test/1.mp3` {
			t.Errorf("unexpected first record: %s", lines[1])
		}
	})

	t.Run("SimilarToMarkdown", func(t *testing.T) {
		data, err := SimilarToMarkdown(testExport())
		if err != nil {
			t.Fatalf("SimilarToMarkdown failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{
			"# Similar to Reference Song",
			"**Metric**: euclidean",
			"**Matches**: 2",
			"| 1 | Song One | Artist One, Guest | 0.125000 |",
			`| 2 | Pipe \| Song | Artist Two | 2.500000 |`,
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("SimilarToText", func(t *testing.T) {
		data, err := SimilarToText(testExport())
		if err != nil {
			t.Fatalf("SimilarToText failed: %v", err)
		}

		output := string(data)
		if !strings.Contains(output, "Reference: Artist One - Reference Song") {
			t.Errorf("text missing reference, got: %s", output)
		}
		if !strings.Contains(output, "2. [2.500000] Artist Two - Pipe | Song") {
			t.Errorf("text missing second match, got: %s", output)
		}
	})

	t.Run("SimilarToJSON", func(t *testing.T) {
		data, err := SimilarToJSON(testExport())
		if err != nil {
			t.Fatalf("SimilarToJSON failed: %v", err)
		}

		var decoded SimilarExport
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.Metric != similarity.Euclidean || len(decoded.Matches) != 2 || decoded.Matches[1].Distance != 2.5 {
			t.Errorf("unexpected decoded export %+v", decoded)
		}
	})

	t.Run("SimilarToJSON With NaN", func(t *testing.T) {
		export := testExport()
		export.Reference.Signature = []float64{1, 2, 3}
		export.Matches[0].Track.Signature = []float64{0, 0, 0}
		export.Matches[1].Track.Signature = []float64{math.NaN(), math.NaN(), math.NaN()}
		export.Matches[1].Distance = math.NaN()

		data, err := SimilarToJSON(export)
		if err != nil {
			t.Fatalf("SimilarToJSON failed: %v", err)
		}
		if !strings.Contains(string(data), `"distance": null`) {
			t.Errorf("expected a null distance, got:\n%s", data)
		}

		var decoded SimilarExport
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		sig := decoded.Matches[1].Track.Signature
		if len(sig) != 3 || !math.IsNaN(sig[0]) {
			t.Errorf("expected NaN signature to survive as null, got %v", sig)
		}
		if got := decoded.Matches[0].Track.Signature; len(got) != 3 || got[0] != 0 {
			t.Errorf("expected zero signature, got %v", got)
		}
	})

	t.Run("Unsupported Format", func(t *testing.T) {
		if _, err := RenderSimilar(testExport(), "xml"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestWriters(t *testing.T) {
	t.Run("WriteSimilarExport", func(t *testing.T) {
		t.Run("WithCustomPath", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out.md")
			got, err := WriteSimilarExport(testExport(), FormatMarkdown, path)
			if err != nil {
				t.Fatalf("WriteSimilarExport failed: %v", err)
			}
			if got != path {
				t.Errorf("expected %s, got %s", path, got)
			}
			th.AssertFileExists(t, path)
			if content := th.MustReadFile(t, path); !strings.Contains(content, "# Similar to") {
				t.Errorf("unexpected content: %s", content)
			}
		})

		t.Run("WithDefaultPath", func(t *testing.T) {
			t.Chdir(t.TempDir())
			got, err := WriteSimilarExport(testExport(), FormatCSV, "")
			if err != nil {
				t.Fatalf("WriteSimilarExport failed: %v", err)
			}
			if got != "ref_similar.csv" {
				t.Errorf("expected default filename, got %s", got)
			}
			th.AssertFileExists(t, got)
		})

		t.Run("WithUnwritablePath", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "missing", "out.txt")
			if _, err := WriteSimilarExport(testExport(), FormatText, path); err == nil {
				t.Error("expected an error for a missing directory")
			}
		})
	})
}

func TestComparisonToText(t *testing.T) {
	comparison := similarity.Comparison{
		similarity.Cosine:    0.01,
		similarity.Euclidean: math.Sqrt(2),
	}

	output := string(ComparisonToText("a.wav", "b.mp3", comparison))
	if !strings.Contains(output, "A: a.wav\nB: b.mp3") {
		t.Errorf("missing inputs, got: %s", output)
	}
	if strings.Index(output, "cosine") > strings.Index(output, "euclidean") {
		t.Errorf("expected fixed metric order, got: %s", output)
	}
	if strings.Contains(output, "manhattan") {
		t.Errorf("expected absent metrics to be skipped, got: %s", output)
	}
}

func TestSignatureToText(t *testing.T) {
	track := &models.Track{ID: "t1", Sequence: 7, Title: "Song", Artists: []string{"A"}}
	if !strings.Contains(string(SignatureToText(track)), "Signature: none") {
		t.Error("expected missing signature to be reported")
	}

	track.Signature = []float64{0.5, -1}
	if out := string(SignatureToText(track)); !strings.Contains(out, "Signature (2): 0.5,-1") || !strings.HasPrefix(out, "#7 A - Song") {
		t.Errorf("unexpected output: %s", out)
	}
}
