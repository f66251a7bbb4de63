// package formatter renders similarity results and signature comparisons (CSV, Markdown, plain text, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/desertthunder/tracksig/internal/models"
	"github.com/desertthunder/tracksig/internal/repositories"
	"github.com/desertthunder/tracksig/internal/shared"
	"github.com/desertthunder/tracksig/internal/similarity"
)

// Format names accepted by [WriteSimilarExport].
const (
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatText     = "txt"
)

// SimilarExport is a ranked similarity result for one reference track.
type SimilarExport struct {
	Reference *models.Track               `json:"reference"`
	Metric    similarity.Metric           `json:"metric"`
	Matches   []repositories.SimilarTrack `json:"matches"`
}

func formatDistance(d float64) string {
	return strconv.FormatFloat(d, 'f', 6, 64)
}

// SimilarToCSV converts a SimilarExport to CSV format with columns: Rank, ID, Title, Artists, Distance, Preview
func SimilarToCSV(export *SimilarExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Rank", "ID", "Title", "Artists", "Distance", "Preview"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, match := range export.Matches {
		record := []string{
			strconv.Itoa(i + 1),
			match.Track.ID,
			match.Track.Title,
			match.Track.ArtistLine(),
			formatDistance(match.Distance),
			match.Track.PreviewURL,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// SimilarToMarkdown converts a SimilarExport to a Markdown table.
func SimilarToMarkdown(export *SimilarExport) ([]byte, error) {
	var buf bytes.Buffer
	ref := export.Reference

	fmt.Fprintf(&buf, "# Similar to %s\n\n", ref.Title)
	if artists := ref.ArtistLine(); artists != "" {
		fmt.Fprintf(&buf, "**Artists**: %s\n", artists)
	}
	fmt.Fprintf(&buf, "**Metric**: %s\n", export.Metric)
	fmt.Fprintf(&buf, "**Matches**: %d\n\n", len(export.Matches))

	buf.WriteString("| # | Title | Artists | Distance |\n")
	buf.WriteString("|---|-------|---------|----------|\n")
	for i, match := range export.Matches {
		fmt.Fprintf(&buf, "| %d | %s | %s | %s |\n",
			i+1, escapeCell(match.Track.Title), escapeCell(match.Track.ArtistLine()), formatDistance(match.Distance))
	}

	return buf.Bytes(), nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// SimilarToText converts a SimilarExport to plain text format
func SimilarToText(export *SimilarExport) ([]byte, error) {
	var buf bytes.Buffer
	ref := export.Reference

	fmt.Fprintf(&buf, "Reference: %s - %s\n", ref.ArtistLine(), ref.Title)
	fmt.Fprintf(&buf, "Metric: %s\n", export.Metric)
	fmt.Fprintf(&buf, "Matches: %d\n\n", len(export.Matches))

	for i, match := range export.Matches {
		fmt.Fprintf(&buf, "%d. [%s] %s - %s\n", i+1, formatDistance(match.Distance), match.Track.ArtistLine(), match.Track.Title)
	}

	return buf.Bytes(), nil
}

// SimilarToJSON converts a SimilarExport to indented JSON.
func SimilarToJSON(export *SimilarExport) ([]byte, error) {
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// RenderSimilar renders export in the named format.
func RenderSimilar(export *SimilarExport, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatJSON, "":
		return SimilarToJSON(export)
	case FormatCSV:
		return SimilarToCSV(export)
	case FormatMarkdown, "md":
		return SimilarToMarkdown(export)
	case FormatText, "text":
		return SimilarToText(export)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q (use json, csv, markdown or txt)", shared.ErrInvalidArgument, format)
	}
}

func extension(format string) string {
	switch strings.ToLower(format) {
	case FormatCSV:
		return "csv"
	case FormatMarkdown, "md":
		return "md"
	case FormatText, "text":
		return "txt"
	default:
		return "json"
	}
}

// WriteSimilarExport renders export in format and writes it to path.
//
// Defaults to {reference.ID}_similar.{ext} as the filename.
func WriteSimilarExport(export *SimilarExport, format, path string) (string, error) {
	data, err := RenderSimilar(export, format)
	if err != nil {
		return "", err
	}

	if path == "" {
		path = fmt.Sprintf("%s_similar.%s", export.Reference.ID, extension(format))
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	return path, nil
}

// ComparisonToText lists every metric of a pairwise comparison in the fixed metric order.
func ComparisonToText(a, b string, comparison similarity.Comparison) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "A: %s\nB: %s\n\n", a, b)
	for _, m := range similarity.Metrics() {
		d, ok := comparison[m]
		if !ok {
			continue
		}
		fmt.Fprintf(&buf, "%-12s %s\n", m, formatDistance(d))
	}

	return buf.Bytes()
}

// SignatureToText describes a track and its stored signature.
func SignatureToText(track *models.Track) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "#%d %s - %s\n", track.Sequence, track.ArtistLine(), track.Title)
	fmt.Fprintf(&buf, "ID: %s\n", track.ID)
	fmt.Fprintf(&buf, "Preview: %s\n", track.PreviewURL)
	if !track.HasSignature() {
		buf.WriteString("Signature: none\n")
		return buf.Bytes()
	}
	fmt.Fprintf(&buf, "Signature (%d): %s\n", len(track.Signature), similarity.Serialize(track.Signature))

	return buf.Bytes()
}
