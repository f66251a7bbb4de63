package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/tracksig/internal/models"
	"github.com/desertthunder/tracksig/internal/repositories"
)

var (
	_ list.Item = trackItem{}
	_ list.Item = matchItem{}
)

// matchItems ranks matches from 1 and records the distance range for shading.
func matchItems(matches []repositories.SimilarTrack) []list.Item {
	items := make([]list.Item, len(matches))
	if len(matches) == 0 {
		return items
	}

	lo, hi := matches[0].Distance, matches[len(matches)-1].Distance
	for i, match := range matches {
		items[i] = matchItem{rank: i + 1, match: match, lo: lo, hi: hi}
	}
	return items
}

// trackItem wraps [models.Track] to implement [list.Item].
type trackItem struct {
	track *models.Track
}

func (i trackItem) FilterValue() string { return i.track.Title + " " + i.track.ArtistLine() }
func (i trackItem) Title() string {
	return fmt.Sprintf("%s %s", styles.badge(i.track.HasSignature()), i.track.Title)
}
func (i trackItem) Description() string {
	desc := i.track.ArtistLine()
	if !i.track.HasSignature() {
		desc = fmt.Sprintf("%s • no signature", desc)
	}
	return desc
}

// matchItem wraps [repositories.SimilarTrack] to implement [list.Item]. lo and hi bound the distances of
// the ranking it belongs to.
type matchItem struct {
	rank   int
	match  repositories.SimilarTrack
	lo, hi float64
}

func (i matchItem) FilterValue() string { return i.match.Track.Title }
func (i matchItem) Title() string {
	return fmt.Sprintf("%d. %s", i.rank, i.match.Track.Title)
}
func (i matchItem) Description() string {
	return fmt.Sprintf("%s • distance %s", i.match.Track.ArtistLine(), styles.distance(i.match.Distance, i.lo, i.hi))
}
