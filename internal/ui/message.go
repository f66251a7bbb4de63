package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tracksig/internal/models"
	"github.com/desertthunder/tracksig/internal/repositories"
	"github.com/desertthunder/tracksig/internal/similarity"
	"github.com/desertthunder/tracksig/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgTracksLoaded MsgKind = iota
	MsgSimilarLoaded
	MsgPendingLoaded
	MsgProgressUpdate
	MsgComputeComplete
)

type tracksLoaded struct {
	tracks []*models.Track
	err    error
}

type similarLoaded struct {
	reference *models.Track
	metric    similarity.Metric
	matches   []repositories.SimilarTrack
	err       error
}

type pendingLoaded struct {
	tracks []*models.Track
	err    error
}

type computeComplete struct {
	result *tasks.PipelineResult
	err    error
}

// tracksLoadedMsg is the constructor for [MsgTracksLoaded]
func tracksLoadedMsg(tracks []*models.Track, err error) Msg {
	return Msg{kind: MsgTracksLoaded, data: tracksLoaded{tracks, err}}
}

// similarLoadedMsg is the constructor for [MsgSimilarLoaded]
func similarLoadedMsg(ref *models.Track, metric similarity.Metric, matches []repositories.SimilarTrack, err error) Msg {
	return Msg{kind: MsgSimilarLoaded, data: similarLoaded{ref, metric, matches, err}}
}

// pendingLoadedMsg is the constructor for [MsgPendingLoaded]
func pendingLoadedMsg(tracks []*models.Track, err error) Msg {
	return Msg{kind: MsgPendingLoaded, data: pendingLoaded{tracks, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// computeCompleteMsg is the constructor for [MsgComputeComplete]
func computeCompleteMsg(result *tasks.PipelineResult, err error) Msg {
	return Msg{kind: MsgComputeComplete, data: computeComplete{result, err}}
}
