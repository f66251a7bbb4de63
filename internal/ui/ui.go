package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tracksig/internal/models"
	"github.com/desertthunder/tracksig/internal/repositories"
	"github.com/desertthunder/tracksig/internal/similarity"
	"github.com/desertthunder/tracksig/internal/tasks"
)

const (
	libraryLimit = 500
	similarLimit = 25
	recentLines  = 5
)

// Library is the track storage the TUI browses. Implemented by [repositories.TrackRepository].
type Library interface {
	List(limit, offset int) ([]*models.Track, error)
	Similar(id string, metric similarity.Metric, limit int) ([]repositories.SimilarTrack, error)
	WithoutSignature(limit int) ([]*models.Track, error)
}

// SignatureRunner computes signatures for a set of tracks. Implemented by [tasks.SignaturePipeline].
type SignatureRunner interface {
	Run(ctx context.Context, progress chan<- tasks.ProgressUpdate, tracks []*models.Track, batchSize int) (*tasks.PipelineResult, error)
}

// ViewState represents the current view in the TUI.
type ViewState int

const (
	LibraryView ViewState = iota
	SimilarView
	ConfirmView
	ComputeView
	ResultView
)

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	library      Library
	runner       SignatureRunner
	batchSize    int
	width        int
	height       int
	trackList    list.Model
	matchList    list.Model
	reference    *models.Track
	metric       similarity.Metric
	pending      []*models.Track
	progressChan chan tasks.ProgressUpdate
	doneChan     chan computeComplete
	progress     tasks.ProgressUpdate
	recent       []string
	failed       int
	bar          progress.Model
	spinner      spinner.Model
	result       *tasks.PipelineResult
	notice       string
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model with the provided dependencies. runner may be nil, which disables signature
// computation.
func NewModel(ctx context.Context, library Library, runner SignatureRunner, batchSize int) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = NewStyle("#7D56F4")

	return &Model{
		ctx:       ctx,
		view:      LibraryView,
		library:   library,
		runner:    runner,
		batchSize: batchSize,
		metric:    similarity.Cosine,
		trackList: list.New(nil, list.NewDefaultDelegate(), 0, 0),
		matchList: list.New(nil, list.NewDefaultDelegate(), 0, 0),
		bar:       progress.New(progress.WithDefaultGradient()),
		spinner:   sp,
		help:      help.New(),
		keys:      newKeyMap(),
	}
}

// Init loads the stored tracks.
func (m *Model) Init() tea.Cmd {
	return m.loadTracks()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.trackList.SetSize(msg.Width-4, msg.Height-8)
		m.matchList.SetSize(msg.Width-4, msg.Height-8)
		m.bar.Width = max(msg.Width-8, 10)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case LibraryView:
			return m.handleLibraryKeys(msg)
		case SimilarView:
			return m.handleSimilarKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case ComputeView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != ComputeView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgTracksLoaded:
		data := msg.data.(tracksLoaded)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		items := make([]list.Item, len(data.tracks))
		for i, t := range data.tracks {
			items[i] = trackItem{track: t}
		}
		m.trackList.SetItems(items)
		m.trackList.Title = fmt.Sprintf("Library (%d tracks)", len(data.tracks))
		return m, nil

	case MsgSimilarLoaded:
		data := msg.data.(similarLoaded)
		if data.err != nil {
			m.notice = data.err.Error()
			m.view = LibraryView
			return m, nil
		}
		items := matchItems(data.matches)
		m.reference = data.reference
		m.metric = data.metric
		m.matchList.SetItems(items)
		m.matchList.Title = fmt.Sprintf("Similar to '%s' (%s)", data.reference.Title, data.metric)
		m.notice = ""
		m.view = SimilarView
		return m, nil

	case MsgPendingLoaded:
		data := msg.data.(pendingLoaded)
		if data.err != nil {
			m.notice = data.err.Error()
			return m, nil
		}
		if len(data.tracks) == 0 {
			m.notice = "Every stored track already has a signature"
			return m, nil
		}
		m.pending = data.tracks
		m.notice = ""
		m.view = ConfirmView
		return m, nil

	case MsgProgressUpdate:
		m.applyProgress(msg.data.(tasks.ProgressUpdate))
		return m, m.waitForProgress()

	case MsgComputeComplete:
		data := msg.data.(computeComplete)
		m.result = data.result
		m.err = data.err
		m.progressChan = nil
		m.doneChan = nil
		m.view = ResultView
		return m, nil
	}
	return m, nil
}

// applyProgress records one pipeline update. Per-track updates carry the track in Data and move the bar.
func (m *Model) applyProgress(u tasks.ProgressUpdate) {
	m.progress = u
	if u.Phase == tasks.ComputeSignatures && u.Data != nil && u.Failed {
		m.failed++
	}
	m.recent = append(m.recent, u.Message)
	if len(m.recent) > recentLines {
		m.recent = m.recent[len(m.recent)-recentLines:]
	}
}

// percent reports the share of pending tracks resolved so far.
func (m *Model) percent() float64 {
	u := m.progress
	if u.Phase != tasks.ComputeSignatures || u.Data == nil || u.Total == 0 {
		return 0
	}
	return float64(u.Step) / float64(u.Total)
}

func (m *Model) handleLibraryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.trackList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.trackList, cmd = m.trackList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.trackList.SelectedItem().(trackItem); ok {
			return m, m.loadSimilar(item.track, m.metric)
		}
		return m, nil
	case key.Matches(msg, m.keys.compute):
		if m.runner == nil {
			m.notice = "Signature computation is not configured"
			return m, nil
		}
		return m, m.loadPending()
	}

	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

func (m *Model) handleSimilarKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = LibraryView
		return m, nil
	case key.Matches(msg, m.keys.metric):
		return m, m.loadSimilar(m.reference, nextMetric(m.metric))
	}

	var cmd tea.Cmd
	m.matchList, cmd = m.matchList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit), key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back):
		m.view = LibraryView
		return m, nil
	case key.Matches(msg, m.keys.yes):
		m.view = ComputeView
		return m, tea.Batch(m.startCompute(), m.spinner.Tick)
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.view = LibraryView
		m.result = nil
		m.err = nil
		m.pending = nil
		return m, m.loadTracks()
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case LibraryView:
		m.trackList, cmd = m.trackList.Update(msg)
	case SimilarView:
		m.matchList, cmd = m.matchList.Update(msg)
	}
	return m, cmd
}

// nextMetric cycles through [similarity.Metrics].
func nextMetric(current similarity.Metric) similarity.Metric {
	metrics := similarity.Metrics()
	for i, metric := range metrics {
		if metric == current {
			return metrics[(i+1)%len(metrics)]
		}
	}
	return metrics[0]
}

func (m *Model) loadTracks() tea.Cmd {
	return func() tea.Msg {
		tracks, err := m.library.List(libraryLimit, 0)
		return tracksLoadedMsg(tracks, err)
	}
}

func (m *Model) loadSimilar(ref *models.Track, metric similarity.Metric) tea.Cmd {
	return func() tea.Msg {
		matches, err := m.library.Similar(ref.ID, metric, similarLimit)
		return similarLoadedMsg(ref, metric, matches, err)
	}
}

func (m *Model) loadPending() tea.Cmd {
	return func() tea.Msg {
		tracks, err := m.library.WithoutSignature(0)
		return pendingLoadedMsg(tracks, err)
	}
}

func (m *Model) startCompute() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	m.doneChan = make(chan computeComplete, 1)
	m.progress = tasks.ProgressUpdate{}
	m.recent = nil
	m.failed = 0

	updates, done, pending, batchSize := m.progressChan, m.doneChan, m.pending, m.batchSize
	go func() {
		result, err := m.runner.Run(m.ctx, updates, pending, batchSize)
		done <- computeComplete{result: result, err: err}
		close(updates)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	updates, done := m.progressChan, m.doneChan
	return func() tea.Msg {
		update, ok := <-updates
		if !ok {
			res := <-done
			return computeCompleteMsg(res.result, res.err)
		}
		return progressUpdateMsg(update)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case LibraryView:
		return m.renderLibrary()
	case SimilarView:
		return m.renderSimilar()
	case ConfirmView:
		return m.renderConfirm()
	case ComputeView:
		return m.renderCompute()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) renderNotice() string {
	if m.notice == "" {
		return ""
	}
	return "\n" + styles.warn.Render(m.notice)
}

func (m *Model) renderLibrary() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.compute, m.keys.quit})
	return fmt.Sprintf("%s%s\n\n%s", m.trackList.View(), m.renderNotice(), helpView)
}

func (m *Model) renderSimilar() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.metric, m.keys.back, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", m.matchList.View(), helpView)
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render("Compute signatures?")
	info := fmt.Sprintf("\nPending tracks: %d\n", len(m.pending))
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no})
	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) renderCompute() string {
	title := styles.title.Render("Computing Signatures")

	var phase string
	switch m.progress.Phase {
	case tasks.ComputeSignatures:
		phase = fmt.Sprintf("%s Extracting features...", m.spinner.View())
	case tasks.SaveSignatures:
		phase = fmt.Sprintf("%s Saving signatures...", m.spinner.View())
	case tasks.Throttle:
		phase = fmt.Sprintf("%s Waiting between batches...", m.spinner.View())
	default:
		phase = fmt.Sprintf("%s Starting...", m.spinner.View())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n%s\n%s\n", title, phase, m.bar.ViewAs(m.percent()))
	if m.failed > 0 {
		b.WriteString(styles.warn.Render(fmt.Sprintf("%d failed", m.failed)) + "\n")
	}
	for _, line := range m.recent {
		b.WriteString(styles.help.Render(line) + "\n")
	}
	return b.String()
}

func (m *Model) renderResult() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Signature run failed: %v\n\nPress r to return, q to quit", m.err))
	}

	if m.result == nil {
		return styles.err.Render("No result available\n\nPress r to return, q to quit")
	}

	title := styles.ok.Render("✓ Signatures Computed")
	info := fmt.Sprintf(
		"\nTracks: %d\nComputed: %d\nPersisted: %d\nBatches: %d\nElapsed: %s",
		m.result.Total,
		m.result.Computed,
		m.result.Persisted,
		m.result.Batches,
		m.result.Elapsed.Round(time.Millisecond),
	)

	var failed string
	if len(m.result.Failures) > 0 {
		failed = fmt.Sprintf("\n\n%s", styles.warn.Render(fmt.Sprintf("Failed to compute %d tracks:", len(m.result.Failures))))
		for _, f := range m.result.Failures {
			failed += fmt.Sprintf("\n  • %s: %s", f.Title, f.Error)
		}
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.restart, m.keys.quit})
	return fmt.Sprintf("%s\n%s%s\n\n%s", title, info, failed, helpView)
}
