// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI browses the stored library and drives the signature pipeline:
//  1. [LibraryView] : Browse and filter stored tracks
//  2. [SimilarView] : Rank the library against the selected track, cycling through distance metrics
//  3. [ConfirmView] : Confirm computing signatures for every pending track
//  4. [ComputeView] : Monitor the pipeline with a spinner, a progress bar and the latest updates
//  5. [ResultView] : Display counts and the tracks that failed
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the SignaturePipeline, providing non-blocking status reporting.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, m, c, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
