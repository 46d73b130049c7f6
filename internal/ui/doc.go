// Package ui implements an interactive jobs dashboard using bubbletea's Elm architecture.
//
// The dashboard has four views:
//  1. [JobListView] : Browse the subject's sync jobs
//  2. [LogsView] : Recent sync log entries of the selected job
//  3. [RunningView] : Live progress of a manual run
//  4. [ResultView] : Per-platform outcome of the run
//
// The [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the [Msg] union type.
// Progress updates flow through a channel from the sync engine, so the view never blocks on a run.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, l, r, esc, q) with contextual help displayed via
// charmbracelet/bubbles/help.
package ui
