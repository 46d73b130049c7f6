package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/tasks"
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
	MsgJobsLoaded MsgKind = iota
	MsgLogsLoaded
	MsgProgressUpdate
	MsgRunComplete
)

type jobsLoaded struct {
	jobs []*models.SyncJob
	err  error
}

type logsLoaded struct {
	entries []*models.SyncLogEntry
	err     error
}

type runComplete struct {
	result *tasks.RunResult
	err    error
}

// jobsLoadedMsg is the constructor for [MsgJobsLoaded]
func jobsLoadedMsg(jobs []*models.SyncJob, err error) Msg {
	return Msg{kind: MsgJobsLoaded, data: jobsLoaded{jobs, err}}
}

// logsLoadedMsg is the constructor for [MsgLogsLoaded]
func logsLoadedMsg(entries []*models.SyncLogEntry, err error) Msg {
	return Msg{kind: MsgLogsLoaded, data: logsLoaded{entries, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// runCompleteMsg is the constructor for [MsgRunComplete]
func runCompleteMsg(result *tasks.RunResult, err error) Msg {
	return Msg{kind: MsgRunComplete, data: runComplete{result, err}}
}
