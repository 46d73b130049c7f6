package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tunesync/internal/formatter"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	JobListView ViewState = iota
	LogsView
	RunningView
	ResultView
)

// Dashboard is the part of [tasks.SyncService] the TUI drives.
type Dashboard interface {
	ListJobs(subject string) ([]*models.SyncJob, error)
	ListRecentLogs(subject, ref string) ([]*models.SyncLogEntry, error)
	RunJobWithProgress(ctx context.Context, ref string, progress chan<- tasks.ProgressUpdate) (*tasks.RunResult, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	svc      Dashboard
	subject  string
	view     ViewState
	width    int
	height   int
	jobList  list.Model
	selected *models.SyncJob
	logs     []*models.SyncLogEntry
	progress tasks.ProgressUpdate
	updates  chan tasks.ProgressUpdate
	done     chan runComplete
	result   *tasks.RunResult
	err      error
	help     help.Model
	keys     keyMap
}

// NewModel creates a dashboard for subject's jobs.
func NewModel(ctx context.Context, svc Dashboard, subject string) *Model {
	jobList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	jobList.Title = "Sync Jobs"

	return &Model{
		ctx:     ctx,
		svc:     svc,
		subject: subject,
		view:    JobListView,
		jobList: jobList,
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Init loads the job list.
func (m *Model) Init() tea.Cmd {
	return m.loadJobs()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.jobList.SetSize(msg.Width-4, msg.Height-6)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case JobListView:
			return m.handleJobListKeys(msg)
		case LogsView:
			return m.handleLogsKeys(msg)
		case RunningView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	if m.view == JobListView {
		m.jobList, cmd = m.jobList.Update(msg)
	}
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgJobsLoaded:
		data := msg.data.(jobsLoaded)
		m.err = data.err
		if data.err != nil {
			return m, nil
		}
		items := make([]list.Item, len(data.jobs))
		for i, job := range data.jobs {
			items[i] = jobItem{job: job}
		}
		return m, m.jobList.SetItems(items)

	case MsgLogsLoaded:
		data := msg.data.(logsLoaded)
		m.logs = data.entries
		m.err = data.err
		return m, nil

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForRun()

	case MsgRunComplete:
		data := msg.data.(runComplete)
		m.result = data.result
		m.err = data.err
		m.updates = nil
		m.done = nil
		m.view = ResultView
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case JobListView:
		return m.renderJobList()
	case LogsView:
		return m.renderLogs()
	case RunningView:
		return m.renderRunning()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) selectedJob() *models.SyncJob {
	if item, ok := m.jobList.SelectedItem().(jobItem); ok {
		return item.job
	}
	return nil
}

func (m *Model) handleJobListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.jobList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.jobList, cmd = m.jobList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		return m, m.loadJobs()
	case key.Matches(msg, m.keys.run):
		if job := m.selectedJob(); job != nil {
			m.selected = job
			return m, m.startRun()
		}
		return m, nil
	case key.Matches(msg, m.keys.logs):
		if job := m.selectedJob(); job != nil {
			m.selected = job
			m.logs = nil
			m.view = LogsView
			return m, m.loadLogs(job.ID)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.jobList, cmd = m.jobList.Update(msg)
	return m, cmd
}

func (m *Model) handleLogsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = JobListView
		m.err = nil
		return m, nil
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.run):
		m.view = JobListView
		m.result = nil
		m.err = nil
		return m, m.loadJobs()
	}
	return m, nil
}

func (m *Model) loadJobs() tea.Cmd {
	return func() tea.Msg {
		jobs, err := m.svc.ListJobs(m.subject)
		return jobsLoadedMsg(jobs, err)
	}
}

func (m *Model) loadLogs(jobID string) tea.Cmd {
	return func() tea.Msg {
		entries, err := m.svc.ListRecentLogs(m.subject, jobID)
		return logsLoadedMsg(entries, err)
	}
}

func (m *Model) startRun() tea.Cmd {
	m.view = RunningView
	m.progress = tasks.ProgressUpdate{}
	m.updates = make(chan tasks.ProgressUpdate, 50)
	m.done = make(chan runComplete, 1)

	ctx, svc, id, updates, done := m.ctx, m.svc, m.selected.ID, m.updates, m.done
	go func() {
		res, err := svc.RunJobWithProgress(ctx, id, updates)
		done <- runComplete{result: res, err: err}
	}()

	return m.waitForRun()
}

func (m *Model) waitForRun() tea.Cmd {
	updates, done := m.updates, m.done
	if done == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case u := <-updates:
			return progressUpdateMsg(u)
		case out := <-done:
			return runCompleteMsg(out.result, out.err)
		}
	}
}

func (m *Model) renderJobList() string {
	body := m.jobList.View()
	if m.err != nil {
		body = styles.err.Render(fmt.Sprintf("Error: %v", m.err)) + "\n\n" + body
	} else if len(m.jobList.Items()) == 0 {
		body = styles.help.Render("No sync jobs yet. Create one with `tunesync jobs create`.")
	}
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.run, m.keys.logs, m.keys.refresh, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", body, helpView)
}

func (m *Model) renderLogs() string {
	title := styles.title.Render(fmt.Sprintf("Recent runs of job #%d", m.selected.Sequence))
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit})

	switch {
	case m.err != nil:
		return fmt.Sprintf("%s\n%s\n\n%s", title, styles.err.Render(m.err.Error()), helpView)
	case len(m.logs) == 0:
		return fmt.Sprintf("%s\n%s\n\n%s", title, styles.help.Render("No sync history yet."), helpView)
	default:
		return fmt.Sprintf("%s\n%s\n\n%s", title, formatter.LogsTable(m.logs), helpView)
	}
}

func (m *Model) renderRunning() string {
	title := styles.title.Render(fmt.Sprintf("Syncing job #%d", m.selected.Sequence))

	phase := m.progress.Phase.String()
	if m.progress.Total > 0 {
		phase = fmt.Sprintf("%s (%d/%d)", phase, m.progress.Step, m.progress.Total)
	}
	if m.progress.Platform != "" {
		phase = fmt.Sprintf("%s • %s", m.progress.Platform.DisplayName(), phase)
	}

	return fmt.Sprintf("%s\n%s\n%s", title, phase, styles.help.Render(m.progress.Message))
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit})

	if m.err != nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(fmt.Sprintf("Sync failed: %v", m.err)), helpView)
	}
	if m.result == nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render("No result available"), helpView)
	}

	title := styles.Status(string(m.result.Status)).Render(fmt.Sprintf("Job #%d: %s", m.selected.Sequence, m.result.Status))
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, formatter.RunTable(m.result), helpView)
}
