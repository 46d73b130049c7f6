// package formatter renders jobs, sync logs, statistics and run results as tables, CSV or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/tunesync/internal/credentials"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/tasks"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Format is an output encoding accepted by the CLI.
type Format string

const (
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
)

const timeLayout = "2006-01-02 15:04"

// ParseFormat resolves a --format flag value. An empty value means [FormatTable].
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: format %q (expected table, csv or json)", shared.ErrInvalidArgument, s)
	}
}

type align int

const (
	alignLeft align = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []align) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		a := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			a = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: a, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return t.Local().Format(timeLayout)
}

func destinations(job *models.SyncJob) string {
	parts := make([]string, 0, len(job.Destinations))
	for _, d := range job.Destinations {
		parts = append(parts, d.Platform.String())
	}
	return strings.Join(parts, ", ")
}

func lastStatus(job *models.SyncJob) string {
	if job.LastStatus == "" {
		return "-"
	}
	return string(job.LastStatus)
}

// JobsTable renders one row per job.
func JobsTable(jobs []*models.SyncJob) string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{
			strconv.Itoa(j.Sequence),
			j.SourcePlatform.String() + ":" + j.SourcePlaylistID,
			destinations(j),
			string(j.Status),
			formatTime(j.LastRunAt),
			lastStatus(j),
		})
	}
	return renderTable(
		[]string{"#", "Source", "Destinations", "Status", "Last Run", "Result"},
		rows,
		[]align{alignRight},
	)
}

// JobDetail renders a single job with one row per destination.
func JobDetail(job *models.SyncJob) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job #%d (%s)\n", job.Sequence, job.ID)
	fmt.Fprintf(&b, "Subject: %s\n", job.Subject)
	fmt.Fprintf(&b, "Source: %s %s\n", job.SourcePlatform.DisplayName(), job.SourcePlaylistID)
	fmt.Fprintf(&b, "Status: %s\n", job.Status)
	fmt.Fprintf(&b, "Last run: %s (%s)\n\n", formatTime(job.LastRunAt), lastStatus(job))

	rows := make([][]string, 0, len(job.Destinations))
	for _, d := range job.Destinations {
		id := d.PlaylistID
		if id == "" {
			id = "(created on next run)"
		}
		rows = append(rows, []string{d.Platform.DisplayName(), d.PlaylistName, id})
	}
	b.WriteString(renderTable([]string{"Destination", "Name", "Playlist ID"}, rows, nil))
	return b.String()
}

// LogsTable renders sync log entries, newest first as they are given.
func LogsTable(entries []*models.SyncLogEntry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			formatTime(&e.CreatedAt),
			shortID(e.JobID),
			e.Platform.String(),
			e.Action,
			string(e.Status),
			e.Message,
		})
	}
	return renderTable([]string{"Time", "Job", "Platform", "Action", "Status", "Message"}, rows, nil)
}

// ExportLogsCSV converts log entries to CSV with columns: Time, Job, Platform, Action, Status, Message
func ExportLogsCSV(entries []*models.SyncLogEntry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"Time", "Job", "Platform", "Action", "Status", "Message"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, e := range entries {
		record := []string{
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.JobID,
			e.Platform.String(),
			e.Action,
			string(e.Status),
			e.Message,
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

// WriteLogs writes entries to w in the requested format.
func WriteLogs(w io.Writer, entries []*models.SyncLogEntry, format Format) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatCSV:
		data, err = ExportLogsCSV(entries)
	case FormatJSON:
		if entries == nil {
			entries = []*models.SyncLogEntry{}
		}
		data, err = shared.MarshalJSON(entries, true)
	default:
		if len(entries) == 0 {
			data = []byte("No sync history yet.")
		} else {
			data = []byte(LogsTable(entries))
		}
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, strings.TrimRight(string(data), "\n"))
	return err
}

// StatsTable renders the overall totals followed by a per-job breakdown.
func StatsTable(stats *models.Stats) string {
	var b strings.Builder
	b.WriteString(renderTable(
		[]string{"Runs", "Success", "Partial", "Failed", "Last Run"},
		[][]string{{
			strconv.Itoa(stats.TotalRuns),
			strconv.Itoa(stats.SuccessCount),
			strconv.Itoa(stats.PartialCount),
			strconv.Itoa(stats.FailedCount),
			formatTime(stats.LastRun),
		}},
		[]align{alignRight, alignRight, alignRight, alignRight},
	))

	if len(stats.PerJob) == 0 {
		return b.String()
	}

	rows := make([][]string, 0, len(stats.PerJob))
	for _, js := range stats.PerJob {
		rows = append(rows, []string{
			shortID(js.JobID),
			strconv.Itoa(js.Runs),
			strconv.Itoa(js.Successes),
			formatTime(js.LastRun),
		})
	}
	b.WriteString("\n")
	b.WriteString(renderTable([]string{"Job", "Runs", "Successes", "Last Run"}, rows,
		[]align{alignLeft, alignRight, alignRight}))
	return b.String()
}

// PlaylistsTable renders the playlists owned on one platform.
func PlaylistsTable(playlists []models.Playlist) string {
	rows := make([][]string, 0, len(playlists))
	for _, p := range playlists {
		visibility := "Private"
		if p.Public {
			visibility = "Public"
		}
		rows = append(rows, []string{p.ID, p.Name, strconv.Itoa(p.TrackCount), visibility})
	}
	return renderTable([]string{"ID", "Name", "Tracks", "Visibility"}, rows,
		[]align{alignLeft, alignLeft, alignRight})
}

// ConnectionsTable renders the connection state of every platform.
func ConnectionsTable(conns []credentials.Connection) string {
	rows := make([][]string, 0, len(conns))
	for _, c := range conns {
		state := "not connected"
		switch {
		case c.Connected && c.Usable:
			state = "connected"
		case c.Connected:
			state = "expired (reconnect)"
		}
		expires := "-"
		if c.Connected {
			expires = formatTime(c.ExpiresAt)
			if c.ExpiresAt == nil {
				expires = "no expiry"
			}
		}
		rows = append(rows, []string{c.Platform.DisplayName(), state, expires})
	}
	return renderTable([]string{"Platform", "State", "Token Expires"}, rows, nil)
}

// RunTable renders the per-platform outcome of a run.
func RunTable(res *tasks.RunResult) string {
	rows := make([][]string, 0, len(res.Platforms))
	for _, p := range res.Platforms {
		status := string(p.Status)
		if p.Skipped {
			status = "skipped"
		}
		rows = append(rows, []string{
			p.Platform.DisplayName(),
			string(p.Role),
			strconv.Itoa(p.Fetched),
			strconv.Itoa(p.Missing),
			strconv.Itoa(p.Added),
			strconv.Itoa(p.NotFound),
			status,
			strings.Join(p.Errors, "; "),
		})
	}

	var b strings.Builder
	b.WriteString(res.Summary() + "\n")
	if len(rows) > 0 {
		b.WriteString(renderTable(
			[]string{"Platform", "Role", "Fetched", "Missing", "Added", "Not Found", "Status", "Errors"},
			rows,
			[]align{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
		))
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
