package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/tunesync/internal/models"
)

var _ list.Item = jobItem{}

// jobItem wraps [models.SyncJob] to implement [list.Item].
type jobItem struct {
	job *models.SyncJob
}

func (i jobItem) FilterValue() string { return i.job.SourcePlaylistID }
func (i jobItem) Title() string {
	return fmt.Sprintf("#%d %s %s", i.job.Sequence, i.job.SourcePlatform.DisplayName(), i.job.SourcePlaylistID)
}

func (i jobItem) Description() string {
	dests := make([]string, 0, len(i.job.Destinations))
	for _, d := range i.job.Destinations {
		dests = append(dests, d.Platform.DisplayName())
	}

	desc := fmt.Sprintf("→ %s • %s", strings.Join(dests, ", "), i.job.Status)
	if i.job.LastRunAt != nil {
		desc = fmt.Sprintf("%s • last %s %s", desc, i.job.LastRunAt.Local().Format("Jan 2 15:04"), i.job.LastStatus)
	}
	return desc
}
