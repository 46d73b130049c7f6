package tasks

import (
	"fmt"

	"github.com/desertthunder/tunesync/internal/models"
)

// ProgressUpdate represents a progress event during a run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase    Phase           // Operation phase
	Platform models.Platform // Platform the update is about, empty for run-wide updates
	Step     int             // Current step number within phase
	Total    int             // Total steps in this phase
	Message  string          // Human-readable message for display
	Data     any             // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	CheckConnections Phase = iota
	CreatePlaylist
	FetchTracks
	ResolveTracks
	AddTracks
	Complete
)

func (p Phase) String() string {
	switch p {
	case CheckConnections:
		return "check_connections"
	case CreatePlaylist:
		return "create_playlist"
	case FetchTracks:
		return "fetch_tracks"
	case ResolveTracks:
		return "resolve_tracks"
	case AddTracks:
		return "add_tracks"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func checkConnectionsUpdate(live int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CheckConnections,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("%d live platform connections", live),
	}
}

func createPlaylistUpdate(p models.Platform, pl *models.Playlist) ProgressUpdate {
	return ProgressUpdate{
		Phase:    CreatePlaylist,
		Platform: p,
		Step:     1,
		Total:    1,
		Message:  fmt.Sprintf("Playlist created on %s: %s (ID: %s)", p.DisplayName(), pl.Name, pl.ID),
		Data:     pl,
	}
}

func fetchTracksUpdate(step, total int, p models.Platform, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:    FetchTracks,
		Platform: p,
		Step:     step,
		Total:    total,
		Message:  fmt.Sprintf("[%d/%d] Fetched %d tracks from %s", step, total, count, p.DisplayName()),
	}
}

func resolveTrackUpdate(step, total int, p models.Platform, tr models.Track) ProgressUpdate {
	return ProgressUpdate{
		Phase:    ResolveTracks,
		Platform: p,
		Step:     step,
		Total:    total,
		Message:  fmt.Sprintf("[%d/%d] %s - %s", step, total, tr.Artist, tr.Title),
	}
}

func addTracksUpdate(p models.Platform, count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:    AddTracks,
		Platform: p,
		Step:     1,
		Total:    1,
		Message:  fmt.Sprintf("Adding %d tracks to %s...", count, p.DisplayName()),
	}
}

func completeUpdate(res *RunResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Run finished: %s", res.Summary()),
		Data:    res,
	}
}
