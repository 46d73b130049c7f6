package models

import "time"

// Playlist represents playlist metadata from one platform.
type Playlist struct {
	ID          string   `json:"id"`
	Platform    Platform `json:"platform"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	TrackCount  int      `json:"track_count"`
	Public      bool     `json:"public"`
}

// Track is a song as one platform reports it.
//
// NativeID is the reference passed to AddTracks on Platform and URI is a link to the track. The same song on another
// platform is a different Track value that shares its canonical key.
type Track struct {
	Platform Platform      `json:"platform"`
	NativeID string        `json:"native_id"`
	URI      string        `json:"uri,omitempty"`
	Title    string        `json:"title"`
	Artist   string        `json:"artist"`
	Album    string        `json:"album,omitempty"`
	Duration time.Duration `json:"duration"`
	ISRC     string        `json:"isrc,omitempty"`
}

// Query builds the search input for resolving t on another platform.
func (t Track) Query() TrackQuery {
	return TrackQuery{Title: t.Title, Artist: t.Artist, ISRC: t.ISRC}
}

// TrackQuery is the search input of a destination lookup.
type TrackQuery struct {
	Title  string
	Artist string
	ISRC   string
}
