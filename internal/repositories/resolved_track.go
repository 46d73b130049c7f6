package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tunesync/internal/models"
)

// ResolvedTrackRepository caches destination tracks found by search, keyed by platform and canonical track key.
//
// It implements matching.Cache, so a track searched once is never searched again on the same platform.
type ResolvedTrackRepository struct {
	db *sql.DB
}

// NewResolvedTrackRepository creates a new [ResolvedTrackRepository] with the given database connection
func NewResolvedTrackRepository(db *sql.DB) *ResolvedTrackRepository {
	return &ResolvedTrackRepository{db: db}
}

// Lookup returns the cached track, or nil when the key has not been resolved on platform.
func (r *ResolvedTrackRepository) Lookup(platform models.Platform, key string) (*models.Track, error) {
	query := `SELECT native_id, uri, title, artist FROM resolved_tracks WHERE platform = ? AND track_key = ?`

	track := models.Track{Platform: platform}
	var uri, title, artist sql.NullString
	err := r.db.QueryRow(query, platform, key).Scan(&track.NativeID, &uri, &title, &artist)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query resolved track: %w", err)
	}

	track.URI = uri.String
	track.Title = title.String
	track.Artist = artist.String
	return &track, nil
}

// Store records the resolution, replacing an earlier one for the same key.
func (r *ResolvedTrackRepository) Store(platform models.Platform, key string, track models.Track) error {
	if key == "" || track.NativeID == "" {
		return fmt.Errorf("resolved track needs a key and native id")
	}

	query := `
		INSERT INTO resolved_tracks (platform, track_key, native_id, uri, title, artist, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (platform, track_key) DO UPDATE SET
			native_id = excluded.native_id,
			uri = excluded.uri,
			title = excluded.title,
			artist = excluded.artist
	`
	_, err := r.db.Exec(query, platform, key, track.NativeID, nullString(track.URI), nullString(track.Title),
		nullString(track.Artist), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store resolved track: %w", err)
	}
	return nil
}

// Clear forgets every resolution on platform, or on all platforms when platform is empty.
func (r *ResolvedTrackRepository) Clear(platform models.Platform) (int64, error) {
	query := `DELETE FROM resolved_tracks`
	args := []any{}
	if platform != "" {
		query += " WHERE platform = ?"
		args = append(args, platform)
	}

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to clear resolved tracks: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// Count returns the number of cached resolutions per platform.
func (r *ResolvedTrackRepository) Count() (map[models.Platform]int, error) {
	rows, err := r.db.Query(`SELECT platform, COUNT(*) FROM resolved_tracks GROUP BY platform`)
	if err != nil {
		return nil, fmt.Errorf("failed to count resolved tracks: %w", err)
	}
	defer rows.Close()

	out := make(map[models.Platform]int)
	for rows.Next() {
		var (
			platform string
			n        int
		)
		if err := rows.Scan(&platform, &n); err != nil {
			return nil, fmt.Errorf("failed to scan resolved track count: %w", err)
		}
		out[models.Platform(platform)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}
