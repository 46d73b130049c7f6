package matching

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/models"
)

// Searcher is the part of a platform adapter used to resolve tracks.
type Searcher interface {
	Platform() models.Platform
	SearchTrack(ctx context.Context, cred *models.Credential, q models.TrackQuery) (*models.Track, error)
}

// Cache remembers destination tracks already resolved for a canonical key.
type Cache interface {
	Lookup(platform models.Platform, key string) (*models.Track, error)
	Store(platform models.Platform, key string, track models.Track) error
}

// Resolver finds the destination-native counterpart of a source track.
type Resolver struct {
	cache  Cache
	logger *log.Logger
}

// NewResolver creates a resolver. cache may be nil.
func NewResolver(cache Cache, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{cache: cache, logger: logger}
}

// Cached returns the previously resolved destination track for t, if any.
func (r *Resolver) Cached(platform models.Platform, t models.Track) (*models.Track, bool) {
	if r.cache == nil {
		return nil, false
	}
	hit, err := r.cache.Lookup(platform, CanonicalKey(t))
	if err != nil {
		r.logger.Debug("resolution cache lookup failed", "platform", platform, "error", err)
		return nil, false
	}
	return hit, hit != nil
}

// Resolve returns the destination track for t, or nil when the destination has no match.
//
// Errors are transport or auth failures from the search call; "not found" is never an error.
func (r *Resolver) Resolve(ctx context.Context, s Searcher, cred *models.Credential, t models.Track) (*models.Track, error) {
	if hit, ok := r.Cached(s.Platform(), t); ok {
		return hit, nil
	}

	found, err := s.SearchTrack(ctx, cred, t.Query())
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, nil
	}

	if r.cache != nil {
		if err := r.cache.Store(s.Platform(), CanonicalKey(t), *found); err != nil {
			r.logger.Warn("failed to cache resolved track", "platform", s.Platform(), "title", t.Title, "error", err)
		}
	}
	return found, nil
}
