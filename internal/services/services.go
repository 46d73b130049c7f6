// package services defines the [Adapter] contract for music platforms and implements it for Spotify, Deezer and YouTube.
package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
	"golang.org/x/oauth2"
)

// Adapter is the uniform capability contract every platform implements.
type Adapter interface {
	// Platform identifies the adapter.
	Platform() models.Platform

	// ListPlaylists returns every playlist owned or followed by the credential's user.
	ListPlaylists(ctx context.Context, cred *models.Credential) ([]models.Playlist, error)

	// GetPlaylistTracks returns the complete track list of a playlist, following pagination internally.
	GetPlaylistTracks(ctx context.Context, cred *models.Credential, playlistID string) ([]models.Track, error)

	// SearchTrack returns the best match for q, or nil when the platform has none.
	// Errors are reserved for transport and auth failures.
	SearchTrack(ctx context.Context, cred *models.Credential, q models.TrackQuery) (*models.Track, error)

	// CreatePlaylist creates a private playlist named name.
	CreatePlaylist(ctx context.Context, cred *models.Credential, name string) (*models.Playlist, error)

	// AddTracks appends native track ids to a playlist in platform sized batches.
	// A failure after some tracks were added returns a [*shared.PartialBatchError].
	AddTracks(ctx context.Context, cred *models.Credential, playlistID string, ids []string) error
}

// Refresher exchanges a credential's refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, cred *models.Credential) (*models.Credential, error)
}

// OAuthService extends [Adapter] with the authorization code flow used to connect a platform.
type OAuthService interface {
	Adapter
	Refresher
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// Registry is the lookup table from platform to adapter, built once at startup.
type Registry struct {
	adapters map[models.Platform]Adapter
}

// NewRegistry registers adapters by their platform. A later adapter for the same platform replaces an earlier one.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Platform]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

// Adapter returns the adapter for p.
func (r *Registry) Adapter(p models.Platform) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrUnknownPlatform, p)
	}
	return a, nil
}

// Refresher returns the token refresher for p.
func (r *Registry) Refresher(p models.Platform) (Refresher, error) {
	a, err := r.Adapter(p)
	if err != nil {
		return nil, err
	}
	ref, ok := a.(Refresher)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot refresh tokens", shared.ErrRefreshFailed, p)
	}
	return ref, nil
}

// OAuth returns the OAuth flow for p.
func (r *Registry) OAuth(p models.Platform) (OAuthService, error) {
	a, err := r.Adapter(p)
	if err != nil {
		return nil, err
	}
	o, ok := a.(OAuthService)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not support the authorization code flow", shared.ErrNotImplemented, p)
	}
	return o, nil
}

// Platforms returns the registered platforms in a stable order.
func (r *Registry) Platforms() []models.Platform {
	out := make([]models.Platform, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NewRegistryFromConfig builds adapters for every platform with a configured OAuth client.
func NewRegistryFromConfig(cfg shared.CredentialsConfig, opts ...Option) (*Registry, error) {
	var adapters []Adapter

	if cfg.Spotify.Configured() {
		s, err := NewSpotifyService(cfg.Spotify, opts...)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, s)
	}
	if cfg.Deezer.Configured() {
		d, err := NewDeezerService(cfg.Deezer, opts...)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, d)
	}
	if cfg.YouTube.Configured() {
		y, err := NewYouTubeService(cfg.YouTube, opts...)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, y)
	}
	return NewRegistry(adapters...), nil
}

// refreshToken runs the standard OAuth2 refresh_token grant against config.
func refreshToken(ctx context.Context, c *apiClient, config *oauth2.Config, cred *models.Credential) (*models.Credential, error) {
	if !cred.CanRefresh() {
		return nil, fmt.Errorf("%w: %w for %s", shared.ErrRefreshFailed, shared.ErrNoRefreshToken, cred.Platform)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := config.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrRefreshFailed, cred.Platform, err)
	}

	next := cred.WithToken(tok)
	next.UpdatedAt = time.Now().UTC()
	return next, nil
}

// CredentialFromToken builds a credential for subject from a freshly exchanged token.
func CredentialFromToken(p models.Platform, subject string, tok *oauth2.Token) *models.Credential {
	now := time.Now().UTC()
	base := &models.Credential{Platform: p, Subject: subject, CreatedAt: now}
	cred := base.WithToken(tok)
	cred.UpdatedAt = now
	return cred
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for size < len(ids) {
		ids, out = ids[size:], append(out, ids[:size])
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
