// Spotify Web API implementation of [Adapter]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL   = "https://accounts.spotify.com/authorize"
	spotifyTokenURL  = "https://accounts.spotify.com/api/token"
	spotifyBaseURL   = "https://api.spotify.com/v1"
	spotifyPageSize  = 100
	spotifyAddBatch  = 100
	spotifyTrackURI  = "spotify:track:"
	spotifyRateLimit = 10
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type externalIDs struct {
	ISRC string `json:"isrc"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Artists      []SpotifyArtist `json:"artists"`
	Album        SpotifyAlbum    `json:"album"`
	DurationMS   int             `json:"duration_ms"`
	ExternalIDs  externalIDs     `json:"external_ids"`
	ExternalURLs externalURLs    `json:"external_urls"`
	URI          string          `json:"uri"`
	IsLocal      bool            `json:"is_local"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type simplePlaylistTrack struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Public      bool                `json:"public"`
	Tracks      simplePlaylistTrack `json:"tracks"`
}

// SpotifyPlaylistTrack represents a track within a playlist context. Track is nil for removed or unavailable items.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPage is a paginated Spotify response.
type SpotifyPage[T any] struct {
	Items  []T     `json:"items"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
	Next   *string `json:"next"`
}

type spotifySearchResponse struct {
	Tracks SpotifyPage[SpotifyTrack] `json:"tracks"`
}

// SpotifyService implements [OAuthService] for the Spotify Web API.
type SpotifyService struct {
	config *oauth2.Config
	client *apiClient
}

// NewSpotifyService creates a Spotify adapter for the given OAuth client registration.
func NewSpotifyService(creds shared.OAuthClientConfig, opts ...Option) (*SpotifyService, error) {
	if creds.ClientID == "" {
		return nil, fmt.Errorf("%w: missing spotify client_id", shared.ErrMissingCredentials)
	}
	if creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing spotify client_secret", shared.ErrMissingCredentials)
	}

	client := newAPIClient(models.Spotify, spotifyBaseURL, spotifyTokenURL, spotifyRateLimit, opts)

	config := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Scopes: []string{
			"user-read-private",
			"playlist-read-private",
			"playlist-read-collaborative",
			"playlist-modify-private",
			"playlist-modify-public",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:   spotifyAuthURL,
			TokenURL:  client.tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	return &SpotifyService{config: config, client: client}, nil
}

func (s *SpotifyService) Platform() models.Platform { return models.Spotify }

// AuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for tokens.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client.http)
	return s.config.Exchange(ctx, code)
}

// Refresh uses the refresh token grant with client credentials in a Basic auth header.
func (s *SpotifyService) Refresh(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	return refreshToken(ctx, s.client, s.config, cred)
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context, cred *models.Credential) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.client.do(ctx, cred, request{method: http.MethodGet, endpoint: "/me"}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListPlaylists retrieves all playlists for the authenticated user.
func (s *SpotifyService) ListPlaylists(ctx context.Context, cred *models.Credential) ([]models.Playlist, error) {
	var playlists []models.Playlist
	limit, offset := 50, 0

	for {
		var page SpotifyPage[SpotifySimplePlaylist]
		q := url.Values{"limit": {strconv.Itoa(limit)}, "offset": {strconv.Itoa(offset)}}
		if err := s.client.do(ctx, cred, request{method: http.MethodGet, endpoint: "/me/playlists", query: q}, &page); err != nil {
			return nil, err
		}

		for _, sp := range page.Items {
			playlists = append(playlists, models.Playlist{
				ID:          sp.ID,
				Platform:    models.Spotify,
				Name:        sp.Name,
				Description: sp.Description,
				TrackCount:  sp.Tracks.Total,
				Public:      sp.Public,
			})
		}

		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += limit
	}
	return playlists, nil
}

// GetPlaylistTracks pages through /playlists/{id}/tracks, skipping local files and unavailable items.
func (s *SpotifyService) GetPlaylistTracks(ctx context.Context, cred *models.Credential, playlistID string) ([]models.Track, error) {
	var tracks []models.Track
	offset := 0
	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))

	for {
		var page SpotifyPage[SpotifyPlaylistTrack]
		q := url.Values{"limit": {strconv.Itoa(spotifyPageSize)}, "offset": {strconv.Itoa(offset)}}
		if err := s.client.do(ctx, cred, request{method: http.MethodGet, endpoint: endpoint, query: q}, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.Track == nil || item.Track.ID == "" || item.Track.IsLocal {
				continue
			}
			tracks = append(tracks, spotifyToTrack(*item.Track))
		}

		if page.Next == nil || len(page.Items) == 0 {
			break
		}
		offset += spotifyPageSize
	}
	return tracks, nil
}

// SearchTrack tries an exact isrc: query first, then a field-filtered title and artist query.
func (s *SpotifyService) SearchTrack(ctx context.Context, cred *models.Credential, q models.TrackQuery) (*models.Track, error) {
	var queries []string
	if q.ISRC != "" {
		queries = append(queries, "isrc:"+q.ISRC)
	}
	if q.Title != "" {
		queries = append(queries, fmt.Sprintf("track:%q artist:%q", q.Title, q.Artist))
	}

	for _, query := range queries {
		var resp spotifySearchResponse
		params := url.Values{"q": {query}, "type": {"track"}, "limit": {"1"}}
		if err := s.client.do(ctx, cred, request{method: http.MethodGet, endpoint: "/search", query: params}, &resp); err != nil {
			return nil, err
		}
		if len(resp.Tracks.Items) > 0 {
			t := spotifyToTrack(resp.Tracks.Items[0])
			return &t, nil
		}
	}
	return nil, nil
}

// CreatePlaylist creates a private playlist owned by the authenticated user.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, cred *models.Credential, name string) (*models.Playlist, error) {
	user, err := s.UserProfile(ctx, cred)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"name":        name,
		"public":      false,
		"description": "Synchronized by tunesync",
	}
	var created SpotifySimplePlaylist
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(user.ID))
	if err := s.client.do(ctx, cred, request{method: http.MethodPost, endpoint: endpoint, body: body}, &created); err != nil {
		return nil, err
	}

	return &models.Playlist{ID: created.ID, Platform: models.Spotify, Name: created.Name, Public: created.Public}, nil
}

// AddTracks posts track URIs in batches of 100.
func (s *SpotifyService) AddTracks(ctx context.Context, cred *models.Credential, playlistID string, ids []string) error {
	uris := make([]string, len(ids))
	for i, id := range ids {
		if strings.HasPrefix(id, spotifyTrackURI) {
			uris[i] = id
		} else {
			uris[i] = spotifyTrackURI + id
		}
	}

	added := 0
	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	for _, batch := range chunk(uris, spotifyAddBatch) {
		req := request{method: http.MethodPost, endpoint: endpoint, body: map[string]any{"uris": batch}}
		if err := s.client.do(ctx, cred, req, nil); err != nil {
			if added == 0 {
				return err
			}
			return &shared.PartialBatchError{Added: added, Requested: len(uris), Err: err}
		}
		added += len(batch)
	}
	return nil
}

// spotifyToTrack keeps only the primary artist so name keys line up with platforms that list one artist.
func spotifyToTrack(st SpotifyTrack) models.Track {
	var artist string
	if len(st.Artists) > 0 {
		artist = st.Artists[0].Name
	}

	return models.Track{
		Platform: models.Spotify,
		NativeID: st.ID,
		URI:      st.ExternalURLs.Spotify,
		Title:    st.Name,
		Artist:   artist,
		Album:    st.Album.Name,
		Duration: time.Duration(st.DurationMS) * time.Millisecond,
		ISRC:     st.ExternalIDs.ISRC,
	}
}
