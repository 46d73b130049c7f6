// Deezer API implementation of [Adapter]
//
// Response types based on https://developers.deezer.com/api. Deezer reports most errors in-band with HTTP 200 and an
// "error" object, and authenticates calls with an access_token query parameter.
package services

import (
	"context"
	"encoding/json"
	"errors"
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
	deezerAuthURL   = "https://connect.deezer.com/oauth/auth.php"
	deezerTokenURL  = "https://connect.deezer.com/oauth/access_token.php"
	deezerBaseURL   = "https://api.deezer.com"
	deezerPageSize  = 100
	deezerAddBatch  = 50
	deezerRateLimit = 8 // 50 requests per 5 seconds per user, with headroom
	deezerPerms     = "basic_access,manage_library,offline_access"
)

// Deezer error codes, see https://developers.deezer.com/api/errors
const (
	deezerQuotaExceeded = 4
	deezerInvalidToken  = 300
	deezerDataNotFound  = 800
)

type deezerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type deezerEnvelope struct {
	Error *deezerError `json:"error"`
}

// DeezerArtist represents an artist reference.
type DeezerArtist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DeezerAlbum represents an album reference.
type DeezerAlbum struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// DeezerTrack represents a Deezer track.
type DeezerTrack struct {
	ID       int64        `json:"id"`
	Title    string       `json:"title"`
	Link     string       `json:"link"`
	Duration int          `json:"duration"` // seconds
	ISRC     string       `json:"isrc"`
	Readable *bool        `json:"readable"`
	Artist   DeezerArtist `json:"artist"`
	Album    DeezerAlbum  `json:"album"`
}

// DeezerPlaylist represents a Deezer playlist.
type DeezerPlaylist struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Public      bool   `json:"public"`
	NbTracks    int    `json:"nb_tracks"`
}

// DeezerPage is a paginated Deezer response.
type DeezerPage[T any] struct {
	Data  []T    `json:"data"`
	Total int    `json:"total"`
	Next  string `json:"next"`
}

// DeezerService implements [OAuthService] for the Deezer API.
type DeezerService struct {
	config *oauth2.Config
	client *apiClient
}

// NewDeezerService creates a Deezer adapter for the given application id and secret.
func NewDeezerService(creds shared.OAuthClientConfig, opts ...Option) (*DeezerService, error) {
	if creds.ClientID == "" {
		return nil, fmt.Errorf("%w: missing deezer client_id", shared.ErrMissingCredentials)
	}
	if creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing deezer client_secret", shared.ErrMissingCredentials)
	}

	client := newAPIClient(models.Deezer, deezerBaseURL, deezerTokenURL, deezerRateLimit, opts)
	client.authorize = func(req *http.Request, cred *models.Credential) {
		q := req.URL.Query()
		q.Set("access_token", cred.AccessToken)
		req.URL.RawQuery = q.Encode()
	}
	client.inspect = inspectDeezer

	config := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   deezerAuthURL,
			TokenURL:  client.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	return &DeezerService{config: config, client: client}, nil
}

func (d *DeezerService) Platform() models.Platform { return models.Deezer }

// AuthURL returns the Deezer consent URL. Deezer names the client id app_id and takes perms instead of scope.
func (d *DeezerService) AuthURL(state string) string {
	return d.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("app_id", d.config.ClientID),
		oauth2.SetAuthURLParam("perms", deezerPerms),
	)
}

// Exchange trades an authorization code for a token, asking Deezer for a JSON response.
func (d *DeezerService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, d.client.http)
	return d.config.Exchange(ctx, code,
		oauth2.SetAuthURLParam("app_id", d.config.ClientID),
		oauth2.SetAuthURLParam("secret", d.config.ClientSecret),
		oauth2.SetAuthURLParam("output", "json"),
	)
}

// Refresh only succeeds for credentials that carry a refresh token.
//
// Tokens granted with offline_access do not expire and are stored without an expiry, so they never reach here.
func (d *DeezerService) Refresh(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	return refreshToken(ctx, d.client, d.config, cred)
}

// ListPlaylists retrieves all playlists of the authenticated user.
func (d *DeezerService) ListPlaylists(ctx context.Context, cred *models.Credential) ([]models.Playlist, error) {
	var playlists []models.Playlist
	err := deezerPaginate(ctx, d.client, cred, "/user/me/playlists", func(p DeezerPlaylist) {
		playlists = append(playlists, models.Playlist{
			ID:          strconv.FormatInt(p.ID, 10),
			Platform:    models.Deezer,
			Name:        p.Title,
			Description: p.Description,
			TrackCount:  p.NbTracks,
			Public:      p.Public,
		})
	})
	if err != nil {
		return nil, err
	}
	return playlists, nil
}

// GetPlaylistTracks pages with index and limit until a short page is returned.
func (d *DeezerService) GetPlaylistTracks(ctx context.Context, cred *models.Credential, playlistID string) ([]models.Track, error) {
	var tracks []models.Track
	endpoint := fmt.Sprintf("/playlist/%s/tracks", url.PathEscape(playlistID))
	err := deezerPaginate(ctx, d.client, cred, endpoint, func(t DeezerTrack) {
		tracks = append(tracks, deezerToTrack(t))
	})
	if err != nil {
		return nil, err
	}
	return tracks, nil
}

// SearchTrack looks the ISRC up directly when given, then falls back to an advanced title and artist search.
func (d *DeezerService) SearchTrack(ctx context.Context, cred *models.Credential, q models.TrackQuery) (*models.Track, error) {
	if q.ISRC != "" {
		var t DeezerTrack
		err := d.client.do(ctx, cred, request{method: http.MethodGet, endpoint: "/track/isrc:" + url.PathEscape(q.ISRC)}, &t)
		switch {
		case err == nil && t.ID != 0:
			track := deezerToTrack(t)
			return &track, nil
		case err != nil && !isDeezerNotFound(err):
			return nil, err
		}
	}

	if q.Title == "" {
		return nil, nil
	}

	var page DeezerPage[DeezerTrack]
	params := url.Values{"q": {fmt.Sprintf("track:%q artist:%q", q.Title, q.Artist)}, "limit": {"1"}}
	if err := d.client.do(ctx, cred, request{method: http.MethodGet, endpoint: "/search/track", query: params}, &page); err != nil {
		if isDeezerNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(page.Data) == 0 {
		return nil, nil
	}
	track := deezerToTrack(page.Data[0])
	return &track, nil
}

// CreatePlaylist creates a playlist and marks it private.
func (d *DeezerService) CreatePlaylist(ctx context.Context, cred *models.Credential, name string) (*models.Playlist, error) {
	var created struct {
		ID int64 `json:"id"`
	}
	params := url.Values{"title": {name}}
	if err := d.client.do(ctx, cred, request{method: http.MethodPost, endpoint: "/user/me/playlists", query: params}, &created); err != nil {
		return nil, err
	}
	if created.ID == 0 {
		return nil, fmt.Errorf("%w: deezer returned no playlist id", shared.ErrTransport)
	}

	id := strconv.FormatInt(created.ID, 10)
	if err := d.client.do(ctx, cred, request{method: http.MethodPost, endpoint: "/playlist/" + id, query: url.Values{"public": {"false"}}}, nil); err != nil {
		d.client.logger.Warn("failed to mark deezer playlist private", "playlist", id, "error", err)
	}

	return &models.Playlist{ID: id, Platform: models.Deezer, Name: name}, nil
}

// AddTracks posts comma-joined track ids in batches.
func (d *DeezerService) AddTracks(ctx context.Context, cred *models.Credential, playlistID string, ids []string) error {
	added := 0
	endpoint := fmt.Sprintf("/playlist/%s/tracks", url.PathEscape(playlistID))
	for _, batch := range chunk(ids, deezerAddBatch) {
		params := url.Values{"songs": {strings.Join(batch, ",")}}
		if err := d.client.do(ctx, cred, request{method: http.MethodPost, endpoint: endpoint, query: params}, nil); err != nil {
			if added == 0 {
				return err
			}
			return &shared.PartialBatchError{Added: added, Requested: len(ids), Err: err}
		}
		added += len(batch)
	}
	return nil
}

func deezerPaginate[T any](ctx context.Context, c *apiClient, cred *models.Credential, endpoint string, fn func(T)) error {
	for index := 0; ; index += deezerPageSize {
		var page DeezerPage[T]
		q := url.Values{"index": {strconv.Itoa(index)}, "limit": {strconv.Itoa(deezerPageSize)}}
		if err := c.do(ctx, cred, request{method: http.MethodGet, endpoint: endpoint, query: q}, &page); err != nil {
			return err
		}
		for _, item := range page.Data {
			fn(item)
		}
		if len(page.Data) < deezerPageSize {
			return nil
		}
	}
}

// inspectDeezer converts an in-band error object into the error taxonomy.
func inspectDeezer(body []byte) error {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}

	var env deezerEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		return nil
	}

	e := env.Error
	switch {
	case e.Code == deezerQuotaExceeded:
		return fmt.Errorf("%w: %s", errRetry, e.Message)
	case e.Code == deezerDataNotFound:
		return fmt.Errorf("%w: deezer: %s", shared.ErrTrackNotFound, e.Message)
	case e.Code == deezerInvalidToken || e.Type == "OAuthException":
		return fmt.Errorf("%w: deezer: %s", shared.ErrNotAuthenticated, e.Message)
	default:
		return fmt.Errorf("%w: deezer error %d (%s): %s", shared.ErrInvalidInput, e.Code, e.Type, e.Message)
	}
}

func isDeezerNotFound(err error) bool {
	return errors.Is(err, shared.ErrTrackNotFound)
}

func deezerToTrack(t DeezerTrack) models.Track {
	return models.Track{
		Platform: models.Deezer,
		NativeID: strconv.FormatInt(t.ID, 10),
		URI:      t.Link,
		Title:    t.Title,
		Artist:   t.Artist.Name,
		Album:    t.Album.Title,
		Duration: time.Duration(t.Duration) * time.Second,
		ISRC:     t.ISRC,
	}
}
