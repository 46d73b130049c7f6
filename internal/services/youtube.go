// YouTube Data API v3 implementation of [Adapter]
//
// YouTube has no track metadata: titles and artists are parsed from video titles and uploader channel names, and
// there are no ISRCs. Search quota is expensive (100 units per call) so results are cached upstream.
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/tunesync/internal/matching"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
	"golang.org/x/oauth2"
)

const (
	youtubeAuthURL      = "https://accounts.google.com/o/oauth2/auth"
	youtubeTokenURL     = "https://oauth2.googleapis.com/token"
	youtubeBaseURL      = "https://www.googleapis.com/youtube/v3"
	youtubeScope        = "https://www.googleapis.com/auth/youtube"
	youtubePageSize     = 50
	youtubeSearchSize   = 5
	youtubeMusicTopic   = "10"
	youtubeVideoKind    = "youtube#video"
	youtubeTopicSuffix  = " - Topic"
	youtubeRateLimit    = 5
	youtubeInsertDelay  = 100 * time.Millisecond
	youtubeWatchURL     = "https://music.youtube.com/watch?v="
	youtubeUnknownTitle = "Unknown"
)

// titleSeparators split "Artist - Title" style video titles, in order of preference.
var titleSeparators = []string{" - ", " – ", ": ", " | "}

// YouTubeResourceID identifies the resource a playlist item or search result points to.
type YouTubeResourceID struct {
	Kind    string `json:"kind"`
	VideoID string `json:"videoId"`
}

// YouTubeSnippet holds the fields shared by playlist, playlist item and search snippets.
type YouTubeSnippet struct {
	Title                  string            `json:"title"`
	Description            string            `json:"description"`
	ChannelTitle           string            `json:"channelTitle"`
	VideoOwnerChannelTitle string            `json:"videoOwnerChannelTitle"`
	PlaylistID             string            `json:"playlistId,omitempty"`
	ResourceID             YouTubeResourceID `json:"resourceId"`
}

// YouTubePlaylist represents a playlist resource.
type YouTubePlaylist struct {
	ID             string         `json:"id"`
	Snippet        YouTubeSnippet `json:"snippet"`
	ContentDetails struct {
		ItemCount int `json:"itemCount"`
	} `json:"contentDetails"`
	Status struct {
		PrivacyStatus string `json:"privacyStatus"`
	} `json:"status"`
}

// YouTubePlaylistItem represents an entry of a playlist.
type YouTubePlaylistItem struct {
	ID      string         `json:"id"`
	Snippet YouTubeSnippet `json:"snippet"`
}

// YouTubeSearchResult represents one search hit.
type YouTubeSearchResult struct {
	ID      YouTubeResourceID `json:"id"`
	Snippet YouTubeSnippet    `json:"snippet"`
}

// YouTubeList is a paginated Data API response.
type YouTubeList[T any] struct {
	Items         []T    `json:"items"`
	NextPageToken string `json:"nextPageToken"`
}

// YouTubeService implements [OAuthService] for the YouTube Data API.
type YouTubeService struct {
	config *oauth2.Config
	client *apiClient
	delay  time.Duration
}

// NewYouTubeService creates a YouTube adapter for a Google OAuth client.
func NewYouTubeService(creds shared.OAuthClientConfig, opts ...Option) (*YouTubeService, error) {
	if creds.ClientID == "" {
		return nil, fmt.Errorf("%w: missing youtube client_id", shared.ErrMissingCredentials)
	}
	if creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing youtube client_secret", shared.ErrMissingCredentials)
	}

	client := newAPIClient(models.YouTube, youtubeBaseURL, youtubeTokenURL, youtubeRateLimit, opts)
	config := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Scopes:       []string{youtubeScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:   youtubeAuthURL,
			TokenURL:  client.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	return &YouTubeService{config: config, client: client, delay: youtubeInsertDelay}, nil
}

func (y *YouTubeService) Platform() models.Platform { return models.YouTube }

// AuthURL asks for offline access and forces the consent screen so Google always issues a refresh token.
func (y *YouTubeService) AuthURL(state string) string {
	return y.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

func (y *YouTubeService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, y.client.http)
	return y.config.Exchange(ctx, code)
}

// Refresh exchanges the refresh token. Google does not rotate refresh tokens, so the stored one is kept.
func (y *YouTubeService) Refresh(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	return refreshToken(ctx, y.client, y.config, cred)
}

// ListPlaylists lists the playlists of the authenticated channel.
func (y *YouTubeService) ListPlaylists(ctx context.Context, cred *models.Credential) ([]models.Playlist, error) {
	var playlists []models.Playlist
	params := url.Values{"part": {"snippet,contentDetails,status"}, "mine": {"true"}}
	err := youtubePaginate(ctx, y.client, cred, "/playlists", params, func(p YouTubePlaylist) {
		playlists = append(playlists, models.Playlist{
			ID:          p.ID,
			Platform:    models.YouTube,
			Name:        p.Snippet.Title,
			Description: p.Snippet.Description,
			TrackCount:  p.ContentDetails.ItemCount,
			Public:      p.Status.PrivacyStatus == "public",
		})
	})
	if err != nil {
		return nil, err
	}
	return playlists, nil
}

// GetPlaylistTracks lists the videos of a playlist. Deleted and private videos carry no owner channel and are skipped.
func (y *YouTubeService) GetPlaylistTracks(ctx context.Context, cred *models.Credential, playlistID string) ([]models.Track, error) {
	var tracks []models.Track
	params := url.Values{"part": {"snippet"}, "playlistId": {playlistID}}
	err := youtubePaginate(ctx, y.client, cred, "/playlistItems", params, func(item YouTubePlaylistItem) {
		if item.Snippet.ResourceID.Kind != youtubeVideoKind || item.Snippet.ResourceID.VideoID == "" {
			return
		}
		if item.Snippet.VideoOwnerChannelTitle == "" && isUnavailableVideo(item.Snippet.Title) {
			return
		}
		tracks = append(tracks, youtubeToTrack(item.Snippet.ResourceID.VideoID, item.Snippet.Title, item.Snippet.VideoOwnerChannelTitle))
	})
	if err != nil {
		return nil, err
	}
	return tracks, nil
}

// SearchTrack searches music videos for "title artist" and accepts the first hit whose video title mentions both.
func (y *YouTubeService) SearchTrack(ctx context.Context, cred *models.Credential, q models.TrackQuery) (*models.Track, error) {
	if q.Title == "" {
		return nil, nil
	}

	var resp YouTubeList[YouTubeSearchResult]
	params := url.Values{
		"part":            {"snippet"},
		"q":               {strings.TrimSpace(q.Title + " " + q.Artist)},
		"type":            {"video"},
		"videoCategoryId": {youtubeMusicTopic},
		"maxResults":      {strconv.Itoa(youtubeSearchSize)},
	}
	if err := y.client.do(ctx, cred, request{method: http.MethodGet, endpoint: "/search", query: params}, &resp); err != nil {
		return nil, err
	}

	title, artist := matching.Normalize(q.Title), matching.Normalize(q.Artist)
	for _, item := range resp.Items {
		if item.ID.VideoID == "" {
			continue
		}
		haystack := matching.Normalize(item.Snippet.Title + " " + item.Snippet.ChannelTitle)
		if strings.Contains(haystack, title) && strings.Contains(haystack, artist) {
			t := youtubeToTrack(item.ID.VideoID, item.Snippet.Title, item.Snippet.ChannelTitle)
			return &t, nil
		}
	}
	return nil, nil
}

// CreatePlaylist creates a private playlist on the authenticated channel.
func (y *YouTubeService) CreatePlaylist(ctx context.Context, cred *models.Credential, name string) (*models.Playlist, error) {
	body := map[string]any{
		"snippet": map[string]any{"title": name, "description": "Synchronized by tunesync"},
		"status":  map[string]any{"privacyStatus": "private"},
	}
	var created YouTubePlaylist
	q := url.Values{"part": {"snippet,status"}}
	if err := y.client.do(ctx, cred, request{method: http.MethodPost, endpoint: "/playlists", query: q, body: body}, &created); err != nil {
		return nil, err
	}
	return &models.Playlist{ID: created.ID, Platform: models.YouTube, Name: name}, nil
}

// AddTracks inserts videos one at a time since the Data API has no batch insert.
func (y *YouTubeService) AddTracks(ctx context.Context, cred *models.Credential, playlistID string, ids []string) error {
	q := url.Values{"part": {"snippet"}}
	for i, id := range ids {
		if i > 0 {
			if err := sleepCtx(ctx, y.delay); err != nil {
				return &shared.PartialBatchError{Added: i, Requested: len(ids), Err: fmt.Errorf("%w: %v", shared.ErrTransport, err)}
			}
		}

		body := map[string]any{
			"snippet": map[string]any{
				"playlistId": playlistID,
				"resourceId": map[string]any{"kind": youtubeVideoKind, "videoId": id},
			},
		}
		if err := y.client.do(ctx, cred, request{method: http.MethodPost, endpoint: "/playlistItems", query: q, body: body}, nil); err != nil {
			if i == 0 {
				return err
			}
			return &shared.PartialBatchError{Added: i, Requested: len(ids), Err: err}
		}
	}
	return nil
}

func youtubePaginate[T any](ctx context.Context, c *apiClient, cred *models.Credential, endpoint string, base url.Values, fn func(T)) error {
	token := ""
	for {
		q := url.Values{"maxResults": {strconv.Itoa(youtubePageSize)}}
		for k, v := range base {
			q[k] = v
		}
		if token != "" {
			q.Set("pageToken", token)
		}

		var page YouTubeList[T]
		if err := c.do(ctx, cred, request{method: http.MethodGet, endpoint: endpoint, query: q}, &page); err != nil {
			return err
		}
		for _, item := range page.Items {
			fn(item)
		}
		if page.NextPageToken == "" || len(page.Items) == 0 {
			return nil
		}
		token = page.NextPageToken
	}
}

func isUnavailableVideo(title string) bool {
	return title == "Deleted video" || title == "Private video"
}

// ParseVideoTitle splits a video title into title and artist.
//
// "Artist - Title" style titles are split on the first separator. Otherwise the whole string is the title and the
// uploader channel, minus the " - Topic" suffix of auto-generated artist channels, is the artist.
func ParseVideoTitle(videoTitle, channel string) (title, artist string) {
	videoTitle = strings.TrimSpace(videoTitle)
	for _, sep := range titleSeparators {
		if before, after, ok := strings.Cut(videoTitle, sep); ok {
			before, after = strings.TrimSpace(before), strings.TrimSpace(after)
			if before != "" && after != "" {
				return after, before
			}
		}
	}

	if videoTitle == "" {
		videoTitle = youtubeUnknownTitle
	}
	return videoTitle, strings.TrimSpace(strings.TrimSuffix(channel, youtubeTopicSuffix))
}

func youtubeToTrack(videoID, videoTitle, channel string) models.Track {
	title, artist := ParseVideoTitle(videoTitle, channel)
	return models.Track{
		Platform: models.YouTube,
		NativeID: videoID,
		URI:      youtubeWatchURL + videoID,
		Title:    title,
		Artist:   artist,
	}
}
