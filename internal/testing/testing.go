// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

// Operation names accepted by [FakeAdapter.FailOn] and [FakeAdapter.Calls].
const (
	OpList   = "list"
	OpTracks = "tracks"
	OpSearch = "search"
	OpCreate = "create"
	OpAdd    = "add"
)

// FakeAdapter is an in-memory platform used as a test double for [services.Adapter].
//
// Playlists are seeded with SetPlaylist, and SearchTrack resolves against a catalog seeded with AddCatalog.
type FakeAdapter struct {
	platform  models.Platform
	mu        sync.Mutex
	names     map[string]string
	tracks    map[string][]models.Track
	catalog   []models.Track
	errs      map[string]error
	calls     map[string]int
	addLimit  int
	sequence  int
	onAdd     func()
	delay     time.Duration
	lastCreds []*models.Credential
}

func NewFakeAdapter(p models.Platform) *FakeAdapter {
	return &FakeAdapter{
		platform: p,
		names:    make(map[string]string),
		tracks:   make(map[string][]models.Track),
		errs:     make(map[string]error),
		calls:    make(map[string]int),
		addLimit: -1,
	}
}

// SetPlaylist creates or replaces a playlist.
func (f *FakeAdapter) SetPlaylist(id, name string, tracks ...models.Track) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names[id] = name
	f.tracks[id] = append([]models.Track(nil), tracks...)
}

// AddCatalog makes tracks findable through SearchTrack.
func (f *FakeAdapter) AddCatalog(tracks ...models.Track) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalog = append(f.catalog, tracks...)
}

// FailOn makes every call of op return err. A nil err clears the failure.
func (f *FakeAdapter) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// LimitAdds makes AddTracks accept at most n more tracks before failing with a transport error.
func (f *FakeAdapter) LimitAdds(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addLimit = n
}

// OnAdd registers a hook run at the start of every AddTracks call.
func (f *FakeAdapter) OnAdd(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onAdd = fn
}

// SetItemDelay makes GetPlaylistTracks and AddTracks spend d per track, the way a platform that pages or inserts
// one item per request does. Both stop early when the context is done.
func (f *FakeAdapter) SetItemDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

func (f *FakeAdapter) wait(ctx context.Context) error {
	f.mu.Lock()
	d := f.delay
	f.mu.Unlock()
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", shared.ErrTransport, ctx.Err())
	case <-time.After(d):
		return nil
	}
}

// Tracks returns a copy of a playlist's tracks.
func (f *FakeAdapter) Tracks(id string) []models.Track {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Track(nil), f.tracks[id]...)
}

// PlaylistIDs returns the ids of every playlist, including created ones.
func (f *FakeAdapter) PlaylistIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.names))
	for id := range f.names {
		ids = append(ids, id)
	}
	return ids
}

// Calls returns how many times op was invoked.
func (f *FakeAdapter) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// LastCredential returns the credential passed to the most recent call.
func (f *FakeAdapter) LastCredential() *models.Credential {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.lastCreds) == 0 {
		return nil
	}
	return f.lastCreds[len(f.lastCreds)-1]
}

func (f *FakeAdapter) record(op string, cred *models.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	f.lastCreds = append(f.lastCreds, cred)
	return f.errs[op]
}

func (f *FakeAdapter) Platform() models.Platform { return f.platform }

func (f *FakeAdapter) ListPlaylists(ctx context.Context, cred *models.Credential) ([]models.Playlist, error) {
	if err := f.record(OpList, cred); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.Playlist
	for id, name := range f.names {
		out = append(out, models.Playlist{ID: id, Platform: f.platform, Name: name, TrackCount: len(f.tracks[id])})
	}
	return out, nil
}

func (f *FakeAdapter) GetPlaylistTracks(ctx context.Context, cred *models.Credential, playlistID string) ([]models.Track, error) {
	if err := f.record(OpTracks, cred); err != nil {
		return nil, err
	}
	f.mu.Lock()
	_, ok := f.names[playlistID]
	tracks := append([]models.Track(nil), f.tracks[playlistID]...)
	f.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	for range tracks {
		if err := f.wait(ctx); err != nil {
			return nil, err
		}
	}
	return tracks, nil
}

func (f *FakeAdapter) SearchTrack(ctx context.Context, cred *models.Credential, q models.TrackQuery) (*models.Track, error) {
	if err := f.record(OpSearch, cred); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if q.ISRC != "" {
		for _, t := range f.catalog {
			if t.ISRC != "" && strings.EqualFold(t.ISRC, q.ISRC) {
				match := t
				return &match, nil
			}
		}
	}
	for _, t := range f.catalog {
		if strings.EqualFold(t.Title, q.Title) && strings.EqualFold(t.Artist, q.Artist) {
			match := t
			return &match, nil
		}
	}
	return nil, nil
}

func (f *FakeAdapter) CreatePlaylist(ctx context.Context, cred *models.Credential, name string) (*models.Playlist, error) {
	if err := f.record(OpCreate, cred); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sequence++
	id := fmt.Sprintf("%s-created-%d", f.platform, f.sequence)
	f.names[id] = name
	f.tracks[id] = nil
	return &models.Playlist{ID: id, Platform: f.platform, Name: name}, nil
}

func (f *FakeAdapter) AddTracks(ctx context.Context, cred *models.Credential, playlistID string, ids []string) error {
	f.mu.Lock()
	hook := f.onAdd
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	if err := f.record(OpAdd, cred); err != nil {
		return err
	}

	for i, id := range ids {
		if err := f.wait(ctx); err != nil {
			if i == 0 {
				return err
			}
			return &shared.PartialBatchError{Added: i, Requested: len(ids), Err: err}
		}
		if err := f.add(playlistID, id, i, len(ids)); err != nil {
			return err
		}
	}
	return nil
}

func (f *FakeAdapter) add(playlistID, id string, i, requested int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.names[playlistID]; !ok {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, playlistID)
	}
	if f.addLimit == 0 {
		err := fmt.Errorf("%w: %s add limit reached", shared.ErrTransport, f.platform)
		if i == 0 {
			return err
		}
		return &shared.PartialBatchError{Added: i, Requested: requested, Err: err}
	}
	if f.addLimit > 0 {
		f.addLimit--
	}
	f.tracks[playlistID] = append(f.tracks[playlistID], f.lookup(id))
	return nil
}

func (f *FakeAdapter) lookup(id string) models.Track {
	for _, t := range f.catalog {
		if t.NativeID == id {
			return t
		}
	}
	return models.Track{Platform: f.platform, NativeID: id}
}

// FakeRefresher is a test double for [services.Refresher].
type FakeRefresher struct {
	mu    sync.Mutex
	Fn    func(cred *models.Credential) (*models.Credential, error)
	calls int
}

func (r *FakeRefresher) Refresh(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	r.mu.Lock()
	r.calls++
	fn := r.Fn
	r.mu.Unlock()
	if fn == nil {
		return nil, shared.ErrRefreshFailed
	}
	return fn(cred)
}

// Calls returns how many refreshes were attempted.
func (r *FakeRefresher) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
