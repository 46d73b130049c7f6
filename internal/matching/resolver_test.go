package matching

import (
	"context"
	"errors"
	"testing"

	"github.com/desertthunder/tunesync/internal/models"
)

type stubSearcher struct {
	results map[string]*models.Track
	err     error
	calls   int
}

func (s *stubSearcher) Platform() models.Platform { return models.Deezer }

func (s *stubSearcher) SearchTrack(ctx context.Context, cred *models.Credential, q models.TrackQuery) (*models.Track, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.results[q.Title], nil
}

type memoryCache struct {
	entries map[string]models.Track
	stores  int
}

func (c *memoryCache) Lookup(p models.Platform, key string) (*models.Track, error) {
	if t, ok := c.entries[string(p)+key]; ok {
		return &t, nil
	}
	return nil, nil
}

func (c *memoryCache) Store(p models.Platform, key string, t models.Track) error {
	c.stores++
	c.entries[string(p)+key] = t
	return nil
}

func TestResolver(t *testing.T) {
	ctx := context.Background()
	cred := &models.Credential{Platform: models.Deezer}
	source := models.Track{Title: "Song B", Artist: "Y"}

	t.Run("found and cached", func(t *testing.T) {
		searcher := &stubSearcher{results: map[string]*models.Track{"Song B": {NativeID: "42", Title: "Song B"}}}
		cache := &memoryCache{entries: map[string]models.Track{}}
		r := NewResolver(cache, nil)

		got, err := r.Resolve(ctx, searcher, cred, source)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got == nil || got.NativeID != "42" {
			t.Fatalf("expected native id 42, got %+v", got)
		}

		if _, err := r.Resolve(ctx, searcher, cred, source); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if searcher.calls != 1 {
			t.Errorf("expected second resolve to hit cache, search called %d times", searcher.calls)
		}
		if cache.stores != 1 {
			t.Errorf("expected one cache store, got %d", cache.stores)
		}
	})

	t.Run("not found is not an error", func(t *testing.T) {
		searcher := &stubSearcher{results: map[string]*models.Track{}}
		r := NewResolver(nil, nil)

		got, err := r.Resolve(ctx, searcher, cred, source)
		if err != nil || got != nil {
			t.Errorf("expected (nil, nil), got (%+v, %v)", got, err)
		}
	})

	t.Run("search failure propagates", func(t *testing.T) {
		boom := errors.New("boom")
		searcher := &stubSearcher{err: boom}
		r := NewResolver(&memoryCache{entries: map[string]models.Track{}}, nil)

		if _, err := r.Resolve(ctx, searcher, cred, source); !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}
	})
}
