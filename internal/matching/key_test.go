package matching

import (
	"testing"

	"github.com/desertthunder/tunesync/internal/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"basic", "Song Title", "song title"},
		{"extra whitespace", "  Song   Title  ", "song title"},
		{"mixed case", "SoNg TiTlE", "song title"},
		{"accents", "Café Déjà Vu", "cafe deja vu"},
		{"tabs and newlines", "Song\tTitle\n", "song title"},
		{"german sharp s", "Straße", "strasse"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCanonicalKey(t *testing.T) {
	tests := []struct {
		name string
		a, b models.Track
		same bool
	}{
		{
			name: "equal ISRC ignores title and artist",
			a:    models.Track{Title: "Song A", Artist: "X", ISRC: "USRC17607839"},
			b:    models.Track{Title: "sóng a (Remastered)", Artist: "Someone", ISRC: "usrc17607839"},
			same: true,
		},
		{
			name: "different ISRC differs",
			a:    models.Track{Title: "Song A", Artist: "X", ISRC: "ISRC1"},
			b:    models.Track{Title: "Song A", Artist: "X", ISRC: "ISRC2"},
			same: false,
		},
		{
			name: "no ISRC folds case",
			a:    models.Track{Title: "Song B", Artist: "Y"},
			b:    models.Track{Title: "SONG B", Artist: "y"},
			same: true,
		},
		{
			name: "no ISRC folds accents",
			a:    models.Track{Title: "Café", Artist: "Z"},
			b:    models.Track{Title: "cafe", Artist: "Z"},
			same: true,
		},
		{
			name: "different artist differs",
			a:    models.Track{Title: "Song B", Artist: "Y"},
			b:    models.Track{Title: "Song B", Artist: "W"},
			same: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka, kb := CanonicalKey(tt.a), CanonicalKey(tt.b)
			if (ka == kb) != tt.same {
				t.Errorf("CanonicalKey(%+v)=%q vs CanonicalKey(%+v)=%q, same=%v", tt.a, ka, tt.b, kb, tt.same)
			}
		})
	}

	t.Run("whitespace-only ISRC falls back to name", func(t *testing.T) {
		got := CanonicalKey(models.Track{Title: "Song", Artist: "Artist", ISRC: "  "})
		if got != "song|artist" {
			t.Errorf("expected name key, got %q", got)
		}
	})
}

func TestMissing(t *testing.T) {
	t.Run("ISRC match regardless of case", func(t *testing.T) {
		source := []models.Track{
			{Title: "Song A", Artist: "X", ISRC: "ISRC1"},
			{Title: "Song B", Artist: "Y"},
		}
		dest := []models.Track{{Title: "song a", Artist: "x", ISRC: "ISRC1"}}

		got := Missing(source, NewIndex(dest))
		if len(got) != 1 || got[0].Title != "Song B" || got[0].Artist != "Y" {
			t.Fatalf("expected only Song B, got %+v", got)
		}
	})

	t.Run("source ISRC against destination without ISRC", func(t *testing.T) {
		source := []models.Track{{Title: "Song A", Artist: "X", ISRC: "ISRC1"}}
		dest := []models.Track{{Title: "Song A", Artist: "X"}}

		if got := Missing(source, NewIndex(dest)); len(got) != 0 {
			t.Errorf("expected name fallback to match, got %+v", got)
		}
	})

	t.Run("source without ISRC against destination with ISRC", func(t *testing.T) {
		source := []models.Track{{Title: "Song A", Artist: "X"}}
		dest := []models.Track{{Title: "song a", Artist: "X", ISRC: "ISRC9"}}

		if got := Missing(source, NewIndex(dest)); len(got) != 0 {
			t.Errorf("expected name fallback to match, got %+v", got)
		}
	})

	t.Run("conflicting ISRCs do not match by name", func(t *testing.T) {
		source := []models.Track{{Title: "Song A", Artist: "X", ISRC: "ISRC1"}}
		dest := []models.Track{{Title: "Song A", Artist: "X", ISRC: "ISRC2"}}

		if got := Missing(source, NewIndex(dest)); len(got) != 1 {
			t.Errorf("expected track to be missing, got %+v", got)
		}
	})

	t.Run("duplicates in source are added once", func(t *testing.T) {
		source := []models.Track{
			{Title: "Song C", Artist: "Z"},
			{Title: "song c", Artist: "z"},
		}
		if got := Missing(source, NewIndex(nil)); len(got) != 1 {
			t.Errorf("expected one track, got %d", len(got))
		}
	})

	t.Run("empty source", func(t *testing.T) {
		if got := Missing(nil, NewIndex(nil)); len(got) != 0 {
			t.Errorf("expected nothing, got %+v", got)
		}
	})
}

func TestIndexRefs(t *testing.T) {
	ix := NewIndex([]models.Track{{NativeID: "abc", URI: "spotify:track:abc", Title: "T", Artist: "A"}})

	if !ix.HasRef("abc") || !ix.HasRef("spotify:track:abc") {
		t.Error("expected native id and uri to be indexed")
	}
	if ix.HasRef("def") {
		t.Error("unexpected ref")
	}
	if ix.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", ix.Len())
	}
}
