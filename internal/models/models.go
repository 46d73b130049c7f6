// package models defines the data model for the playlist sync service
package models

import (
	"fmt"
	"strings"
)

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T any] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// Platform identifies one external music service.
type Platform string

const (
	Spotify Platform = "spotify"
	Deezer  Platform = "deezer"
	YouTube Platform = "youtube"
)

// AllPlatform is the platform value of the overall entry written for every run.
const AllPlatform Platform = "all"

// Platforms lists every supported platform in display order.
var Platforms = []Platform{Spotify, Deezer, YouTube}

// ParsePlatform resolves a user supplied platform name.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Platforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q (expected one of spotify, deezer, youtube)", s)
}

func (p Platform) String() string { return string(p) }

// DisplayName returns the human readable platform name.
func (p Platform) DisplayName() string {
	switch p {
	case Spotify:
		return "Spotify"
	case Deezer:
		return "Deezer"
	case YouTube:
		return "YouTube"
	default:
		return string(p)
	}
}
