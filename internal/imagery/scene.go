package imagery

import (
	"context"
	"time"

	"github.com/paulmach/orb"

	"github.com/terralens/landcover-cli/internal/model"
)

// Scene is one satellite acquisition as reported by a scene source.
type Scene struct {
	ID            string    `json:"id"`
	AcquiredAt    time.Time `json:"acquired_at"`
	CloudFraction float64   `json:"cloud_fraction"`
}

// Validate enforces the scene schema at the source boundary. Sources return
// whatever their upstream produces; anything non-conforming is rejected here
// before it can reach classification.
func (s Scene) Validate() error {
	if s.ID == "" {
		return model.Internalf("scene missing id")
	}
	if s.AcquiredAt.IsZero() {
		return model.Internalf("scene %s missing acquisition time", s.ID)
	}
	if s.CloudFraction < 0 || s.CloudFraction > 1 {
		return model.Internalf("scene %s cloud fraction %v outside [0, 1]", s.ID, s.CloudFraction)
	}
	return nil
}

// SceneQuery selects scenes intersecting a bound within a time window, with
// a ceiling on per-scene cloud fraction.
type SceneQuery struct {
	Bound            orb.Bound
	From             time.Time
	To               time.Time
	MaxCloudFraction float64
}

// Chip is one scene's data for one band, resampled onto the request grid.
// Values are surface reflectance in [0, 1]; Valid marks cells the scene
// actually covered with cloud-free data.
type Chip struct {
	Band   Band      `json:"band"`
	Values []float64 `json:"values"`
	Valid  []bool    `json:"valid"`
}

// SceneSource queries an external imagery catalog and fetches band data.
// Implementations own their authentication and connection lifecycle; the
// pipeline owns the source instance only for the duration of one request.
type SceneSource interface {
	// SearchScenes returns scenes matching the query. An empty result is
	// not an error; the fetcher decides how to surface it.
	SearchScenes(ctx context.Context, q SceneQuery) ([]Scene, error)
	// FetchChip returns one band of one scene resampled to the grid.
	FetchChip(ctx context.Context, sceneID string, band Band, grid GridSpec) (*Chip, error)
}
