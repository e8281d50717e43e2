package imagery

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/terralens/landcover-cli/pkg/copernicus"
)

// CopernicusSource adapts a copernicus.Client to the SceneSource
// interface. Cloud cover percentages are converted to fractions at
// this boundary.
type CopernicusSource struct {
	client copernicus.Client
}

// NewCopernicusSource wraps an existing client.
func NewCopernicusSource(client copernicus.Client) *CopernicusSource {
	return &CopernicusSource{client: client}
}

func bbox(b orb.Bound) [4]float64 {
	return [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
}

func (s *CopernicusSource) SearchScenes(ctx context.Context, q SceneQuery) ([]Scene, error) {
	found, err := s.client.SearchScenes(ctx, copernicus.SearchQuery{
		BBox:          bbox(q.Bound),
		From:          q.From,
		To:            q.To,
		MaxCloudCover: q.MaxCloudFraction * 100,
	})
	if err != nil {
		return nil, err
	}

	scenes := make([]Scene, 0, len(found))
	for _, f := range found {
		scenes = append(scenes, Scene{
			ID:            f.ID,
			AcquiredAt:    f.AcquiredAt,
			CloudFraction: f.CloudCover / 100,
		})
	}
	return scenes, nil
}

func (s *CopernicusSource) FetchChip(ctx context.Context, sceneID string, band Band, grid GridSpec) (*Chip, error) {
	chip, err := s.client.FetchChip(ctx, copernicus.ChipRequest{
		SceneID: sceneID,
		Band:    string(band),
		BBox:    bbox(grid.Bound),
		Width:   grid.Cols,
		Height:  grid.Rows,
	})
	if err != nil {
		return nil, err
	}

	valid := chip.Mask
	if valid == nil {
		valid = make([]bool, len(chip.Values))
		for i := range valid {
			valid[i] = true
		}
	}
	return &Chip{Band: band, Values: chip.Values, Valid: valid}, nil
}
