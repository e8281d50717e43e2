package imagery

import (
	"context"

	"github.com/terralens/landcover-cli/pkg/scenearchive"
)

// ArchiveSource adapts a scenearchive.Client to the SceneSource
// interface.
type ArchiveSource struct {
	client scenearchive.Client
}

// NewArchiveSource wraps an existing client.
func NewArchiveSource(client scenearchive.Client) *ArchiveSource {
	return &ArchiveSource{client: client}
}

func (s *ArchiveSource) SearchScenes(ctx context.Context, q SceneQuery) ([]Scene, error) {
	found, err := s.client.SearchScenes(ctx, scenearchive.Query{
		BBox:             bbox(q.Bound),
		From:             q.From,
		To:               q.To,
		MaxCloudFraction: q.MaxCloudFraction,
	})
	if err != nil {
		return nil, err
	}

	scenes := make([]Scene, 0, len(found))
	for _, f := range found {
		scenes = append(scenes, Scene{
			ID:            f.ID,
			AcquiredAt:    f.AcquiredAt,
			CloudFraction: f.CloudFraction,
		})
	}
	return scenes, nil
}

func (s *ArchiveSource) FetchChip(ctx context.Context, sceneID string, band Band, grid GridSpec) (*Chip, error) {
	chip, err := s.client.FetchChip(ctx, scenearchive.ChipRequest{
		SceneID: sceneID,
		Band:    string(band),
		BBox:    bbox(grid.Bound),
		Width:   grid.Cols,
		Height:  grid.Rows,
	})
	if err != nil {
		return nil, err
	}
	return &Chip{Band: band, Values: chip.Values, Valid: chip.Mask}, nil
}
