package imagery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terralens/landcover-cli/pkg/copernicus"
)

type fakeCopernicus struct {
	lastSearch copernicus.SearchQuery
	lastChip   copernicus.ChipRequest
	scenes     []copernicus.Scene
	chip       *copernicus.Chip
}

func (f *fakeCopernicus) SearchScenes(ctx context.Context, q copernicus.SearchQuery) ([]copernicus.Scene, error) {
	f.lastSearch = q
	return f.scenes, nil
}

func (f *fakeCopernicus) FetchChip(ctx context.Context, req copernicus.ChipRequest) (*copernicus.Chip, error) {
	f.lastChip = req
	return f.chip, nil
}

func TestCopernicusSourceSearchScenes(t *testing.T) {
	t.Parallel()

	acquired := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	fake := &fakeCopernicus{
		scenes: []copernicus.Scene{{ID: "S2A_1", AcquiredAt: acquired, CloudCover: 25}},
	}
	src := NewCopernicusSource(fake)

	aoi := buildTestAOI(t, 17.385, 78.4867, 5_000_000)
	scenes, err := src.SearchScenes(context.Background(), SceneQuery{
		Bound:            aoi.Bound(),
		From:             acquired.AddDate(-1, 0, 0),
		To:               acquired,
		MaxCloudFraction: 0.4,
	})
	require.NoError(t, err)

	// Fractions cross the boundary as percentages.
	assert.InDelta(t, 40.0, fake.lastSearch.MaxCloudCover, 1e-9)
	require.Len(t, scenes, 1)
	assert.InDelta(t, 0.25, scenes[0].CloudFraction, 1e-9)
	assert.Equal(t, acquired, scenes[0].AcquiredAt)
}

func TestCopernicusSourceFetchChip(t *testing.T) {
	t.Parallel()

	aoi := buildTestAOI(t, 0, 0, 1_000_000)
	grid, err := NewGridSpec(aoi.Bound(), 500, 0)
	require.NoError(t, err)

	fake := &fakeCopernicus{
		chip: &copernicus.Chip{
			Width:  grid.Cols,
			Height: grid.Rows,
			Values: make([]float64, grid.Cells()),
		},
	}
	src := NewCopernicusSource(fake)

	chip, err := src.FetchChip(context.Background(), "S2A_1", BandNIR, grid)
	require.NoError(t, err)

	assert.Equal(t, "B08", fake.lastChip.Band)
	assert.Equal(t, grid.Cols, fake.lastChip.Width)
	assert.Equal(t, grid.Rows, fake.lastChip.Height)

	// A missing mask means every cell is usable.
	require.Len(t, chip.Valid, grid.Cells())
	for _, ok := range chip.Valid {
		assert.True(t, ok)
	}
}
