package imagery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terralens/landcover-cli/pkg/scenearchive"
)

type fakeArchive struct {
	lastSearch scenearchive.Query
	lastChip   scenearchive.ChipRequest
	scenes     []scenearchive.Scene
	chip       *scenearchive.Chip
}

func (f *fakeArchive) SearchScenes(ctx context.Context, q scenearchive.Query) ([]scenearchive.Scene, error) {
	f.lastSearch = q
	return f.scenes, nil
}

func (f *fakeArchive) FetchChip(ctx context.Context, req scenearchive.ChipRequest) (*scenearchive.Chip, error) {
	f.lastChip = req
	return f.chip, nil
}

func TestArchiveSourceSearchScenes(t *testing.T) {
	t.Parallel()

	acquired := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	fake := &fakeArchive{
		scenes: []scenearchive.Scene{{ID: "ls-042", AcquiredAt: acquired, CloudFraction: 0.1}},
	}
	src := NewArchiveSource(fake)

	aoi := buildTestAOI(t, 17.385, 78.4867, 5_000_000)
	scenes, err := src.SearchScenes(context.Background(), SceneQuery{
		Bound:            aoi.Bound(),
		From:             acquired.AddDate(-1, 0, 0),
		To:               acquired,
		MaxCloudFraction: 0.4,
	})
	require.NoError(t, err)

	// The archive speaks fractions natively, no unit conversion.
	assert.InDelta(t, 0.4, fake.lastSearch.MaxCloudFraction, 1e-9)
	assert.Equal(t, bbox(aoi.Bound()), fake.lastSearch.BBox)

	require.Len(t, scenes, 1)
	assert.Equal(t, "ls-042", scenes[0].ID)
	assert.Equal(t, acquired, scenes[0].AcquiredAt)
	assert.InDelta(t, 0.1, scenes[0].CloudFraction, 1e-9)
}

func TestArchiveSourceFetchChip(t *testing.T) {
	t.Parallel()

	aoi := buildTestAOI(t, 0, 0, 1_000_000)
	grid, err := NewGridSpec(aoi.Bound(), 500, 0)
	require.NoError(t, err)

	mask := make([]bool, grid.Cells())
	mask[0] = true
	fake := &fakeArchive{
		chip: &scenearchive.Chip{
			Values: make([]float64, grid.Cells()),
			Mask:   mask,
		},
	}
	src := NewArchiveSource(fake)

	chip, err := src.FetchChip(context.Background(), "ls-042", BandRed, grid)
	require.NoError(t, err)

	assert.Equal(t, "ls-042", fake.lastChip.SceneID)
	assert.Equal(t, "B04", fake.lastChip.Band)
	assert.Equal(t, grid.Cols, fake.lastChip.Width)
	assert.Equal(t, grid.Rows, fake.lastChip.Height)

	assert.Equal(t, BandRed, chip.Band)
	require.Len(t, chip.Valid, grid.Cells())
	assert.True(t, chip.Valid[0])
	assert.False(t, chip.Valid[1])
}
