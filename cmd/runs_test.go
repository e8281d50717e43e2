package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terralens/landcover-cli/internal/model"
	"github.com/terralens/landcover-cli/internal/profile"
	"github.com/terralens/landcover-cli/internal/store"
)

func TestFormatRunsList(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "0b51886c-41a8-4b2e-9f07-30a1d4c9f001",
			Request:   model.AOIRequest{Name: "hyderabad-lake"},
			Status:    model.RunStatusDone,
			CreatedAt: created,
			UpdatedAt: created.Add(83 * time.Second),
		},
		{
			ID:        "7de0c2aa-1111-2222-3333-444455556666",
			Request:   model.AOIRequest{Name: "an-unreasonably-long-aoi-name-that-keeps-going"},
			Status:    model.RunStatusFailed,
			ErrorKind: model.KindDataUnavailable,
			CreatedAt: created,
			UpdatedAt: created.Add(2 * time.Second),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "0b51886c")
	assert.NotContains(t, out, "0b51886c-41a8")
	assert.Contains(t, out, "hyderabad-lake")
	assert.Contains(t, out, "done")
	assert.Contains(t, out, "1m23s")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "data_unavailable")
	assert.Contains(t, out, "an-unreasonably-long-aoi-na...")
	assert.Contains(t, out, "2026-03-14 09:30")

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4) // header, separator, two runs
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "0b51886c", truncateID("0b51886c-41a8-4b2e-9f07-30a1d4c9f001"))
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "", truncateID(""))
}

func TestFormatCacheStats(t *testing.T) {
	var buf bytes.Buffer
	formatCacheStats(&buf, store.CompositeStats{Entries: 7, Bytes: 1_048_576})
	out := buf.String()

	assert.Contains(t, out, "Fresh entries:")
	assert.Contains(t, out, "7")
	assert.Contains(t, out, "Stored bytes:")
	assert.Contains(t, out, "1048576")
}

func TestFormatThresholds(t *testing.T) {
	var buf bytes.Buffer
	formatThresholds(&buf, profile.Default())
	out := buf.String()

	assert.Contains(t, out, "Water (NDWI >):")
	assert.Contains(t, out, "0.300")
	assert.Contains(t, out, "Forest (NDVI >):")
	assert.Contains(t, out, "0.600")
	assert.Contains(t, out, "Built-up (NDBI >):")
}
