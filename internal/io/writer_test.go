package io

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/williampepple1/listing-notifier/internal/config"
	"github.com/williampepple1/listing-notifier/pkg/models"
)

func TestResultWriter_Append(t *testing.T) {
	dir := t.TempDir()
	w := NewResultWriter(&config.IOConfig{OutputDir: dir})
	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return day }

	require.NoError(t, w.Append([]models.Posting{{Title: "Driver", URL: "https://example.com/1", Keyword: "driver"}}))
	require.NoError(t, w.Append([]models.Posting{{Title: "Cook", URL: "https://example.com/2", Keyword: "cook"}}))

	path := w.PathFor(day)
	assert.Equal(t, "postings-2026-03-14.json", path[len(dir)+1:])

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got []models.Posting
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "Driver", got[0].Title)
	assert.Equal(t, "Cook", got[1].Title)
}

func TestResultWriter_Disabled(t *testing.T) {
	w := NewResultWriter(&config.IOConfig{})
	assert.False(t, w.Enabled())
	assert.NoError(t, w.Append([]models.Posting{{Title: "x"}}))

	var nilWriter *ResultWriter
	assert.False(t, nilWriter.Enabled())
}
