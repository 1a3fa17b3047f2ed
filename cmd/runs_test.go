package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cpm-tools/corvil-extract/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	done := now.Add(2 * time.Minute)
	runs := []model.ExtractRun{
		{
			ID:          "abc12345-6789-0000-0000-000000000000",
			Market:      "M1",
			ExtractName: "E1",
			Start:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			End:         time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC),
			Status:      model.RunStatusComplete,
			CreatedAt:   now,
			UpdatedAt:   done,
			CompletedAt: &done,
		},
		{
			ID:          "def12345-6789-0000-0000-000000000000",
			Market:      "M2",
			ExtractName: "E2",
			Status:      model.RunStatusRunning,
			CreatedAt:   now.Add(-1 * time.Hour),
			UpdatedAt:   now.Add(-1 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs, now)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "MIC")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "2024-01-01 00:00:00-2024-01-01 01:00:00")
	assert.Contains(t, output, "2m0s")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "1h0m0s")
	assert.Contains(t, output, "2025-06-15 10:30")
}

func TestFormatRunsList_FailedRun(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.ExtractRun{
		{
			ID:          "abc12345-6789-0000-0000-000000000000",
			Market:      "M1",
			ExtractName: "E1",
			Status:      model.RunStatusFailed,
			ErrorKind:   "SchemaMismatch",
			Error:       "column 2: expected \"px\", got \"bid\"",
			CreatedAt:   now,
			UpdatedAt:   now.Add(3 * time.Second),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs, now)

	output := buf.String()
	assert.Contains(t, output, "failed")
	assert.Contains(t, output, "SchemaMismatch")
	assert.Contains(t, output, "3s")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["show"])

	for _, flagName := range []string{"status", "mic", "limit"} {
		assert.NotNil(t, runsListCmd.Flags().Lookup(flagName), "runs list should have --%s flag", flagName)
	}
}
