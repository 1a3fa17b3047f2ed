package runner

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpm-tools/corvil-extract/internal/command"
	"github.com/cpm-tools/corvil-extract/internal/manifest"
)

func TestCheckCollision_NoFiles(t *testing.T) {
	paths := command.PathsFor(filepath.Join(t.TempDir(), "M1_E1"), false)
	assert.NoError(t, CheckCollision(paths, false))
}

func TestCheckCollision_Refuses(t *testing.T) {
	tests := []struct {
		name string
		pick func(command.Paths) string
	}{
		{"plain", func(p command.Paths) string { return p.Plain }},
		{"compressed", func(p command.Paths) string { return p.Compressed }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paths := command.PathsFor(filepath.Join(t.TempDir(), "M1_E1"), false)
			existing := tt.pick(paths)
			require.NoError(t, os.WriteFile(existing, []byte("old"), 0o644))

			err := CheckCollision(paths, false)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrOutputExists))
			assert.FileExists(t, existing)
		})
	}
}

func TestCheckCollision_OverwriteDeletes(t *testing.T) {
	paths := command.PathsFor(filepath.Join(t.TempDir(), "M1_E1"), true)
	require.NoError(t, os.WriteFile(paths.Plain, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(paths.Compressed, []byte("old"), 0o644))

	require.NoError(t, CheckCollision(paths, true))
	assert.NoFileExists(t, paths.Plain)
	assert.NoFileExists(t, paths.Compressed)
}

func TestCheckCollision_OverwriteOneMissing(t *testing.T) {
	paths := command.PathsFor(filepath.Join(t.TempDir(), "M1_E1"), false)
	require.NoError(t, os.WriteFile(paths.Compressed, []byte("old"), 0o644))

	require.NoError(t, CheckCollision(paths, true))
	assert.NoFileExists(t, paths.Compressed)
}

func TestCheckCollision_OverwriteDeletesManifests(t *testing.T) {
	paths := command.PathsFor(filepath.Join(t.TempDir(), "M1_E1"), true)
	flagged := manifest.ManifestPath(paths.Compressed) + ".error"
	require.NoError(t, os.WriteFile(paths.Compressed, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(flagged, []byte("MIC1|M1_E1.csv.gz|12|0\n"), 0o644))

	require.NoError(t, CheckCollision(paths, true))
	assert.NoFileExists(t, paths.Compressed)
	assert.NoFileExists(t, flagged)
}

func TestCheckCollision_OverwriteDeletesOrphanManifest(t *testing.T) {
	paths := command.PathsFor(filepath.Join(t.TempDir(), "M1_E1"), true)
	written := manifest.ManifestPath(paths.Compressed)
	require.NoError(t, os.WriteFile(written, []byte("MIC1|M1_E1.csv.gz|9000|0\n"), 0o644))

	require.NoError(t, CheckCollision(paths, true))
	assert.NoFileExists(t, written)
}

func TestCheckCollision_ManifestAloneIsNoCollision(t *testing.T) {
	paths := command.PathsFor(filepath.Join(t.TempDir(), "M1_E1"), true)
	written := manifest.ManifestPath(paths.Compressed)
	require.NoError(t, os.WriteFile(written, []byte("x"), 0o644))

	require.NoError(t, CheckCollision(paths, false))
	assert.FileExists(t, written)
}

func TestPathsManifests_MatchManifestWriter(t *testing.T) {
	paths := command.PathsFor("/out/M1_E1", true)
	written := manifest.ManifestPath(paths.Compressed)
	assert.Equal(t, []string{written, written + ".error"}, paths.Manifests)
}
