package model

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWindow(t *testing.T) TimeWindow {
	t.Helper()
	w, err := ParseWindow("2024-01-01 00:00:00", "2024-01-01 01:00:00")
	require.NoError(t, err)
	return w
}

func TestNewRunRequest_DefaultFilename(t *testing.T) {
	req, err := NewRunRequest("M1", "E1", testWindow(t), OutputMode{}, "", "")
	require.NoError(t, err)
	assert.Equal(t, "M1_E1_20240101_00-00-00_to_20240101_01-00-00", req.Filename)
}

func TestNewRunRequest_OutputDir(t *testing.T) {
	req, err := NewRunRequest("M1", "E1", testWindow(t), OutputMode{}, "foo", "/data/out")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data/out", "foo"), req.Filename)

	// A filename that already names a directory is kept as given.
	req, err = NewRunRequest("M1", "E1", testWindow(t), OutputMode{}, "/tmp/x/foo.csv", "/data/out")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x/foo", req.Filename)
}

func TestNewRunRequest_Validation(t *testing.T) {
	w := testWindow(t)

	_, err := NewRunRequest("", "E1", w, OutputMode{}, "", "")
	assert.Error(t, err)

	_, err = NewRunRequest("M1", " ", w, OutputMode{}, "", "")
	assert.Error(t, err)

	_, err = NewRunRequest("M1", "E1", TimeWindow{}, OutputMode{}, "", "")
	assert.Error(t, err)

	_, err = NewRunRequest("M1", "E1", w, OutputMode{Compress: true, Archive: true}, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestOutputMode_Predicates(t *testing.T) {
	tests := []struct {
		name     string
		mode     OutputMode
		verify   bool
		manifest bool
	}{
		{"plain file", OutputMode{}, true, false},
		{"console", OutputMode{Console: true, Compress: true, Manifest: true, Mnemonic: "X"}, false, false},
		{"wildcard", OutputMode{Wildcard: true}, false, false},
		{"no verify", OutputMode{NoVerify: true}, false, false},
		{"manifest all set", OutputMode{Compress: true, Manifest: true, Mnemonic: "MIC1"}, true, true},
		{"manifest via archive", OutputMode{Archive: true, Manifest: true, Mnemonic: "MIC1"}, true, true},
		{"manifest without mnemonic", OutputMode{Compress: true, Manifest: true}, true, false},
		{"manifest without compress", OutputMode{Manifest: true, Mnemonic: "MIC1"}, true, false},
		{"mnemonic without manifest flag", OutputMode{Compress: true, Mnemonic: "MIC1"}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.verify, tt.mode.ShouldVerify())
			assert.Equal(t, tt.manifest, tt.mode.ShouldManifest())
		})
	}
}

func TestManifestRecord_Line(t *testing.T) {
	r := ManifestRecord{Mnemonic: "MIC1", ArtifactName: "a.csv.gz", SizeBytes: 12345}
	assert.Equal(t, "MIC1|a.csv.gz|12345|0\n", r.Line())
}
