package model

import (
	"fmt"
	"strings"
)

// ManifestStatusOK is the only status value ever written to a record.
const ManifestStatusOK = 0

// ManifestRecord describes one produced artifact for downstream ingestion.
type ManifestRecord struct {
	Mnemonic     string `json:"mnemonic"`
	ArtifactName string `json:"artifact_name"`
	SizeBytes    int64  `json:"size_bytes"`
	Status       int    `json:"status"`
	// Lines is the decompressed line count; it is logged, not serialized.
	Lines int64 `json:"lines"`
	// Path is where the manifest itself was written.
	Path string `json:"path"`
	// Undersized marks a record whose manifest carries the .error suffix.
	Undersized bool `json:"undersized"`
}

// Line renders the pipe-delimited manifest line, newline included.
func (r ManifestRecord) Line() string {
	return strings.Join([]string{
		r.Mnemonic,
		r.ArtifactName,
		fmt.Sprintf("%d", r.SizeBytes),
		fmt.Sprintf("%d", r.Status),
	}, "|") + "\n"
}
