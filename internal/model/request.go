package model

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// OutputMode carries the operator's output flags for one extract.
type OutputMode struct {
	Console   bool   `json:"console"`
	Human     bool   `json:"human"`
	Compress  bool   `json:"compress"` // gzip inside the pipeline
	Archive   bool   `json:"archive"`  // separate tar.gz step after the run
	Overwrite bool   `json:"overwrite"`
	Manifest  bool   `json:"manifest"`
	Mnemonic  string `json:"mnemonic,omitempty"`
	Testing   bool   `json:"testing"`
	Wildcard  bool   `json:"wildcard"`
	NoVerify  bool   `json:"no_verify"`
}

// Compressed reports whether the final artifact is gzip-compressed, either by
// the pipeline or by the archive step.
func (m OutputMode) Compressed() bool {
	return !m.Console && (m.Compress || m.Archive)
}

// ShouldVerify reports whether a canary run must validate the schema.
func (m OutputMode) ShouldVerify() bool {
	return !m.Console && !m.Wildcard && !m.NoVerify
}

// ShouldManifest reports whether manifests are written for this run. All
// four conditions are required.
func (m OutputMode) ShouldManifest() bool {
	return !m.Console && m.Compressed() && m.Manifest && m.Mnemonic != ""
}

// Validate rejects flag combinations that cannot be honoured.
func (m OutputMode) Validate() error {
	if m.Compress && m.Archive {
		return eris.New("model: --compress and --archive are mutually exclusive")
	}
	return nil
}

// RunRequest is the validated combination of market, extract, window and
// output flags. It is not modified once command building starts.
type RunRequest struct {
	Market      string     `json:"market"`
	ExtractName string     `json:"extract_name"`
	Window      TimeWindow `json:"window"`
	Mode        OutputMode `json:"mode"`
	// Filename is the artifact stem without extension, possibly with a directory.
	Filename string `json:"filename"`
}

// DefaultFilename returns "<mic>_<extract>_<start>_to_<end>".
func DefaultFilename(market, extractName string, w TimeWindow) string {
	return fmt.Sprintf("%s_%s_%s", market, extractName, w.Stamp())
}

// NewRunRequest validates the inputs and resolves the artifact stem. An empty
// filename gets the default name; a bare filename is placed in outputDir.
func NewRunRequest(market, extractName string, w TimeWindow, mode OutputMode, filename, outputDir string) (RunRequest, error) {
	if strings.TrimSpace(market) == "" {
		return RunRequest{}, eris.New("model: market is required")
	}
	if strings.TrimSpace(extractName) == "" {
		return RunRequest{}, eris.New("model: extract name is required")
	}
	if err := w.Validate(); err != nil {
		return RunRequest{}, err
	}
	if err := mode.Validate(); err != nil {
		return RunRequest{}, err
	}

	name := strings.TrimSpace(filename)
	if name == "" {
		name = DefaultFilename(market, extractName, w)
	}
	name = strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ".csv")
	if filepath.Dir(name) == "." && outputDir != "" {
		name = filepath.Join(outputDir, name)
	}

	return RunRequest{
		Market:      market,
		ExtractName: extractName,
		Window:      w,
		Mode:        mode,
		Filename:    name,
	}, nil
}
