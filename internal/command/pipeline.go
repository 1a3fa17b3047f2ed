package command

import "github.com/cpm-tools/corvil-extract/internal/model"

// Sink is where the last pipeline stage writes.
type Sink string

const (
	SinkFile    Sink = "file"
	SinkConsole Sink = "console"
)

// PipelineConfig is the set of independent toggles that decide which stages
// follow the retrieval process.
type PipelineConfig struct {
	Sink           Sink `json:"sink"`
	DelimiterRemap bool `json:"delimiter_remap"`
	Compression    bool `json:"compression"`
}

// StageKind names one post-processing stage.
type StageKind string

const (
	// StageFilter is the external csv-comma2soh utility: it turns the
	// appliance's escaped CSV into SOH-separated rows.
	StageFilter StageKind = "filter"
	// StageRemap turns SOH separators back into commas.
	StageRemap  StageKind = "remap"
	StageGzip   StageKind = "gzip"
	StageFile   StageKind = "file"
	StageStdout StageKind = "stdout"
)

// PipelineFor maps operator flags onto a pipeline configuration. Console
// output is never compressed. The archive step runs after the pipeline, so it
// does not turn on pipeline compression.
func PipelineFor(mode model.OutputMode) PipelineConfig {
	if mode.Console {
		return PipelineConfig{Sink: SinkConsole, DelimiterRemap: mode.Human}
	}
	return PipelineConfig{
		Sink:           SinkFile,
		DelimiterRemap: mode.Human,
		Compression:    mode.Compress,
	}
}

// Stages returns the ordered stage list for cfg. withFilter controls whether
// the external filter leads the list.
func Stages(cfg PipelineConfig, withFilter bool) []StageKind {
	var out []StageKind
	if withFilter {
		out = append(out, StageFilter)
	}
	if cfg.DelimiterRemap {
		out = append(out, StageRemap)
	}
	if cfg.Compression && cfg.Sink == SinkFile {
		out = append(out, StageGzip)
	}
	if cfg.Sink == SinkConsole {
		out = append(out, StageStdout)
	} else {
		out = append(out, StageFile)
	}
	return out
}
