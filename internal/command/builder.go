// Package command turns a resolved extract request into the canary and full
// retrieval commands, each with its post-processing pipeline.
package command

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/cpm-tools/corvil-extract/internal/credentials"
	"github.com/cpm-tools/corvil-extract/internal/model"
)

// Command is a retrieval invocation plus the pipeline its output flows through.
type Command struct {
	Invocation Invocation     `json:"invocation"`
	Pipeline   PipelineConfig `json:"pipeline"`
	// FilterPath is the external filter program; empty means no filter stage.
	FilterPath string `json:"filter_path,omitempty"`
	// Output is the sink file; empty for console output.
	Output string `json:"output,omitempty"`
	// Timeout bounds the whole pipeline; zero means no limit.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Stages is the ordered stage list this command runs.
func (c Command) Stages() []StageKind {
	return Stages(c.Pipeline, c.FilterPath != "")
}

// Target is everything about the appliance side of a retrieval.
type Target struct {
	Address     string
	ClassID     string
	Fields      []string
	Credentials credentials.Credentials
}

// Plan is the pair of commands for one run.
type Plan struct {
	Canary Command `json:"canary"`
	Full   Command `json:"full"`
	Paths  Paths   `json:"paths"`
}

// Builder holds the static parts of the retrieval invocation.
type Builder struct {
	// Program is the executable, e.g. "python".
	Program string
	// Script is prepended to the arguments when set.
	Script string
	// FilterPath is the csv-comma2soh utility; empty disables the stage.
	FilterPath string
	// Timeout and CanaryTimeout bound the full and canary runs.
	Timeout       time.Duration
	CanaryTimeout time.Duration
}

// Build produces the canary and full commands. Both target the same
// appliance, class and fields; only the window and sink differ.
func (b Builder) Build(t Target, req model.RunRequest) (Plan, error) {
	if strings.TrimSpace(t.Address) == "" {
		return Plan{}, eris.New("command: device address is required")
	}
	if strings.TrimSpace(t.ClassID) == "" {
		return Plan{}, eris.New("command: class identifier is required")
	}
	if !req.Mode.Wildcard && len(t.Fields) == 0 {
		return Plan{}, eris.New("command: field list is empty; use wildcard mode to request every field")
	}

	full := PipelineFor(req.Mode)

	// The header is split on commas, so the canary always remaps, and it
	// always lands in a file of its own.
	canary := full
	canary.Sink = SinkFile
	canary.DelimiterRemap = true

	paths := PathsFor(req.Filename, canary.Compression)

	fullCmd := Command{
		Invocation: b.retrieval(t, req.Window, req.Mode.Wildcard, "Running extract"),
		Pipeline:   full,
		FilterPath: b.FilterPath,
		Timeout:    b.Timeout,
	}
	if full.Sink == SinkFile {
		fullCmd.Output = paths.Plain
		if full.Compression {
			fullCmd.Output = paths.Compressed
		}
	}

	canaryCmd := Command{
		Invocation: b.retrieval(t, req.Window.Canary(), req.Mode.Wildcard, "Generating test file for column verification"),
		Pipeline:   canary,
		FilterPath: b.FilterPath,
		Output:     paths.Canary,
		Timeout:    b.CanaryTimeout,
	}

	for _, c := range []Command{fullCmd, canaryCmd} {
		if err := c.Invocation.Validate(); err != nil {
			return Plan{}, err
		}
	}

	return Plan{Canary: canaryCmd, Full: fullCmd, Paths: paths}, nil
}

func (b Builder) retrieval(t Target, w model.TimeWindow, wildcard bool, desc string) Invocation {
	var args []string
	if b.Script != "" {
		args = append(args, b.Script)
	}
	args = append(args,
		"-c", "-b",
		"-n", t.Credentials.Username,
		"-p", t.Credentials.Password,
		"message-csv",
		t.Address,
		t.ClassID,
		w.FormatStart(),
		w.FormatEnd(),
	)
	if !wildcard {
		args = append(args, strings.Join(t.Fields, ","))
	}
	return Invocation{
		Program:     b.Program,
		Args:        args,
		Description: desc,
		Secrets:     []string{t.Credentials.Password},
	}
}
