package runner

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpm-tools/corvil-extract/internal/command"
)

// writeScript writes an executable shell script into dir.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// fakeRetrieval prints a small CSV with a quoted comma and an SOH-free body.
func fakeRetrieval(t *testing.T, dir string) string {
	return writeScript(t, dir, "retrieve.sh", `printf 'a,b,c\n1,2,3\n4,5,6\n'`)
}

// fakeFilter mimics csv-comma2soh: commas become SOH.
func fakeFilter(t *testing.T, dir string) string {
	return writeScript(t, dir, "comma2soh.sh", `exec tr ',' '\001'`)
}

func readGzip(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	return string(data)
}

func TestRun_FileSinkWithRemap(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.csv")

	cmd := command.Command{
		Invocation: command.Invocation{Program: fakeRetrieval(t, dir), Description: "test"},
		Pipeline:   command.PipelineConfig{Sink: command.SinkFile, DelimiterRemap: true},
		FilterPath: fakeFilter(t, dir),
		Output:     out,
	}

	require.NoError(t, NewExecutor(nil).Run(context.Background(), cmd))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "a,b,c\n1,2,3\n4,5,6\n", string(data))
}

func TestRun_FileSinkWithoutRemapKeepsSOH(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.csv")

	cmd := command.Command{
		Invocation: command.Invocation{Program: fakeRetrieval(t, dir), Description: "test"},
		Pipeline:   command.PipelineConfig{Sink: command.SinkFile},
		FilterPath: fakeFilter(t, dir),
		Output:     out,
	}

	require.NoError(t, NewExecutor(nil).Run(context.Background(), cmd))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "a\x01b\x01c\n1\x012\x013\n4\x015\x016\n", string(data))
}

func TestRun_Gzip(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.csv.gz")

	cmd := command.Command{
		Invocation: command.Invocation{Program: fakeRetrieval(t, dir), Description: "test"},
		Pipeline:   command.PipelineConfig{Sink: command.SinkFile, DelimiterRemap: true, Compression: true},
		FilterPath: fakeFilter(t, dir),
		Output:     out,
	}

	require.NoError(t, NewExecutor(nil).Run(context.Background(), cmd))
	assert.Equal(t, "a,b,c\n1,2,3\n4,5,6\n", readGzip(t, out))
}

func TestRun_ConsoleWithoutFilter(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	cmd := command.Command{
		Invocation: command.Invocation{Program: fakeRetrieval(t, dir), Description: "test"},
		Pipeline:   command.PipelineConfig{Sink: command.SinkConsole},
	}

	require.NoError(t, NewExecutor(&console).Run(context.Background(), cmd))
	assert.Equal(t, "a,b,c\n1,2,3\n4,5,6\n", console.String())
}

func TestRun_ArgumentsPassedVerbatim(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	echo := writeScript(t, dir, "echo.sh", `for a in "$@"; do printf '[%s]' "$a"; done`)

	cmd := command.Command{
		Invocation: command.Invocation{Program: echo, Args: []string{"2024-01-01 00:00:00", "a;b", "$HOME"}, Description: "test"},
		Pipeline:   command.PipelineConfig{Sink: command.SinkConsole},
	}

	require.NoError(t, NewExecutor(&console).Run(context.Background(), cmd))
	assert.Equal(t, "[2024-01-01 00:00:00][a;b][$HOME]", console.String())
}

func TestRun_RetrievalFailureRemovesOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.csv")
	failing := writeScript(t, dir, "fail.sh", `printf 'partial\n'; echo 'auth failed' >&2; exit 3`)

	cmd := command.Command{
		Invocation: command.Invocation{Program: failing, Description: "test"},
		Pipeline:   command.PipelineConfig{Sink: command.SinkFile},
		FilterPath: fakeFilter(t, dir),
		Output:     out,
	}

	err := NewExecutor(nil).Run(context.Background(), cmd)
	require.Error(t, err)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "retrieval", se.Stage)
	assert.Equal(t, 3, se.ExitCode)
	assert.Contains(t, se.Stderr, "auth failed")
	assert.NoFileExists(t, out)
}

func TestRun_FilterFailure(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.csv")
	badFilter := writeScript(t, dir, "badfilter.sh", `cat >/dev/null; exit 2`)

	cmd := command.Command{
		Invocation: command.Invocation{Program: fakeRetrieval(t, dir), Description: "test"},
		Pipeline:   command.PipelineConfig{Sink: command.SinkFile},
		FilterPath: badFilter,
		Output:     out,
	}

	err := NewExecutor(nil).Run(context.Background(), cmd)
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "filter", se.Stage)
	assert.Equal(t, 2, se.ExitCode)
	assert.NoFileExists(t, out)
}

func TestRun_Timeout(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.csv")
	slow := writeScript(t, dir, "slow.sh", `exec sleep 10`)

	cmd := command.Command{
		Invocation: command.Invocation{Program: slow, Description: "test"},
		Pipeline:   command.PipelineConfig{Sink: command.SinkFile},
		Output:     out,
		Timeout:    200 * time.Millisecond,
	}

	start := time.Now()
	err := NewExecutor(nil).Run(context.Background(), cmd)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.True(t, se.TimedOut)
	assert.NoFileExists(t, out)
}

func TestRun_TimeoutKillsChildProcesses(t *testing.T) {
	dir := t.TempDir()
	// No exec: sleep runs as a child of the shell and inherits its stdout.
	slow := writeScript(t, dir, "slow.sh", "printf 'a,b\\n'\nsleep 6")

	for name, filter := range map[string]string{
		"direct":      "",
		"with filter": fakeFilter(t, dir),
	} {
		t.Run(name, func(t *testing.T) {
			out := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".csv")
			cmd := command.Command{
				Invocation: command.Invocation{Program: slow, Description: "test"},
				Pipeline:   command.PipelineConfig{Sink: command.SinkFile},
				FilterPath: filter,
				Output:     out,
				Timeout:    200 * time.Millisecond,
			}

			start := time.Now()
			err := NewExecutor(nil).Run(context.Background(), cmd)
			require.Error(t, err)
			assert.Less(t, time.Since(start), 2*time.Second)

			var se *StageError
			require.True(t, errors.As(err, &se))
			assert.True(t, se.TimedOut)
			assert.NoFileExists(t, out)
		})
	}
}

func TestRun_CancelKillsChildProcesses(t *testing.T) {
	dir := t.TempDir()
	slow := writeScript(t, dir, "slow.sh", "sleep 6")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	start := time.Now()
	err := NewExecutor(nil).Run(ctx, command.Command{
		Invocation: command.Invocation{Program: slow, Description: "test"},
		Pipeline:   command.PipelineConfig{Sink: command.SinkFile},
		Output:     filepath.Join(dir, "out.csv"),
	})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRun_MissingProgram(t *testing.T) {
	dir := t.TempDir()
	cmd := command.Command{
		Invocation: command.Invocation{Program: filepath.Join(dir, "nope"), Description: "test"},
		Pipeline:   command.PipelineConfig{Sink: command.SinkFile},
		Output:     filepath.Join(dir, "out.csv"),
	}

	err := NewExecutor(nil).Run(context.Background(), cmd)
	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "retrieval", se.Stage)
	assert.NoFileExists(t, cmd.Output)
}

func TestRun_InvalidInvocation(t *testing.T) {
	err := NewExecutor(nil).Run(context.Background(), command.Command{
		Invocation: command.Invocation{Program: "sh", Args: []string{"bad\narg"}},
		Pipeline:   command.PipelineConfig{Sink: command.SinkConsole},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "control character")
}

func TestRunFull_ReturnsOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.csv")
	plan := command.Plan{Full: command.Command{
		Invocation: command.Invocation{Program: fakeRetrieval(t, dir), Description: "test"},
		Pipeline:   command.PipelineConfig{Sink: command.SinkFile},
		Output:     out,
	}}

	got, err := NewExecutor(nil).RunFull(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, out, got)
	assert.FileExists(t, out)
}

func TestRemapWriter(t *testing.T) {
	var buf bytes.Buffer
	w := newRemapWriter(&buf)

	n, err := w.Write([]byte("a\x01b\x01c\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	_, err = w.Write([]byte("plain\n"))
	require.NoError(t, err)
	assert.Equal(t, "a,b,c\nplain\n", buf.String())
}

func TestTailBuffer_KeepsTail(t *testing.T) {
	var tb tailBuffer
	_, _ = tb.Write(bytes.Repeat([]byte("x"), maxStderr))
	_, _ = tb.Write([]byte("end"))
	assert.Len(t, tb.String(), maxStderr)
	assert.True(t, bytes.HasSuffix([]byte(tb.String()), []byte("end")))
}

func TestStageError_Message(t *testing.T) {
	err := &StageError{Stage: "filter", ExitCode: 2, TimedOut: true, Stderr: "boom\n", Err: errors.New("exit status 2")}
	assert.Equal(t, "runner: stage filter failed (timed out) with exit code 2: exit status 2: boom", err.Error())
}
