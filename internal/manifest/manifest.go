// Package manifest writes the sidecar records that describe compressed
// artifacts to downstream ingestion.
package manifest

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cpm-tools/corvil-extract/internal/model"
)

// Scope selects which artifacts get a manifest.
type Scope string

const (
	// ScopeRun manifests only the artifacts produced by the current run.
	ScopeRun Scope = "run"
	// ScopePrefix manifests every .gz file in the directory sharing the prefix.
	ScopePrefix Scope = "prefix"
)

// DefaultMinBytes is the size below which a non-test artifact is flagged.
const DefaultMinBytes = 5000

const (
	manifestSuffix = ".manifest"
	errorSuffix    = ".error"
)

// Writer writes manifests for compressed artifacts.
type Writer struct {
	MinBytes int64
	Scope    Scope
}

// Request describes one manifest pass.
type Request struct {
	// Dir is the output directory and Prefix the artifact stem's base name.
	Dir    string
	Prefix string
	// Produced are the artifact paths written by this run.
	Produced []string
	Mnemonic string
	Testing  bool
}

// Write emits one manifest per matched artifact and returns the records in
// file name order.
func (w Writer) Write(req Request) ([]model.ManifestRecord, error) {
	if strings.TrimSpace(req.Mnemonic) == "" {
		return nil, eris.New("manifest: mnemonic is required")
	}

	files, err := w.candidates(req)
	if err != nil {
		return nil, err
	}

	records := make([]model.ManifestRecord, 0, len(files))
	for _, path := range files {
		rec, err := w.writeOne(path, req.Mnemonic, req.Testing)
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (w Writer) candidates(req Request) ([]string, error) {
	var out []string
	switch w.Scope {
	case ScopePrefix:
		entries, err := os.ReadDir(req.Dir)
		if err != nil {
			return nil, eris.Wrapf(err, "manifest: read dir %s", req.Dir)
		}
		rx := regexp.MustCompile("^" + regexp.QuoteMeta(req.Prefix) + `.*\.gz$`)
		for _, e := range entries {
			if !e.Type().IsRegular() || !rx.MatchString(e.Name()) {
				continue
			}
			out = append(out, filepath.Join(req.Dir, e.Name()))
		}
	case ScopeRun, "":
		for _, p := range req.Produced {
			if !strings.HasSuffix(p, ".gz") {
				continue
			}
			info, err := os.Stat(p)
			if err != nil {
				return nil, eris.Wrapf(err, "manifest: stat %s", p)
			}
			if info.Mode().IsRegular() {
				out = append(out, p)
			}
		}
	default:
		return nil, eris.Errorf("manifest: unknown scope %q", w.Scope)
	}
	sort.Strings(out)
	return out, nil
}

func (w Writer) writeOne(path, mnemonic string, testing bool) (model.ManifestRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.ManifestRecord{}, eris.Wrapf(err, "manifest: stat %s", path)
	}
	lines, err := CountLines(path)
	if err != nil {
		return model.ManifestRecord{}, err
	}

	name := filepath.Base(path)
	rec := model.ManifestRecord{
		Mnemonic:     mnemonic,
		ArtifactName: name,
		SizeBytes:    info.Size(),
		Status:       model.ManifestStatusOK,
		Lines:        lines,
		Path:         ManifestPath(path),
	}
	if rec.SizeBytes < w.MinBytes && !testing {
		rec.Undersized = true
		rec.Path += errorSuffix
	}

	if err := os.WriteFile(rec.Path, []byte(rec.Line()), 0o644); err != nil {
		return model.ManifestRecord{}, eris.Wrapf(err, "manifest: write %s", rec.Path)
	}

	log := zap.L().With(zap.String("artifact", name))
	if rec.Undersized {
		log.Warn("manifest: artifact below minimum size",
			zap.Int64("size", rec.SizeBytes),
			zap.Int64("min_bytes", w.MinBytes),
			zap.String("manifest", rec.Path),
		)
	} else {
		log.Info("manifest: written",
			zap.Int64("size", rec.SizeBytes),
			zap.Int64("lines", rec.Lines),
			zap.String("manifest", rec.Path),
		)
	}
	return rec, nil
}

// ManifestPath replaces the trailing .gz of an artifact path with .manifest.
func ManifestPath(artifact string) string {
	return strings.TrimSuffix(artifact, ".gz") + manifestSuffix
}

// CountLines streams a gzip file and counts its newline-terminated lines.
func CountLines(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "manifest: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, eris.Wrapf(err, "manifest: gzip reader %s", path)
	}
	defer gz.Close() //nolint:errcheck

	br := bufio.NewReaderSize(gz, 64*1024)
	buf := make([]byte, 32*1024)
	var n int64
	for {
		c, err := br.Read(buf)
		for _, b := range buf[:c] {
			if b == '\n' {
				n++
			}
		}
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return 0, eris.Wrapf(err, "manifest: read %s", path)
		}
	}
}
