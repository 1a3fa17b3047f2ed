package runner

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Archive writes a gzip-compressed tar holding plain to target, then removes
// plain. The plain file is only removed once the archive is fully written.
func Archive(plain, target string) (err error) {
	zap.L().Info("Compressing file", zap.String("source", plain), zap.String("target", target))

	src, err := os.Open(plain)
	if err != nil {
		return eris.Wrapf(err, "runner: open %s", plain)
	}
	defer src.Close() //nolint:errcheck

	info, err := src.Stat()
	if err != nil {
		return eris.Wrapf(err, "runner: stat %s", plain)
	}

	out, err := os.Create(target)
	if err != nil {
		return eris.Wrapf(err, "runner: create %s", target)
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(target)
		}
	}()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return eris.Wrap(err, "runner: tar header")
	}
	hdr.Name = filepath.Base(plain)
	if err = tw.WriteHeader(hdr); err != nil {
		return eris.Wrap(err, "runner: write tar header")
	}
	if _, err = io.Copy(tw, src); err != nil {
		return eris.Wrapf(err, "runner: archive %s", plain)
	}
	if err = tw.Close(); err != nil {
		return eris.Wrap(err, "runner: close tar")
	}
	if err = gz.Close(); err != nil {
		return eris.Wrap(err, "runner: close gzip")
	}
	if err = out.Close(); err != nil {
		return eris.Wrapf(err, "runner: close %s", target)
	}

	zap.L().Info("Deleting uncompressed version", zap.String("path", plain))
	if err := os.Remove(plain); err != nil {
		return eris.Wrapf(err, "runner: remove %s", plain)
	}
	return nil
}
