package delivery

import (
	"context"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cpm-tools/corvil-extract/internal/config"
)

// ftpConn is the part of *ftp.ServerConn used for uploads.
type ftpConn interface {
	Login(user, password string) error
	ChangeDir(path string) error
	Stor(path string, r io.Reader) error
	Quit() error
}

type ftpDialFunc func(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error)

func dialFTP(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error) {
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// FTP uploads files to a directory on an FTP server.
type FTP struct {
	cfg  config.FTPConfig
	dial ftpDialFunc
}

// NewFTP creates an FTP publisher. A missing port defaults to 21.
func NewFTP(cfg config.FTPConfig) *FTP {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		cfg.Addr = net.JoinHostPort(cfg.Addr, "21")
	}
	if cfg.User == "" {
		cfg.User, cfg.Password = "anonymous", "anonymous@"
	}
	return &FTP{cfg: cfg, dial: dialFTP}
}

// Publish implements Publisher. Files are stored under their base names.
func (f *FTP) Publish(ctx context.Context, files []string) error {
	if len(files) == 0 {
		return nil
	}

	zap.L().Debug("ftp: connecting", zap.String("addr", f.cfg.Addr), zap.String("dir", f.cfg.Dir))
	conn, err := f.dial(ctx, f.cfg.Addr, f.cfg.Timeout)
	if err != nil {
		return eris.Wrap(err, "delivery: ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(f.cfg.User, f.cfg.Password); err != nil {
		return eris.Wrap(err, "delivery: ftp login")
	}
	if f.cfg.Dir != "" {
		if err := conn.ChangeDir(f.cfg.Dir); err != nil {
			return eris.Wrapf(err, "delivery: ftp cwd %s", f.cfg.Dir)
		}
	}

	for _, p := range files {
		if err := f.stor(conn, p); err != nil {
			return err
		}
	}
	return nil
}

func (f *FTP) stor(conn ftpConn, local string) error {
	file, err := os.Open(local)
	if err != nil {
		return eris.Wrapf(err, "delivery: open %s", local)
	}
	defer file.Close() //nolint:errcheck

	remote := filepath.Base(local)
	if err := conn.Stor(remote, file); err != nil {
		return eris.Wrapf(err, "delivery: ftp store %s", remote)
	}
	zap.L().Info("ftp: uploaded", zap.String("file", local), zap.String("remote", path.Join(f.cfg.Dir, remote)))
	return nil
}
