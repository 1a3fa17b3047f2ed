package delivery

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cpm-tools/corvil-extract/internal/config"
)

// objectPutter is the part of *minio.Client used for uploads.
type objectPutter interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// ObjectStore uploads files to an S3-compatible bucket.
type ObjectStore struct {
	client objectPutter
	bucket string
	prefix string
}

// NewObjectStore creates an ObjectStore publisher for cfg.
func NewObjectStore(cfg config.S3Config) (*ObjectStore, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, eris.Wrap(err, "delivery: minio client")
	}
	return &ObjectStore{client: cli, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Key is the object key for a local file.
func (o *ObjectStore) Key(local string) string {
	return path.Join(strings.Trim(o.prefix, "/"), filepath.Base(local))
}

// Publish implements Publisher.
func (o *ObjectStore) Publish(ctx context.Context, files []string) error {
	for _, p := range files {
		if err := o.put(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (o *ObjectStore) put(ctx context.Context, local string) error {
	f, err := os.Open(local)
	if err != nil {
		return eris.Wrapf(err, "delivery: open %s", local)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return eris.Wrapf(err, "delivery: stat %s", local)
	}

	opts := minio.PutObjectOptions{ContentType: contentType(local)}
	key := o.Key(local)
	if _, err := o.client.PutObject(ctx, o.bucket, key, f, info.Size(), opts); err != nil {
		return eris.Wrapf(err, "delivery: put %s/%s", o.bucket, key)
	}
	zap.L().Info("s3: uploaded",
		zap.String("file", local),
		zap.String("bucket", o.bucket),
		zap.String("key", key),
		zap.Int64("size", info.Size()),
	)
	return nil
}

func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(name, ".csv"):
		return "text/csv"
	default:
		return "text/plain"
	}
}
