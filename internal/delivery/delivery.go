// Package delivery ships finished artifacts and their manifests to a
// downstream drop, and announces them.
package delivery

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/cpm-tools/corvil-extract/internal/config"
)

// Publisher uploads local files to a remote destination.
type Publisher interface {
	Publish(ctx context.Context, files []string) error
}

// Nop publishes nothing. It backs delivery.driver "none".
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, []string) error { return nil }

// FromConfig builds the publisher selected by cfg.
func FromConfig(cfg config.DeliveryConfig) (Publisher, error) {
	switch cfg.Driver {
	case "", "none":
		return Nop{}, nil
	case "ftp":
		return NewFTP(cfg.FTP), nil
	case "s3":
		return NewObjectStore(cfg.S3)
	default:
		return nil, eris.Errorf("delivery: unknown driver %q", cfg.Driver)
	}
}
