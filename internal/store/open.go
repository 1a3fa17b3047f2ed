package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/cpm-tools/corvil-extract/internal/config"
)

// Open connects to the ledger selected by cfg and applies its migration.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var st Store
	switch cfg.Driver {
	case "none":
		return Nop{}, nil
	case "postgres":
		pg, err := NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st = pg
	case "sqlite", "":
		sq, err := NewSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st = sq
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}
