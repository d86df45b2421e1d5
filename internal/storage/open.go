package storage

import (
	"context"
	"errors"
	"strings"

	logx "quietq/pkg/logx"
)

// Open initializes the SQLite store, runs migrations and seeds the static
// catalogue. Settings defaults are written only when the row is missing.
func Open(ctx context.Context, cfg Config, defaults Settings, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage: path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	st, err := openSQLite(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := st.seed(ctx, defaults); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
