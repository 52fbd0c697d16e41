package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fitk/internal/resilience"
	"github.com/sells-group/fitk/internal/store"
)

// initStore opens the configured fit store and applies its migration,
// retrying transient connection failures.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Store.ConnectAttempts
	retry.OnRetry = resilience.RetryLogger("open " + cfg.Store.Driver + " store")

	return resilience.DoVal(ctx, retry, func(ctx context.Context) (store.Store, error) {
		st, err := openStore(ctx)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close() //nolint:errcheck
			return nil, err
		}
		return st, nil
	})
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{MaxConns: cfg.Store.MaxConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
