package cmd

import (
	"context"
	"fmt"

	"github.com/bonosa/MarsLife/internal/config"
	"github.com/bonosa/MarsLife/internal/ledger"
	"github.com/bonosa/MarsLife/internal/storage"
	"go.uber.org/zap"
)

// openStore opens the ledger backend named by cfg.Backend.
func openStore(ctx context.Context, cfg config.LedgerConfig, logger *zap.Logger) (ledger.Store, error) {
	switch cfg.Backend {
	case "file":
		s, err := ledger.OpenFileStore(cfg.Path, cfg.FreeCredits, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := storage.OpenGormStore(cfg.Path, cfg.FreeCredits, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := storage.OpenPostgresStore(ctx, cfg.DSN, cfg.FreeCredits, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}
