package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dukex/goalgate/pkg/persistence"
	"github.com/dukex/goalgate/pkg/persistence/file"
	"github.com/dukex/goalgate/pkg/persistence/postgresql"
	"github.com/dukex/goalgate/pkg/persistence/redis"
)

var supportedPersistenceProviders = []string{"file", "redis", "rediss", "postgres", "postgresql"}

// NewPersistence opens the execution-record store named by databaseURL.
// A URL without a known scheme is treated as a directory path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.ExecutionRepository, error) {
	provider := parsePersistenceProvider(databaseURL)

	logger.InfoContext(ctx, "Opening execution store", "provider", provider)

	switch provider {
	case "redis", "rediss":
		store, err := redis.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return store, nil
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return store, nil
	default:
		root := strings.TrimPrefix(databaseURL, "file://")
		if root == "" {
			return nil, fmt.Errorf("database URL is empty")
		}

		if err := os.MkdirAll(root, 0750); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", root, err)
		}

		return file.NewPersistence(root), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.SplitN(databaseURL, "://", 2)
	if len(parts) < 2 {
		return "file"
	}

	for _, supported := range supportedPersistenceProviders {
		if parts[0] == supported {
			return parts[0]
		}
	}

	return "file"
}
