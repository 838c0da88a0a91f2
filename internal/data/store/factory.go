package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/akolanti/MedExtract/internal/config"
	"github.com/akolanti/MedExtract/internal/domain/jobModel"
)

// NewBatchStore builds the store named by STORE_BACKEND. An unreachable redis falls back
// to memory when FALLBACK_REDIS_TO_INMEMORY is set.
func NewBatchStore(ctx context.Context, settings config.Settings) (jobModel.BatchStore, error) {
	switch settings.StoreBackend {
	case "memory":
		return InitInMemoryBatchStore(), nil
	case "sql":
		if settings.DatabaseURL == "" {
			return nil, errors.New("STORE_BACKEND=sql needs DATABASE_URL")
		}
		return OpenSQLBatchStore(ctx, settings.DatabaseURL)
	case "redis", "":
		if s := GetRedisBatchStore(ctx); s != nil {
			return s, nil
		}
		if config.FALLBACK_REDIS_TO_INMEMORY {
			inMemLogger.Warn("redis unavailable, falling back to the in-memory batch store")
			return InitInMemoryBatchStore(), nil
		}
		return nil, errors.New("redis unavailable")
	default:
		return nil, fmt.Errorf("unknown store backend %q", settings.StoreBackend)
	}
}
