package server

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/repomanager"
)

// MemoryDSN selects the in-process store.
const MemoryDSN = "memory://"

// openPostgres is a seam for tests.
var openPostgres = func(ctx context.Context, dsn string) (postgresStore, error) {
	db, err := repomanager.OpenPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return repomanager.NewPostgresRepositoryManager(db), nil
}

type postgresStore interface {
	repomanager.RepositoryManager
	RunMigrations(ctx context.Context) error
	Close() error
}

// OpenStore returns the store named by dsn and a function releasing it.
// For PostgreSQL the embedded migrations are applied when migrate is set.
func OpenStore(ctx context.Context, dsn string, migrate bool) (repomanager.RepositoryManager, func() error, error) {
	if strings.HasPrefix(dsn, MemoryDSN) {
		return memory.NewStore(), func() error { return nil }, nil
	}

	store, err := openPostgres(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	if migrate {
		if err := store.RunMigrations(ctx); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
	}
	return store, store.Close, nil
}
