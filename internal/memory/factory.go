package memory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/babelcloud/voicepilot/config"
	"github.com/babelcloud/voicepilot/pkg/logger"
)

// New builds the configured backend and wraps it in a Guard. Any backend that
// can't be constructed degrades to Noop with a warning. The returned close
// func releases backend resources.
func New(ctx context.Context, cfg config.MemoryConfig, log *logger.Logger) (*Guard, func()) {
	backend := cfg.Backend
	if backend == "" {
		switch {
		case cfg.Mem0APIKey != "":
			backend = "mem0"
		case cfg.PostgresDSN != "":
			backend = "postgres"
		default:
			backend = "inmemory"
		}
	}

	sink, closeFn, err := build(ctx, backend, cfg, log)
	if err != nil {
		log.Warn("Memory backend %s unavailable, running without memory: %v", backend, err)
		return NewGuard(Noop{}, "none", log), func() {}
	}
	log.Info("Memory backend: %s", backend)
	return NewGuard(sink, backend, log), closeFn
}

func build(ctx context.Context, backend string, cfg config.MemoryConfig, log *logger.Logger) (Sink, func(), error) {
	switch backend {
	case "none", "noop":
		return Noop{}, func() {}, nil
	case "inmemory", "memory":
		return NewInMemory(cfg.HistoryLimit), func() {}, nil
	case "mem0":
		if cfg.Mem0APIKey == "" {
			return nil, nil, fmt.Errorf("MEM0_API_KEY not set")
		}
		return NewMem0(cfg.Mem0URL, cfg.Mem0APIKey, cfg.HistoryLimit, nil), func() {}, nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL not set")
		}
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		store, err := NewPostgres(ctx, pool, cfg.HistoryLimit, log)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown memory backend %q", backend)
	}
}
