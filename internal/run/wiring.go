package run

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/crossrank/crossrank/internal/config"
	"github.com/crossrank/crossrank/internal/metrics"
	"github.com/crossrank/crossrank/internal/source"
)

// BuildSource assembles the configured source chain: the base backend
// wrapped in a circuit breaker, with the panel cache outermost so hits
// never touch the backend. The returned cleanup releases any database
// pool and must be called when the source is no longer needed.
func BuildSource(ctx context.Context, cfg *config.Config, reg *metrics.Registry) (source.Source, func() error, error) {
	cleanup := func() error { return nil }

	var base source.Source
	switch cfg.Source.Kind {
	case "csv":
		base = source.NewCSV(cfg.Source.Path)
	case "xlsx":
		base = source.NewXLSX(cfg.Source.Path, cfg.Source.Sheet)
	case "postgres":
		db, err := source.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		cleanup = db.Close
		base = source.NewPostgres(db, cfg.Source.Table, cfg.Source.Factor, cfg.Source.Timeout())
	default:
		return nil, nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}

	src := source.Source(source.NewBreaker(base))

	if cfg.Cache.Enabled {
		cache := source.NewCacheFromConfig(cfg.Cache)
		if cache != nil {
			src = source.NewCached(src, cache, cfg.Cache.TTL(), cfg.Cache.Backend, reg)
			log.Debug().
				Str("backend", cfg.Cache.Backend).
				Dur("ttl", cfg.Cache.TTL()).
				Msg("Panel cache enabled")
		}
	}

	return src, cleanup, nil
}
