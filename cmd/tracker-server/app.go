package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/tracker/internal/config"
	"github.com/ehr/tracker/internal/domain/care"
	"github.com/ehr/tracker/internal/domain/subrecord"
	"github.com/ehr/tracker/internal/domain/transfer"
	"github.com/ehr/tracker/internal/platform/db"
)

// app holds the services shared by the server and the CLI commands.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	pool     *pgxpool.Pool
	care     *care.Service
	transfer *transfer.Service
}

// openApp wires the services over the storage selected by STORAGE.
func openApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var (
		careRepo care.Repository
		subsRepo subrecord.Repository
		tx       db.Transactor
	)
	if cfg.UsesPostgres() {
		if !db.ValidSchema(cfg.DBSchema) {
			return nil, fmt.Errorf("invalid DB_SCHEMA: %s", cfg.DBSchema)
		}
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		careRepo = care.NewRepo(pool)
		subsRepo = subrecord.NewRepo(pool)
		tx = db.NewTransactor(pool)
		logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")
	} else {
		careMem, subsMem := care.NewMemoryRepo(), subrecord.NewMemoryRepo()
		careRepo, subsRepo = careMem, subsMem
		tx = db.NewMemoryTransactor(careMem, subsMem)
		logger.Warn().Msg("using in-memory storage; data is lost on exit")
	}

	a.care = care.NewService(careRepo, subrecord.NewService(subsRepo), tx)
	a.care.SetDefaultCategory(cfg.DefaultCategory)
	a.transfer = transfer.NewService(a.care, logger)
	return a, nil
}

func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
