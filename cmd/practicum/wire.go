package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/practicum-hub/practicum/internal/app"
	"github.com/practicum-hub/practicum/internal/platform/db"
	"github.com/practicum-hub/practicum/internal/registration"
	registrationhttp "github.com/practicum-hub/practicum/internal/registration/http"
	"github.com/practicum-hub/practicum/internal/registration/remote"
	"github.com/practicum-hub/practicum/internal/registration/storage"
)

// draftStorage is the configured backend plus its readiness probe and cleanup.
type draftStorage struct {
	storage registration.Storage
	check   app.HealthChecker
	close   func()
}

func openDraftStorage(ctx context.Context, cfg *app.Config, client redis.Cmdable) (draftStorage, error) {
	noop := func() {}
	switch cfg.DraftDriver {
	case app.DraftDriverMemory:
		return draftStorage{storage: storage.NewMemory(), close: noop}, nil
	case app.DraftDriverFile:
		fs, err := storage.NewFile(cfg.DraftDir)
		if err != nil {
			return draftStorage{}, err
		}
		return draftStorage{storage: fs, close: noop}, nil
	case app.DraftDriverRedis:
		return draftStorage{storage: storage.NewRedis(client, cfg.DraftTTL), close: noop}, nil
	case app.DraftDriverPostgres:
		pool, err := db.New(ctx, db.Options{DSN: cfg.PGDSN})
		if err != nil {
			return draftStorage{}, err
		}
		err = db.WithTx(ctx, pool, func(tx pgx.Tx) error {
			return storage.NewPostgres(tx, cfg.DraftTTL).EnsureSchema(ctx)
		})
		if err != nil {
			pool.Close()
			return draftStorage{}, err
		}
		return draftStorage{storage: storage.NewPostgres(pool, cfg.DraftTTL), check: pool.Ping, close: pool.Close}, nil
	default:
		return draftStorage{}, fmt.Errorf("unknown draft driver %q", cfg.DraftDriver)
	}
}

// newRegistry builds per-session wizards bound to the backend client.
func newRegistry(cfg *app.Config, drafts registration.Storage, backend *remote.Client, logger *slog.Logger) *registrationhttp.Registry {
	cityCfg, activityCfg, programCfg := cfg.CityLookup(), cfg.ActivityLookup(), cfg.ProgramLookup()
	submitter := registration.NewSubmitter(backend, logger)
	return registrationhttp.NewRegistry(func(ctx context.Context, sessionID string) *registration.Wizard {
		return registration.NewWizard(ctx, registration.WizardDeps{
			Store:          registration.NewDraftStore(drafts, registrationhttp.DraftKey(sessionID), logger),
			Submitter:      submitter,
			Logger:         logger.With(slog.String("session", sessionID)),
			Cities:         backend.SearchCities,
			ActivityCodes:  backend.SearchActivityCodes,
			CityConfig:     cityCfg,
			ActivityConfig: activityCfg,
		})
	}, func() *registration.ProgramPicker {
		return registration.NewProgramPicker(programCfg, backend.ListPrograms, logger)
	}, logger)
}
