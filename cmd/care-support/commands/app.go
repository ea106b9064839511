package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/aquarius1905/care-support/internal/api"
	"github.com/aquarius1905/care-support/internal/config"
	"github.com/aquarius1905/care-support/internal/db"
	"github.com/aquarius1905/care-support/internal/logging"
	"github.com/aquarius1905/care-support/internal/notify"
	"github.com/aquarius1905/care-support/internal/schedule"
	"github.com/aquarius1905/care-support/internal/session"
	"github.com/aquarius1905/care-support/internal/tokenstore"
)

// app holds the wired client shared by every command
type app struct {
	cfg     config.Config
	log     *slog.Logger
	closers []io.Closer
	storage tokenstore.Store
	session *session.Store
	client  *api.Client
}

func newApp(ctx context.Context, v *viper.Viper) (*app, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	logger, logFile, err := logging.OpenFile(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: logger, closers: []io.Closer{logFile}}

	storage, conn, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, err
	}
	if conn != nil {
		a.closers = append(a.closers, conn)
	}
	a.storage = storage

	a.session = session.New(storage, logger)
	a.client = api.NewClient(cfg.API.BaseURL, a.session,
		api.WithTimeout(cfg.API.Timeout),
		api.WithLogger(logger))

	logger.Debug("client configured",
		"base_url", cfg.API.BaseURL,
		"storage", cfg.Storage.Driver)
	return a, nil
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (tokenstore.Store, *sql.DB, error) {
	var conn *sql.DB
	var err error
	switch cfg.Driver {
	case config.DriverFile:
		store, err := tokenstore.NewFileStore(cfg.Path)
		return store, nil, err
	case config.DriverDuckDB:
		conn, err = db.Open(ctx, db.DriverDuckDB, cfg.Path)
	case config.DriverPostgres:
		conn, err = db.Open(ctx, db.DriverPostgres, cfg.DSN)
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, nil, err
	}

	store, err := tokenstore.NewSQLStore(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return store, conn, nil
}

// newSchedule returns a list reporting to n and to the log
func (a *app) newSchedule(n notify.Notifier) *schedule.List {
	notifier := notify.Multi{notify.Log{Logger: a.log}}
	if n != nil {
		notifier = append(notifier, n)
	}
	return schedule.NewList(a.client, a.session, notifier, schedule.WithLogger(a.log))
}

// ready restores the stored session and fails when there is none
func (a *app) ready(ctx context.Context) error {
	a.session.Initialize(ctx)
	if !a.session.IsAuthenticated() {
		return errors.New("not logged in: run `care-support login` first")
	}
	return nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
