package main

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"cthulhu/internal/archive"
	"cthulhu/internal/config"
	"cthulhu/internal/errcapture"
	"cthulhu/internal/gateway"
	"cthulhu/internal/store"
)

// app is the process-wide wiring shared by every command.
type app struct {
	cfg      *config.Config
	db       *sql.DB
	archive  archive.Repository
	notifier *errcapture.Notifier
	cronjob  *gateway.CronjobClient
	artemis  *gateway.ArtemisClient
	store    *store.Store
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	var notifierOpts []errcapture.NotifierOption
	if cfg.ArchivePath != "" {
		db, err := openArchive(cfg.ArchivePath)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.archive = archive.NewSQLiteRepo(db)
		notifierOpts = append(notifierOpts, errcapture.WithSink(a.archive))
	}

	a.notifier = errcapture.NewNotifier(cfg.Errors, cfg.Messages, notifierOpts...)
	hc := gateway.NewHTTPClient(errcapture.NewTransport(nil, a.notifier), cfg.HTTPTimeout)
	a.cronjob = gateway.NewCronjobClient(cfg.CronjobBase, hc)
	a.artemis = gateway.NewArtemisClient(cfg.ArtemisBase, hc)
	a.store = store.New(a.cronjob, cfg.StoreMode, cfg.Store)

	log.Debug().
		Str("cronjob", cfg.CronjobBase).
		Str("artemis", cfg.ArtemisBase).
		Str("store_mode", cfg.StoreMode.String()).
		Bool("archive", a.archive != nil).
		Msg("console wired")
	return a, nil
}

func openArchive(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite single writer
	if err := archive.EnsureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure archive schema: %w", err)
	}
	return db, nil
}

func (a *app) Close() {
	a.notifier.Close()
	if a.db != nil {
		_ = a.db.Close()
	}
}
