// Package app wires a workspace into a ready engine: config, database,
// migrations, notification sinks and logging.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/config"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/db"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/engine"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/migrate"
	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/notify"
)

// Runtime holds everything a command needs for one workspace.
type Runtime struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Dialect   db.Dialect
	Engine    engine.Engine
	Logger    zerolog.Logger
	// Applied is the number of migrations run while opening.
	Applied int

	stopNotify func()
}

// NewLogger builds the process logger from the log section of cfg.
func NewLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil || cfg.Log.Level == "" {
		level = zerolog.InfoLevel
	}
	if cfg.Log.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Init writes a crm.yml with a fresh JWT secret unless one already exists.
func Init(workspace string) (*config.Config, bool, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, false, err
	}
	if _, err := os.Stat(config.Path(workspace)); err == nil {
		cfg, err := config.FromFile(config.Path(workspace))
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return nil, false, err
	}
	cfg := config.Default()
	cfg.Auth.JWTSecret = strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	if err := config.Write(workspace, cfg); err != nil {
		return nil, false, fmt.Errorf("write config: %w", err)
	}
	return cfg, true, nil
}

// Open loads config (file, then v overrides), opens and migrates the
// database and builds the engine with its notification sinks.
func Open(ctx context.Context, workspace string, v *viper.Viper, logOut io.Writer) (*Runtime, error) {
	cfg, err := config.Load(workspace, v)
	if err != nil {
		return nil, err
	}
	logger := NewLogger(cfg, logOut)
	dbCfg := db.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN, Workspace: workspace}
	conn, err := db.Open(dbCfg)
	if err != nil {
		return nil, err
	}
	applied, err := migrate.Migrate(conn, dbCfg.Dialect())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if applied > 0 {
		logger.Debug().Int("applied", applied).Msg("migrations applied")
	}
	sink, stop, err := notify.Build(ctx, cfg, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	e := engine.New(conn, dbCfg.Dialect(), cfg)
	e.Sink = sink
	e.Log = logger.With().Str("component", "engine").Logger()
	return &Runtime{
		Workspace:  workspace,
		Config:     cfg,
		DB:         conn,
		Dialect:    dbCfg.Dialect(),
		Engine:     e,
		Logger:     logger,
		Applied:    applied,
		stopNotify: stop,
	}, nil
}

// Actor resolves a username into the acting principal.
func (r *Runtime) Actor(ctx context.Context, username string) (domain.Actor, error) {
	if strings.TrimSpace(username) == "" {
		return domain.Actor{}, fmt.Errorf("--actor is required")
	}
	u, err := r.Engine.ResolveUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return domain.Actor{}, err
	}
	return u.Actor(), nil
}

// Close flushes notification sinks and closes the database.
func (r *Runtime) Close() error {
	if r.stopNotify != nil {
		r.stopNotify()
	}
	return r.DB.Close()
}
