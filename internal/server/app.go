// Package server wires together configuration, storage, the session,
// group and routing services, and both transport listeners, then runs
// them until a shutdown signal arrives.
package server

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/kestrelchat/kestrel/internal/logging"
	"github.com/kestrelchat/kestrel/internal/server/auth"
	"github.com/kestrelchat/kestrel/internal/server/broadcast"
	"github.com/kestrelchat/kestrel/internal/server/config"
	"github.com/kestrelchat/kestrel/internal/server/groups"
	"github.com/kestrelchat/kestrel/internal/server/migrations"
	"github.com/kestrelchat/kestrel/internal/server/presence"
	"github.com/kestrelchat/kestrel/internal/server/repository/postgres"
	"github.com/kestrelchat/kestrel/internal/server/router"
	"github.com/kestrelchat/kestrel/internal/server/transport/command"
	"github.com/kestrelchat/kestrel/internal/server/transport/realtime"
)

const shutdownTimeout = 30 * time.Second

// App holds every long-lived component the server needs to run.
type App struct {
	config *config.Config
	log    logging.Logger

	db  *sql.DB
	bus broadcast.Bus

	auth     *auth.Manager
	groups   *groups.Service
	router   *router.Router
	presence *presence.Registry

	commandSrv  *command.Server
	realtimeSrv *realtime.Server
}

// NewApp builds the logger from an already-loaded cfg, connects to
// storage, runs migrations, and constructs every service. It does not start any listener; call Run
// for that.
func NewApp(cfg *config.Config) (*App, error) {
	zapLogger, err := logging.NewZapLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("server: logger init: %w", err)
	}
	log := logging.Logger(zapLogger)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("server: db open: %w", err)
	}
	if err := migrations.Run(db); err != nil {
		return nil, fmt.Errorf("server: migrations: %w", err)
	}

	masterKey, err := cfg.MasterKey()
	if err != nil {
		return nil, fmt.Errorf("server: master key: %w", err)
	}

	users := postgres.NewUsersRepository()
	sessions := postgres.NewSessionsRepository()
	sessionEvents := postgres.NewSessionEventsRepository()
	groupsRepo := postgres.NewGroupsRepository()
	members := postgres.NewGroupMembersRepository()
	invites := postgres.NewGroupInvitesRepository()
	privateMsgs := postgres.NewPrivateMessagesRepository()
	groupMsgs := postgres.NewGroupMessagesRepository()

	bus, err := newBus(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("server: broadcast bus: %w", err)
	}

	reg := presence.NewRegistry()
	authMgr := auth.NewManager(db, users, sessions, sessionEvents, log, cfg.SessionLifetime)
	groupsSvc := groups.NewService(db, groupsRepo, members, invites, users, log)
	r := router.NewRouter(db, users, members, privateMsgs, groupMsgs, reg, bus, masterKey, log)

	tlsConfig, err := loadTLSConfig(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("server: tls: %w", err)
	}

	commandSrv := command.NewServer(cfg.CommandAddr, tlsConfig, db, authMgr, groupsSvc, r, users, reg, log)
	realtimeSrv := realtime.NewServer(cfg.RealtimeAddr, authMgr, r, reg, log)

	return &App{
		config:      cfg,
		log:         log,
		db:          db,
		bus:         bus,
		auth:        authMgr,
		groups:      groupsSvc,
		router:      r,
		presence:    reg,
		commandSrv:  commandSrv,
		realtimeSrv: realtimeSrv,
	}, nil
}

// newBus wires a RedisBus when cfg.RedisURL is set, and the in-process
// LocalBus otherwise.
func newBus(cfg *config.Config, log logging.Logger) (broadcast.Bus, error) {
	if cfg.RedisURL == "" {
		return broadcast.NewLocalBus(), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return broadcast.NewRedisBus(redis.NewClient(opts), log), nil
}

// loadTLSConfig builds a tls.Config when TLS is enabled and its files
// are readable. A bad TLS configuration falls back to a plaintext
// transport with a loud warning, per policy for optional TLS.
func loadTLSConfig(cfg *config.Config, log logging.Logger) (*tls.Config, error) {
	if !cfg.TLSEnabled {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
	if err != nil {
		log.Warn(context.Background(), "server: TLS requested but cert/key failed to load, falling back to plaintext", "error", err)
		return nil, nil
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

// Run starts both transport listeners and the background session
// sweep, blocking until a shutdown signal arrives and every component
// has drained.
func (app *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app.log.Info(ctx, "starting kestrel server",
		"command_addr", app.config.CommandAddr, "realtime_addr", app.config.RealtimeAddr)

	go func() {
		if err := app.router.Run(ctx); err != nil && ctx.Err() == nil {
			app.log.Error(ctx, "router stopped unexpectedly", "error", err)
			cancel()
		}
	}()

	go func() {
		if err := app.commandSrv.Run(ctx); err != nil && ctx.Err() == nil {
			app.log.Error(ctx, "command server stopped unexpectedly", "error", err)
			cancel()
		}
	}()

	go func() {
		if err := app.realtimeSrv.Run(ctx); err != nil && ctx.Err() == nil {
			app.log.Error(ctx, "realtime server stopped unexpectedly", "error", err)
			cancel()
		}
	}()

	go app.runSweepLoop(ctx)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"transports": func(shutdownCtx context.Context) error {
				cancel()
				_ = app.commandSrv.Close()
				return nil
			},
			"broadcast-bus": func(shutdownCtx context.Context) error {
				return app.bus.Close()
			},
			"database": func(shutdownCtx context.Context) error {
				return app.db.Close()
			},
		},
	)

	exitCode := <-wait
	app.log.Info(ctx, "kestrel server exited", "exit_code", exitCode)
}

func (app *App) runSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(app.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := app.auth.Sweep(ctx); err != nil {
				app.log.Warn(ctx, "session sweep failed", "error", err)
			}
		}
	}
}
