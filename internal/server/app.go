// Package server initializes and runs the passport server: it wires the
// Postgres-backed user store, the SMTP notifier, and the authentication
// service together, runs schema migrations, and starts the HTTP API with
// graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/avezhov/passport/internal/logging"
	"github.com/avezhov/passport/internal/server/api"
	"github.com/avezhov/passport/internal/server/config"
	"github.com/avezhov/passport/internal/server/mail"
	"github.com/avezhov/passport/internal/server/migrations"
	"github.com/avezhov/passport/internal/server/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	userService *users.Service
}

func NewApp(c *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if err := runMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	notifier, err := mail.NewClient(c.SMTPHost, c.SMTPUser, c.SMTPPassword,
		c.MailAddress, c.MailName, c.SMTPSkipVerify)
	if err != nil {
		return nil, fmt.Errorf("mail client error: %w", err)
	}
	if !notifier.IsEnabled() {
		logger.Warn(context.Background(), "mail is disabled, outbound email will be dropped")
	}

	repo := users.NewPostgresRepository(db)
	us := users.NewService(repo, notifier, logger, c)

	return &App{config: c, logger: logger, db: db, userService: us}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := api.NewServer(app.config, app.logger, app.userService)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
