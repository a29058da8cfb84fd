// Package server wires the account service together: database and
// migrations, the shared broker handler, the consumer workers and the HTTP
// API. It also owns startup and the ordered shutdown of those parts.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/accounts/internal/broker"
	"github.com/dmitrijs2005/accounts/internal/clock"
	"github.com/dmitrijs2005/accounts/internal/logging"
	"github.com/dmitrijs2005/accounts/internal/server/auth"
	"github.com/dmitrijs2005/accounts/internal/server/config"
	"github.com/dmitrijs2005/accounts/internal/server/httpapi"
	"github.com/dmitrijs2005/accounts/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/accounts/internal/server/services"
	"github.com/dmitrijs2005/accounts/internal/worker"
)

// Broker is the publishing side of the message broker as the app uses it.
type Broker interface {
	services.Publisher
	Connect(ctx context.Context) error
	Close() error
}

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	broker      Broker
	supervisor  *worker.Supervisor
	http        *httpapi.Server
}

// NewApp builds every component from c. Nothing connects until Run.
func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, slog.LevelInfo)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	clk := clock.Real()
	rm := repomanager.NewPostgresRepositoryManager()

	policy := broker.RetryPolicy{Attempts: c.ConnectAttempts, Backoff: c.ConnectBackoff}
	dialer := broker.AMQPDialer{URL: c.BrokerURL(), Heartbeat: c.BrokerHeartbeat}
	handler := broker.NewHandler(dialer, policy, clk, logger)

	access, err := auth.NewManager([]byte(c.SecretKey), c.SigningAlgorithm, c.AccessTokenValidityDuration, clk)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("access token manager: %w", err)
	}

	tokens := services.NewTokenService(db, rm, c.ActionTokenValidityDuration, clk, logger)
	users := services.NewUserService(db, rm, tokens, access, handler, c.PasswordSalt, clk, logger)

	var workers []*worker.Worker
	for _, q := range c.WatchedQueues {
		workers = append(workers, worker.New(worker.Config{
			Queue:              q,
			BaseURL:            c.BaseURL(q),
			Policy:             policy,
			ReconnectDelay:     c.ReconnectDelay,
			DeadLetterExchange: c.DeadLetterExchange,
		}, dialer, tokens, handler, clk, logger))
	}

	return &App{
		config:      c,
		logger:      logger,
		db:          db,
		repomanager: rm,
		broker:      handler,
		supervisor:  worker.NewSupervisor(workers, c.ReconnectDelay, clk, logger),
		http:        httpapi.NewServer(c.EndpointAddr, logger, users, access, c.AccessTokenValidityDuration),
	}, nil
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

// checkWatchedActions fails when a watched queue maps to an action missing
// from the catalog, since every message on it would be rejected.
func (app *App) checkWatchedActions(ctx context.Context) error {
	actions, err := app.repomanager.Actions(app.db).List(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(actions))
	for _, a := range actions {
		known[a.Action] = true
	}
	for _, w := range app.supervisor.Workers() {
		if !known[w.Action()] {
			return fmt.Errorf("queue %q maps to unknown action %q", w.Queue(), w.Action())
		}
		if app.config.BaseURL(w.Queue()) == "" {
			app.logger.Warn(ctx, "no base URL configured for queue", "queue", w.Queue())
		}
	}
	return nil
}

// Run starts the app and blocks until a signal arrives or a component fails.
// Shutdown stops the HTTP server first, then the workers, then the broker
// handler and finally the database.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	if err := app.start(ctx); err != nil {
		app.logger.Error(ctx, "startup failed", "error", err)
		return errors.Join(err, app.closeResources(ctx))
	}

	workersCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	workersDone := make(chan error, 1)
	go func() {
		err := app.supervisor.Run(workersCtx)
		if err != nil {
			app.logger.Error(ctx, "consumer workers failed", "error", err)
			cancelFunc()
		}
		workersDone <- err
	}()

	httpErr := app.http.Run(ctx)
	if httpErr != nil {
		app.logger.Error(ctx, "http server failed", "error", httpErr)
	}
	cancelFunc()

	app.logger.Info(ctx, "Stopping consumer workers...")
	app.supervisor.Stop()
	stopWorkers()
	workersErr := <-workersDone

	err := errors.Join(httpErr, workersErr, app.closeResources(ctx))
	app.logger.Info(ctx, "App stopped")
	return err
}

func (app *App) start(ctx context.Context) error {
	if err := app.repomanager.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	if err := app.checkWatchedActions(ctx); err != nil {
		return err
	}
	if err := app.broker.Connect(ctx); err != nil {
		return err
	}
	return nil
}

func (app *App) closeResources(ctx context.Context) error {
	var errs []error
	if err := app.broker.Close(); err != nil {
		errs = append(errs, fmt.Errorf("broker close: %w", err))
	}
	if err := app.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("db close: %w", err))
	}
	app.logger.Info(ctx, "Resources released")
	return errors.Join(errs...)
}
