// Package server wires configuration, storage, mail delivery, the account
// services and the gRPC transport into a runnable application.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/accountkeeper/internal/cryptox"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/auth"
	"github.com/dmitrijs2005/accountkeeper/internal/server/config"
	"github.com/dmitrijs2005/accountkeeper/internal/server/notify"
	"github.com/dmitrijs2005/accountkeeper/internal/server/observability"
	"github.com/dmitrijs2005/accountkeeper/internal/server/services"

	gs "github.com/dmitrijs2005/accountkeeper/internal/server/grpc"
)

const (
	shutdownTimeout = 10 * time.Second
	flushTimeout    = 2 * time.Second
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	reporter   observability.Reporter
	closeStore func() error
	dispatcher *notify.Dispatcher
	grpc       *gs.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	reporter, err := observability.NewSentryReporter(sentry.ClientOptions{
		Dsn:         c.SentryDSN,
		Environment: c.SentryEnvironment,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry init error: %w", err)
	}

	store, closeStore, err := OpenStore(ctx, c.DatabaseDSN, true)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	notifier, err := notify.NewNotifier(ctx, c, logger)
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("mail init error: %w", err)
	}
	dispatcher := notify.NewDispatcher(notifier, logger, reporter, c.MailWorkers, c.MailQueueSize, c.MailSendTimeout)
	mailer := notify.NewMailer(notify.NewTemplates(), dispatcher, logger, reporter)

	issuer := auth.NewIssuer([]byte(c.SecretKey), c.AccessTokenValidityDuration)
	ledger := services.NewRefreshTokenLedger(store, c.RefreshTokenValidityDuration, logger,
		services.WithChainRevocation(c.RevokeChainOnReuse))
	accounts := services.NewAccountService(store, cryptox.NewBcryptHasher(c.BcryptCost), issuer, ledger, mailer, c, logger, reporter)
	gate := services.NewGate(issuer, store)

	return &App{
		config:     c,
		logger:     logger,
		reporter:   reporter,
		closeStore: closeStore,
		dispatcher: dispatcher,
		grpc:       gs.NewGRPCServer(c.EndpointAddrGRPC, logger, accounts, gate, reporter),
	}, nil
}

// Run serves until ctx is cancelled or a termination signal arrives. The
// mail queue is drained as soon as serving stops; error reports are then
// flushed and the store closed.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...", "mail_transport", app.config.MailTransport)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.grpc.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.drainMail()
	})
	runErr := g.Wait()

	return errors.Join(runErr, app.shutdown())
}

func (app *App) drainMail() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.dispatcher.Close(ctx); err != nil {
		app.logger.Error(ctx, "mail queue not drained", "error", err.Error())
		return fmt.Errorf("mail drain error: %w", err)
	}
	return nil
}

func (app *App) shutdown() error {
	ctx := context.Background()

	var err error
	if !app.reporter.Flush(flushTimeout) {
		app.logger.Warn(ctx, "error reports not flushed")
	}
	if cerr := app.closeStore(); cerr != nil {
		err = fmt.Errorf("db close error: %w", cerr)
	}
	app.logger.Info(ctx, "App stopped")
	return err
}
