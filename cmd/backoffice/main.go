package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/childcare-backoffice/internal/application"
	"github.com/example/childcare-backoffice/internal/billing"
	"github.com/example/childcare-backoffice/internal/config"
	httptransport "github.com/example/childcare-backoffice/internal/http"
	"github.com/example/childcare-backoffice/internal/logging"
	"github.com/example/childcare-backoffice/internal/persistence/sqlite"
	"github.com/example/childcare-backoffice/internal/storeadapter"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "hash-token" {
		if err := hashToken(args[1:], stdin, stdout, application.DefaultArgon2idParams); err != nil {
			fmt.Fprintf(stderr, "hash-token: %v\n", err)
			return 1
		}
		return 0
	}
	if len(args) > 0 {
		fmt.Fprintf(stderr, "unknown command %q (usage: backoffice [hash-token [TOKEN]])\n", args[0])
		return 2
	}

	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	logger := logging.New(stdout, logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("server encountered error", "error", err)
		return 1
	}
	return 0
}

// hashToken prints the argon2id hash to place in BACKOFFICE_API_TOKEN_HASH.
// The token comes from the first argument, or the first line of stdin.
func hashToken(args []string, stdin io.Reader, stdout io.Writer, params application.Argon2idParams) error {
	var token string
	if len(args) > 0 {
		token = args[0]
	} else {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read token: %w", err)
		}
		token = line
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token must not be empty")
	}

	hash, err := application.CreateTokenHash(token, params)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, hash)
	return err
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, err := sqlite.OpenStore(ctx, sqlite.Config{Path: cfg.SQLitePath, BusyTimeout: cfg.BusyTimeout, MaxOpenConns: 4})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	handler, err := buildHandler(store, cfg, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("back-office API listening", "addr", server.Addr, "sqlite_path", cfg.SQLitePath)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// buildHandler wires every service over store and wraps the router with
// request logging and bearer-token authentication.
func buildHandler(store *sqlite.Store, cfg config.Config, logger *slog.Logger) (http.Handler, error) {
	formatter, err := billing.NewFormatter(cfg.Locale, cfg.Currency)
	if err != nil {
		return nil, fmt.Errorf("currency formatter: %w", err)
	}

	repos := storeadapter.New(store)
	idGenerator := uuid.NewString
	now := time.Now

	catalogService := application.NewCatalogServiceWithLogger(repos.Families, repos.Services, repos.Rules, idGenerator, now, logger)
	ruleService := application.NewRuleServiceWithLogger(repos.Rules, repos.Services, repos.Children, idGenerator, now, logger)
	scheduleService := application.NewScheduleServiceWithLogger(repos.Rules, repos.Services, repos.Sessions, repos.Blackouts, idGenerator, now, logger)
	sessionService := application.NewSessionServiceWithLogger(repos.Sessions, repos.Services, repos.Children, idGenerator, now, logger)
	billingService := application.NewBillingServiceWithLogger(repos.Sessions, repos.Services, repos.Expenses, formatter, logger)
	expenseService := application.NewExpenseServiceWithLogger(repos.Expenses, idGenerator, now, logger)
	blackoutService := application.NewBlackoutServiceWithLogger(repos.Blackouts, idGenerator, now, logger)
	paymentService := application.NewPaymentServiceWithLogger(repos.Payments, billingService, idGenerator, now, logger)

	authenticator := application.NewTokenAuthenticator(cfg.APITokenHash, application.VerifyToken, logger)

	return httptransport.NewRouter(httptransport.RouterConfig{
		Catalog:   httptransport.NewCatalogHandler(catalogService, logger),
		Rules:     httptransport.NewRuleHandler(ruleService, logger),
		Schedules: httptransport.NewScheduleHandler(scheduleService, logger),
		Sessions:  httptransport.NewSessionHandler(sessionService, logger),
		Billing:   httptransport.NewBillingHandler(billingService, expenseService, logger),
		Blackouts: httptransport.NewBlackoutHandler(blackoutService, logger),
		Payments:  httptransport.NewPaymentHandler(paymentService, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
			httptransport.RequireSession(authenticator, logger),
		},
	}), nil
}
