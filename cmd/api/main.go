package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ovaphlow/pitchfork/service-account-go/internal/account"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-account-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-account-go/pkg/utilities"
)

const defaultAddr = "0.0.0.0:8431"

func main() {
	// load .env file if present so os.Getenv picks values from it
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	sugar := lg.Sugar()
	sugar.Info("starting service-account-go")

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, sugar); err != nil {
		sugar.Errorw("service stopped", "err", err)
		_ = lg.Sync()
		os.Exit(1)
	}
	sugar.Info("goodbye")
	_ = lg.Sync()
}

func run(ctx context.Context, sugar *zap.SugaredLogger) error {
	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	accounts := repo.NewAccountRepo(db)
	logins := repo.NewLoginLogRepo(db)
	if err := accounts.EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensure users table: %w", err)
	}
	if err := logins.EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensure login_logs table: %w", err)
	}

	cfg := account.ConfigFromEnv()
	hasher, err := account.NewHasher(cfg.HashAlgo, cfg.BcryptCost)
	if err != nil {
		return err
	}
	svc := account.NewService(accounts, hasher, sugar)
	verifier := account.NewVerifier(accounts, logins, hasher, sugar)

	created, err := svc.SeedSuperAdmin(ctx, cfg.SeedUsername, cfg.SeedPassword)
	if err != nil {
		return fmt.Errorf("seed super admin: %w", err)
	}
	if created {
		sugar.Infow("seeded super admin", "username", cfg.SeedUsername)
	}

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	ids := utilities.NewIDGenerator(utilities.NodeFromEnv())
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.New(sugar, db, ids, account.NewHandler(svc, verifier, sugar)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sugar.Infow("http server listening", "addr", addr, "hash_algo", cfg.HashAlgo)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sugar.Info("shutting down")
		// give a short grace period for in-flight requests
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
