package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/securecookie"
	flags "github.com/jessevdk/go-flags"
	"github.com/yusufkecer/auth-backend/internal/config"
	"github.com/yusufkecer/auth-backend/internal/db"
	"github.com/yusufkecer/auth-backend/internal/handler"
	"github.com/yusufkecer/auth-backend/internal/middleware"
	"github.com/yusufkecer/auth-backend/internal/repository"
	"github.com/yusufkecer/auth-backend/internal/repository/memory"
	"github.com/yusufkecer/auth-backend/internal/scheduler"
	"github.com/yusufkecer/auth-backend/internal/service"
	"github.com/yusufkecer/auth-backend/internal/session"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			return nil
		}
		return err
	}

	if err := initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename)); err != nil {
		return err
	}
	defer logRotator.Close()

	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier, err := newNotifier(cfg)
	if err != nil {
		return err
	}

	sessionKey, err := keyOrRandom(cfg.SessionKey, 32)
	if err != nil {
		return fmt.Errorf("invalid session key: %w", err)
	}
	csrfKey, err := keyOrRandom(cfg.CSRFKey, 32)
	if err != nil {
		return fmt.Errorf("invalid csrf key: %w", err)
	}

	hasher := service.NewArgon2Hasher(service.Argon2Params{
		Memory:     cfg.Argon2Memory,
		Time:       cfg.Argon2Time,
		Threads:    cfg.Argon2Threads,
		SaltLength: 16,
		KeyLength:  32,
	})
	accounts := service.NewAccountService(store, hasher, notifier, cfg.BaseURL, cfg.ResetTokenTTL)

	// Rate limiters
	loginRL := middleware.NewRateLimiter(5, 15*time.Minute)
	forgotPasswordRL := middleware.NewRateLimiter(3, 60*time.Minute)

	housekeeping := scheduler.New(store.ResetRequests(), cfg.PurgeRetention, loginRL, forgotPasswordRL)
	if err := housekeeping.Start(cfg.PurgeSchedule); err != nil {
		return err
	}
	defer housekeeping.Stop()

	router := handler.NewRouter(handler.RouterConfig{
		Accounts:              accounts,
		Sessions:              session.NewManager(sessionKey, cfg.SecureCookies),
		JWTSecret:             cfg.JWTSecret,
		APIKey:                cfg.APIKey,
		AllowedOrigins:        cfg.AllowedOrigins,
		CSRFKey:               csrfKey,
		DisableCSRF:           cfg.DisableCSRF,
		SecureCookies:         cfg.SecureCookies,
		LoginLimiter:          loginRL,
		ForgotPasswordLimiter: forgotPasswordRL,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errC := make(chan error, 1)
	go func() {
		log.Infof("Server starting on %v (%v store)", srv.Addr, cfg.DBDriver)
		errC <- srv.ListenAndServe()
	}()

	select {
	case err := <-errC:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// openStore connects the configured database and runs its migrations. The
// memory driver keeps everything in process.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, func(), error) {
	if cfg.DBDriver == config.DriverMemory {
		log.Warnf("Using the in-memory store; data is lost on restart")
		return memory.New(), func() {}, nil
	}

	database, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	closeDB := func() {
		if err := database.Close(); err != nil {
			log.Errorf("Failed to close database: %v", err)
		}
	}

	if err := db.RunMigrations(ctx, database, cfg.DBDriver); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("migrations failed: %w", err)
	}

	store, err := repository.NewSQLStore(database, cfg.DBDriver)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return store, closeDB, nil
}

func newNotifier(cfg *config.Config) (service.Notifier, error) {
	if cfg.SMTPHost == "" {
		log.Infof("SMTP is not configured; reset links are logged")
		return service.LogNotifier{}, nil
	}
	return service.NewEmailService(service.SMTPConfig{
		Host:       cfg.SMTPHost,
		Port:       cfg.SMTPPort,
		User:       cfg.SMTPUser,
		Password:   cfg.SMTPPass,
		From:       cfg.SMTPFrom,
		SkipVerify: cfg.SMTPSkipVerify,
	})
}

// keyOrRandom decodes a hex key or, when none is configured, generates a
// random one. Random keys do not survive a restart.
func keyOrRandom(hexKey string, size int) ([]byte, error) {
	if hexKey == "" {
		log.Warnf("No key configured; generating a random %v byte key", size)
		return securecookie.GenerateRandomKey(size), nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, err
	}
	if len(key) != size {
		return nil, fmt.Errorf("want %v bytes, got %v", size, len(key))
	}
	return key, nil
}
