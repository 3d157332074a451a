package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goliatone/go-print"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"

	authkit "github.com/goliatone/go-authkit"
	"github.com/goliatone/go-authkit/config"
	"github.com/goliatone/go-authkit/persistence"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	cfg, err := config.Load(os.Getenv("AUTHKIT_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}

	logger, err := authkit.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("============")
	fmt.Println(print.MaybeHighlightJSON(cfg))
	fmt.Println("============")

	ctx := context.Background()

	opts := persistence.Options{
		Type:        cfg.Database.Type,
		DSN:         cfg.Database.DSN,
		Debug:       cfg.Database.Debug,
		PingTimeout: cfg.Database.PingTimeout,
	}

	var db *bun.DB
	if cfg.Database.AutoMigrate {
		db, err = persistence.OpenMigrated(ctx, opts, authkit.GetMigrationsFS(), logger)
	} else {
		db, err = persistence.Open(ctx, opts)
	}
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	repo := authkit.NewRepositoryManager(db)
	repo.MustValidate()

	svc, err := newService(cfg, repo.Users(), logger)
	if err != nil {
		log.Fatal(err)
	}

	app := newApp(cfg, svc, logger)

	go func() {
		if err := app.Listen(cfg.Server.Address); err != nil {
			logger.Error("server stopped", "error", err)
		}
	}()

	sig := WaitExitSignal()
	logger.Info("shutting down", "signal", sig.String())

	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
