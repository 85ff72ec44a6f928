package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/curricula/apps/api/echo"
	"github.com/trezcool/curricula/core"
	"github.com/trezcool/curricula/core/curriculum"
	"github.com/trezcool/curricula/services/logger"
	"github.com/trezcool/curricula/services/tracing"
	"github.com/trezcool/curricula/storage/database"
	"github.com/trezcool/curricula/storage/database/sqlx"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Println("error:", err)
		os.Exit(1)
	}
}

func run() error {
	// =========================================================================
	// Set up Dependencies

	conf, err := core.NewConfig()
	if err != nil {
		return errors.Wrap(err, "loading config")
	}

	logger := logsvc.New(conf)
	if rl, ok := logger.(*logsvc.RollbarLogger); ok {
		rl.Enable(!conf.Debug)
		defer rl.Close()
	}

	stopTracing, err := tracesvc.Setup(conf)
	if err != nil {
		return errors.Wrap(err, "setting up tracing")
	}
	defer func() {
		if err := stopTracing(context.Background()); err != nil {
			logger.Error("stopping tracing", err)
		}
	}()

	db, err := database.Open(conf.Database)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()
	if err = database.Ping(context.Background(), db); err != nil {
		return errors.Wrap(err, "pinging database")
	}
	if err = database.Migrate(db); err != nil {
		return errors.Wrap(err, "migrating database")
	}

	catalog := curriculum.NewCatalog(sqlxrepos.NewCurriculumRepository(db), logger)

	// =========================================================================
	// Start API Service

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	server := echoapi.NewServer(&echoapi.Options{
		Conf:    conf,
		Logger:  logger,
		Catalog: catalog,
	})

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// =========================================================================
	// Shutdown

	select {
	case err = <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "server error")
		}
		return nil

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err = server.Stop(ctx); err != nil {
			return errors.Wrap(err, "could not stop server gracefully")
		}
	}
	return nil
}
