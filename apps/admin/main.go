package main

import (
	"context"
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/curricula/core"
	"github.com/trezcool/curricula/services/logger"
	"github.com/trezcool/curricula/services/tracing"
	"github.com/trezcool/curricula/storage/database"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	errAndDie(err)
	stopTracing, err := tracesvc.Setup(conf)
	errAndDie(err)

	var db *sqlx.DB
	cleanup := func() {
		if err := stopTracing(context.Background()); err != nil {
			logger.Printf("error: %s\n", err)
		}
		if db != nil {
			_ = db.Close()
		}
	}
	defer cleanup()

	// start CLI
	cli := commandLine{
		conf:   conf,
		logger: logsvc.NewConsoleLogger(logger, conf.Debug),
		out:    os.Stdout,
		openDB: func() (*sqlx.DB, error) {
			var err error
			if db, err = database.Open(conf.Database); err != nil {
				return nil, err
			}
			return db, nil
		},
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		cleanup()
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
