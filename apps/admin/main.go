package main

import (
	"context"
	"log"
	"os"

	"github.com/nexaric/portal/core"
	"github.com/nexaric/portal/services/paymentapi"
	"github.com/nexaric/portal/storage/database"
	sqlxrepos "github.com/nexaric/portal/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	// set up DB
	errAndDie(database.CreateIfNotExist(context.Background(), conf))
	db, err := database.Open(conf)
	errAndDie(err)

	backend, err := paymentapi.NewClient(conf.Payment.APIBaseURL, conf.Payment.Timeout)
	errAndDie(err)

	// start CLI
	cli := commandLine{
		db:      db.DB,
		repo:    sqlxrepos.NewPaymentRepository(db),
		backend: backend,
		out:     os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
