package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/nexaric/portal/core/payment"
)

var (
	readTokenFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db      *sql.DB
	repo    payment.Repository
	backend payment.Backend
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, ...) against the ledger database")
	fmt.Fprintln(cli.out, "  reconcile [-since 72h] [-payer ID] - list attempts whose verification failed")
	fmt.Fprintln(cli.out, "  verify -attempt ID -signature SIG - resubmit an attempt's payment for verification")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	reconcileCmd := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	reconcileCmd.SetOutput(cli.out)
	reconcileSince := reconcileCmd.Duration("since", 72*time.Hour, "How far back to look.")
	reconcilePayer := reconcileCmd.String("payer", "", "Only list this payer's attempts.")

	verifyCmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	verifyCmd.SetOutput(cli.out)
	verifyAttempt := verifyCmd.String("attempt", "", "The ledger attempt ID. The bearer token will be prompted next.")
	verifySignature := verifyCmd.String("signature", "", "The checkout signature reported for the payment.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "reconcile":
		if err := reconcileCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *reconcileSince <= 0 {
			reconcileCmd.Usage()
			return errHelp
		}
		return cli.reconcile(*reconcileSince, *reconcilePayer)

	case "verify":
		if err := verifyCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *verifyAttempt == "" || *verifySignature == "" {
			verifyCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter bearer token:")
		token, err := readTokenFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(token) == 0 {
			verifyCmd.Usage()
			return errHelp
		}
		return cli.verify(*verifyAttempt, *verifySignature, string(token))

	default:
		cli.printUsage()
		return errHelp
	}
}
