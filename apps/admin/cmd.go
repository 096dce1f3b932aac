package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/edusmart/assessment/core/attempt"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errHelp    = errors.New("help provided")
	errAborted = errors.New("aborted")
)

// attemptExpirer is the part of attempt.Service the CLI drives.
type attemptExpirer interface {
	ActiveAttempts(ctx context.Context) ([]attempt.Attempt, error)
	ExpireIfOver(ctx context.Context, attemptID string) (bool, error)
}

type commandLine struct {
	db         *sql.DB
	attemptSvc attemptExpirer
	in         io.Reader
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  expire -attempt ID     - complete the attempt if its time is up")
	fmt.Fprintln(cli.out, "  expire -all [-yes]     - complete every attempt whose time is up")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	expireCmd := flag.NewFlagSet("expire", flag.ContinueOnError)
	expireCmd.SetOutput(cli.out)
	expireAttempt := expireCmd.String("attempt", "", "The ID of the attempt to expire.")
	expireAll := expireCmd.Bool("all", false, "Expire every active attempt whose time is up.")
	expireYes := expireCmd.Bool("yes", false, "Do not ask for confirmation.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "expire":
		if err := expireCmd.Parse(args[2:]); err != nil {
			return err
		}
		switch {
		case *expireAttempt != "" && !*expireAll:
			return cli.expireAttempt(*expireAttempt)
		case *expireAll && *expireAttempt == "":
			if !*expireYes && isTerminalFunc(int(os.Stdin.Fd())) && !cli.confirm("Expire every attempt whose time is up?") {
				return errAborted
			}
			return cli.expireAll()
		default:
			expireCmd.Usage()
			return errHelp
		}
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) confirm(question string) bool {
	fmt.Fprintf(cli.out, "%s [y/N] ", question)
	var answer string
	if _, err := fmt.Fscanln(cli.in, &answer); err != nil {
		return false
	}
	return answer == "y" || answer == "Y" || answer == "yes"
}

func (cli *commandLine) success(format string, args ...interface{}) {
	_, _ = color.New(color.FgGreen).Fprintf(cli.out, format+"\n", args...)
}

func (cli *commandLine) notice(format string, args ...interface{}) {
	_, _ = color.New(color.FgYellow).Fprintf(cli.out, format+"\n", args...)
}

func (cli *commandLine) failure(format string, args ...interface{}) {
	_, _ = color.New(color.FgRed).Fprintf(cli.out, format+"\n", args...)
}
