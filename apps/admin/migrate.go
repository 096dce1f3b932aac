package main

import (
	"github.com/trezcool/goose"

	appfs "github.com/edusmart/assessment/fs"
)

var gooseRunFunc = goose.RunFS // mockable

func (cli *commandLine) migrate(args []string) error {
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	if err := gooseRunFunc(args[0], cli.db, appfs.FS, "migrations", arguments...); err != nil {
		return err
	}
	cli.success("migrate %s: done", args[0])
	return nil
}
