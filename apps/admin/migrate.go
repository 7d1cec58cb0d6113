package main

import (
	"github.com/pressly/goose/v3"

	"github.com/mokykla/backend/storage/database"
)

var gooseRunFunc = goose.Run // mockable

func (cli *commandLine) migrate(args []string) error {
	command := "up"
	if len(args) > 0 {
		command = args[0]
	}
	if err := database.SetMigrationSource(); err != nil {
		return err
	}
	return gooseRunFunc(command, cli.db, "migrations", args[1:]...)
}
