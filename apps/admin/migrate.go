package main

import (
	"github.com/trezcool/curricula/storage/database"
)

var gooseRunFunc = database.Run // mockable

func (cli *commandLine) migrate(args []string) error {
	db, err := cli.database()
	if err != nil {
		return err
	}
	return gooseRunFunc(args[0], db, args[1:]...)
}
