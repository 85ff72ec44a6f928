package main

import (
	"fmt"

	"github.com/trezcool/curricula/apps/api/echo"
)

func (cli *commandLine) token(subject, username string, roles []string) error {
	if username == "" {
		username = subject
	}
	token, err := echoapi.GenerateToken(cli.conf.SecretKey, echoapi.NewClaims(cli.conf, subject, username, roles...))
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}
