package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/curricula/apps/api/echo"
	"github.com/trezcool/curricula/core"
	"github.com/trezcool/curricula/services/api"
	"github.com/trezcool/curricula/tests"
)

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return &commandLine{
		conf: &core.Config{
			AppName:   "Curricula",
			SecretKey: "test-secret",
			Server:    core.ServerConfig{JWTExpirationDelta: time.Hour},
			Sync:      core.SyncConfig{Concurrency: 2},
		},
		logger: testutil.Logger(),
		out:    &out,
		openDB: func() (*sqlx.DB, error) { return testutil.OpenDB(t), nil },
	}, &out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func runCLI(t *testing.T, cli *commandLine, args ...string) error {
	t.Helper()
	return cli.run(append([]string{"admin"}, args...))
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	gooseRunFunc = func(command string, db *sqlx.DB, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runCLI(t, cli, tt.args...)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				require.Error(t, err)
				assert.Equal(t, tt.wantErrStr, err.Error())
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func Test_commandLine_token(t *testing.T) {
	cli, out := setup(t)

	assert.Equal(t, errHelp, runCLI(t, cli, "token"))

	require.NoError(t, runCLI(t, cli, "token", "-subject", "u1", "-roles", "teacher, admin"))
	claims := new(echoapi.Claims)
	token, err := jwt.ParseWithClaims(strings.TrimSpace(out.String()), claims, func(*jwt.Token) (interface{}, error) {
		return []byte(cli.conf.SecretKey), nil
	})
	require.NoError(t, err)
	assert.True(t, token.Valid)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "u1", claims.Username)
	assert.Equal(t, []string{"teacher", "admin"}, claims.Roles)
}

const outline = `
[[subject]]
name = "Math"

  [[subject.course]]
  name = "Algebra"

    [[subject.course.unit]]
    name = "Equations"
    topics = ["Linear", "Quadratic"]
`

func Test_commandLine_curriculum(t *testing.T) {
	cli, out := setup(t)
	file := filepath.Join(t.TempDir(), "outline.toml")
	require.NoError(t, os.WriteFile(file, []byte(outline), 0o600))

	tests := []cliTest{
		{name: "show: no args", args: []string{"show"}, wantErr: errHelp},
		{name: "import: no file", args: []string{"import", "-curriculum", "grade-9"}, wantErr: errHelp},
		{name: "paths: no topics", args: []string{"paths", "-topics", " , "}, wantErr: errHelp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, runCLI(t, cli, tt.args...))
		})
	}

	require.NoError(t, runCLI(t, cli, "create", "-name", "Grade 9"))
	assert.Contains(t, out.String(), "(grade-9)")
	err := runCLI(t, cli, "create", "-name", " ")
	assert.True(t, core.IsValidationError(err))

	out.Reset()
	require.NoError(t, runCLI(t, cli, "import", "-curriculum", "grade-9", "-file", file, "-dry-run"))
	assert.Contains(t, out.String(), "+        topic: Quadratic")
	out.Reset()
	require.NoError(t, runCLI(t, cli, "show", "-curriculum", "grade-9"))
	assert.Equal(t, "curriculum: Grade 9\n  subject: \n    course: \n      unit: \n        topic: \n", out.String(), "a dry run saves nothing")

	out.Reset()
	require.NoError(t, runCLI(t, cli, "import", "-curriculum", "grade-9", "-file", file, "-prune"))
	assert.Contains(t, out.String(), "succeeded: 5 created, 0 updated, 0 deleted, 0 skipped, 0 failed")
	// the next save has nothing to do
	out.Reset()
	require.NoError(t, runCLI(t, cli, "import", "-curriculum", "grade-9", "-file", file))
	assert.Equal(t, "nothing to change\n", out.String())

	h, err := cli.backend.GetHierarchy(context.Background(), "grade-9")
	require.NoError(t, err)
	require.Len(t, h.Subjects, 1)
	topics := h.Subjects[0].Children[0].Children[0].Children
	require.Len(t, topics, 2)
	quadratic := topics[0]
	if quadratic.Name != "Quadratic" {
		quadratic = topics[1]
	}

	out.Reset()
	require.NoError(t, runCLI(t, cli, "paths", "-topics", quadratic.ID+",nope"))
	assert.Equal(t, quadratic.ID+": Grade 9 > Math > Algebra > Equations > Quadratic\nnope: (no path)\n", out.String())
}

func Test_commandLine_getBackend(t *testing.T) {
	cli, _ := setup(t)
	cli.conf.API = core.APIConfig{BaseURL: "http://localhost:8000/v1", Timeout: time.Second}

	readPasswordFunc = func(fd int) ([]byte, error) { return nil, errors.New("no tty") }
	_, err := cli.getBackend()
	assert.EqualError(t, err, "no tty")

	readPasswordFunc = func(fd int) ([]byte, error) { return nil, nil }
	_, err = cli.getBackend()
	assert.Equal(t, errHelp, err)

	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("token"), nil }
	backend, err := cli.getBackend()
	require.NoError(t, err)
	assert.IsType(t, &apisvc.Client{}, backend)
	assert.Nil(t, cli.db, "a remote backend needs no database")
}
