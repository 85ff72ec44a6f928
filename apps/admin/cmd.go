package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/curricula/core"
	"github.com/trezcool/curricula/core/curriculum"
	"github.com/trezcool/curricula/services/api"
	"github.com/trezcool/curricula/storage/database/sqlx"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf    *core.Config
	logger  core.Logger
	out     io.Writer
	openDB  func() (*sqlx.DB, error)
	db      *sqlx.DB
	backend curriculum.Backend
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  token -subject ID [-username NAME] [-roles admin,teacher] - print an API token")
	fmt.Fprintln(cli.out, "  create -name NAME [-description TEXT] - create a curriculum")
	fmt.Fprintln(cli.out, "  show -curriculum ID|SLUG - print the hierarchy of a curriculum")
	fmt.Fprintln(cli.out, "  import -curriculum ID|SLUG -file OUTLINE.toml [-prune] [-dry-run] - merge an outline into a curriculum and save it")
	fmt.Fprintln(cli.out, "  paths -topics ID[,ID...] - print the hierarchy path of topics")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	tokenCmd := flag.NewFlagSet("token", flag.ExitOnError)
	tokenSubject := tokenCmd.String("subject", "", "The id the token is issued to.")
	tokenUsername := tokenCmd.String("username", "", "The username carried by the token.")
	tokenRoles := tokenCmd.String("roles", "", "Comma separated roles, e.g. admin,teacher.")

	createCmd := flag.NewFlagSet("create", flag.ExitOnError)
	createName := createCmd.String("name", "", "The curriculum name.")
	createDesc := createCmd.String("description", "", "The curriculum description.")

	showCmd := flag.NewFlagSet("show", flag.ExitOnError)
	showCurriculum := showCmd.String("curriculum", "", "The curriculum id or slug.")

	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	importCurriculum := importCmd.String("curriculum", "", "The curriculum id or slug.")
	importFile := importCmd.String("file", "", "The TOML outline to merge.")
	importPrune := importCmd.Bool("prune", false, "Remove the nodes the outline does not list.")
	importDryRun := importCmd.Bool("dry-run", false, "Print the changes without saving them.")

	pathsCmd := flag.NewFlagSet("paths", flag.ExitOnError)
	pathsTopics := pathsCmd.String("topics", "", "Comma separated topic ids.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenSubject == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenSubject, *tokenUsername, core.SplitList(*tokenRoles))

	case "create":
		if err := createCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.create(*createName, *createDesc)

	case "show":
		if err := showCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *showCurriculum == "" {
			showCmd.Usage()
			return errHelp
		}
		return cli.show(*showCurriculum)

	case "import":
		if err := importCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *importCurriculum == "" || *importFile == "" {
			importCmd.Usage()
			return errHelp
		}
		return cli.importOutline(*importCurriculum, *importFile, *importPrune, *importDryRun)

	case "paths":
		if err := pathsCmd.Parse(args[2:]); err != nil {
			return err
		}
		topics := core.SplitList(*pathsTopics)
		if len(topics) == 0 {
			pathsCmd.Usage()
			return errHelp
		}
		return cli.paths(topics)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) database() (*sqlx.DB, error) {
	if cli.db == nil {
		db, err := cli.openDB()
		if err != nil {
			return nil, err
		}
		cli.db = db
	}
	return cli.db, nil
}

// getBackend returns the REST client when an API is configured, the local catalog otherwise.
// A missing API token is prompted for.
func (cli *commandLine) getBackend() (curriculum.Backend, error) {
	if cli.backend != nil {
		return cli.backend, nil
	}

	if cli.conf.API.BaseURL == "" {
		db, err := cli.database()
		if err != nil {
			return nil, err
		}
		cli.backend = curriculum.NewCatalog(sqlxrepos.NewCurriculumRepository(db), cli.logger)
		return cli.backend, nil
	}

	apiConf := cli.conf.API
	if apiConf.Token == "" {
		fmt.Fprint(cli.out, "Enter API token:")
		token, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return nil, err
		}
		if len(token) == 0 {
			return nil, errHelp
		}
		apiConf.Token = string(token)
	}
	cli.backend = apisvc.NewClient(apiConf, cli.conf.Sync.Concurrency, cli.logger)
	return cli.backend, nil
}
