package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/trezcool/curricula/core/curriculum"
)

var errSaveIncomplete = errors.New("save incomplete")

func (cli *commandLine) service() (*curriculum.Service, error) {
	backend, err := cli.getBackend()
	if err != nil {
		return nil, err
	}
	return curriculum.NewService(backend, cli.logger, cli.conf.Sync.Concurrency), nil
}

func (cli *commandLine) create(name, description string) error {
	svc, err := cli.service()
	if err != nil {
		return err
	}
	cur, err := svc.CreateCurriculum(context.Background(), curriculum.NewCurriculum{Name: name, Description: description})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created curriculum %s (%s)\n", cur.ID, cur.Slug)
	return nil
}

func (cli *commandLine) show(curriculumID string) error {
	svc, err := cli.service()
	if err != nil {
		return err
	}
	sess, err := svc.Open(context.Background(), curriculumID)
	if err != nil {
		return err
	}
	fmt.Fprint(cli.out, curriculum.RenderOutline(sess.Tree()))
	return nil
}

func (cli *commandLine) importOutline(curriculumID, path string, prune, dryRun bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	outline, err := curriculum.DecodeOutline(f)
	if err != nil {
		return err
	}

	svc, err := cli.service()
	if err != nil {
		return err
	}
	ctx := context.Background()
	sess, err := svc.Open(ctx, curriculumID)
	if err != nil {
		return err
	}
	if err = sess.ApplyOutline(outline, prune); err != nil {
		return err
	}

	preview, err := sess.Preview()
	if err != nil {
		return err
	}
	if preview == "" {
		fmt.Fprintln(cli.out, "nothing to change")
		return nil
	}
	fmt.Fprint(cli.out, preview)
	if dryRun {
		return nil
	}

	res, err := svc.Save(ctx, sess)
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, res.String())
	for _, failed := range res.Failures {
		fmt.Fprintf(cli.out, "  failed: %s: %v\n", failed.Change, failed.Err)
	}
	if res.Outcome != curriculum.SaveSucceeded {
		return errors.Wrapf(errSaveIncomplete, "%d operations failed", len(res.Failures))
	}
	return nil
}

func (cli *commandLine) paths(topicIDs []string) error {
	backend, err := cli.getBackend()
	if err != nil {
		return err
	}
	paths, err := curriculum.NewLoader(backend, cli.logger).Resolve(context.Background(), topicIDs...)
	if err != nil {
		return err
	}
	for _, id := range topicIDs {
		if p, ok := paths[id]; ok {
			fmt.Fprintf(cli.out, "%s: %s\n", id, p)
		} else {
			fmt.Fprintf(cli.out, "%s: (no path)\n", id)
		}
	}
	return nil
}
