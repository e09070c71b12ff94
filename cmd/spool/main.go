package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	gogit "github.com/go-git/go-git/v5"
	"github.com/hpcloud/tail"
	"github.com/urfave/cli/v3"

	"spool.sh/core/config"
	"spool.sh/core/db"
	"spool.sh/core/engines/docker"
	"spool.sh/core/log"
	"spool.sh/core/models"
	"spool.sh/core/runner"
	"spool.sh/core/secrets"
	"spool.sh/core/workflow"
)

func main() {
	ctx := log.NewContext(context.Background(), "spool")

	cmd := &cli.Command{
		Name:  "spool",
		Usage: "run repository workflows locally",
		Commands: []*cli.Command{
			runCmd(),
			validateCmd(),
			historyCmd(),
			logsCmd(),
			secretCmd(),
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.FromContext(ctx).Error("fatal", "error", err)
		os.Exit(1)
	}
}

func triggerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "event", Value: "manual", Usage: "trigger event: push, pull_request or manual"},
		&cli.StringFlag{Name: "branch", Usage: "branch the event fired on (defaults to the checked out branch)"},
		&cli.StringFlag{Name: "ref", Usage: "full push ref, e.g. refs/tags/v1.0.0 (overrides --branch)"},
		&cli.StringFlag{Name: "sha", Usage: "commit sha (defaults to HEAD)"},
		&cli.StringFlag{Name: "action", Value: workflow.PullRequestOpened, Usage: "pull request activity: opened, synchronized or reopened"},
		&cli.StringFlag{Name: "target-branch", Usage: "pull request target branch (defaults to the remote default branch)"},
		&cli.StringFlag{Name: "repo-dir", Value: ".", Usage: "repository to run workflows for"},
	}
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "execute the workflows matching a trigger",
		Flags: triggerFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}

			trigger, err := buildTrigger(c)
			if err != nil {
				return err
			}

			plan, diag, err := compilePlan(c.String("repo-dir"), cfg.Runner.WorkflowDir, trigger)
			if err != nil {
				return err
			}
			printDiagnostics(diag)
			if diag.IsErr() {
				return cli.Exit("workflow validation failed", 1)
			}
			if len(plan.Workflows) == 0 {
				fmt.Println("no workflows matched the trigger")
				return nil
			}

			d, err := db.Make(cfg.Runner.DBPath)
			if err != nil {
				return err
			}
			defer d.Close()

			eng, err := docker.New(ctx, cfg)
			if err != nil {
				return err
			}

			mgr, err := secretsManager(ctx, cfg)
			if err != nil {
				return err
			}
			if s, ok := mgr.(secrets.Stopper); ok {
				defer s.Stop()
			}

			res, err := runner.New(ctx, cfg, d, eng, mgr).Run(ctx, *plan)
			if err != nil {
				return err
			}

			for _, w := range res.Workflows {
				fmt.Printf("%s\t%s\t%s\n", w.Id.Name, w.Status, models.LogFilePath(cfg.Runner.LogDir, w.Id))
			}

			if code := res.ExitCode(); code != 0 {
				return cli.Exit(fmt.Sprintf("pipeline failed with exit code %d", code), code)
			}
			return nil
		},
	}
}

func validateCmd() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "parse and validate workflow files without running them",
		Flags: triggerFlags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}

			trigger, err := buildTrigger(c)
			if err != nil {
				return err
			}

			plan, diag, err := compilePlan(c.String("repo-dir"), cfg.Runner.WorkflowDir, trigger)
			if err != nil {
				return err
			}
			printDiagnostics(diag)
			if diag.IsErr() {
				return cli.Exit("workflow validation failed", 1)
			}

			for _, wf := range plan.Workflows {
				fmt.Printf("%s: ok (%d steps)\n", wf.Name, len(wf.Steps))
			}
			return nil
		},
	}
}

func historyCmd() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "list past pipeline runs",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "cursor", Usage: "list runs started before this timestamp"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}

			d, err := db.Make(cfg.Runner.DBPath)
			if err != nil {
				return err
			}
			defer d.Close()

			pipelines, err := d.GetPipelines(c.String("cursor"))
			if err != nil {
				return err
			}

			for _, p := range pipelines {
				line := fmt.Sprintf("%s\t%s\t%s\t%s", p.Run, p.Repo, p.Status, humanize.Time(p.StartedAt))
				if p.Status == models.StatusKindFailed {
					line += fmt.Sprintf("\t(exit %d)", p.ExitCode)
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func logsCmd() *cli.Command {
	return &cli.Command{
		Name:      "logs",
		Usage:     "print the log of a workflow run",
		ArgsUsage: "<workflow-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "follow", Aliases: []string{"f"}, Usage: "keep the log open and stream new lines"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return cli.Exit("expected exactly one workflow id", 1)
			}

			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}

			path := filepath.Join(cfg.Runner.LogDir, c.Args().First()+".log")

			if !c.Bool("follow") {
				contents, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(contents)
				return err
			}

			t, err := tail.TailFile(path, tail.Config{Follow: true, ReOpen: true, MustExist: true})
			if err != nil {
				return err
			}
			defer t.Stop()

			for {
				select {
				case line, ok := <-t.Lines:
					if !ok {
						return nil
					}
					if line.Err != nil {
						return line.Err
					}
					fmt.Println(line.Text)
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
}

func secretCmd() *cli.Command {
	repoFlag := &cli.StringFlag{Name: "repo", Required: true, Usage: "repository the secret belongs to"}

	return &cli.Command{
		Name:  "secret",
		Usage: "manage workflow secrets",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "add a secret",
				Flags: []cli.Flag{
					repoFlag,
					&cli.StringFlag{Name: "key", Required: true},
					&cli.StringFlag{Name: "value", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withSecrets(ctx, func(mgr secrets.Manager) error {
						return mgr.AddSecret(ctx, secrets.UnlockedSecret{
							Key:       c.String("key"),
							Value:     c.String("value"),
							Repo:      c.String("repo"),
							CreatedBy: os.Getenv("USER"),
						})
					})
				},
			},
			{
				Name:  "rm",
				Usage: "remove a secret",
				Flags: []cli.Flag{
					repoFlag,
					&cli.StringFlag{Name: "key", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withSecrets(ctx, func(mgr secrets.Manager) error {
						return mgr.RemoveSecret(ctx, secrets.Secret[any]{
							Key:  c.String("key"),
							Repo: c.String("repo"),
						})
					})
				},
			},
			{
				Name:  "list",
				Usage: "list secret keys",
				Flags: []cli.Flag{repoFlag},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withSecrets(ctx, func(mgr secrets.Manager) error {
						locked, err := mgr.GetSecretsLocked(ctx, c.String("repo"))
						if err != nil {
							return err
						}
						for _, s := range locked {
							fmt.Printf("%s\t%s\t%s\n", s.Key, s.CreatedBy, humanize.Time(s.CreatedAt))
						}
						return nil
					})
				},
			},
		},
	}
}

func withSecrets(ctx context.Context, fn func(secrets.Manager) error) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	mgr, err := secretsManager(ctx, cfg)
	if err != nil {
		return err
	}
	if s, ok := mgr.(secrets.Stopper); ok {
		defer s.Stop()
	}

	return fn(mgr)
}

func secretsManager(ctx context.Context, cfg *config.Config) (secrets.Manager, error) {
	switch cfg.Secrets.Provider {
	case "sqlite":
		return secrets.NewSQLiteManager(cfg.Secrets.DBPath)
	case "openbao":
		return secrets.NewOpenBaoManager(
			cfg.Secrets.OpenBao.Addr,
			cfg.Secrets.OpenBao.RoleID,
			cfg.Secrets.OpenBao.SecretID,
			log.FromContext(ctx).With("component", "openbao"),
			secrets.WithMountPath(cfg.Secrets.OpenBao.Mount),
		)
	default:
		return nil, fmt.Errorf("unknown secrets provider: %s", cfg.Secrets.Provider)
	}
}

// compilePlan reads the repository's workflow files and compiles them
// against the trigger.
func compilePlan(repoDir, workflowDir string, trigger workflow.Trigger) (*workflow.Plan, workflow.Diagnostics, error) {
	raw, err := workflow.ReadDir(filepath.Join(repoDir, workflowDir))
	if err != nil {
		return nil, workflow.Diagnostics{}, err
	}

	compiler := workflow.Compiler{Trigger: trigger}
	pipeline := compiler.Parse(raw)
	plan := compiler.Compile(pipeline)

	return &plan, compiler.Diagnostics, nil
}

func printDiagnostics(diag workflow.Diagnostics) {
	for _, w := range diag.Warnings {
		fmt.Fprintln(os.Stderr, w.String())
	}
	for _, e := range diag.Errors {
		fmt.Fprintln(os.Stderr, e.String())
	}
}

// buildTrigger assembles the trigger from the flags, filling in the
// blanks from the repository's git state.
func buildTrigger(c *cli.Command) (workflow.Trigger, error) {
	repoDir := c.String("repo-dir")

	git, err := inspectRepo(repoDir)
	if err != nil {
		return workflow.Trigger{}, err
	}

	branch := c.String("branch")
	if branch == "" {
		branch = git.branch
	}
	sha := c.String("sha")
	if sha == "" {
		sha = git.sha
	}

	repo := &workflow.Repo{
		Name:          git.name,
		CloneURL:      git.remoteURL,
		DefaultBranch: git.branch,
	}

	switch workflow.TriggerKind(c.String("event")) {
	case workflow.TriggerKindPush:
		ref := c.String("ref")
		if ref == "" {
			ref = "refs/heads/" + branch
		}
		return workflow.Trigger{
			Kind: workflow.TriggerKindPush,
			Push: &workflow.PushTrigger{
				Ref:    ref,
				NewSha: sha,
			},
			Repo: repo,
		}, nil

	case workflow.TriggerKindPullRequest:
		target := c.String("target-branch")
		if target == "" {
			target = git.branch
		}
		return workflow.Trigger{
			Kind: workflow.TriggerKindPullRequest,
			PullRequest: &workflow.PullRequestTrigger{
				Action:       c.String("action"),
				SourceBranch: branch,
				TargetBranch: target,
				SourceSha:    sha,
			},
			Repo: repo,
		}, nil

	case workflow.TriggerKindManual:
		return workflow.Trigger{
			Kind:   workflow.TriggerKindManual,
			Manual: &workflow.ManualTrigger{},
			Repo:   repo,
		}, nil

	default:
		return workflow.Trigger{}, fmt.Errorf("unknown event: %s", c.String("event"))
	}
}

type repoInfo struct {
	name      string
	branch    string
	sha       string
	remoteURL string
}

func inspectRepo(dir string) (repoInfo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return repoInfo{}, err
	}

	info := repoInfo{name: filepath.Base(abs)}

	repo, err := gogit.PlainOpen(abs)
	if err != nil {
		// not a git repository; manual runs with clone.skip still work
		return info, nil
	}

	if head, err := repo.Head(); err == nil {
		info.sha = head.Hash().String()
		if head.Name().IsBranch() {
			info.branch = head.Name().Short()
		}
	}

	if remote, err := repo.Remote("origin"); err == nil {
		urls := remote.Config().URLs
		if len(urls) > 0 {
			info.remoteURL = urls[0]
		}
	}
	if info.remoteURL == "" {
		// fall back to the local path so in-container clones still work
		info.remoteURL = abs
	}

	if idx := strings.LastIndex(info.remoteURL, "/"); idx >= 0 && idx < len(info.remoteURL)-1 {
		info.name = strings.TrimSuffix(info.remoteURL[idx+1:], ".git")
	}

	return info, nil
}
