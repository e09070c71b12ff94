package models

import (
	"fmt"
	"strings"

	"spool.sh/core/workflow"
)

type CloneStep struct {
	name     string
	kind     StepKind
	commands []string
}

func (s CloneStep) Name() string {
	return s.name
}

func (s CloneStep) Commands() []string {
	return s.commands
}

func (s CloneStep) Command() string {
	return strings.Join(s.commands, "\n")
}

func (s CloneStep) Environment() map[string]string {
	return nil
}

func (s CloneStep) Kind() StepKind {
	return s.kind
}

// BuildCloneStep generates git clone commands.
// The caller must ensure the current working directory is set to the desired
// workspace directory before executing these commands.
//
// The generated commands are:
// - git init
// - git remote add origin <url>
// - git fetch --depth=<d> --recurse-submodules=<yes|no> <sha>
// - git checkout FETCH_HEAD
//
// Supports all trigger types (push, PR, manual) and clone options.
func BuildCloneStep(wf workflow.Workflow, tr workflow.Trigger, dev bool) CloneStep {
	if wf.CloneOpts.Skip {
		return CloneStep{}
	}

	commitSHA, err := extractCommitSHA(tr)
	if err != nil {
		return CloneStep{
			kind:     StepKindSystem,
			name:     "Clone repository into workspace (error)",
			commands: []string{fmt.Sprintf("echo 'Failed to get clone info: %s' && exit 1", err.Error())},
		}
	}

	repoURL := buildRepoURL(tr, dev)
	fetchArgs := buildFetchArgs(wf.CloneOpts, commitSHA)

	return CloneStep{
		kind: StepKindSystem,
		name: "Clone repository into workspace",
		commands: []string{
			"git init",
			fmt.Sprintf("git remote add origin %s", repoURL),
			fmt.Sprintf("git fetch %s", strings.Join(fetchArgs, " ")),
			"git checkout FETCH_HEAD",
		},
	}
}

// extractCommitSHA extracts the commit SHA from trigger metadata based on trigger type
func extractCommitSHA(tr workflow.Trigger) (string, error) {
	switch tr.Kind {
	case workflow.TriggerKindPush:
		if tr.Push == nil {
			return "", fmt.Errorf("push trigger metadata is nil")
		}
		return tr.Push.NewSha, nil

	case workflow.TriggerKindPullRequest:
		if tr.PullRequest == nil {
			return "", fmt.Errorf("pull request trigger metadata is nil")
		}
		return tr.PullRequest.SourceSha, nil

	case workflow.TriggerKindManual:
		// manual triggers carry no SHA; fetch resolves the remote HEAD
		return "", nil

	default:
		return "", fmt.Errorf("unknown trigger kind: %s", tr.Kind)
	}
}

// buildRepoURL constructs the repository URL from trigger metadata
func buildRepoURL(tr workflow.Trigger, devMode bool) string {
	if tr.Repo == nil {
		return ""
	}

	url := tr.Repo.CloneURL

	// in dev mode, replace localhost with host.docker.internal for
	// container networking
	if devMode && strings.Contains(url, "localhost") {
		url = strings.ReplaceAll(url, "localhost", "host.docker.internal")
		url = strings.Replace(url, "https://", "http://", 1)
	}

	return url
}

// buildFetchArgs constructs the arguments for git fetch based on clone options
func buildFetchArgs(clone workflow.CloneOpts, sha string) []string {
	args := []string{}

	// default to a shallow fetch
	depth := clone.Depth
	if depth == 0 {
		depth = 1
	}
	args = append(args, fmt.Sprintf("--depth=%d", depth))

	if clone.IncludeSubmodules {
		args = append(args, "--recurse-submodules=yes")
	}

	args = append(args, "origin")
	if sha != "" {
		args = append(args, sha)
	}

	return args
}
