package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pushTrigger(ref string) Trigger {
	return Trigger{
		Kind: TriggerKindPush,
		Push: &PushTrigger{Ref: ref, NewSha: "abc123"},
	}
}

func prTrigger(action, target string) Trigger {
	return Trigger{
		Kind: TriggerKindPullRequest,
		PullRequest: &PullRequestTrigger{
			Action:       action,
			SourceBranch: "feature",
			TargetBranch: target,
			SourceSha:    "abc123",
		},
	}
}

func manualTrigger() Trigger {
	return Trigger{
		Kind:   TriggerKindManual,
		Manual: &ManualTrigger{},
	}
}

func TestFromFile(t *testing.T) {
	contents := []byte(`
when:
  - event: ["push", "pull_request"]
    branch: master
  - event: pull_request
    action: ["opened", "synchronized", "reopened"]

image: python:3.7-slim

dependencies:
  apt:
    - make
  pypi:
    - virtualenv

environment:
  CI: "true"

steps:
  - name: install
    command: pip install -r requirements.txt
  - name: build
    command: make all
  - name: check
    command: make check
`)

	wf, err := FromFile("ci.yml", contents)
	require.NoError(t, err)

	assert.Equal(t, "ci.yml", wf.Name)
	assert.Equal(t, "python:3.7-slim", wf.Image)
	assert.Len(t, wf.When, 2)
	assert.Equal(t, StringList{"push", "pull_request"}, wf.When[0].Event)
	assert.Equal(t, StringList{"master"}, wf.When[0].Branch)
	assert.Equal(t, StringList{"opened", "synchronized", "reopened"}, wf.When[1].Action)
	assert.Equal(t, []string{"make"}, wf.Dependencies["apt"])
	assert.Equal(t, "true", wf.Environment["CI"])

	require.Len(t, wf.Steps, 3)
	assert.Equal(t, "install", wf.Steps[0].Name)
	assert.Equal(t, "make all", wf.Steps[1].Command)
	assert.Equal(t, "make check", wf.Steps[2].Command)
}

func TestFromFileUnknownKeys(t *testing.T) {
	// a misspelled top-level key is a schema error
	_, err := FromFile("wf.yml", []byte(`
enviroment:
  CI: "true"
steps:
  - command: make all
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enviroment")

	// same for keys inside a step
	_, err = FromFile("wf.yml", []byte(`
steps:
  - comand: make all
`))
	require.Error(t, err)
}

func TestFromFileEmpty(t *testing.T) {
	wf, err := FromFile("empty.yml", nil)
	require.NoError(t, err)
	assert.Empty(t, wf.Steps)
}

func TestMatchPush(t *testing.T) {
	wf := Workflow{
		When: []Constraint{
			{Event: StringList{"push"}, Branch: StringList{"master"}},
		},
	}

	assert.True(t, wf.Match(pushTrigger("refs/heads/master")))
	assert.False(t, wf.Match(pushTrigger("refs/heads/develop")))

	// tag pushes never satisfy a branch filter
	assert.False(t, wf.Match(pushTrigger("refs/tags/v1.0.0")))
}

func TestMatchPushNoBranchFilter(t *testing.T) {
	wf := Workflow{
		When: []Constraint{
			{Event: StringList{"push"}},
		},
	}

	assert.True(t, wf.Match(pushTrigger("refs/heads/master")))
	assert.True(t, wf.Match(pushTrigger("refs/heads/anything")))
}

func TestMatchPullRequest(t *testing.T) {
	wf := Workflow{
		When: []Constraint{
			{
				Event:  StringList{"pull_request"},
				Branch: StringList{"master"},
				Action: StringList{PullRequestOpened, PullRequestSynchronized, PullRequestReopened},
			},
		},
	}

	assert.True(t, wf.Match(prTrigger(PullRequestOpened, "master")))
	assert.True(t, wf.Match(prTrigger(PullRequestSynchronized, "master")))
	assert.True(t, wf.Match(prTrigger(PullRequestReopened, "master")))

	assert.False(t, wf.Match(prTrigger("closed", "master")))
	assert.False(t, wf.Match(prTrigger(PullRequestOpened, "develop")))

	// PR workflows don't fire on pushes
	assert.False(t, wf.Match(pushTrigger("refs/heads/master")))
}

func TestMatchEventMismatch(t *testing.T) {
	wf := Workflow{
		When: []Constraint{
			{Event: StringList{"push"}},
		},
	}

	assert.False(t, wf.Match(prTrigger(PullRequestOpened, "master")))
}

func TestMatchManualAlwaysRuns(t *testing.T) {
	constrained := Workflow{
		When: []Constraint{
			{Event: StringList{"push"}, Branch: StringList{"master"}},
		},
	}
	unconstrained := Workflow{}

	assert.True(t, constrained.Match(manualTrigger()))
	assert.True(t, unconstrained.Match(manualTrigger()))
}

func TestMatchNoConstraints(t *testing.T) {
	wf := Workflow{}

	assert.True(t, wf.Match(pushTrigger("refs/heads/anything")))
	assert.True(t, wf.Match(prTrigger(PullRequestOpened, "master")))
}

func TestMatchAnyConstraint(t *testing.T) {
	// constraints are OR'd: one match is enough
	wf := Workflow{
		When: []Constraint{
			{Event: StringList{"push"}, Branch: StringList{"master"}},
			{Event: StringList{"pull_request"}},
		},
	}

	assert.True(t, wf.Match(pushTrigger("refs/heads/master")))
	assert.True(t, wf.Match(prTrigger(PullRequestOpened, "anywhere")))
	assert.False(t, wf.Match(pushTrigger("refs/heads/develop")))
}

func TestStringListScalarOrSequence(t *testing.T) {
	scalar := []byte(`
when:
  - event: push
    branch: master
`)
	wf, err := FromFile("wf.yml", scalar)
	require.NoError(t, err)
	assert.Equal(t, StringList{"push"}, wf.When[0].Event)
	assert.Equal(t, StringList{"master"}, wf.When[0].Branch)

	sequence := []byte(`
when:
  - event: [push, pull_request]
`)
	wf, err = FromFile("wf.yml", sequence)
	require.NoError(t, err)
	assert.Equal(t, StringList{"push", "pull_request"}, wf.When[0].Event)

	bad := []byte(`
when:
  - event: [push, 42]
`)
	_, err = FromFile("wf.yml", bad)
	assert.Error(t, err)
}
