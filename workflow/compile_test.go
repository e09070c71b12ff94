package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, trigger Trigger, files ...RawWorkflow) (Plan, Diagnostics) {
	t.Helper()

	compiler := Compiler{Trigger: trigger}
	pipeline := compiler.Parse(files)
	plan := compiler.Compile(pipeline)

	return plan, compiler.Diagnostics
}

func TestCompileValidWorkflow(t *testing.T) {
	plan, diag := compile(t, pushTrigger("refs/heads/master"), RawWorkflow{
		Name: "ci.yml",
		Contents: []byte(`
when:
  - event: push
    branch: master
steps:
  - name: build
    command: make all
  - name: check
    command: make check
`),
	})

	assert.True(t, diag.IsEmpty())
	require.Len(t, plan.Workflows, 1)
	assert.Equal(t, "ci.yml", plan.Workflows[0].Name)
	require.Len(t, plan.Workflows[0].Steps, 2)
	assert.Equal(t, "make all", plan.Workflows[0].Steps[0].Command)
	assert.Equal(t, "make check", plan.Workflows[0].Steps[1].Command)
}

func TestCompileSkipsUnmatchedWorkflow(t *testing.T) {
	plan, diag := compile(t, pushTrigger("refs/heads/develop"), RawWorkflow{
		Name: "ci.yml",
		Contents: []byte(`
when:
  - event: push
    branch: master
steps:
  - command: make all
`),
	})

	assert.Empty(t, plan.Workflows)
	assert.False(t, diag.IsErr())
	require.Len(t, diag.Warnings, 1)
	assert.Equal(t, WorkflowSkipped, diag.Warnings[0].Type)
}

func TestCompileNoSteps(t *testing.T) {
	plan, diag := compile(t, manualTrigger(), RawWorkflow{
		Name:     "empty.yml",
		Contents: []byte(`image: alpine`),
	})

	assert.Empty(t, plan.Workflows)
	require.True(t, diag.IsErr())
	assert.ErrorIs(t, diag.Errors[0].Error, ErrNoSteps)
}

func TestCompileEmptyCommand(t *testing.T) {
	plan, diag := compile(t, manualTrigger(), RawWorkflow{
		Name: "blank.yml",
		Contents: []byte(`
steps:
  - name: ok
    command: make all
  - name: blank
    command: "   "
`),
	})

	assert.Empty(t, plan.Workflows)
	require.True(t, diag.IsErr())
	assert.ErrorIs(t, diag.Errors[0].Error, ErrEmptyCommand)
}

func TestCompileUnparseableYaml(t *testing.T) {
	plan, diag := compile(t, manualTrigger(), RawWorkflow{
		Name:     "broken.yml",
		Contents: []byte("steps: ["),
	})

	assert.Empty(t, plan.Workflows)
	assert.True(t, diag.IsErr())
	assert.Equal(t, "broken.yml", diag.Errors[0].Path)
}

func TestCompileMisspelledKey(t *testing.T) {
	plan, diag := compile(t, manualTrigger(), RawWorkflow{
		Name: "typo.yml",
		Contents: []byte(`
enviroment:
  CI: "true"
steps:
  - command: make all
`),
	})

	assert.Empty(t, plan.Workflows)
	require.True(t, diag.IsErr())
	assert.Equal(t, "typo.yml", diag.Errors[0].Path)
}

func TestCompileUnknownEventWarning(t *testing.T) {
	plan, diag := compile(t, manualTrigger(), RawWorkflow{
		Name: "typo.yml",
		Contents: []byte(`
when:
  - event: puhs
steps:
  - command: make all
`),
	})

	// manual triggers still run the workflow, but the typo is flagged
	require.Len(t, plan.Workflows, 1)
	require.Len(t, diag.Warnings, 1)
	assert.Equal(t, UnknownEvent, diag.Warnings[0].Type)
}

func TestCompileCloneConflicts(t *testing.T) {
	_, diag := compile(t, manualTrigger(), RawWorkflow{
		Name: "clone.yml",
		Contents: []byte(`
clone:
  skip: true
  depth: 5
  submodules: true
steps:
  - command: echo hi
`),
	})

	assert.False(t, diag.IsErr())
	require.Len(t, diag.Warnings, 2)
	for _, w := range diag.Warnings {
		assert.Equal(t, InvalidConfiguration, w.Type)
	}
}

func TestCompileBrokenSiblingDoesNotBlock(t *testing.T) {
	plan, diag := compile(t, manualTrigger(),
		RawWorkflow{
			Name:     "bad.yml",
			Contents: []byte(`image: alpine`),
		},
		RawWorkflow{
			Name: "good.yml",
			Contents: []byte(`
steps:
  - command: make check
`),
		},
	)

	require.Len(t, plan.Workflows, 1)
	assert.Equal(t, "good.yml", plan.Workflows[0].Name)
	assert.True(t, diag.IsErr())
}
