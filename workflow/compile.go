package workflow

import (
	"errors"
	"fmt"
	"strings"
)

type RawWorkflow struct {
	Name     string
	Contents []byte
}

type RawPipeline = []RawWorkflow

// Plan is a fully compiled pipeline: only the workflows selected by
// the trigger, validated and ready for an engine to execute.
type Plan struct {
	Trigger   Trigger
	Workflows []Workflow
}

type Compiler struct {
	Trigger     Trigger
	Diagnostics Diagnostics
}

type Diagnostics struct {
	Errors   []Error
	Warnings []Warning
}

func (d *Diagnostics) IsEmpty() bool {
	return len(d.Errors) == 0 && len(d.Warnings) == 0
}

func (d *Diagnostics) Combine(o Diagnostics) {
	d.Errors = append(d.Errors, o.Errors...)
	d.Warnings = append(d.Warnings, o.Warnings...)
}

func (d *Diagnostics) AddWarning(path string, kind WarningKind, reason string) {
	d.Warnings = append(d.Warnings, Warning{path, kind, reason})
}

func (d *Diagnostics) AddError(path string, err error) {
	d.Errors = append(d.Errors, Error{path, err})
}

func (d Diagnostics) IsErr() bool {
	return len(d.Errors) != 0
}

type Error struct {
	Path  string
	Error error
}

func (e Error) String() string {
	return fmt.Sprintf("error: %s: %s", e.Path, e.Error.Error())
}

type Warning struct {
	Path   string
	Type   WarningKind
	Reason string
}

func (w Warning) String() string {
	return fmt.Sprintf("warning: %s: %s: %s", w.Path, w.Type, w.Reason)
}

var (
	ErrNoSteps      = errors.New("workflow has no steps")
	ErrEmptyCommand = errors.New("step has an empty command")
)

type WarningKind string

var (
	WorkflowSkipped      WarningKind = "workflow skipped"
	InvalidConfiguration WarningKind = "invalid configuration"
	UnknownEvent         WarningKind = "unknown event"
)

func (compiler *Compiler) Parse(p RawPipeline) Pipeline {
	var pp Pipeline

	for _, w := range p {
		wf, err := FromFile(w.Name, w.Contents)
		if err != nil {
			compiler.Diagnostics.AddError(w.Name, err)
			continue
		}

		pp = append(pp, wf)
	}

	return pp
}

// Compile turns a repository's workflow files into an execution plan.
// Workflows that fail validation are dropped with an error; workflows
// that do not match the trigger are dropped with a warning. A broken
// workflow never prevents its siblings from compiling.
func (compiler *Compiler) Compile(p Pipeline) Plan {
	plan := Plan{
		Trigger: compiler.Trigger,
	}

	for _, wf := range p {
		cw := compiler.compileWorkflow(wf)

		if cw == nil {
			continue
		}

		plan.Workflows = append(plan.Workflows, *cw)
	}

	return plan
}

func (compiler *Compiler) compileWorkflow(w Workflow) *Workflow {
	if !w.Match(compiler.Trigger) {
		compiler.Diagnostics.AddWarning(
			w.Name,
			WorkflowSkipped,
			fmt.Sprintf("did not match trigger %s", compiler.Trigger.Kind),
		)
		return nil
	}

	compiler.analyzeConstraints(w)
	compiler.analyzeCloneOptions(w)

	if len(w.Steps) == 0 {
		compiler.Diagnostics.AddError(w.Name, ErrNoSteps)
		return nil
	}

	for i, s := range w.Steps {
		if strings.TrimSpace(s.Command) == "" {
			compiler.Diagnostics.AddError(w.Name, fmt.Errorf("%w: step %d (%s)", ErrEmptyCommand, i, s.Name))
			return nil
		}
	}

	return &w
}

func (compiler *Compiler) analyzeConstraints(w Workflow) {
	for _, c := range w.When {
		for _, ev := range c.Event {
			if !TriggerKind(ev).Known() {
				compiler.Diagnostics.AddWarning(
					w.Name,
					UnknownEvent,
					fmt.Sprintf("`%s` never fires", ev),
				)
			}
		}
	}
}

func (compiler *Compiler) analyzeCloneOptions(w Workflow) {
	if w.CloneOpts.Skip && w.CloneOpts.IncludeSubmodules {
		compiler.Diagnostics.AddWarning(
			w.Name,
			InvalidConfiguration,
			"cannot apply `clone.skip` and `clone.submodules`",
		)
	}

	if w.CloneOpts.Skip && w.CloneOpts.Depth > 0 {
		compiler.Diagnostics.AddWarning(
			w.Name,
			InvalidConfiguration,
			"cannot apply `clone.skip` and `clone.depth`",
		)
	}
}
