package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/go-git/go-git/v5/plumbing"
	"gopkg.in/yaml.v3"
)

// - a repository event results in the trigger of a "Pipeline"
// - a repo could carry several workflow files
//   * .spool/workflows/test.yml
//   * .spool/workflows/lint.yml
// - a pipeline therefore consists of several workflows, these execute in parallel
// - each workflow consists of some execution steps, these execute serially

type (
	Pipeline []Workflow

	// this is simply a structural representation of the workflow file
	Workflow struct {
		Name         string            `yaml:"-"` // name of the workflow file
		When         []Constraint      `yaml:"when"`
		Image        string            `yaml:"image"`
		Dependencies Dependencies      `yaml:"dependencies"`
		Steps        []Step            `yaml:"steps"`
		Environment  map[string]string `yaml:"environment"`
		CloneOpts    CloneOpts         `yaml:"clone"`
	}

	Constraint struct {
		Event  StringList `yaml:"event"`
		Branch StringList `yaml:"branch"` // push refs and PR target branches
		Action StringList `yaml:"action"` // only applied on "pull_request" events
	}

	Dependencies map[string][]string

	CloneOpts struct {
		Skip              bool `yaml:"skip"`
		Depth             int  `yaml:"depth"`
		IncludeSubmodules bool `yaml:"submodules"`
	}

	Step struct {
		Name        string            `yaml:"name"`
		Command     string            `yaml:"command"`
		Environment map[string]string `yaml:"environment"`
	}

	StringList []string
)

func FromFile(name string, contents []byte) (Workflow, error) {
	var wf Workflow

	// strict decode: misspelled keys are schema errors, not silently
	// dropped configuration
	dec := yaml.NewDecoder(bytes.NewReader(contents))
	dec.KnownFields(true)

	if err := dec.Decode(&wf); err != nil && !errors.Is(err, io.EOF) {
		return wf, err
	}

	wf.Name = name

	return wf, nil
}

// if any of the constraints on a workflow is true, return true
func (w *Workflow) Match(trigger Trigger) bool {
	// manual triggers always run the workflow
	if trigger.Manual != nil {
		return true
	}

	// if not manual, run through the constraint list and see if any one matches
	for _, c := range w.When {
		if c.Match(trigger) {
			return true
		}
	}

	// no constraints, always run this workflow
	if len(w.When) == 0 {
		return true
	}

	return false
}

func (c *Constraint) Match(trigger Trigger) bool {
	match := true

	// manual triggers always pass this constraint
	if trigger.Manual != nil {
		return true
	}

	// apply event constraints
	match = match && c.MatchEvent(trigger.Kind)

	// apply branch and action constraints for PRs
	if trigger.PullRequest != nil {
		match = match && c.MatchBranch(trigger.PullRequest.TargetBranch)
		match = match && c.MatchAction(trigger.PullRequest.Action)
	}

	// apply ref constraints for pushes
	if trigger.Push != nil {
		match = match && c.MatchRef(trigger.Push.Ref)
	}

	return match
}

// an empty branch filter matches everything
func (c *Constraint) MatchBranch(branch string) bool {
	if len(c.Branch) == 0 {
		return true
	}
	return slices.Contains(c.Branch, branch)
}

func (c *Constraint) MatchRef(ref string) bool {
	if len(c.Branch) == 0 {
		return true
	}
	refName := plumbing.ReferenceName(ref)
	if refName.IsBranch() {
		return slices.Contains(c.Branch, refName.Short())
	}
	return false
}

// an empty action filter matches every PR activity
func (c *Constraint) MatchAction(action string) bool {
	if len(c.Action) == 0 {
		return true
	}
	return slices.Contains(c.Action, action)
}

func (c *Constraint) MatchEvent(event TriggerKind) bool {
	return slices.Contains(c.Event, string(event))
}

// Custom unmarshaller for StringList
func (s *StringList) UnmarshalYAML(unmarshal func(any) error) error {
	var stringType string
	if err := unmarshal(&stringType); err == nil {
		*s = []string{stringType}
		return nil
	}

	var sliceType []any
	if err := unmarshal(&sliceType); err == nil {

		if sliceType == nil {
			*s = nil
			return nil
		}

		parts := make([]string, len(sliceType))
		for k, v := range sliceType {
			if sv, ok := v.(string); ok {
				parts[k] = sv
			} else {
				return fmt.Errorf("cannot unmarshal '%v' of type %T into a string value", v, v)
			}
		}

		*s = parts
		return nil
	}

	return errors.New("failed to unmarshal StringOrSlice")
}
