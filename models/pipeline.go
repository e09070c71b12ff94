package models

type Step interface {
	Name() string
	Command() string
	Environment() map[string]string
	Kind() StepKind
}

type StepKind int

const (
	// steps injected by the CI runner
	StepKindSystem StepKind = iota
	// steps defined by the user in the original workflow file
	StepKindUser
)

// Workflow is the engine-facing form of a workflow: the user's steps
// with the runner's setup steps spliced in front. Data carries
// engine-specific state (image, env) across the engine's calls.
type Workflow struct {
	Steps []Step
	Name  string
	Data  any
}

type StatusKind string

const (
	StatusKindPending   StatusKind = "pending"
	StatusKindRunning   StatusKind = "running"
	StatusKindSuccess   StatusKind = "success"
	StatusKindFailed    StatusKind = "failed"
	StatusKindTimeout   StatusKind = "timeout"
	StatusKindCancelled StatusKind = "cancelled"
)

// StaticStep is a plain name+command step. Engines that need richer
// step types can define their own Step implementations.
type StaticStep struct {
	name    string
	command string
	env     map[string]string
	kind    StepKind
}

func NewUserStep(name, command string, env map[string]string) StaticStep {
	return StaticStep{name: name, command: command, env: env, kind: StepKindUser}
}

func NewSystemStep(name, command string, env map[string]string) StaticStep {
	return StaticStep{name: name, command: command, env: env, kind: StepKindSystem}
}

func (s StaticStep) Name() string { return s.name }

func (s StaticStep) Command() string { return s.command }

func (s StaticStep) Environment() map[string]string { return s.env }

func (s StaticStep) Kind() StepKind { return s.kind }
