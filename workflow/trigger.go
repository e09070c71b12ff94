package workflow

type TriggerKind string

const (
	TriggerKindPush        TriggerKind = "push"
	TriggerKindPullRequest TriggerKind = "pull_request"
	TriggerKindManual      TriggerKind = "manual"
)

// pull request activities that can start a pipeline
const (
	PullRequestOpened       = "opened"
	PullRequestSynchronized = "synchronized"
	PullRequestReopened     = "reopened"
)

// Trigger describes the repository event a pipeline is compiled
// against. Exactly one of Push, PullRequest or Manual is set,
// matching Kind.
type Trigger struct {
	Kind        TriggerKind
	Push        *PushTrigger
	PullRequest *PullRequestTrigger
	Manual      *ManualTrigger
	Repo        *Repo
}

type PushTrigger struct {
	Ref    string
	OldSha string
	NewSha string
}

type PullRequestTrigger struct {
	Action       string
	SourceBranch string
	TargetBranch string
	SourceSha    string
}

type ManualTrigger struct {
	Inputs map[string]string
}

// Repo identifies the repository the trigger fired on.
type Repo struct {
	Name          string
	CloneURL      string
	DefaultBranch string
}

func (k TriggerKind) Known() bool {
	switch k {
	case TriggerKindPush, TriggerKindPullRequest, TriggerKindManual:
		return true
	}
	return false
}
