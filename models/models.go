package models

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

var (
	re = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)
)

// PipelineId identifies a single run of a repository's pipeline.
type PipelineId struct {
	Repo string
	Run  string
}

func NewPipelineId(repo string) PipelineId {
	return PipelineId{
		Repo: repo,
		Run:  uuid.NewString(),
	}
}

func (p PipelineId) String() string {
	return fmt.Sprintf("%s-%s", normalize(p.Repo), p.Run)
}

type WorkflowId struct {
	PipelineId
	Name string
}

func (wid WorkflowId) String() string {
	return fmt.Sprintf("%s-%s-%s", normalize(wid.Repo), wid.Run, normalize(wid.Name))
}

func normalize(name string) string {
	normalized := re.ReplaceAllString(name, "-")
	return normalized
}
