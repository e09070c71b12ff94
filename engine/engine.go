package engine

import (
	"context"
	"time"

	"spool.sh/core/models"
	"spool.sh/core/secrets"
	"spool.sh/core/workflow"
)

// Engine executes the workflows of a compiled plan. The runner drives
// it: InitWorkflow then SetupWorkflow once per workflow, RunStep once
// per step in declaration order, DestroyWorkflow at the end no matter
// what happened in between.
type Engine interface {
	InitWorkflow(wf workflow.Workflow, plan workflow.Plan) (*models.Workflow, error)
	SetupWorkflow(ctx context.Context, wid models.WorkflowId, w *models.Workflow) error
	WorkflowTimeout() time.Duration
	DestroyWorkflow(ctx context.Context, wid models.WorkflowId) error
	RunStep(ctx context.Context, wid models.WorkflowId, w *models.Workflow, idx int, secrets []secrets.UnlockedSecret, wfLogger *models.WorkflowLogger) error
}
