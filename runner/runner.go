package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"spool.sh/core/config"
	"spool.sh/core/db"
	"spool.sh/core/engine"
	"spool.sh/core/log"
	"spool.sh/core/models"
	"spool.sh/core/secrets"
	"spool.sh/core/workflow"
)

// Runner executes a compiled plan: every workflow in the plan runs to
// completion (or failure), and the pipeline's result is the logical
// AND of the workflow results.
type Runner struct {
	cfg *config.Config
	db  *db.DB
	eng engine.Engine
	mgr secrets.Manager
	l   *slog.Logger
}

func New(ctx context.Context, cfg *config.Config, d *db.DB, eng engine.Engine, mgr secrets.Manager) *Runner {
	return &Runner{
		cfg: cfg,
		db:  d,
		eng: eng,
		mgr: mgr,
		l:   log.FromContext(ctx).With("component", "runner"),
	}
}

type WorkflowResult struct {
	Id       models.WorkflowId
	Status   models.StatusKind
	ExitCode int
	Err      error
}

type Result struct {
	PipelineId models.PipelineId
	Workflows  []WorkflowResult
}

func (r *Result) Success() bool {
	for _, w := range r.Workflows {
		if w.Status != models.StatusKindSuccess {
			return false
		}
	}
	return true
}

// ExitCode is zero only when every workflow succeeded; otherwise it is
// the exit code of the first failed workflow (or 1 when no step
// reported one, e.g. on timeout).
func (r *Result) ExitCode() int {
	for _, w := range r.Workflows {
		if w.Status == models.StatusKindSuccess {
			continue
		}
		if w.ExitCode != 0 {
			return w.ExitCode
		}
		return 1
	}
	return 0
}

func (r *Runner) Run(ctx context.Context, plan workflow.Plan) (*Result, error) {
	repo := ""
	if plan.Trigger.Repo != nil {
		repo = plan.Trigger.Repo.Name
	}

	pid := models.NewPipelineId(repo)
	l := r.l.With("pipeline", pid.String())

	if err := r.db.CreatePipeline(pid, plan.Trigger); err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	for _, wf := range plan.Workflows {
		wid := models.WorkflowId{PipelineId: pid, Name: wf.Name}
		if err := r.db.StatusPending(wid); err != nil {
			return nil, err
		}
	}

	if err := r.db.MarkPipelineRunning(pid); err != nil {
		return nil, err
	}

	var unlocked []secrets.UnlockedSecret
	if r.mgr != nil && repo != "" {
		var err error
		unlocked, err = r.mgr.GetSecretsUnlocked(ctx, repo)
		if err != nil {
			l.Error("failed to fetch secrets; continuing without them", "error", err)
		}
	}

	results := make([]WorkflowResult, len(plan.Workflows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Runner.MaxWorkflows)

	for i, wf := range plan.Workflows {
		g.Go(func() error {
			wid := models.WorkflowId{PipelineId: pid, Name: wf.Name}
			results[i] = r.runWorkflow(gctx, wid, wf, plan, unlocked)
			return nil
		})
	}

	// workflow errors land in results, not in the group
	_ = g.Wait()

	res := &Result{PipelineId: pid, Workflows: results}

	if res.Success() {
		if err := r.db.MarkPipelineSuccess(pid); err != nil {
			return res, err
		}
		l.Info("pipeline succeeded")
		return res, nil
	}

	for _, w := range res.Workflows {
		if w.Status == models.StatusKindTimeout {
			if err := r.db.MarkPipelineTimeout(pid); err != nil {
				return res, err
			}
			l.Warn("pipeline timed out", "workflow", w.Id.Name)
			return res, nil
		}
	}

	first := firstFailure(res.Workflows)
	errMsg := ""
	if first.Err != nil {
		errMsg = first.Err.Error()
	}
	if err := r.db.MarkPipelineFailed(pid, res.ExitCode(), errMsg); err != nil {
		return res, err
	}
	l.Error("pipeline failed", "workflow", first.Id.Name, "exit_code", res.ExitCode())

	return res, nil
}

func firstFailure(ws []WorkflowResult) WorkflowResult {
	for _, w := range ws {
		if w.Status != models.StatusKindSuccess {
			return w
		}
	}
	return WorkflowResult{}
}

func (r *Runner) runWorkflow(
	ctx context.Context,
	wid models.WorkflowId,
	wf workflow.Workflow,
	plan workflow.Plan,
	unlocked []secrets.UnlockedSecret,
) WorkflowResult {
	l := r.l.With("workflow", wid.String())

	res := WorkflowResult{Id: wid}

	fail := func(err error) WorkflowResult {
		res.Status = models.StatusKindFailed
		res.Err = err
		var stepErr *engine.StepFailed
		if errors.As(err, &stepErr) {
			res.ExitCode = stepErr.ExitCode
		} else {
			res.ExitCode = 1
		}
		if derr := r.db.StatusFailed(wid, err.Error(), int64(res.ExitCode)); derr != nil {
			l.Error("failed to record workflow failure", "error", derr)
		}
		return res
	}

	swf, err := r.eng.InitWorkflow(wf, plan)
	if err != nil {
		return fail(fmt.Errorf("initializing workflow: %w", err))
	}

	wfLogger, err := models.NewWorkflowLogger(r.cfg.Runner.LogDir, wid)
	if err != nil {
		return fail(fmt.Errorf("opening workflow log: %w", err))
	}
	defer wfLogger.Close()

	if err := r.db.StatusRunning(wid); err != nil {
		l.Error("failed to record workflow start", "error", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.eng.WorkflowTimeout())
	defer cancel()

	defer func() {
		if err := r.eng.DestroyWorkflow(context.WithoutCancel(ctx), wid); err != nil {
			l.Error("failed to destroy workflow", "error", err)
		}
	}()

	if err := r.eng.SetupWorkflow(ctx, wid, swf); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return r.timeout(wid, l, res)
		}
		return fail(fmt.Errorf("setting up workflow: %w", err))
	}

	// steps run strictly in order; the first failure aborts the rest
	for idx, step := range swf.Steps {
		if err := wfLogger.Control(idx, step, models.StatusKindRunning); err != nil {
			l.Error("failed to write control line", "error", err)
		}

		err := r.eng.RunStep(ctx, wid, swf, idx, unlocked, wfLogger)
		if err != nil {
			timedOut := errors.Is(err, engine.ErrTimedOut) || errors.Is(err, context.DeadlineExceeded)

			status := models.StatusKindFailed
			if timedOut {
				status = models.StatusKindTimeout
			}
			if cerr := wfLogger.Control(idx, step, status); cerr != nil {
				l.Error("failed to write control line", "error", cerr)
			}

			if timedOut {
				return r.timeout(wid, l, res)
			}
			l.Error("step failed", "step", step.Name(), "error", err)
			return fail(err)
		}

		if err := wfLogger.Control(idx, step, models.StatusKindSuccess); err != nil {
			l.Error("failed to write control line", "error", err)
		}
	}

	res.Status = models.StatusKindSuccess
	if err := r.db.StatusSuccess(wid); err != nil {
		l.Error("failed to record workflow success", "error", err)
	}
	l.Info("workflow succeeded")

	return res
}

func (r *Runner) timeout(wid models.WorkflowId, l *slog.Logger, res WorkflowResult) WorkflowResult {
	res.Status = models.StatusKindTimeout
	res.ExitCode = 1
	res.Err = engine.ErrTimedOut
	if err := r.db.StatusTimeout(wid); err != nil {
		l.Error("failed to record workflow timeout", "error", err)
	}
	l.Warn("workflow timed out")
	return res
}
