package db

import (
	"path/filepath"
	"testing"

	"spool.sh/core/models"
	"spool.sh/core/workflow"
)

func testDB(t *testing.T) *DB {
	t.Helper()

	d, err := Make(filepath.Join(t.TempDir(), "spool.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { d.Close() })

	return d
}

func pushTrigger() workflow.Trigger {
	return workflow.Trigger{
		Kind: workflow.TriggerKindPush,
		Push: &workflow.PushTrigger{Ref: "refs/heads/master", NewSha: "deadbeef"},
	}
}

func TestPipelineLifecycle(t *testing.T) {
	d := testDB(t)
	id := models.NewPipelineId("example/project")

	if err := d.CreatePipeline(id, pushTrigger()); err != nil {
		t.Fatal(err)
	}

	p, err := d.GetPipeline(id.Run)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != models.StatusKindPending {
		t.Errorf("expected pending, got %s", p.Status)
	}
	if p.Trigger != string(workflow.TriggerKindPush) {
		t.Errorf("expected push trigger, got %s", p.Trigger)
	}

	if err := d.MarkPipelineRunning(id); err != nil {
		t.Fatal(err)
	}
	p, _ = d.GetPipeline(id.Run)
	if p.Status != models.StatusKindRunning {
		t.Errorf("expected running, got %s", p.Status)
	}

	if err := d.MarkPipelineSuccess(id); err != nil {
		t.Fatal(err)
	}
	p, _ = d.GetPipeline(id.Run)
	if p.Status != models.StatusKindSuccess {
		t.Errorf("expected success, got %s", p.Status)
	}
	if p.FinishedAt.IsZero() {
		t.Errorf("expected finished_at to be set")
	}
}

func TestPipelineFailureRecordsExitCode(t *testing.T) {
	d := testDB(t)
	id := models.NewPipelineId("example/project")

	if err := d.CreatePipeline(id, pushTrigger()); err != nil {
		t.Fatal(err)
	}
	if err := d.MarkPipelineFailed(id, 2, "step 1 exited with code 2"); err != nil {
		t.Fatal(err)
	}

	p, err := d.GetPipeline(id.Run)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != models.StatusKindFailed {
		t.Errorf("expected failed, got %s", p.Status)
	}
	if p.ExitCode != 2 {
		t.Errorf("expected exit code 2, got %d", p.ExitCode)
	}
	if p.Error != "step 1 exited with code 2" {
		t.Errorf("unexpected error message: %s", p.Error)
	}
}

func TestGetPipelines(t *testing.T) {
	d := testDB(t)

	for range 3 {
		id := models.NewPipelineId("example/project")
		if err := d.CreatePipeline(id, pushTrigger()); err != nil {
			t.Fatal(err)
		}
	}

	pipelines, err := d.GetPipelines("")
	if err != nil {
		t.Fatal(err)
	}
	if len(pipelines) != 3 {
		t.Errorf("expected 3 pipelines, got %d", len(pipelines))
	}
}

func TestWorkflowStatusEvents(t *testing.T) {
	d := testDB(t)
	id := models.NewPipelineId("example/project")
	wid := models.WorkflowId{PipelineId: id, Name: "ci.yml"}

	if err := d.StatusPending(wid); err != nil {
		t.Fatal(err)
	}
	if err := d.StatusRunning(wid); err != nil {
		t.Fatal(err)
	}
	if err := d.StatusFailed(wid, "make check failed", 2); err != nil {
		t.Fatal(err)
	}

	status, err := d.GetStatus(wid)
	if err != nil {
		t.Fatal(err)
	}

	// GetStatus returns the latest event
	if status.Status != string(models.StatusKindFailed) {
		t.Errorf("expected failed, got %s", status.Status)
	}
	if status.ExitCode == nil || *status.ExitCode != 2 {
		t.Errorf("expected exit code 2, got %v", status.ExitCode)
	}
	if status.Error == nil || *status.Error != "make check failed" {
		t.Errorf("unexpected error: %v", status.Error)
	}

	events, err := d.GetEvents(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Errorf("expected 3 events, got %d", len(events))
	}
}
