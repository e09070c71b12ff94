package models

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"
)

func TestWorkflowLogger(t *testing.T) {
	dir := t.TempDir()
	wid := WorkflowId{
		PipelineId: PipelineId{Repo: "example/project", Run: "run-1"},
		Name:       "ci.yml",
	}

	logger, err := NewWorkflowLogger(dir, wid)
	if err != nil {
		t.Fatal(err)
	}

	step := NewUserStep("build", "make all", nil)

	if err := logger.Control(0, step, StatusKindRunning); err != nil {
		t.Fatal(err)
	}

	w := logger.DataWriter(0, "stdout")
	if _, err := w.Write([]byte("hello world\n")); err != nil {
		t.Fatal(err)
	}

	if err := logger.Control(0, step, StatusKindSuccess); err != nil {
		t.Fatal(err)
	}
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(LogFilePath(dir, wid))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []LogLine
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line LogLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("log line is not valid json: %v", err)
		}
		lines = append(lines, line)
	}

	if len(lines) != 3 {
		t.Fatalf("expected 3 log lines, got %d", len(lines))
	}

	if lines[0].Kind != "control" || lines[0].Status != StatusKindRunning || lines[0].StepName != "build" {
		t.Errorf("unexpected first control line: %+v", lines[0])
	}
	if lines[1].Kind != "data" || lines[1].Line != "hello world" || lines[1].Stream != "stdout" {
		t.Errorf("unexpected data line: %+v", lines[1])
	}
	if lines[2].Kind != "control" || lines[2].Status != StatusKindSuccess {
		t.Errorf("unexpected final control line: %+v", lines[2])
	}
}

func TestWorkflowIdNormalization(t *testing.T) {
	wid := WorkflowId{
		PipelineId: PipelineId{Repo: "example/project", Run: "run-1"},
		Name:       "ci check.yml",
	}

	got := wid.String()
	want := "example-project-run-1-ci-check.yml"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
