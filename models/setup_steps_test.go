package models

import (
	"testing"

	"spool.sh/core/workflow"
)

func TestDependencyStepsEmpty(t *testing.T) {
	if steps := DependencySteps(nil); len(steps) != 0 {
		t.Errorf("expected no steps, got %d", len(steps))
	}

	deps := workflow.Dependencies{RegistryApt: nil}
	if steps := DependencySteps(deps); len(steps) != 0 {
		t.Errorf("expected no steps for empty package list, got %d", len(steps))
	}
}

func TestDependencyStepsApt(t *testing.T) {
	deps := workflow.Dependencies{
		RegistryApt: {"make", "gcc"},
	}

	steps := DependencySteps(deps)
	if len(steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(steps))
	}

	want := "apt-get update && apt-get install -y --no-install-recommends make gcc"
	if steps[0].Command() != want {
		t.Errorf("got %q, want %q", steps[0].Command(), want)
	}
	if steps[0].Kind() != StepKindSystem {
		t.Errorf("expected system step")
	}
	if steps[0].Environment()["DEBIAN_FRONTEND"] != "noninteractive" {
		t.Errorf("expected noninteractive apt")
	}
}

func TestDependencyStepsPypi(t *testing.T) {
	deps := workflow.Dependencies{
		RegistryPypi: {"virtualenv", "requests==2.31.0"},
	}

	steps := DependencySteps(deps)
	if len(steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(steps))
	}

	want := "pip install --no-input 'virtualenv' 'requests==2.31.0'"
	if steps[0].Command() != want {
		t.Errorf("got %q, want %q", steps[0].Command(), want)
	}
}

func TestDependencyStepsOrder(t *testing.T) {
	deps := workflow.Dependencies{
		RegistryPypi: {"virtualenv"},
		RegistryApt:  {"make"},
		"cargo":      {"ripgrep"}, // unknown registries are dropped
	}

	steps := DependencySteps(deps)
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}

	// apt sorts before pypi; order is stable across runs
	if steps[0].Name() != "Install apt dependencies" {
		t.Errorf("expected apt first, got %s", steps[0].Name())
	}
	if steps[1].Name() != "Install pypi dependencies" {
		t.Errorf("expected pypi second, got %s", steps[1].Name())
	}
}
