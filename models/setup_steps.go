package models

import (
	"fmt"
	"sort"
	"strings"

	"spool.sh/core/workflow"
)

// registries the runner knows how to install from
const (
	RegistryPypi = "pypi"
	RegistryApt  = "apt"
)

// DependencySteps turns the workflow's dependency map into install
// steps, one per known registry. Unknown registries are skipped; the
// compiler has already warned about them. Registry order is fixed so
// the generated plan is reproducible.
func DependencySteps(deps workflow.Dependencies) []Step {
	var steps []Step

	registries := make([]string, 0, len(deps))
	for reg := range deps {
		registries = append(registries, reg)
	}
	sort.Strings(registries)

	for _, reg := range registries {
		packages := deps[reg]
		if len(packages) == 0 {
			continue
		}

		switch reg {
		case RegistryApt:
			cmd := fmt.Sprintf(
				"apt-get update && apt-get install -y --no-install-recommends %s",
				strings.Join(packages, " "),
			)
			steps = append(steps, NewSystemStep(
				"Install apt dependencies",
				cmd,
				map[string]string{"DEBIAN_FRONTEND": "noninteractive"},
			))

		case RegistryPypi:
			quoted := make([]string, len(packages))
			for i, pkg := range packages {
				quoted[i] = fmt.Sprintf("'%s'", pkg)
			}
			cmd := fmt.Sprintf("pip install --no-input %s", strings.Join(quoted, " "))
			steps = append(steps, NewSystemStep(
				"Install pypi dependencies",
				cmd,
				map[string]string{"PIP_DISABLE_PIP_VERSION_CHECK": "1"},
			))
		}
	}

	return steps
}
