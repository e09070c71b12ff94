package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// default location of workflow files, relative to the repository root
const DefaultDir = ".spool/workflows"

// ReadDir collects the raw workflow files under dir. Only .yml and
// .yaml files are picked up; order is stable (lexicographic) so
// diagnostics and plans are reproducible.
func ReadDir(dir string) (RawPipeline, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading workflow dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yml", ".yaml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var rp RawPipeline
	for _, name := range names {
		contents, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading workflow %s: %w", name, err)
		}
		rp = append(rp, RawWorkflow{Name: name, Contents: contents})
	}

	return rp, nil
}
