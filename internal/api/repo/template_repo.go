package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"atelier/internal/api/models"
)

// TemplateRepository serves workflow templates from a directory of graph
// JSON files, keyed by filename without extension. The set is read once at
// construction and never changes afterward.
type TemplateRepository struct {
	dir    string
	graphs map[string]models.Graph
}

func NewTemplateRepository(dir string) (*TemplateRepository, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading template dir: %w", err)
	}

	graphs := make(map[string]models.Graph)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", entry.Name(), err)
		}
		graph, err := models.ParseGraph(data)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", entry.Name(), err)
		}
		graphs[strings.TrimSuffix(entry.Name(), ".json")] = graph
	}

	return &TemplateRepository{dir: dir, graphs: graphs}, nil
}

// Names returns all template names in lexical order.
func (slf *TemplateRepository) Names() []string {
	names := make([]string, 0, len(slf.graphs))
	for name := range slf.graphs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a deep copy of the named template, so callers can mutate
// freely without touching the stored graph.
func (slf *TemplateRepository) Get(name string) (models.Graph, bool) {
	graph, ok := slf.graphs[name]
	if !ok {
		return nil, false
	}
	return graph.Clone(), true
}

// Len returns how many templates are loaded.
func (slf *TemplateRepository) Len() int {
	return len(slf.graphs)
}
