package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ValuesFileName is the name of the values file inside a scratch directory.
const ValuesFileName = "values.yaml"

// Scratch is a per-invocation directory for files handed to external tools.
type Scratch struct {
	Dir string
}

// NewScratch creates a fresh scratch directory under workDir.
func NewScratch(workDir string) (*Scratch, error) {
	if workDir == "" {
		workDir = os.TempDir()
	}
	if err := os.MkdirAll(workDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create work dir %s: %w", workDir, err)
	}
	dir, err := os.MkdirTemp(workDir, "clusterforge-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	return &Scratch{Dir: dir}, nil
}

// WriteValues renders a JSON values document as YAML and returns the file path.
func (s *Scratch) WriteValues(valuesJSON string) (string, error) {
	var values interface{}
	if err := json.Unmarshal([]byte(valuesJSON), &values); err != nil {
		return "", fmt.Errorf("failed to parse values: %w", err)
	}
	data, err := yaml.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to render values: %w", err)
	}
	path := filepath.Join(s.Dir, ValuesFileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write values file: %w", err)
	}
	return path, nil
}

// Close removes the scratch directory and everything in it.
func (s *Scratch) Close() error {
	return os.RemoveAll(s.Dir)
}
