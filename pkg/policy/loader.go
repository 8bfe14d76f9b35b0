package policy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Bundle files hold several policies; any other .json, .yaml or .yml file
// holds exactly one.
var bundleSuffixes = []string{".bundle.json", ".bundle.yaml", ".bundle.yml"}

// BundleSuffix is the canonical bundle suffix.
const BundleSuffix = ".bundle.json"

// Loader reads policies from files operators ship next to the function.
type Loader struct {
	logger zerolog.Logger
}

// NewLoader creates a new policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{logger: logger.With().Str("component", "policy-loader").Logger()}
}

// LoadFromPaths loads policies from a list of file or directory paths.
// Directories are walked recursively; an unreadable file inside a directory
// is skipped, while an explicitly named file must load.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Policy, error) {
	var all []Policy
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		loaded, err := l.loadFromPath(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
		}
		all = append(all, loaded...)
	}

	l.logger.Info().
		Int("total", len(all)).
		Int("sources", len(paths)).
		Msg("Policies loaded from paths")
	return all, nil
}

func (l *Loader) loadFromPath(ctx context.Context, path string) ([]Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}
	if info.IsDir() {
		return l.loadFromDirectory(ctx, path)
	}
	return l.loadFromFile(ctx, path)
}

func (l *Loader) loadFromDirectory(ctx context.Context, dir string) ([]Policy, error) {
	var policies []Policy

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isPolicyFile(path) {
			return nil
		}

		loaded, err := l.loadFromFile(ctx, path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Skipping policy file")
			return nil
		}
		policies = append(policies, loaded...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	return policies, nil
}

func isPolicyFile(path string) bool {
	switch filepath.Ext(path) {
	case ".rego", ".json", ".yaml", ".yml":
		return true
	}
	return false
}

func isBundle(path string) bool {
	for _, suffix := range bundleSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// loadFromFile loads the policies defined in a single file.
func (l *Loader) loadFromFile(_ context.Context, path string) ([]Policy, error) {
	if !isPolicyFile(path) {
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var policies []Policy
	switch {
	case filepath.Ext(path) == ".rego":
		policies = []Policy{regoPolicy(path, data)}
	case isBundle(path):
		bundle, err := decodeBundle(data)
		if err != nil {
			return nil, err
		}
		l.logger.Info().
			Str("bundle", bundle.Name).
			Str("version", bundle.Version).
			Int("policies", len(bundle.Policies)).
			Msg("Policy bundle loaded")
		for _, p := range bundle.Policies {
			policies = append(policies, withDefaults(p))
		}
	default:
		p, err := decodePolicy(data)
		if err != nil {
			return nil, err
		}
		policies = []Policy{*p}
	}

	l.logger.Debug().
		Str("path", path).
		Int("policies", len(policies)).
		Msg("Policies loaded from file")
	return policies, nil
}

// regoPolicy wraps a bare .rego module. The file name is the policy name and
// the leading comment block its description; it blocks on violation.
func regoPolicy(path string, data []byte) Policy {
	return Policy{
		Name:        strings.TrimSuffix(filepath.Base(path), ".rego"),
		Description: extractDescription(string(data)),
		Rego:        string(data),
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{},
		Metadata:    map[string]interface{}{"source": path},
	}
}

// decodePolicy reads one policy document. JSON documents are valid YAML, so
// both go through the YAML decoder.
func decodePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := strictDecode(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if p.Name == "" || p.Rego == "" {
		return nil, errors.New("policy document needs a name and rego")
	}
	p = withDefaults(p)
	return &p, nil
}

func decodeBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := strictDecode(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse bundle: %w", err)
	}
	return &b, nil
}

func strictDecode(data []byte, v interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(v)
}

func withDefaults(p Policy) Policy {
	if p.Severity == "" {
		p.Severity = SeverityError
	}
	return p
}

// extractDescription joins the comment lines that open a Rego module.
func extractDescription(content string) string {
	var parts []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			if trimmed != "" && len(parts) > 0 {
				break
			}
			continue
		}
		comment := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
		if comment != "" && !strings.HasPrefix(comment, "package") {
			parts = append(parts, comment)
		}
	}
	return strings.Join(parts, " ")
}
