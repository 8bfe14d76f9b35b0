package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/clusterforge/pkg/engine"
	"github.com/openfroyo/clusterforge/pkg/runner"
)

// clearEnv unsets the variables Load reads so the host environment does not
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"TEST_OUTDIR", "CLUSTER_NAME", "AWS_REGION", "AWS_LAMBDA_LOG_STREAM_NAME"} {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
	t.Chdir(t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, engine.ResourceKindAuto, cfg.ResourceKind())
	assert.Equal(t, BackendEKS, cfg.Backend)
	assert.Equal(t, "/tmp", cfg.WorkDir)
	assert.Equal(t, "helm", cfg.HelmBinary)
	assert.Equal(t, "aws", cfg.AWSBinary)
	assert.Equal(t, engine.DefaultActiveWait, cfg.ActiveWait)
	assert.Equal(t, engine.DefaultDeleteWait, cfg.DeleteWait)
	assert.Equal(t, engine.DefaultChartWait, cfg.ChartWait)
	assert.Equal(t, runner.DefaultMaxAttempts, cfg.CommandMaxAttempts)
	assert.Equal(t, runner.DefaultTransientSignatures, cfg.TransientSignatures)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "clusterforge", cfg.Telemetry.ServiceName)
	assert.Equal(t, "json", cfg.Telemetry.Logging.Format)
	assert.Equal(t, filepath.Join("/tmp", StateFileName), cfg.StatePath())
}

func TestLoadLegacyEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_OUTDIR", "/var/task/out")
	t.Setenv("CLUSTER_NAME", "prod")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("AWS_LAMBDA_LOG_STREAM_NAME", "2026/10/19/[$LATEST]abc")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, "/var/task/out", cfg.WorkDir)
	assert.Equal(t, "prod", cfg.ClusterName)
	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "2026/10/19/[$LATEST]abc", cfg.LogStreamName)
}

func TestLoadPrefixedEnvironmentWins(t *testing.T) {
	clearEnv(t)
	t.Setenv("CLUSTER_NAME", "legacy")
	t.Setenv("CLUSTERFORGE_CLUSTER_NAME", "prefixed")
	t.Setenv("CLUSTERFORGE_ACTIVE_WAIT_MAX_ATTEMPTS", "40")
	t.Setenv("CLUSTERFORGE_ACTIVE_WAIT_POLL_INTERVAL", "10s")
	t.Setenv("CLUSTERFORGE_TELEMETRY_LOGGING_LEVEL", "debug")
	t.Setenv("CLUSTERFORGE_TRANSIENT_SIGNATURES", "Broken pipe,connection reset")

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, "prefixed", cfg.ClusterName)
	assert.Equal(t, engine.WaitSpec{PollInterval: 10 * time.Second, MaxAttempts: 40}, cfg.ActiveWait)
	assert.Equal(t, "debug", cfg.Telemetry.Logging.Level)
	assert.Equal(t, []string{"Broken pipe", "connection reset"}, cfg.TransientSignatures)
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "clusterforge.yaml")
	content := `
kind: chart
cluster_name: staging
chart_wait:
  poll_interval: 2s
  max_attempts: 10
compensate_failed_replacement: true
policy_paths:
  - /etc/clusterforge/policies
telemetry:
  logging:
    format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CLUSTERFORGE_CLUSTER_NAME", "from-env")

	cfg, err := Load(LoadOptions{ConfigFile: path})
	require.NoError(t, err)

	assert.Equal(t, engine.ResourceKindChart, cfg.ResourceKind())
	assert.Equal(t, "from-env", cfg.ClusterName, "environment overrides the file")
	assert.Equal(t, engine.WaitSpec{PollInterval: 2 * time.Second, MaxAttempts: 10}, cfg.ChartWait)
	assert.True(t, cfg.CompensateFailedReplacement)
	assert.Equal(t, []string{"/etc/clusterforge/policies"}, cfg.PolicyPaths)
	assert.Equal(t, "console", cfg.Telemetry.Logging.Format)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestLoadFlagsOverrideEverything(t *testing.T) {
	clearEnv(t)
	t.Setenv("CLUSTERFORGE_BACKEND", "eks")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"--backend", "local",
		"--work-dir", "/work",
		"--log-level", "warn",
		"--policy-path", "a.rego,b.rego",
	}))

	cfg, err := Load(LoadOptions{Flags: fs})
	require.NoError(t, err)

	assert.Equal(t, BackendLocal, cfg.Backend)
	assert.Equal(t, "/work", cfg.WorkDir)
	assert.Equal(t, "warn", cfg.Telemetry.Logging.Level)
	assert.Equal(t, []string{"a.rego", "b.rego"}, cfg.PolicyPaths)
	// Unset flags do not mask defaults.
	assert.Equal(t, "helm", cfg.HelmBinary)
	assert.Equal(t, "json", cfg.Telemetry.Logging.Format)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad kind", func(c *Config) { c.Kind = "nodegroup" }, "Config.Kind"},
		{"bad backend", func(c *Config) { c.Backend = "gke" }, "Config.Backend"},
		{"zero wait attempts", func(c *Config) { c.ActiveWait.MaxAttempts = 0 }, "Config.ActiveWait.MaxAttempts"},
		{"zero command attempts", func(c *Config) { c.CommandMaxAttempts = 0 }, "Config.CommandMaxAttempts"},
		{"empty signature", func(c *Config) { c.TransientSignatures = []string{""} }, "Config.TransientSignatures[0]"},
		{"bad telemetry", func(c *Config) { c.Telemetry.Logging.Level = "loud" }, "invalid telemetry configuration"},
	}

	clearEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(LoadOptions{})
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
