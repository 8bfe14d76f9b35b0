package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/openfroyo/clusterforge/pkg/engine"
	"github.com/openfroyo/clusterforge/pkg/runner"
	"github.com/openfroyo/clusterforge/pkg/stores"
	"github.com/openfroyo/clusterforge/pkg/telemetry"
	"github.com/openfroyo/clusterforge/pkg/transports/callback"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CLUSTERFORGE"

// Backend names.
const (
	BackendEKS   = "eks"
	BackendLocal = "local"
)

// StateFileName is the SQLite file used by the local backend when no
// explicit path is configured.
const StateFileName = "clusterforge.db"

// Config is the runtime configuration of one invocation. It is built once
// and passed explicitly to everything that needs it.
type Config struct {
	// Kind pins the resource kind handled by this deployment (cluster,
	// chart) or detects it per request (auto).
	Kind string `mapstructure:"kind" validate:"oneof=cluster chart auto"`

	// Backend selects the cluster-lifecycle implementation.
	Backend string `mapstructure:"backend" validate:"oneof=eks local"`

	// WorkDir holds the kubeconfig and per-request scratch directories.
	WorkDir string `mapstructure:"work_dir" validate:"required"`

	// ClusterName and RoleArn are the defaults for chart requests that
	// leave them out.
	ClusterName string `mapstructure:"cluster_name"`
	RoleArn     string `mapstructure:"role_arn"`

	// AssumeRoleArn is assumed through STS for cluster API calls.
	AssumeRoleArn string `mapstructure:"assume_role_arn"`

	Region string `mapstructure:"region"`

	// AWSMaxAttempts bounds the SDK's retries of one API call; zero keeps
	// the SDK default.
	AWSMaxAttempts int `mapstructure:"aws_max_attempts" validate:"min=0"`

	// LocalStatePath is the SQLite database of the local backend.
	LocalStatePath string `mapstructure:"local_state_path"`

	// SettleDelay is how long the local backend keeps a resource in a
	// transitional status.
	SettleDelay time.Duration `mapstructure:"settle_delay" validate:"min=0"`

	HelmBinary string `mapstructure:"helm_binary" validate:"required"`
	AWSBinary  string `mapstructure:"aws_binary" validate:"required"`

	ActiveWait engine.WaitSpec `mapstructure:"active_wait"`
	DeleteWait engine.WaitSpec `mapstructure:"delete_wait"`
	ChartWait  engine.WaitSpec `mapstructure:"chart_wait"`

	CommandMaxAttempts  int      `mapstructure:"command_max_attempts" validate:"min=1"`
	TransientSignatures []string `mapstructure:"transient_signatures" validate:"dive,required"`

	// CompensateFailedReplacement deletes the minted cluster when a
	// replacement ends in a FAILED status.
	CompensateFailedReplacement bool `mapstructure:"compensate_failed_replacement"`

	// LogStreamName is quoted in default reasons and is the physical id of
	// last resort.
	LogStreamName string `mapstructure:"log_stream_name"`

	PolicyPaths []string `mapstructure:"policy_paths"`

	// HTTPTimeout bounds one callback request.
	HTTPTimeout time.Duration `mapstructure:"http_timeout" validate:"gt=0"`

	Telemetry telemetry.Config `mapstructure:"telemetry" validate:"-"`
}

// ResourceKind returns Kind as an engine.ResourceKind.
func (c *Config) ResourceKind() engine.ResourceKind {
	return engine.ResourceKind(c.Kind)
}

// StatePath returns the local backend database path.
func (c *Config) StatePath() string {
	if c.LocalStatePath != "" {
		return c.LocalStatePath
	}
	return filepath.Join(c.WorkDir, StateFileName)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", describeValidation(err))
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry configuration: %w", err)
	}
	return nil
}

func describeValidation(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	msgs := make([]string, 0, len(ves))
	for _, fe := range ves {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", fe.Namespace(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// legacyEnv maps keys to the environment variables the handlers have always
// read. The prefixed name wins when both are set.
var legacyEnv = map[string]string{
	"work_dir":        "TEST_OUTDIR",
	"cluster_name":    "CLUSTER_NAME",
	"region":          "AWS_REGION",
	"log_stream_name": "AWS_LAMBDA_LOG_STREAM_NAME",
}

// flagKeys maps flag names that do not follow the key naming to their key.
var flagKeys = map[string]string{
	"log-level":   "telemetry.logging.level",
	"log-format":  "telemetry.logging.format",
	"policy-path": "policy_paths",
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("kind", string(engine.ResourceKindAuto))
	v.SetDefault("backend", BackendEKS)
	v.SetDefault("work_dir", "/tmp")
	v.SetDefault("cluster_name", "")
	v.SetDefault("role_arn", "")
	v.SetDefault("assume_role_arn", "")
	v.SetDefault("region", "")
	v.SetDefault("aws_max_attempts", 0)
	v.SetDefault("local_state_path", "")
	v.SetDefault("settle_delay", stores.DefaultSettleDelay)
	v.SetDefault("helm_binary", "helm")
	v.SetDefault("aws_binary", "aws")

	setWaitDefaults(v, "active_wait", engine.DefaultActiveWait)
	setWaitDefaults(v, "delete_wait", engine.DefaultDeleteWait)
	setWaitDefaults(v, "chart_wait", engine.DefaultChartWait)

	v.SetDefault("command_max_attempts", runner.DefaultMaxAttempts)
	v.SetDefault("transient_signatures", runner.DefaultTransientSignatures)
	v.SetDefault("compensate_failed_replacement", false)
	v.SetDefault("log_stream_name", "")
	v.SetDefault("policy_paths", []string{})
	v.SetDefault("http_timeout", callback.DefaultTimeout)

	tel := telemetry.DefaultConfig()
	v.SetDefault("telemetry.service_name", tel.ServiceName)
	v.SetDefault("telemetry.service_version", tel.ServiceVersion)
	v.SetDefault("telemetry.environment", tel.Environment)
	v.SetDefault("telemetry.logging.level", tel.Logging.Level)
	v.SetDefault("telemetry.logging.format", tel.Logging.Format)
	v.SetDefault("telemetry.logging.output", tel.Logging.Output)
	v.SetDefault("telemetry.logging.enable_caller", tel.Logging.EnableCaller)
	v.SetDefault("telemetry.logging.enable_sampling", tel.Logging.EnableSampling)
	v.SetDefault("telemetry.logging.sampling_initial", tel.Logging.SamplingInitial)
	v.SetDefault("telemetry.logging.sampling_thereafter", tel.Logging.SamplingThereafter)
	v.SetDefault("telemetry.logging.time_format", tel.Logging.TimeFormat)
	v.SetDefault("telemetry.tracing.enabled", tel.Tracing.Enabled)
	v.SetDefault("telemetry.tracing.exporter", tel.Tracing.Exporter)
	v.SetDefault("telemetry.tracing.endpoint", tel.Tracing.Endpoint)
	v.SetDefault("telemetry.tracing.sampling_rate", tel.Tracing.SamplingRate)
	v.SetDefault("telemetry.tracing.export_timeout", tel.Tracing.ExportTimeout)
	v.SetDefault("telemetry.tracing.headers", tel.Tracing.Headers)
	v.SetDefault("telemetry.tracing.insecure", tel.Tracing.Insecure)
	v.SetDefault("telemetry.metrics.enabled", tel.Metrics.Enabled)
	v.SetDefault("telemetry.metrics.listen_address", tel.Metrics.ListenAddress)
	v.SetDefault("telemetry.metrics.path", tel.Metrics.Path)
	v.SetDefault("telemetry.metrics.push_gateway", tel.Metrics.PushGateway)
	v.SetDefault("telemetry.metrics.namespace", tel.Metrics.Namespace)
	v.SetDefault("telemetry.metrics.default_histogram_buckets", tel.Metrics.DefaultHistogramBuckets)
}

func setWaitDefaults(v *viper.Viper, key string, w engine.WaitSpec) {
	v.SetDefault(key+".poll_interval", w.PollInterval)
	v.SetDefault(key+".max_attempts", w.MaxAttempts)
}

// LoadOptions controls where Load reads from.
type LoadOptions struct {
	// ConfigFile is an explicit config file. When empty, clusterforge.yaml
	// is searched for in the working directory and /etc/clusterforge.
	ConfigFile string

	// Flags are bound over every other source when set on the command line.
	Flags *pflag.FlagSet
}

// Load builds a Config from defaults, an optional config file, the
// environment and command-line flags, in increasing precedence.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := EnvPrefix + "_" + strings.ToUpper(key)
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("clusterforge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/clusterforge")
	}
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) || opts.ConfigFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if opts.Flags != nil {
		var bindErr error
		opts.Flags.VisitAll(func(f *pflag.Flag) {
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = fmt.Errorf("failed to bind flag %s: %w", f.Name, err)
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// AddFlags registers the configuration flags shared by every command.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("kind", string(engine.ResourceKindAuto), "resource kind handled: cluster, chart or auto")
	fs.String("backend", BackendEKS, "cluster backend: eks or local")
	fs.String("work-dir", "", "directory for kubeconfig and scratch files")
	fs.String("cluster-name", "", "default cluster for chart requests")
	fs.String("role-arn", "", "default role for chart requests")
	fs.String("region", "", "AWS region")
	fs.String("local-state-path", "", "SQLite database of the local backend")
	fs.StringSlice("policy-path", nil, "additional .rego policy files or directories")
	fs.String("log-level", "", "log level: trace, debug, info, warn, error")
	fs.String("log-format", "", "log format: json or console")
}
