package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfroyo/clusterforge/pkg/engine"
)

var releaseNotFound = []byte("release: not found")

// HelmOptions configures a HelmTool.
type HelmOptions struct {
	Binary     string
	WorkDir    string
	Runner     *Runner
	Kubeconfig *KubeconfigBootstrapper
	Logger     zerolog.Logger
}

// HelmTool drives chart releases through the helm CLI.
type HelmTool struct {
	binary     string
	workDir    string
	runner     *Runner
	kubeconfig *KubeconfigBootstrapper
	logger     zerolog.Logger
}

// NewHelmTool creates a new helm deployment tool.
func NewHelmTool(opts HelmOptions) *HelmTool {
	if opts.Binary == "" {
		opts.Binary = "helm"
	}
	return &HelmTool{
		binary:     opts.Binary,
		workDir:    opts.WorkDir,
		runner:     opts.Runner,
		kubeconfig: opts.Kubeconfig,
		logger:     opts.Logger.With().Str("component", "helm").Logger(),
	}
}

// UpgradeArgs returns the arguments of an install-or-upgrade invocation.
func UpgradeArgs(chart *engine.ChartConfig, valuesFile, kubeconfig string) []string {
	args := []string{"upgrade", chart.Release, chart.Chart, "--install"}
	if chart.CreateNamespace {
		args = append(args, "--create-namespace")
	}
	if chart.Repository != "" {
		args = append(args, "--repo", chart.Repository)
	}
	if valuesFile != "" {
		args = append(args, "--values", valuesFile)
	}
	if chart.Version != "" {
		args = append(args, "--version", chart.Version)
	}
	if chart.Namespace != "" {
		args = append(args, "--namespace", chart.Namespace)
	}
	if chart.Wait {
		args = append(args, "--wait")
	}
	if chart.Timeout != "" {
		args = append(args, "--timeout", chart.Timeout)
	}
	return append(args, "--kubeconfig", kubeconfig)
}

// UninstallArgs returns the arguments of an uninstall invocation.
func UninstallArgs(chart *engine.ChartConfig, kubeconfig string) []string {
	args := []string{"uninstall", chart.Release}
	if chart.Namespace != "" {
		args = append(args, "--namespace", chart.Namespace)
	}
	if chart.Timeout != "" {
		args = append(args, "--timeout", chart.Timeout)
	}
	return append(args, "--kubeconfig", kubeconfig)
}

// StatusArgs returns the arguments of a status query.
func StatusArgs(chart *engine.ChartConfig, kubeconfig string) []string {
	args := []string{"status", chart.Release, "-o", "json"}
	if chart.Namespace != "" {
		args = append(args, "--namespace", chart.Namespace)
	}
	return append(args, "--kubeconfig", kubeconfig)
}

// UpgradeOrInstall installs the release or upgrades it in place.
func (h *HelmTool) UpgradeOrInstall(ctx context.Context, chart *engine.ChartConfig) (*engine.CommandOutcome, error) {
	kubeconfig, err := h.kubeconfig.Ensure(ctx, chart.ClusterName, chart.RoleArn)
	if err != nil {
		return nil, err
	}

	scratch, err := NewScratch(h.workDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := scratch.Close(); cerr != nil {
			h.logger.Warn().Err(cerr).Str("dir", scratch.Dir).Msg("failed to remove scratch dir")
		}
	}()

	var valuesFile string
	if chart.Values != "" {
		if valuesFile, err = scratch.WriteValues(chart.Values); err != nil {
			return nil, engine.NewValidationError(fmt.Sprintf("invalid values for release %s", chart.Release), err)
		}
	}

	cmd := Command{Name: h.binary, Args: UpgradeArgs(chart, valuesFile, kubeconfig), Dir: scratch.Dir}
	h.logger.Info().
		Str("release", chart.Release).
		Str("chart", chart.Chart).
		Str("namespace", chart.EffectiveNamespace()).
		Msg("upgrading release")
	return h.runner.Run(ctx, cmd, true)
}

// Uninstall removes the release.
func (h *HelmTool) Uninstall(ctx context.Context, chart *engine.ChartConfig) (*engine.CommandOutcome, error) {
	kubeconfig, err := h.kubeconfig.Ensure(ctx, chart.ClusterName, chart.RoleArn)
	if err != nil {
		return nil, err
	}

	cmd := Command{Name: h.binary, Args: UninstallArgs(chart, kubeconfig), Dir: h.workDir}
	h.logger.Info().
		Str("release", chart.Release).
		Str("namespace", chart.EffectiveNamespace()).
		Msg("uninstalling release")
	return h.runner.Run(ctx, cmd, true)
}

type releaseStatus struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Version   int    `json:"version"`
	Info      struct {
		Status      string `json:"status"`
		Description string `json:"description"`
	} `json:"info"`
}

// Status reports the release state. A missing release is ABSENT, not an error.
func (h *HelmTool) Status(ctx context.Context, chart *engine.ChartConfig) (*engine.Observation, error) {
	kubeconfig, err := h.kubeconfig.Ensure(ctx, chart.ClusterName, chart.RoleArn)
	if err != nil {
		return nil, err
	}

	cmd := Command{Name: h.binary, Args: StatusArgs(chart, kubeconfig), Dir: h.workDir}
	out, err := h.runner.Run(ctx, cmd, true)
	if err != nil {
		var ee *engine.EngineError
		if errors.As(err, &ee) && bytes.Contains(ee.Output, releaseNotFound) {
			return &engine.Observation{Status: engine.ResourceStatusAbsent}, nil
		}
		return nil, err
	}
	return ParseStatus(out.Output)
}

// ParseStatus converts `helm status -o json` output into an observation.
func ParseStatus(data []byte) (*engine.Observation, error) {
	var rs releaseStatus
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse release status: %w", err)
	}
	return &engine.Observation{
		Status: MapReleaseStatus(rs.Info.Status),
		Attributes: map[string]interface{}{
			"Revision":  rs.Version,
			"Status":    rs.Info.Status,
			"Namespace": rs.Namespace,
		},
	}, nil
}

// MapReleaseStatus maps a helm release status onto a resource status.
func MapReleaseStatus(s string) engine.ResourceStatus {
	switch s {
	case "deployed":
		return engine.ResourceStatusActive
	case "failed":
		return engine.ResourceStatusFailed
	case "pending-install":
		return engine.ResourceStatusCreating
	case "pending-upgrade", "pending-rollback", "superseded":
		return engine.ResourceStatusUpdating
	case "uninstalling":
		return engine.ResourceStatusDeleting
	case "uninstalled":
		return engine.ResourceStatusAbsent
	default:
		return engine.ResourceStatusPending
	}
}
