package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/clusterforge/pkg/engine"
)

func fullChart() *engine.ChartConfig {
	return &engine.ChartConfig{
		ClusterName:     "prod",
		RoleArn:         "arn:aws:iam::1:role/admin",
		Release:         "web",
		Chart:           "nginx",
		Version:         "1.2.3",
		Namespace:       "apps",
		Repository:      "https://charts.example.com",
		Values:          `{"replicaCount": 2}`,
		Wait:            true,
		Timeout:         "5m",
		CreateNamespace: true,
	}
}

func TestUpgradeArgs_Order(t *testing.T) {
	args := UpgradeArgs(fullChart(), "/tmp/x/values.yaml", "/tmp/kubeconfig")

	assert.Equal(t, []string{
		"upgrade", "web", "nginx", "--install",
		"--create-namespace",
		"--repo", "https://charts.example.com",
		"--values", "/tmp/x/values.yaml",
		"--version", "1.2.3",
		"--namespace", "apps",
		"--wait",
		"--timeout", "5m",
		"--kubeconfig", "/tmp/kubeconfig",
	}, args)
}

func TestUpgradeArgs_Minimal(t *testing.T) {
	args := UpgradeArgs(&engine.ChartConfig{Release: "web", Chart: "nginx"}, "", "/k")

	assert.Equal(t, []string{"upgrade", "web", "nginx", "--install", "--kubeconfig", "/k"}, args)
}

func TestUninstallArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"uninstall", "web", "--namespace", "apps", "--timeout", "5m", "--kubeconfig", "/k"},
		UninstallArgs(fullChart(), "/k"))
}

func TestMapReleaseStatus(t *testing.T) {
	tests := map[string]engine.ResourceStatus{
		"deployed":         engine.ResourceStatusActive,
		"failed":           engine.ResourceStatusFailed,
		"pending-install":  engine.ResourceStatusCreating,
		"pending-upgrade":  engine.ResourceStatusUpdating,
		"pending-rollback": engine.ResourceStatusUpdating,
		"superseded":       engine.ResourceStatusUpdating,
		"uninstalling":     engine.ResourceStatusDeleting,
		"uninstalled":      engine.ResourceStatusAbsent,
		"unknown":          engine.ResourceStatusPending,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, MapReleaseStatus(in))
		})
	}
}

func TestHelmTool_UpgradeWritesValuesAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	var valuesSeen string
	var calls []Command
	execFn := func(_ context.Context, cmd Command) ([]byte, error) {
		calls = append(calls, cmd)
		for i, a := range cmd.Args {
			if a == "--values" {
				data, err := os.ReadFile(cmd.Args[i+1])
				require.NoError(t, err)
				valuesSeen = string(data)
			}
		}
		return []byte("ok"), nil
	}
	r := New(Options{Exec: execFn, Logger: zerolog.Nop()})
	tool := NewHelmTool(HelmOptions{
		WorkDir:    dir,
		Runner:     r,
		Kubeconfig: NewKubeconfigBootstrapper(r, "aws", dir, ""),
		Logger:     zerolog.Nop(),
	})

	out, err := tool.UpgradeOrInstall(context.Background(), fullChart())

	require.NoError(t, err)
	assert.True(t, out.Succeeded)
	require.Len(t, calls, 2)
	assert.Equal(t, "aws", calls[0].Name)
	assert.Equal(t, "helm", calls[1].Name)
	assert.Equal(t, "replicaCount: 2\n", valuesSeen)
	assert.Equal(t, filepath.Join(dir, KubeconfigFileName), calls[1].Args[len(calls[1].Args)-1])

	_, err = os.Stat(calls[1].Dir)
	assert.True(t, os.IsNotExist(err))
}

func TestHelmTool_Status(t *testing.T) {
	dir := t.TempDir()
	execFn := func(_ context.Context, cmd Command) ([]byte, error) {
		if cmd.Name == "aws" {
			return nil, nil
		}
		if cmd.Args[1] == "missing" {
			return []byte("Error: release: not found"), errExit
		}
		return []byte(`{"name":"web","namespace":"apps","version":4,"info":{"status":"deployed"}}`), nil
	}
	r := New(Options{Exec: execFn, Logger: zerolog.Nop()})
	tool := NewHelmTool(HelmOptions{WorkDir: dir, Runner: r, Kubeconfig: NewKubeconfigBootstrapper(r, "aws", dir, ""), Logger: zerolog.Nop()})

	obs, err := tool.Status(context.Background(), fullChart())
	require.NoError(t, err)
	assert.Equal(t, engine.ResourceStatusActive, obs.Status)
	assert.Equal(t, 4, obs.Attributes["Revision"])

	missing := fullChart()
	missing.Release = "missing"
	obs, err = tool.Status(context.Background(), missing)
	require.NoError(t, err)
	assert.Equal(t, engine.ResourceStatusAbsent, obs.Status)
}

func TestHelmTool_UninstallSurfacesOutput(t *testing.T) {
	dir := t.TempDir()
	execFn := func(_ context.Context, cmd Command) ([]byte, error) {
		if cmd.Name == "aws" {
			return nil, nil
		}
		return []byte("Error: uninstall: Release not loaded: web: release: not found"), errExit
	}
	r := New(Options{Exec: execFn, Logger: zerolog.Nop()})
	tool := NewHelmTool(HelmOptions{WorkDir: dir, Runner: r, Kubeconfig: NewKubeconfigBootstrapper(r, "aws", dir, ""), Logger: zerolog.Nop()})

	out, err := tool.Uninstall(context.Background(), fullChart())

	require.Error(t, err)
	assert.True(t, strings.Contains(string(out.Output), "release: not found"))
}
