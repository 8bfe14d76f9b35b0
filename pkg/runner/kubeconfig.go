package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// KubeconfigFileName is the credential file written into the work dir.
const KubeconfigFileName = "kubeconfig"

// KubeconfigBootstrapper establishes credentials for a target cluster by
// running `aws eks update-kubeconfig`. It remembers the last cluster it
// logged in to, so repeated calls within one invocation run the command once.
type KubeconfigBootstrapper struct {
	runner    *Runner
	awsBinary string
	path      string
	region    string

	mu   sync.Mutex
	last string
}

// NewKubeconfigBootstrapper creates a bootstrapper writing to workDir/kubeconfig.
func NewKubeconfigBootstrapper(r *Runner, awsBinary, workDir, region string) *KubeconfigBootstrapper {
	if awsBinary == "" {
		awsBinary = "aws"
	}
	return &KubeconfigBootstrapper{
		runner:    r,
		awsBinary: awsBinary,
		path:      filepath.Join(workDir, KubeconfigFileName),
		region:    region,
	}
}

// Path returns the kubeconfig path.
func (b *KubeconfigBootstrapper) Path() string {
	return b.path
}

// Args returns the update-kubeconfig arguments for a cluster.
func (b *KubeconfigBootstrapper) Args(clusterName, roleArn string) []string {
	args := []string{"eks", "update-kubeconfig"}
	if roleArn != "" {
		args = append(args, "--role-arn", roleArn)
	}
	args = append(args, "--name", clusterName, "--kubeconfig", b.path)
	if b.region != "" {
		args = append(args, "--region", b.region)
	}
	return args
}

// Ensure writes credentials for clusterName and returns the kubeconfig path.
func (b *KubeconfigBootstrapper) Ensure(ctx context.Context, clusterName, roleArn string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := clusterName + "|" + roleArn
	if b.last == key {
		return b.path, nil
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return "", fmt.Errorf("failed to create kubeconfig dir: %w", err)
	}
	cmd := Command{Name: b.awsBinary, Args: b.Args(clusterName, roleArn), Dir: filepath.Dir(b.path)}
	if _, err := b.runner.Run(ctx, cmd, true); err != nil {
		return "", fmt.Errorf("failed to update kubeconfig for cluster %s: %w", clusterName, err)
	}

	if err := os.Chmod(b.path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to restrict kubeconfig permissions: %w", err)
	}
	b.last = key
	return b.path, nil
}
