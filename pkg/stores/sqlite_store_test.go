package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/clusterforge/pkg/engine"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) (*ClusterStore, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	store, err := Open(context.Background(), Config{
		Path:        ":memory:",
		SettleDelay: time.Minute,
		Now:         clock.Now,
	})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, clock
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	for _, table := range []string{"clusters", "reconciliations"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// A second run is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}
}

func TestClusterLifecycle(t *testing.T) {
	store, clock := setupTestStore(t)
	ctx := context.Background()

	id, err := store.CreateResource(ctx, &engine.ClusterConfig{
		Name:               "prod",
		RoleArn:            "arn:role",
		ResourcesVpcConfig: map[string]interface{}{"subnetIds": []interface{}{"subnet-a"}},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if id.Name != "prod" {
		t.Errorf("expected identity prod, got %s", id.Name)
	}

	obs, err := store.DescribeResource(ctx, "prod")
	if err != nil {
		t.Fatalf("describe failed: %v", err)
	}
	if obs.Status != engine.ResourceStatusCreating {
		t.Errorf("expected CREATING, got %s", obs.Status)
	}
	if obs.Attributes["Version"] != DefaultVersion {
		t.Errorf("expected default version, got %v", obs.Attributes["Version"])
	}
	if obs.Attributes["RoleArn"] != "arn:role" {
		t.Errorf("expected role arn, got %v", obs.Attributes["RoleArn"])
	}

	clock.Advance(time.Minute)
	obs, err = store.DescribeResource(ctx, "prod")
	if err != nil {
		t.Fatalf("describe failed: %v", err)
	}
	if obs.Status != engine.ResourceStatusActive {
		t.Errorf("expected ACTIVE after settle, got %s", obs.Status)
	}
	if obs.Attributes["Arn"] != "arn:aws:eks:us-east-1:000000000000:cluster/prod" {
		t.Errorf("unexpected arn %v", obs.Attributes["Arn"])
	}
	vpc, _ := obs.Attributes["ResourcesVpcConfig"].(map[string]interface{})
	if subnets, _ := vpc["subnetIds"].([]interface{}); len(subnets) != 1 || subnets[0] != "subnet-a" {
		t.Errorf("unexpected vpc config %v", obs.Attributes["ResourcesVpcConfig"])
	}

	if err := store.UpdateResource(ctx, "prod", "version", "1.32"); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	obs, _ = store.DescribeResource(ctx, "prod")
	if obs.Status != engine.ResourceStatusUpdating || obs.Attributes["Version"] != "1.32" {
		t.Errorf("expected UPDATING at 1.32, got %s at %v", obs.Status, obs.Attributes["Version"])
	}

	err = store.UpdateResource(ctx, "prod", "version", "1.33")
	if !engine.IsConflict(err) {
		t.Errorf("expected conflict updating a busy cluster, got %v", err)
	}

	clock.Advance(time.Minute)
	if err := store.DeleteResource(ctx, "prod"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	obs, err = store.DescribeResource(ctx, "prod")
	if err != nil || obs.Status != engine.ResourceStatusDeleting {
		t.Fatalf("expected DELETING, got %v %v", obs, err)
	}

	clock.Advance(time.Minute)
	_, err = store.DescribeResource(ctx, "prod")
	if !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("expected not found after delete settles, got %v", err)
	}
}

func TestCreateCollision(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.CreateResource(ctx, &engine.ClusterConfig{Name: "prod"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	_, err := store.CreateResource(ctx, &engine.ClusterConfig{Name: "prod"})
	if !errors.Is(err, engine.ErrAlreadyExists) {
		t.Errorf("expected already exists, got %v", err)
	}
}

func TestDeleteMissing(t *testing.T) {
	store, _ := setupTestStore(t)

	err := store.DeleteResource(context.Background(), "ghost")
	if !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestListClustersSkipsSettledDeletes(t *testing.T) {
	store, clock := setupTestStore(t)
	ctx := context.Background()

	for _, n := range []string{"b", "a", "c"} {
		if _, err := store.CreateResource(ctx, &engine.ClusterConfig{Name: n}); err != nil {
			t.Fatalf("create %s failed: %v", n, err)
		}
	}
	clock.Advance(time.Minute)
	if err := store.DeleteResource(ctx, "b"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	clock.Advance(time.Minute)

	clusters, err := store.ListClusters(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(clusters) != 2 || clusters[0].Name != "a" || clusters[1].Name != "c" {
		t.Errorf("unexpected clusters %+v", clusters)
	}
}

func TestReconciliationAudit(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	for i, status := range []string{"SUCCESS", "FAILED"} {
		r := &Reconciliation{
			RequestID:   "req-" + status,
			RequestType: "Create",
			LogicalID:   "Cluster",
			Kind:        "cluster",
			PhysicalID:  "prod",
			Status:      status,
			Reason:      "reason",
			Duration:    time.Duration(i+1) * time.Second,
		}
		if err := store.RecordReconciliation(ctx, r); err != nil {
			t.Fatalf("record failed: %v", err)
		}
		if r.ID == 0 {
			t.Errorf("expected id to be assigned")
		}
	}

	records, err := store.ListReconciliations(ctx, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Status != "FAILED" || records[0].Duration != 2*time.Second {
		t.Errorf("expected newest record first, got %+v", records[0])
	}
}

// TestStoreDrivesClusterExecutor runs a create through the engine against
// the local backend so the waiter sees the settle transition.
func TestStoreDrivesClusterExecutor(t *testing.T) {
	store, err := Open(context.Background(), Config{Path: ":memory:", SettleDelay: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	exec := engine.NewClusterExecutor(engine.ClusterExecutorOptions{
		Manager:    store,
		ActiveWait: engine.WaitSpec{PollInterval: 10 * time.Millisecond, MaxAttempts: 20},
		DeleteWait: engine.WaitSpec{PollInterval: 10 * time.Millisecond, MaxAttempts: 20},
		Logger:     zerolog.Nop(),
	})
	req := &engine.ChangeRequest{
		Type:      engine.RequestCreate,
		Kind:      engine.ResourceKindCluster,
		RequestID: "req-1",
		Identity:  engine.ResourceIdentity{Name: "local"},
		Cluster:   &engine.ClusterConfig{Name: "local"},
	}

	out, err := exec.Execute(context.Background(), req, engine.NewLifecycle(zerolog.Nop()))
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if out.PhysicalID != "local" || out.Data["Version"] != DefaultVersion {
		t.Errorf("unexpected outcome %+v", out)
	}
}
