package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	"github.com/openfroyo/clusterforge/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ClusterStore implements engine.ResourceManager on SQLite.
type ClusterStore struct {
	db  *sql.DB
	cfg Config
}

// NewClusterStore creates a new cluster store instance
func NewClusterStore(cfg Config) (*ClusterStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.DefaultVersion == "" {
		cfg.DefaultVersion = DefaultVersion
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.AccountID == "" {
		cfg.AccountID = DefaultAccountID
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ClusterStore{cfg: cfg}, nil
}

// Init opens the database connection.
func (s *ClusterStore) Init(ctx context.Context) error {
	dsn := s.cfg.Path + "?_pragma=busy_timeout(5000)"
	if s.cfg.Path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Open initializes and migrates a store in one call.
func Open(ctx context.Context, cfg Config) (*ClusterStore, error) {
	s, err := NewClusterStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *ClusterStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *ClusterStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy
func (s *ClusterStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// CreateResource inserts a CREATING cluster.
func (s *ClusterStore) CreateResource(ctx context.Context, cfg *engine.ClusterConfig) (engine.ResourceIdentity, error) {
	if cfg.Name == "" {
		return engine.ResourceIdentity{}, engine.NewValidationError("cluster name is required", nil)
	}

	version := cfg.Version
	if version == "" {
		version = s.cfg.DefaultVersion
	}
	vpc, err := json.Marshal(cfg.ResourcesVpcConfig)
	if err != nil {
		return engine.ResourceIdentity{}, fmt.Errorf("failed to encode vpc config: %w", err)
	}
	logging, err := json.Marshal(cfg.Logging)
	if err != nil {
		return engine.ResourceIdentity{}, fmt.Errorf("failed to encode logging: %w", err)
	}

	now := s.cfg.Now()
	query := `
		INSERT INTO clusters (
			name, role_arn, version, vpc_config, logging, status, settles_at,
			endpoint, arn, ca_data, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		cfg.Name,
		cfg.RoleArn,
		version,
		string(vpc),
		string(logging),
		string(engine.ResourceStatusCreating),
		now.Add(s.cfg.SettleDelay).UnixNano(),
		s.endpoint(cfg.Name),
		fmt.Sprintf("arn:aws:eks:%s:%s:cluster/%s", s.cfg.Region, s.cfg.AccountID, cfg.Name),
		base64.StdEncoding.EncodeToString([]byte("local-ca:"+cfg.Name)),
		now.UnixNano(),
		now.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return engine.ResourceIdentity{}, engine.NewAlreadyExistsError(cfg.Name, err)
		}
		return engine.ResourceIdentity{}, fmt.Errorf("failed to create cluster: %w", err)
	}

	return engine.ResourceIdentity{Name: cfg.Name}, nil
}

// UpdateResource starts an in-place update of version or logging.
func (s *ClusterStore) UpdateResource(ctx context.Context, name, field string, value interface{}) error {
	c, err := s.GetCluster(ctx, name)
	if err != nil {
		return err
	}
	if c.Status != engine.ResourceStatusActive {
		return engine.NewConflictError(
			fmt.Sprintf("cluster %s is %s and cannot be updated", name, c.Status), nil).WithResource(name)
	}

	var column string
	var arg interface{}
	switch field {
	case "version":
		v, ok := value.(string)
		if !ok || v == "" {
			return engine.NewValidationError(fmt.Sprintf("invalid version %v", value), nil)
		}
		column, arg = "version", v
	case "logging":
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode logging: %w", err)
		}
		column, arg = "logging", string(data)
	default:
		return engine.NewInvariantViolation(fmt.Sprintf("field %q cannot be updated in place", field))
	}

	now := s.cfg.Now()
	query := `UPDATE clusters SET ` + column + ` = ?, status = ?, settles_at = ?, updated_at = ? WHERE name = ?`
	if _, err := s.db.ExecContext(ctx, query,
		arg,
		string(engine.ResourceStatusUpdating),
		now.Add(s.cfg.SettleDelay).UnixNano(),
		now.UnixNano(),
		name,
	); err != nil {
		return fmt.Errorf("failed to update cluster: %w", err)
	}
	return nil
}

// DeleteResource marks a cluster DELETING.
func (s *ClusterStore) DeleteResource(ctx context.Context, name string) error {
	c, err := s.GetCluster(ctx, name)
	if err != nil {
		return err
	}
	if c.Status == engine.ResourceStatusDeleting {
		return nil
	}

	now := s.cfg.Now()
	query := `UPDATE clusters SET status = ?, settles_at = ?, updated_at = ? WHERE name = ?`
	if _, err := s.db.ExecContext(ctx, query,
		string(engine.ResourceStatusDeleting),
		now.Add(s.cfg.SettleDelay).UnixNano(),
		now.UnixNano(),
		name,
	); err != nil {
		return fmt.Errorf("failed to delete cluster: %w", err)
	}
	return nil
}

// DescribeResource returns the cluster's status after settling it.
func (s *ClusterStore) DescribeResource(ctx context.Context, name string) (*engine.Observation, error) {
	c, err := s.GetCluster(ctx, name)
	if err != nil {
		return nil, err
	}
	return &engine.Observation{
		Status: c.Status,
		Attributes: map[string]interface{}{
			"Name":                     c.Name,
			"Endpoint":                 c.Endpoint,
			"Arn":                      c.Arn,
			"CertificateAuthorityData": c.CAData,
			"Version":                  c.Version,
			"RoleArn":                  c.RoleArn,
			"ResourcesVpcConfig":       c.VpcConfig,
		},
	}, nil
}

// GetCluster loads a cluster, settling any transitional status that is due.
func (s *ClusterStore) GetCluster(ctx context.Context, name string) (*Cluster, error) {
	c, err := s.getCluster(ctx, name)
	if err != nil {
		return nil, err
	}

	if !c.Status.IsTransitional() || s.cfg.Now().Before(c.SettlesAt) {
		return c, nil
	}

	if c.Status == engine.ResourceStatusDeleting {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM clusters WHERE name = ?`, name); err != nil {
			return nil, fmt.Errorf("failed to remove cluster: %w", err)
		}
		return nil, engine.NewNotFoundError(name, nil)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE clusters SET status = ?, updated_at = ? WHERE name = ?`,
		string(engine.ResourceStatusActive), s.cfg.Now().UnixNano(), name); err != nil {
		return nil, fmt.Errorf("failed to settle cluster: %w", err)
	}
	c.Status = engine.ResourceStatusActive
	return c, nil
}

// ListClusters lists all clusters ordered by name.
func (s *ClusterStore) ListClusters(ctx context.Context) ([]*Cluster, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM clusters ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan cluster: %w", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating clusters: %w", err)
	}
	rows.Close()

	clusters := make([]*Cluster, 0, len(names))
	for _, n := range names {
		c, err := s.GetCluster(ctx, n)
		if errors.Is(err, engine.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, c)
	}
	return clusters, nil
}

func (s *ClusterStore) getCluster(ctx context.Context, name string) (*Cluster, error) {
	query := `
		SELECT name, role_arn, version, vpc_config, logging, status, settles_at,
			endpoint, arn, ca_data, created_at, updated_at
		FROM clusters
		WHERE name = ?
	`

	var (
		c                             Cluster
		vpc, logging, status          string
		settlesAt, created, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&c.Name,
		&c.RoleArn,
		&c.Version,
		&vpc,
		&logging,
		&status,
		&settlesAt,
		&c.Endpoint,
		&c.Arn,
		&c.CAData,
		&created,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, engine.NewNotFoundError(name, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cluster: %w", err)
	}

	if err := json.Unmarshal([]byte(vpc), &c.VpcConfig); err != nil {
		return nil, fmt.Errorf("failed to decode vpc config: %w", err)
	}
	if err := json.Unmarshal([]byte(logging), &c.Logging); err != nil {
		return nil, fmt.Errorf("failed to decode logging: %w", err)
	}
	c.Status = engine.ResourceStatus(status)
	c.SettlesAt = time.Unix(0, settlesAt)
	c.CreatedAt = time.Unix(0, created)
	c.UpdatedAt = time.Unix(0, updatedAt)
	return &c, nil
}

// RecordReconciliation appends an audit record.
func (s *ClusterStore) RecordReconciliation(ctx context.Context, r *Reconciliation) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.cfg.Now()
	}
	query := `
		INSERT INTO reconciliations (
			request_id, request_type, logical_id, kind, physical_id, status,
			reason, error_kind, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query,
		r.RequestID,
		r.RequestType,
		r.LogicalID,
		r.Kind,
		r.PhysicalID,
		r.Status,
		r.Reason,
		r.ErrorKind,
		r.Duration.Milliseconds(),
		r.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record reconciliation: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		r.ID = id
	}
	return nil
}

// ListReconciliations returns the most recent audit records first.
func (s *ClusterStore) ListReconciliations(ctx context.Context, limit int) ([]*Reconciliation, error) {
	query := `
		SELECT id, request_id, request_type, logical_id, kind, physical_id, status,
			reason, error_kind, duration_ms, created_at
		FROM reconciliations
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliations: %w", err)
	}
	defer rows.Close()

	records := []*Reconciliation{}
	for rows.Next() {
		r := &Reconciliation{}
		var durationMS, created int64
		if err := rows.Scan(
			&r.ID,
			&r.RequestID,
			&r.RequestType,
			&r.LogicalID,
			&r.Kind,
			&r.PhysicalID,
			&r.Status,
			&r.Reason,
			&r.ErrorKind,
			&durationMS,
			&created,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.CreatedAt = time.Unix(0, created)
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reconciliations: %w", err)
	}

	return records, nil
}

func (s *ClusterStore) endpoint(name string) string {
	id := uuid.NewSHA1(uuid.NameSpaceDNS, []byte(name))
	return fmt.Sprintf("https://%s.local.clusterforge", strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")))
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
