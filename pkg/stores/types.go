package stores

import (
	"time"

	"github.com/openfroyo/clusterforge/pkg/engine"
)

// Defaults for the local backend.
const (
	DefaultVersion     = "1.31"
	DefaultRegion      = "us-east-1"
	DefaultAccountID   = "000000000000"
	DefaultSettleDelay = 2 * time.Second
)

// Cluster is a cluster row.
type Cluster struct {
	Name      string                 `json:"name"`
	RoleArn   string                 `json:"role_arn"`
	Version   string                 `json:"version"`
	VpcConfig map[string]interface{} `json:"vpc_config,omitempty"`
	Logging   map[string]interface{} `json:"logging,omitempty"`
	Status    engine.ResourceStatus  `json:"status"`
	SettlesAt time.Time              `json:"settles_at"`
	Endpoint  string                 `json:"endpoint"`
	Arn       string                 `json:"arn"`
	CAData    string                 `json:"ca_data"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Reconciliation is an audit record of one handled request.
type Reconciliation struct {
	ID          int64         `json:"id"`
	RequestID   string        `json:"request_id"`
	RequestType string        `json:"request_type"`
	LogicalID   string        `json:"logical_id"`
	Kind        string        `json:"kind"`
	PhysicalID  string        `json:"physical_id"`
	Status      string        `json:"status"`
	Reason      string        `json:"reason"`
	ErrorKind   string        `json:"error_kind,omitempty"`
	Duration    time.Duration `json:"duration"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Config holds SQLite store configuration
type Config struct {
	Path           string
	SettleDelay    time.Duration
	DefaultVersion string
	Region         string
	AccountID      string

	// Now overrides the clock (tests)
	Now func() time.Time
}
