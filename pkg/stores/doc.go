// Package stores provides the SQLite-backed local backend for clusterforge.
// ClusterStore implements engine.ResourceManager with simulated transitional
// states that settle after a configurable delay, and keeps an audit trail of
// handled requests.
package stores
