// Package config provides the runtime configuration and the property
// schemas of clusterforge.
//
// # Runtime configuration
//
// Load builds a Config with viper from, in increasing precedence, built-in
// defaults, an optional clusterforge.yaml, CLUSTERFORGE_* environment
// variables and command-line flags. Nested keys use underscores in the
// environment:
//
//	CLUSTERFORGE_ACTIVE_WAIT_MAX_ATTEMPTS=40
//	CLUSTERFORGE_TELEMETRY_LOGGING_LEVEL=debug
//
// The variables the handlers have always read keep working: TEST_OUTDIR,
// CLUSTER_NAME, AWS_REGION and AWS_LAMBDA_LOG_STREAM_NAME.
//
// A Config is validated with validator/v10 and then passed explicitly; no
// package reads the environment on its own.
//
// # Property schemas
//
// SchemaRegistry holds CUE definitions for the resource properties of each
// request kind and implements engine.PropertySchema:
//
//	schemas := config.NewSchemaRegistry()
//	classifier := engine.NewClassifier(engine.ClassifierOptions{
//	    Schema: schemas,
//	})
//
// The built-in #ClusterProperties and #ChartProperties are open, so fields
// newer than the schema are passed through. Booleans are accepted as
// strings because the orchestrator stringifies scalar properties.
package config
