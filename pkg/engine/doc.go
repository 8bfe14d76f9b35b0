// Package engine provides the reconciliation core of clusterforge.
//
// # Overview
//
// clusterforge answers custom-resource change requests issued by a stack
// orchestrator. Each inbound event moves through a fixed pipeline:
//
//  1. Classify - validate the envelope and derive the resource identity (Classifier)
//  2. Admit - evaluate admission policies on the classified request (AdmissionPolicy)
//  3. Decide - choose create, in-place update, replacement or delete (Evaluator)
//  4. Execute - drive the resource manager or deployment tool (Executor)
//  5. Converge - poll until the resource settles (Waiter)
//  6. Report - deliver exactly one response to the orchestrator (Reporter)
//
// # Resource Kinds
//
//   - cluster: reconciled by ClusterExecutor through a ResourceManager
//   - chart: reconciled by ChartExecutor through a DeploymentTool
//
// # Identity
//
// A cluster is named by its configuration, by its existing physical id, or,
// on Create, by a name derived from the request id. The derived name is a
// pure function of the request id, so a replayed Create converges on the
// same cluster. When an update requires replacement and the name is
// unchanged, a new name is minted from the request id and the old cluster is
// left for the orchestrator to delete.
//
// # Lifecycle
//
// Every request walks a small state machine:
//
//	start -> {creating | deleting | deciding} -> converging -> reporting -> done
//
// with failed reachable from every state.
//
// # Error Classification
//
// Errors carry two tags. The class (transient, throttled, conflict,
// permanent) decides whether a polling loop may swallow them. The kind
// (validation, invariant, policy, convergence_timeout, command, transport,
// ...) decides how they are reported. Only two loops retry: convergence
// polling on transient poll errors, and the command runner on a known
// transient output signature.
//
// # Usage Example
//
//	classifier := engine.NewClassifier(engine.ClassifierOptions{Kind: engine.ResourceKindAuto})
//	reconciler := engine.NewReconciler(engine.ReconcilerOptions{
//	    Classifier: classifier,
//	    Executors: map[engine.ResourceKind]engine.Executor{
//	        engine.ResourceKindCluster: engine.NewClusterExecutor(engine.ClusterExecutorOptions{Manager: manager}),
//	    },
//	    Reporter: reporter,
//	})
//	result := reconciler.Handle(ctx, event)
//	if !result.Succeeded() {
//	    log.Error().Err(result.Err).Msg("request failed")
//	}
package engine
