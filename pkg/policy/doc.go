// Package policy provides Open Policy Agent (OPA) admission policies for
// clusterforge change requests.
//
// Policies are evaluated after a request is classified and before any call
// to the cluster API or the deployment tool. A violation with severity
// "error" or "critical" denies the request with a PolicyViolation; lower
// severities are logged as warnings.
//
// # Input
//
// Every policy sees the same input document:
//
//	{
//	  "request":  {"type", "kind", "request_id", "stack_id", "logical_id",
//	               "resource_type", "physical_id", "identity"},
//	  "desired":  <ResourceProperties>,
//	  "previous": <OldResourceProperties>,
//	  "cluster":  <parsed cluster config, cluster requests only>,
//	  "chart":    <parsed chart config, chart requests only>
//	}
//
// # Built-in Policies
//
//  1. cluster-naming - cluster names the cluster API accepts
//  2. release-naming - DNS-1123 release names of at most 53 characters
//  3. version-pinning - warns when a cluster is created without a version
//
// # Custom Policies
//
// Custom policies are Rego files that define a deny set:
//
//	package custom.tags
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.request.kind == "cluster"
//	    not input.desired.Config.tags.team
//	    violation := {
//	        "message": "clusters must carry a team tag",
//	        "severity": "error",
//	    }
//	}
//
// Policies load from .rego files, single-policy .json files, and
// *.bundle.json bundles, given as files or directories.
package policy
