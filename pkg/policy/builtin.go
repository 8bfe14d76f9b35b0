package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		clusterNamingPolicy(),
		releaseNamingPolicy(),
		versionPinningPolicy(),
	}
}

// clusterNamingPolicy enforces the cluster API's naming rules.
func clusterNamingPolicy() Policy {
	return Policy{
		Name:        "cluster-naming",
		Description: "Cluster names start with an alphanumeric character, contain only letters, digits, hyphens and underscores, and are at most 100 characters",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming", "cluster"},
		Rego: `package clusterforge.policies.cluster_naming

import rego.v1

# Deletes are not checked so that legacy names can always be removed.
applies if {
	input.request.kind == "cluster"
	input.request.type != "Delete"
}

deny contains violation if {
	applies
	name := input.request.identity
	not regex.match("^[0-9A-Za-z][A-Za-z0-9_-]*$", name)
	violation := {
		"message": sprintf("cluster name '%s' must start with a letter or digit and contain only letters, digits, hyphens and underscores", [name]),
		"severity": "error",
	}
}

deny contains violation if {
	applies
	name := input.request.identity
	count(name) > 100
	violation := {
		"message": sprintf("cluster name '%s' must be at most 100 characters", [name]),
		"severity": "error",
	}
}
`,
	}
}

// releaseNamingPolicy enforces DNS-1123 release names.
func releaseNamingPolicy() Policy {
	return Policy{
		Name:        "release-naming",
		Description: "Release names are DNS-1123 labels of at most 53 characters",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming", "chart"},
		Rego: `package clusterforge.policies.release_naming

import rego.v1

applies if {
	input.request.kind == "chart"
	input.request.type != "Delete"
}

deny contains violation if {
	applies
	name := input.chart.Release
	not regex.match("^[a-z0-9]([-a-z0-9]*[a-z0-9])?$", name)
	violation := {
		"message": sprintf("release name '%s' must consist of lowercase alphanumeric characters or '-', and start and end with an alphanumeric character", [name]),
		"severity": "error",
	}
}

deny contains violation if {
	applies
	name := input.chart.Release
	count(name) > 53
	violation := {
		"message": sprintf("release name '%s' must be at most 53 characters", [name]),
		"severity": "error",
	}
}
`,
	}
}

// versionPinningPolicy warns about clusters created without a version.
func versionPinningPolicy() Policy {
	return Policy{
		Name:        "version-pinning",
		Description: "Clusters should pin a version; an unpinned version cannot be pinned later without an upgrade",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"cluster", "versioning"},
		Rego: `package clusterforge.policies.version_pinning

import rego.v1

deny contains violation if {
	input.request.kind == "cluster"
	input.request.type == "Create"
	not input.cluster.version
	violation := {
		"message": sprintf("cluster '%s' does not pin a version", [input.request.identity]),
		"severity": "warning",
	}
}
`,
	}
}
