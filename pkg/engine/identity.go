package engine

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// MaxClusterNameLength is the longest cluster name the cluster API accepts.
const MaxClusterNameLength = 100

const tokenLength = 12

// identityNamespace seeds name-based UUIDs so tokens are stable across
// replays of the same request.
var identityNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/openfroyo/clusterforge/identity"))

var mintedSuffix = regexp.MustCompile(`-[0-9a-f]{12}$`)

// MintToken derives a short uniqueness token from a request id. The same
// request id always yields the same token.
func MintToken(requestID string) string {
	id := uuid.NewSHA1(identityNamespace, []byte(requestID))
	return strings.ReplaceAll(id.String(), "-", "")[:tokenLength]
}

// SynthesizeName returns the name of a cluster created without an explicit name.
func SynthesizeName(requestID string) string {
	return "cluster-" + MintToken(requestID)
}

// MintReplacementName derives a fresh name for a replacement resource from
// the current one. A token minted by an earlier replacement is dropped first
// so names do not grow on every replacement.
func MintReplacementName(current, requestID string) string {
	base := mintedSuffix.ReplaceAllString(current, "")
	token := MintToken(requestID)
	if maxBase := MaxClusterNameLength - tokenLength - 1; len(base) > maxBase {
		base = base[:maxBase]
	}
	return base + "-" + token
}

// InLineage reports whether physicalID is name itself or a name minted from it
// by MintReplacementName.
func InLineage(name, physicalID string) bool {
	if physicalID == name {
		return true
	}
	if !mintedSuffix.MatchString(physicalID) {
		return false
	}
	return mintedSuffix.ReplaceAllString(physicalID, "") == name
}
