package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMintToken(t *testing.T) {
	a := MintToken("req-1")
	assert.Len(t, a, tokenLength)
	assert.Equal(t, a, MintToken("req-1"))
	assert.NotEqual(t, a, MintToken("req-2"))
}

func TestMintReplacementName(t *testing.T) {
	token := MintToken("req-9")

	assert.Equal(t, "prod-"+token, MintReplacementName("prod", "req-9"))

	// A previously minted token is replaced, not stacked.
	first := MintReplacementName("prod", "req-1")
	assert.Equal(t, "prod-"+token, MintReplacementName(first, "req-9"))

	long := strings.Repeat("a", 120)
	got := MintReplacementName(long, "req-9")
	assert.Len(t, got, MaxClusterNameLength)
	assert.True(t, strings.HasSuffix(got, "-"+token))
}

func TestInLineage(t *testing.T) {
	minted := MintReplacementName("prod", "req-1")

	assert.True(t, InLineage("prod", "prod"))
	assert.True(t, InLineage("prod", minted))
	assert.False(t, InLineage("prod", "prod-east"))
	assert.False(t, InLineage("staging", minted))
	assert.False(t, InLineage("prod", "prod-"+strings.ToUpper(MintToken("req-1"))))
}
