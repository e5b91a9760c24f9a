package identity_test

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xingxinonline/landoubao-mem0/pkg/identity"
)

func TestDevicePrefix(t *testing.T) {
	d := identity.NewDeviceWithUUID("123e4567-e89b-12d3-a456-426614174000")
	assert.Equal(t, "123e4567", d.Prefix())

	// Empty UUID falls back to a generated one.
	generated := identity.NewDeviceWithUUID("")
	assert.Len(t, generated.Prefix(), 8)
}

func TestGenerateFormat(t *testing.T) {
	d := identity.NewDeviceWithUUID("123e4567-e89b-12d3-a456-426614174000")
	g, err := identity.NewGenerator(d, 1)
	require.NoError(t, err)

	id := g.Generate("alice")
	parts := strings.Split(id, "_")
	require.Len(t, parts, 4)
	assert.Equal(t, "123e4567", parts[0])
	assert.Equal(t, "alice", parts[1])
	assert.Len(t, parts[2], 13, "timestamp is zero padded")
	assert.Len(t, parts[3], 5, "sequence is zero padded")
}

func TestGenerateUniqueAndSortable(t *testing.T) {
	g, err := identity.NewGenerator(identity.NewDevice(), 2)
	require.NoError(t, err)

	ids := make([]string, 100)
	for i := range ids {
		ids[i] = g.Generate("alice")
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.True(t, sort.StringsAreSorted(ids), "ids for one user sort by creation order")
}

func TestParseRoundTrip(t *testing.T) {
	d := identity.NewDeviceWithUUID("123e4567-e89b-12d3-a456-426614174000")
	g, err := identity.NewGenerator(d, 1)
	require.NoError(t, err)

	parsed, err := identity.Parse(g.Generate("alice"))
	require.NoError(t, err)
	assert.Equal(t, "123e4567", parsed.Device)
	assert.Equal(t, "alice", parsed.User)

	// User IDs containing underscores survive the round trip.
	parsed, err = identity.Parse(g.Generate("team_lead_bob"))
	require.NoError(t, err)
	assert.Equal(t, "team_lead_bob", parsed.User)
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, id := range []string{"", "abc", "a_b", "a_b_c"} {
		_, err := identity.Parse(id)
		assert.Error(t, err, "id %q", id)
	}
}

func TestNewGeneratorRejectsBadNode(t *testing.T) {
	_, err := identity.NewGenerator(identity.NewDevice(), -1)
	assert.Error(t, err)
}
