package coordinate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCoord() Coordinate {
	return Coordinate{
		Pillar:    "PL12.3.1",
		Sector:    "5415",
		Honeycomb: []string{"tagA", "tagB"},
		Branch:    "branch-1",
		Node:      "node-7",
		Temporal:  "2026-08-01",
	}
}

func TestRoundTrip(t *testing.T) {
	c := validCoord()
	encoded := c.Encode()
	parsed, err := Parse(encoded)
	require.NoError(t, err)
	assert.True(t, c.Equal(parsed))
	assert.Equal(t, encoded, parsed.Encode())
}

func TestValidatePillar(t *testing.T) {
	c := validCoord()
	c.Pillar = "BAD"
	assert.ErrorIs(t, c.Validate(), ErrInvalidCoordinate)
}

func TestValidateTemporalEventID(t *testing.T) {
	c := validCoord()
	c.Temporal = "incident-2026-08-01_rollback"
	assert.NoError(t, c.Validate())
}

func TestHashStableForEqualEncoding(t *testing.T) {
	c1 := validCoord()
	c2 := validCoord()
	assert.Equal(t, c1.Hash(), c2.Hash())
}

func TestHashDiffersOnAnyFieldChange(t *testing.T) {
	c1 := validCoord()
	c2 := validCoord()
	c2.Node = "node-8"
	assert.NotEqual(t, c1.Hash(), c2.Hash())
}

func TestParseRejectsWrongFieldCount(t *testing.T) {
	_, err := Parse("PL1|a|b")
	assert.ErrorIs(t, err, ErrInvalidCoordinate)
}

func TestUnifiedSystemID(t *testing.T) {
	c := validCoord()
	id := c.UnifiedSystemID()
	assert.Len(t, id, 64)
}
