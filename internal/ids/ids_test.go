package ids

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/automata/internal/apperrors"
)

func TestNewIsUniqueAndVersion7(t *testing.T) {
	seen := make(map[uuid.UUID]struct{}, 1000)
	for range 1000 {
		id := New()
		assert.Equal(t, uuid.Version(7), id.Version())
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestNewSortsByCreation(t *testing.T) {
	a := New()
	b := New()
	// The leading 48 bits are a millisecond timestamp, so a later ID never
	// sorts before an earlier one from a different millisecond.
	assert.LessOrEqual(t, a.Time(), b.Time())
}

func TestParse(t *testing.T) {
	id := New()
	got, err := Parse("version_id", "  "+id.String()+" ")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	for _, bad := range []string{"", "   ", "not-a-uuid", uuid.Nil.String()} {
		_, err := Parse("version_id", bad)
		assert.ErrorIs(t, err, apperrors.ErrValidation, "input %q", bad)
	}
}

func TestParseOptional(t *testing.T) {
	got, err := ParseOptional("version_id", "")
	require.NoError(t, err)
	assert.Nil(t, got)

	id := New()
	got, err = ParseOptional("version_id", id.String())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, *got)

	_, err = ParseOptional("version_id", "bogus")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
