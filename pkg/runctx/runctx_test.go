package runctx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSeedsDeterministically(t *testing.T) {
	a, err := New(Options{Seed: 42})
	require.NoError(t, err)
	b, err := New(Options{Seed: 42})
	require.NoError(t, err)

	require.Equal(t, a.Rand.Perm(10), b.Rand.Perm(10))
	require.NotEqual(t, a.RunID, b.RunID)
	require.Equal(t, 1, a.WorldSize)
	require.True(t, a.IsWorldProcessZero())
}

func TestProcessZero(t *testing.T) {
	rc, err := New(Options{Seed: 1, WorldSize: 4, ProcessIndex: 2})
	require.NoError(t, err)
	require.False(t, rc.IsWorldProcessZero())
}
