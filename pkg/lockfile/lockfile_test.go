package lockfile_test

import (
	"testing"

	"github.com/atomicobject/fsminer/pkg/lockfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireThenReleaseAllowsReacquire(t *testing.T) {
	l, err := lockfile.Acquire()
	require.NoError(t, err)
	require.NoError(t, l.Release())

	l2, err := lockfile.Acquire()
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}

func TestSecondAcquireFailsWhileHeld(t *testing.T) {
	l, err := lockfile.Acquire()
	require.NoError(t, err)
	defer l.Release()

	_, err = lockfile.Acquire()
	assert.ErrorIs(t, err, lockfile.ErrHeld)
}
