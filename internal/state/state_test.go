package state_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cspack/cspack/internal/state"
	"github.com/cspack/cspack/pkg/logger"
	"github.com/cspack/cspack/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RecordCountsRuns(t *testing.T) {
	root := t.TempDir()
	store := state.NewStore(root, logger.Nop())

	require.NoError(t, store.Record("build", state.Outcome{
		Status:      types.RunStatusSucceeded,
		BuildID:     "build-1",
		Duration:    time.Second,
		Archive:     "dist/acme.zip",
		ArchiveSize: 2048,
	}))
	require.NoError(t, store.Record("build", state.Outcome{
		Status: types.RunStatusFailed,
		Err:    errors.New("validate: component validation failed"),
	}))

	st, err := state.NewStore(root, logger.Nop()).Read("build")
	require.NoError(t, err)

	assert.Equal(t, types.RunStatusFailed, st.Status)
	assert.Equal(t, 2, st.RunCount)
	assert.Equal(t, 1, st.FailureCount)
	assert.Equal(t, "validate: component validation failed", st.LastError)
	assert.Equal(t, "dist/acme.zip", st.Archive, "a failed run keeps the last archive")
	assert.Equal(t, int64(2048), st.ArchiveSize)
	assert.Equal(t, "build-1", st.BuildID)
	assert.Zero(t, st.ProcessID)
}

func TestStore_SuccessClearsError(t *testing.T) {
	store := state.NewStore(t.TempDir(), logger.Nop())

	require.NoError(t, store.Record("validate", state.Outcome{Status: types.RunStatusFailed, Err: errors.New("boom")}))
	require.NoError(t, store.Record("validate", state.Outcome{Status: types.RunStatusSucceeded}))

	st, err := store.Read("validate")
	require.NoError(t, err)
	assert.Empty(t, st.LastError)
	assert.Equal(t, 1, st.FailureCount)
}

func TestStore_VerdictAndRelease(t *testing.T) {
	root := t.TempDir()
	store := state.NewStore(root, logger.Nop())
	passed := false

	require.NoError(t, store.Record("dev", state.Outcome{Status: types.RunStatusRunning}))
	require.NoError(t, store.Record("dev", state.Outcome{Status: types.RunStatusRunning, Verdict: &passed}))

	st, err := store.Read("dev")
	require.NoError(t, err)
	assert.True(t, state.IsActive(st))
	require.NotNil(t, st.LastVerdict)
	assert.False(t, *st.LastVerdict)
	assert.Zero(t, st.RunCount, "running is not a finished run")

	require.NoError(t, store.Release())

	st, err = state.NewStore(root, logger.Nop()).Read("dev")
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusIdle, st.Status)
	assert.False(t, state.IsActive(st))
}

func TestIsActive_StaleHeartbeat(t *testing.T) {
	st := &state.RunState{
		Status:    types.RunStatusRunning,
		ProcessID: 42,
		Heartbeat: time.Now().Add(-time.Minute),
	}
	assert.False(t, state.IsActive(st))
	assert.False(t, state.IsActive(nil))

	st.Heartbeat = time.Now()
	assert.True(t, state.IsActive(st))
}

func TestStore_Discover(t *testing.T) {
	root := t.TempDir()
	store := state.NewStore(root, logger.Nop())

	states, err := store.Discover()
	require.NoError(t, err)
	assert.Empty(t, states, "missing state dir is not an error")

	require.NoError(t, store.Record("build", state.Outcome{Status: types.RunStatusSucceeded}))
	require.NoError(t, store.Record("validate", state.Outcome{Status: types.RunStatusFailed}))

	dir := filepath.Join(root, filepath.FromSlash(state.Dir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	states, err = store.Discover()
	require.NoError(t, err)
	assert.Len(t, states, 2)
	assert.Contains(t, states, "build")
	assert.Contains(t, states, "validate")
}

func TestStore_Heartbeat(t *testing.T) {
	store := state.NewStore(t.TempDir(), logger.Nop())
	require.NoError(t, store.Record("dev", state.Outcome{Status: types.RunStatusRunning}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store.StartHeartbeat(ctx, "dev")
	store.StartHeartbeat(ctx, "dev")
	store.StopHeartbeat()
	store.StopHeartbeat()
}
