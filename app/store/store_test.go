package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("creates file and schema", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "data", "test.db")
		s, err := New(dbPath)
		require.NoError(t, err)
		defer s.Close()

		for _, table := range []string{"swarm_state", "agent_interactions", "task_history", "performance_metrics"} {
			var count int
			err = s.db.Get(&count, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table)
			require.NoError(t, err)
			assert.Equal(t, 1, count, "table %s missing", table)
		}
	})

	t.Run("unwritable path", func(t *testing.T) {
		_, err := New("/proc/nope/test.db")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInit)
	})

	t.Run("corrupt file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "garbage.db")
		require.NoError(t, os.WriteFile(dbPath, []byte("this is not a sqlite file at all, padded to enough bytes"), 0o600))
		_, err := New(dbPath)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInit)
	})
}

func TestNew_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s1, err := New(dbPath)
	require.NoError(t, err)
	s1.RecordState("INIT", "starting", 0)
	require.NoError(t, s1.Close())

	// second init on the same path is a no-op beyond schema re-validation
	s2, err := New(dbPath)
	require.NoError(t, err)
	defer s2.Close()

	states, err := s2.States()
	require.NoError(t, err)
	require.Len(t, states, 1, "existing rows survive re-init")
	assert.Equal(t, "INIT", states[0].State)
}

func TestStore_RecordState(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer s.Close()

	s.RecordState("SWARM_RUNNING", "ready", 2)
	s.RecordState("", "ready", 2)    // rejected, empty state
	s.RecordState("INIT", "", 2)     // rejected, empty queen status
	s.RecordState("INIT", "ok", -1)  // rejected, negative workers

	states, err := s.States()
	require.NoError(t, err)
	require.Len(t, states, 1, "malformed records must not persist")
	assert.Equal(t, "SWARM_RUNNING", states[0].State)
	assert.Equal(t, "ready", states[0].QueenStatus)
	assert.Equal(t, 2, states[0].WorkerCount)
	assert.Positive(t, states[0].Timestamp)
}

func TestStore_RecordInteraction(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer s.Close()

	s.RecordInteraction("queen", "forager", "gather", "task-1")
	s.RecordInteraction("queen", "swarm", "handoff", "") // task id optional
	s.RecordInteraction("", "forager", "gather", "task-1")

	recs, err := s.Interactions()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.NotNil(t, recs[0].TaskID)
	assert.Equal(t, "task-1", *recs[0].TaskID)
	assert.Nil(t, recs[1].TaskID)
	assert.Positive(t, recs[0].Timestamp)
}

func TestStore_RecordTask(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer s.Close()

	s.RecordTask("task-1", "swarm run", "queen", TaskRunning, "")
	s.RecordTask("task-1", "swarm run", "queen", TaskDone, "exit code 0")
	s.RecordTask("task-2", "x", "queen", "exploded", "") // unknown status rejected
	s.RecordTask("", "x", "queen", TaskPending, "")      // empty task id rejected

	recs, err := s.Tasks()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Nil(t, recs[0].Result, "empty result persisted as NULL")
	require.NotNil(t, recs[1].Result)
	assert.Equal(t, "exit code 0", *recs[1].Result)
}

func TestStore_RecordMetric(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer s.Close()

	s.RecordMetric("service:memstore", "task-1", 1500*time.Millisecond, 4096, true)
	s.RecordMetric("", "task-1", time.Second, 0, true)            // rejected
	s.RecordMetric("swarm", "task-1", -time.Second, 0, true)      // rejected
	s.RecordMetric("swarm", "", time.Second, 0, false)            // rejected

	recs, err := s.Metrics()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.InDelta(t, 1.5, recs[0].ExecutionTime, 0.0001)
	assert.EqualValues(t, 4096, recs[0].TokensUsed)
	assert.True(t, recs[0].Success)
}

func TestStore_CloseTwice(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close is a no-op")

	s.RecordState("INIT", "starting", 0) // write after close swallowed, no panic
}

func TestStore_NilSafe(t *testing.T) {
	var s *Store
	s.RecordState("INIT", "starting", 0)
	s.RecordInteraction("a", "b", "m", "")
	s.RecordTask("t", "d", "a", TaskPending, "")
	s.RecordMetric("a", "t", time.Second, 0, true)
	assert.NoError(t, s.Close())
}
