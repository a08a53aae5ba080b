package task

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangePrefix(t *testing.T) {
	ts, err := NewMemoryTaskStorage()
	require.NoError(t, err)
	defer ts.Close()

	id := "testing123"
	require.NoError(t, ts.Put(QUEUEPREFIX, &Task{ID: id}))
	require.NoError(t, ts.ChangePrefix(CURRENTPREFIX, QUEUEPREFIX, id))

	_, err = ts.Get(QUEUEPREFIX, id)
	assert.Equal(t, ErrNotFound, err)

	tsk, err := ts.Get(CURRENTPREFIX, id)
	require.NoError(t, err)
	assert.Equal(t, id, tsk.ID)
}

func TestAppendTaskStateRelocates(t *testing.T) {
	ts, err := NewMemoryTaskStorage()
	require.NoError(t, err)
	defer ts.Close()

	id := "reloc"
	require.NoError(t, ts.PersistNew(&Task{ID: id, States: scheduledAt(time.Now().UTC())}))

	// scheduled -> processing moves the record to the current prefix.
	require.NoError(t, ts.AppendTaskState(id, StateProcessing))
	tsk, err := ts.Get(CURRENTPREFIX, id)
	require.NoError(t, err)
	assert.Len(t, tsk.States, 2)
	assert.Equal(t, StateProcessing, tsk.State().State)

	// processing -> complete archives it.
	require.NoError(t, ts.AppendTaskState(id, StateComplete))
	tsk, err = ts.Get(ARCHIVEPREFIX, id)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, tsk.State().State)
}

func TestMarkCompleted(t *testing.T) {
	ts, err := NewMemoryTaskStorage()
	require.NoError(t, err)
	defer ts.Close()

	id := "done"
	require.NoError(t, ts.PersistNew(&Task{ID: id, States: scheduledAt(time.Now().UTC())}))
	require.NoError(t, ts.AppendTaskState(id, StateProcessing))

	require.NoError(t, ts.MarkCompleted(id, nil, map[string]interface{}{"outcome": "success"}))

	tsk, err := ts.Get(ARCHIVEPREFIX, id)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, tsk.State().State)
	assert.Empty(t, tsk.Error)
	assert.NotNil(t, tsk.Result)
}

func TestMarkCompletedCanceled(t *testing.T) {
	ts, err := NewMemoryTaskStorage()
	require.NoError(t, err)
	defer ts.Close()

	id := "killed"
	require.NoError(t, ts.PersistNew(&Task{ID: id, States: scheduledAt(time.Now().UTC())}))
	require.NoError(t, ts.AppendTaskState(id, StateProcessing))

	require.NoError(t, ts.MarkCompleted(id, fmt.Errorf("run aborted: %w", context.Canceled), nil))

	tsk, err := ts.Get(ARCHIVEPREFIX, id)
	require.NoError(t, err)
	assert.Equal(t, StateCanceled, tsk.State().State)
	assert.True(t, tsk.IsCanceled())
	assert.Contains(t, tsk.Error, "run aborted")
}

func TestRangeFiltersByCreationTime(t *testing.T) {
	ts, err := NewMemoryTaskStorage()
	require.NoError(t, err)
	defer ts.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("t%d", i)
		created := base.AddDate(0, 0, i)
		require.NoError(t, ts.Put(ARCHIVEPREFIX, &Task{ID: id, States: scheduledAt(created)}))
	}

	got, err := ts.Range(ARCHIVEPREFIX, base.AddDate(0, 0, 1), base.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Len(t, got, 3)

	// oldest first.
	assert.Equal(t, "t1", got[0].ID)
	assert.Equal(t, "t3", got[2].ID)
}

func TestArchiveEviction(t *testing.T) {
	ts, err := NewMemoryTaskStorage()
	require.NoError(t, err)
	defer ts.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < ArchiveKeepCount+3; i++ {
		id := fmt.Sprintf("t%04d", i)
		require.NoError(t, ts.Put(ARCHIVEPREFIX, &Task{ID: id, States: scheduledAt(base.Add(time.Duration(i) * time.Minute))}))
	}

	// completing one more task triggers eviction of the oldest entries.
	id := "fresh"
	require.NoError(t, ts.PersistNew(&Task{ID: id, States: scheduledAt(base.Add(time.Hour * 24))}))
	require.NoError(t, ts.MarkCompleted(id, nil, nil))

	all, err := ts.Range(ARCHIVEPREFIX, time.Time{}, base.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Len(t, all, ArchiveKeepCount)

	// the oldest ones are gone, the newest survives.
	_, err = ts.Get(ARCHIVEPREFIX, "t0000")
	assert.Equal(t, ErrNotFound, err)
	_, err = ts.Get(ARCHIVEPREFIX, "fresh")
	assert.NoError(t, err)
}
