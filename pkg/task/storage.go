package task

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Tasks are keyed by <prefix><task id>. The prefix encodes the coarse state,
// so that the queue can be rebuilt on startup and archived tasks can be
// enumerated cheaply.
const (
	QUEUEPREFIX   = "queue:"
	CURRENTPREFIX = "current:"
	ARCHIVEPREFIX = "archive:"
)

// ArchiveKeepCount bounds how many archived tasks are retained. Oldest
// entries are evicted first.
const ArchiveKeepCount = 512

var ErrNotFound = errors.New("task not found")

// Storage is the persistence layer for tasks, backed by leveldb. Scheduled
// tasks live under the queue prefix, claimed tasks under current, and
// finished ones under archive. A task is always stored whole; state
// transitions rewrite it under the new prefix.
type Storage struct {
	db *leveldb.DB
}

// NewTaskStorage opens (or creates) an on-disk task database.
func NewTaskStorage(path string) (*Storage, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Storage{db}, nil
}

// NewMemoryTaskStorage returns a Storage that evaporates on process exit.
func NewMemoryTaskStorage() (*Storage, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Storage{db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// Put stores the task under the given prefix.
func (s *Storage) Put(prefix string, tsk *Task) error {
	val, err := json.Marshal(tsk)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(prefix+tsk.ID), val, &opt.WriteOptions{Sync: true})
}

// Get returns the task stored under the given prefix.
func (s *Storage) Get(prefix string, id string) (*Task, error) {
	val, err := s.db.Get([]byte(prefix+id), nil)
	switch {
	case err == leveldb.ErrNotFound:
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}

	tsk := new(Task)
	if err := json.Unmarshal(val, tsk); err != nil {
		return nil, err
	}
	return tsk, nil
}

// Delete removes the task stored under the given prefix.
func (s *Storage) Delete(prefix string, id string) error {
	return s.db.Delete([]byte(prefix+id), &opt.WriteOptions{Sync: true})
}

// ChangePrefix atomically moves a task from one prefix to another.
func (s *Storage) ChangePrefix(to string, from string, id string) error {
	val, err := s.db.Get([]byte(from+id), nil)
	switch {
	case err == leveldb.ErrNotFound:
		return ErrNotFound
	case err != nil:
		return err
	}

	batch := new(leveldb.Batch)
	batch.Delete([]byte(from + id))
	batch.Put([]byte(to+id), val)
	return s.db.Write(batch, &opt.WriteOptions{Sync: true})
}

// PersistNew stores a freshly scheduled task.
func (s *Storage) PersistNew(tsk *Task) error {
	return s.Put(QUEUEPREFIX, tsk)
}

// find locates a task regardless of its prefix, checking the most likely
// locations first.
func (s *Storage) find(id string) (*Task, string, error) {
	for _, prefix := range []string{CURRENTPREFIX, QUEUEPREFIX, ARCHIVEPREFIX} {
		tsk, err := s.Get(prefix, id)
		if err == nil {
			return tsk, prefix, nil
		}
		if err != ErrNotFound {
			return nil, "", err
		}
	}
	return nil, "", ErrNotFound
}

// AppendTaskState adds an entry to the task's state log and relocates the
// task under the prefix matching its new state.
func (s *Storage) AppendTaskState(id string, state State) error {
	tsk, prefix, err := s.find(id)
	if err != nil {
		return err
	}

	tsk.States = append(tsk.States, DatedState{
		Created: time.Now().UTC(),
		State:   state,
	})

	target := prefix
	switch state {
	case StateScheduled:
		target = QUEUEPREFIX
	case StateProcessing:
		target = CURRENTPREFIX
	case StateComplete, StateCanceled:
		target = ARCHIVEPREFIX
	}

	if target == prefix {
		return s.Put(prefix, tsk)
	}

	val, err := json.Marshal(tsk)
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Delete([]byte(prefix + id))
	batch.Put([]byte(target+id), val)
	return s.db.Write(batch, &opt.WriteOptions{Sync: true})
}

// MarkCompleted records the result (or error) of a task, transitions it to
// its terminal state and archives it. A task whose error is rooted in
// context cancellation is archived as canceled rather than complete.
func (s *Storage) MarkCompleted(id string, taskErr error, result interface{}) error {
	tsk, prefix, err := s.find(id)
	if err != nil {
		return err
	}

	tsk.Result = result

	state := StateComplete
	if taskErr != nil {
		tsk.Error = taskErr.Error()
		if errors.Is(taskErr, context.Canceled) || errors.Is(taskErr, context.DeadlineExceeded) {
			state = StateCanceled
		}
	}

	tsk.States = append(tsk.States, DatedState{
		Created: time.Now().UTC(),
		State:   state,
	})

	val, err := json.Marshal(tsk)
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Delete([]byte(prefix + id))
	batch.Put([]byte(ARCHIVEPREFIX+id), val)
	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return err
	}

	return s.truncateArchive(ArchiveKeepCount)
}

// Range returns the tasks under a prefix whose creation time falls within
// [from, to], ordered oldest first.
func (s *Storage) Range(prefix string, from time.Time, to time.Time) ([]*Task, error) {
	var res []*Task

	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()

	for iter.Next() {
		tsk := new(Task)
		if err := json.Unmarshal(iter.Value(), tsk); err != nil {
			return nil, err
		}
		if c := tsk.Created(); c.Before(from) || c.After(to) {
			continue
		}
		res = append(res, tsk)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	sort.Slice(res, func(i, j int) bool { return res[i].Created().Before(res[j].Created()) })
	return res, nil
}

// truncateArchive evicts the oldest archived tasks beyond keep.
func (s *Storage) truncateArchive(keep int) error {
	type entry struct {
		id      string
		created time.Time
	}
	var entries []entry

	iter := s.db.NewIterator(util.BytesPrefix([]byte(ARCHIVEPREFIX)), nil)
	for iter.Next() {
		tsk := new(Task)
		if err := json.Unmarshal(iter.Value(), tsk); err != nil {
			iter.Release()
			return err
		}
		entries = append(entries, entry{tsk.ID, tsk.Created()})
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return err
	}

	if len(entries) <= keep {
		return nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].created.Before(entries[j].created) })

	batch := new(leveldb.Batch)
	for _, e := range entries[:len(entries)-keep] {
		batch.Delete([]byte(ARCHIVEPREFIX + e.id))
	}
	return s.db.Write(batch, &opt.WriteOptions{Sync: true})
}
