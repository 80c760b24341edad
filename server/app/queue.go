package app

import (
	"sync"

	"github.com/pkg/errors"
)

// Queue is the list of messages waiting for deletion. Order is insertion order and is kept
// across every rewrite.
type Queue struct {
	mu     sync.Mutex
	store  DocumentStore
	locker Locker
	name   string
}

func NewQueue(store DocumentStore, namespace string) *Queue {
	return &Queue{
		store:  store,
		locker: nopLocker{},
		name:   CollectionName(namespace, queueCollection),
	}
}

func (q *Queue) load() ([]QueueEntry, error) {
	entries := []QueueEntry{}
	if err := loadCollection(q.store, q.name, &entries); err != nil {
		return nil, errors.Wrap(err, "failed to load delete queue")
	}
	return entries, nil
}

func (q *Queue) replace(entries []QueueEntry) error {
	if entries == nil {
		entries = []QueueEntry{}
	}
	if err := replaceCollection(q.store, q.name, entries); err != nil {
		return errors.Wrap(err, "failed to save delete queue")
	}
	return nil
}

// Entries returns a snapshot of the queue.
func (q *Queue) Entries() ([]QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

func (q *Queue) Contains(messageID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.load()
	if err != nil {
		return false, err
	}
	return indexOf(entries, messageID) >= 0, nil
}

// Append adds entry unless its message is already queued. It reports whether the entry
// was added.
func (q *Queue) Append(entry QueueEntry) (bool, error) {
	unlock, err := lockCollection(&q.mu, q.locker, q.name)
	if err != nil {
		return false, err
	}
	defer unlock()

	entries, err := q.load()
	if err != nil {
		return false, err
	}
	if indexOf(entries, entry.MessageID) >= 0 {
		return false, nil
	}
	if err := q.replace(append(entries, entry)); err != nil {
		return false, err
	}
	return true, nil
}

// Remove unqueues messageID. Removing a message that is not queued still rewrites the
// queue unchanged. It reports whether an entry was removed.
func (q *Queue) Remove(messageID string) (bool, error) {
	var removed bool
	err := q.Update(func(entries []QueueEntry) []QueueEntry {
		kept := entries[:0]
		for _, e := range entries {
			if e.MessageID == messageID {
				removed = true
				continue
			}
			kept = append(kept, e)
		}
		return kept
	})
	return removed, err
}

// Update runs fn on the current entries and stores its result, atomically with respect to
// every other Queue method.
func (q *Queue) Update(fn func([]QueueEntry) []QueueEntry) error {
	unlock, err := lockCollection(&q.mu, q.locker, q.name)
	if err != nil {
		return err
	}
	defer unlock()

	entries, err := q.load()
	if err != nil {
		return err
	}
	return q.replace(fn(entries))
}

func indexOf(entries []QueueEntry, messageID string) int {
	for i, e := range entries {
		if e.MessageID == messageID {
			return i
		}
	}
	return -1
}
