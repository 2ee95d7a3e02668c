package ingest

import "sync"

// documentLocks hands out one mutex per document id so that at most one
// ingest, reingest or delete runs per document at a time. Concurrent
// requests for the same id queue; distinct ids do not contend. Entries are
// reference counted and dropped once the last holder releases.
type documentLocks struct {
	mu    sync.Mutex
	locks map[int32]*documentLock
}

type documentLock struct {
	mu   sync.Mutex
	refs int
}

func newDocumentLocks() *documentLocks {
	return &documentLocks{
		locks: make(map[int32]*documentLock),
	}
}

func (l *documentLocks) lock(documentID int32) {
	l.mu.Lock()
	entry, ok := l.locks[documentID]
	if !ok {
		entry = &documentLock{}
		l.locks[documentID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

func (l *documentLocks) unlock(documentID int32) {
	l.mu.Lock()
	entry := l.locks[documentID]
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, documentID)
	}
	l.mu.Unlock()

	entry.mu.Unlock()
}
