package engine

import "sync"

// lockTable hands out one mutex per conflict id so every mutating
// operation on a conflict is serialized while different conflicts
// proceed in parallel. Entries are never evicted; a conflict id costs
// one mutex for the life of the process.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *lockTable) forConflict(id string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[id]
	if !ok {
		l = &sync.Mutex{}
		t.locks[id] = l
	}
	return l
}
