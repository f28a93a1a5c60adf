package service

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// accountLocks hands out one mutex per account. Operations touching several
// accounts acquire them in ascending id order so two transfers in opposite
// directions cannot deadlock.
type accountLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *accountLocks) get(id uuid.UUID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.locks[id]; !exists {
		l.locks[id] = &sync.Mutex{}
	}
	return l.locks[id]
}

// lock acquires the mutexes of ids and returns a function releasing them.
func (l *accountLocks) lock(ids ...uuid.UUID) func() {
	ordered := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			ordered = append(ordered, id)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].String() < ordered[j].String()
	})

	held := make([]*sync.Mutex, 0, len(ordered))
	for _, id := range ordered {
		m := l.get(id)
		m.Lock()
		held = append(held, m)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
