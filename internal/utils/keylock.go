package utils

import (
	"sort"
	"sync"
)

// KeyedLocker serializes work per aggregate key within the process.
// Entries are reference counted and removed once no goroutine holds or waits on them.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedLocker creates an empty KeyedLocker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedEntry)}
}

// Lock acquires every key in sorted order and returns a function releasing them.
// Duplicate keys are acquired once.
func (l *KeyedLocker) Lock(keys ...string) (unlock func()) {
	ordered := uniqueSorted(keys)

	entries := make([]*keyedEntry, 0, len(ordered))
	for _, key := range ordered {
		entry := l.acquire(key)
		entry.mu.Lock()
		entries = append(entries, entry)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(entries) - 1; i >= 0; i-- {
				entries[i].mu.Unlock()
				l.release(ordered[i])
			}
		})
	}
}

func (l *KeyedLocker) acquire(key string) *keyedEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &keyedEntry{}
		l.locks[key] = entry
	}
	entry.refs++
	return entry
}

func (l *KeyedLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.locks[key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
}

// size is used by tests to check that entries are cleaned up.
func (l *KeyedLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func uniqueSorted(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
