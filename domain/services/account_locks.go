package services

import (
	"sync"

	"github.com/google/uuid"
)

// AccountLocks hands out one exclusive lock per account. Entries are created
// on first use and dropped once discarded and no longer held.
type AccountLocks struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*accountLock
}

type accountLock struct {
	mu      sync.Mutex
	refs    int
	discard bool
}

// NewAccountLocks creates an empty registry
func NewAccountLocks() *AccountLocks {
	return &AccountLocks{entries: make(map[uuid.UUID]*accountLock)}
}

// Acquire blocks until the account's lock is held and returns its release
// func. Calling release more than once is a no-op.
func (l *AccountLocks) Acquire(accountID uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.entries[accountID]
	if !ok {
		entry = &accountLock{}
		l.entries[accountID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()

			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 && entry.discard {
				delete(l.entries, accountID)
			}
			l.mu.Unlock()
		})
	}
}

// Discard drops the account's entry now if idle, otherwise when the last
// holder releases it
func (l *AccountLocks) Discard(accountID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[accountID]
	if !ok {
		return
	}
	if entry.refs == 0 {
		delete(l.entries, accountID)
		return
	}
	entry.discard = true
}

// Len returns the number of live entries
func (l *AccountLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
