package stellar

import "sync"

// accountLocks serializes settlement work per source account. The ledger
// orders transactions from one account by strictly increasing sequence
// number, so "read sequence → build → sign → submit" must run as one
// critical section per account. Distinct accounts proceed in parallel.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the given source account and returns the release function.
// Lock entries are never evicted; the account set is small (three custodial
// accounts plus one per active student).
func (l *accountLocks) acquire(accountID string) (release func()) {
	l.mu.Lock()
	lock, ok := l.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[accountID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
