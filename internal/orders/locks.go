package orders

import "sync"

// orderLocks serializes ledger mutation per order id. Locks are never held
// across network calls; notification and mail dispatch happen after unlock.
// Entries are not reaped, which is fine at this scale (one small struct per
// order seen since startup).
type orderLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newOrderLocks() *orderLocks {
	return &orderLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *orderLocks) lock(orderID string) func() {
	l.mu.Lock()
	m, ok := l.locks[orderID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[orderID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
