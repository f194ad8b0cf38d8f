package reminders

import (
	"sync"
	"time"
)

// Stage is one of the two reminders tracked per interview.
type Stage string

const (
	StageEmail Stage = "email-30"
	StagePush  Stage = "push-2"
)

// LedgerKey identifies one reminder stage of one interview.
type LedgerKey struct {
	OwnerID     string
	InterviewID uint64
	Stage       Stage
}

// Ledger remembers which reminders went out during this process lifetime.
// Presence means sent; entries are only written after a successful dispatch.
type Ledger struct {
	mu   sync.Mutex
	sent map[LedgerKey]time.Time
}

func NewLedger() *Ledger {
	return &Ledger{sent: make(map[LedgerKey]time.Time)}
}

func (l *Ledger) Seen(k LedgerKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.sent[k]
	return ok
}

func (l *Ledger) Mark(k LedgerKey, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sent[k] = at
}

func (l *Ledger) Forget(k LedgerKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.sent[k]
	delete(l.sent, k)
	return ok
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sent)
}
