package risk

import (
	"sync"
	"time"
)

// CooldownLedger records when each (market, strategy) pair last finished a
// trade. It is safe for concurrent use.
type CooldownLedger struct {
	mu   sync.RWMutex
	last map[cooldownKey]time.Time
}

type cooldownKey struct {
	symbol, strategy string
}

func NewCooldownLedger() *CooldownLedger {
	return &CooldownLedger{last: make(map[cooldownKey]time.Time)}
}

func (l *CooldownLedger) Record(symbol, strategy string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.last[cooldownKey{symbol, strategy}] = at
}

func (l *CooldownLedger) LastTrade(symbol, strategy string) (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.last[cooldownKey{symbol, strategy}]
	return t, ok
}

// Snapshot returns the last trade time per symbol for one strategy.
func (l *CooldownLedger) Snapshot(strategy string) map[string]time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]time.Time)
	for k, t := range l.last {
		if k.strategy == strategy {
			out[k.symbol] = t
		}
	}
	return out
}
