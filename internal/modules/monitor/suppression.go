package monitor

import (
	"sync"
	"time"

	"github.com/aristath/portfolio-sentry/internal/domain"
)

// suppressor deduplicates alerts: an alert with the same fingerprint as
// one emitted inside the window is dropped. Fingerprints are per account.
type suppressor struct {
	window time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func newSuppressor(window time.Duration) *suppressor {
	return &suppressor{
		window: window,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// allow reports whether the alert may be emitted, and records it if so.
func (s *suppressor) allow(alert domain.Alert) bool {
	key := alert.AccountID + "|" + alert.Fingerprint()

	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.seen[key]; ok && s.now().Sub(last) < s.window {
		return false
	}

	s.seen[key] = s.now()
	s.prune()
	return true
}

// prune drops expired entries so the map does not grow unbounded. Caller
// holds the lock.
func (s *suppressor) prune() {
	cutoff := s.now().Add(-s.window)
	for key, t := range s.seen {
		if t.Before(cutoff) {
			delete(s.seen, key)
		}
	}
}
