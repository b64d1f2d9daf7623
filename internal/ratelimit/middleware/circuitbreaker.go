package middleware

import "sync"

// breaker decides whether the primary store's answers are trusted. It opens
// after openAfter consecutive primary errors and closes after closeAfter
// consecutive successes; while open, checks are answered by the fallback.
type breaker struct {
	mu         sync.Mutex
	open       bool
	failures   int
	successes  int
	openAfter  int
	closeAfter int
}

func newBreaker(openAfter, closeAfter int) *breaker {
	if openAfter < 1 {
		openAfter = 1
	}
	if closeAfter < 1 {
		closeAfter = 1
	}
	return &breaker{openAfter: openAfter, closeAfter: closeAfter}
}

// observe records one primary outcome and reports whether the primary result
// may be used, and whether this call changed the breaker's state.
func (b *breaker) observe(err error) (trusted, changed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.successes = 0
		b.failures++
		if !b.open && b.failures >= b.openAfter {
			b.open = true
			return false, true
		}
		return false, false
	}

	b.failures = 0
	if !b.open {
		return true, false
	}
	b.successes++
	if b.successes >= b.closeAfter {
		b.open = false
		b.successes = 0
		return true, true
	}
	return false, false
}
