package service

import (
	"sync"
	"time"

	"rate-my-movie/internal/domain"
)

// SignInLimiter cuenta los inicios de sesión fallidos por email. Allow sólo
// consulta; Fail registra un fallo y Reset borra el conteo tras un acceso
// correcto.
type SignInLimiter interface {
	Allow(key string) bool
	Fail(key string)
	Reset(key string)
}

type signInLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	fails  map[string][]time.Time
	now    func() time.Time
}

// NewSignInLimiter crea un limitador en memoria de ventana deslizante.
func NewSignInLimiter(window time.Duration, max int) SignInLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &signInLimiter{
		window: window,
		max:    max,
		fails:  make(map[string][]time.Time),
		now:    time.Now,
	}
}

func (l *signInLimiter) Allow(key string) bool {
	key = domain.FoldEmail(key)
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recent(key)) < l.max
}

func (l *signInLimiter) Fail(key string) {
	key = domain.FoldEmail(key)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fails[key] = append(l.recent(key), l.now().UTC())
}

func (l *signInLimiter) Reset(key string) {
	key = domain.FoldEmail(key)
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.fails, key)
}

// recent descarta los fallos fuera de la ventana. Requiere l.mu.
func (l *signInLimiter) recent(key string) []time.Time {
	cutoff := l.now().UTC().Add(-l.window)
	entries := l.fails[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.fails, key)
		return nil
	}
	l.fails[key] = kept
	return kept
}
