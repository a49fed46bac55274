package service

import (
	"sync"

	"rate-my-movie/internal/domain"
)

// SessionStatus es el estado del ciclo de vida de la sesión.
type SessionStatus int

const (
	StatusUninitialized SessionStatus = iota
	StatusLoading
	StatusAuthenticated
	StatusAnonymous
)

func (s SessionStatus) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	default:
		return "uninitialized"
	}
}

// SessionSnapshot es una foto inmutable del estado de sesión.
type SessionSnapshot struct {
	Status  SessionStatus
	User    *domain.User
	Loading bool
}

// Authenticated indica si hay un usuario activo.
func (s SessionSnapshot) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil
}

// SessionState guarda el usuario actual del proceso y avisa los cambios a
// los suscriptores. Se crea al arrancar la aplicación y se inyecta en los
// servicios que lo necesitan.
type SessionState struct {
	mu     sync.RWMutex
	snap   SessionSnapshot
	subs   map[int]chan SessionSnapshot
	nextID int
}

func NewSessionState() *SessionState {
	return &SessionState{subs: make(map[int]chan SessionSnapshot)}
}

func (s *SessionState) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySnapshot(s.snap)
}

// CurrentUser devuelve una copia del usuario activo o nil.
func (s *SessionState) CurrentUser() *domain.User {
	return s.Snapshot().User
}

// Subscribe entrega el estado actual y cada cambio posterior. Un suscriptor
// lento sólo ve el último estado; los publicadores nunca se bloquean.
func (s *SessionState) Subscribe() (<-chan SessionSnapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan SessionSnapshot, 1)
	ch <- copySnapshot(s.snap)
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (s *SessionState) setLoading() {
	s.publish(SessionSnapshot{Status: StatusLoading, Loading: true})
}

func (s *SessionState) setUser(user *domain.User) {
	if user == nil {
		s.publish(SessionSnapshot{Status: StatusAnonymous})
		return
	}
	u := *user
	s.publish(SessionSnapshot{Status: StatusAuthenticated, User: &u})
}

func (s *SessionState) publish(snap SessionSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- copySnapshot(snap)
	}
}

func copySnapshot(s SessionSnapshot) SessionSnapshot {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}
