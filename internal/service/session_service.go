package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"rate-my-movie/internal/domain"
	"rate-my-movie/internal/repository"
)

var (
	ErrSessionNotReady  = errors.New("session not started")
	ErrSessionActive    = errors.New("another user is signed in")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrRateLimited      = errors.New("rate limited")
	ErrInvalidEmail     = errors.New("invalid email")
	ErrPasswordRequired = errors.New("password required")
)

// OwnerReassigner mueve las notas de un email a otro.
type OwnerReassigner interface {
	ReassignOwner(ctx context.Context, from, to string) error
}

type SignUpInput struct {
	Name           string
	Email          string
	Password       string
	ProfilePicture *string
}

// SessionService coordina el ciclo de vida de la sesión: arranque, alta,
// inicio y cierre de sesión y cambios de perfil. Publica cada transición en
// el SessionState inyectado.
type SessionService struct {
	logger  *zap.Logger
	users   repository.UserRepository
	state   *SessionState
	hasher  PasswordHasher
	owners  OwnerReassigner
	limiter SignInLimiter

	// serializa las transiciones para que la comprobación del estado y la
	// publicación no se crucen.
	mu sync.Mutex
}

func NewSessionService(logger *zap.Logger, users repository.UserRepository, state *SessionState, hasher PasswordHasher, owners OwnerReassigner, limiter SignInLimiter) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if state == nil {
		state = NewSessionState()
	}
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	return &SessionService{
		logger:  logger,
		users:   users,
		state:   state,
		hasher:  hasher,
		owners:  owners,
		limiter: limiter,
	}
}

func (s *SessionService) State() *SessionState {
	return s.state
}

// Start carga el puntero de sesión guardado. Un fallo de lectura se registra
// y deja la sesión anónima; loading siempre termina en false.
func (s *SessionService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state.Snapshot().Status {
	case StatusAuthenticated, StatusAnonymous:
		return nil
	}
	s.state.setLoading()

	user, err := s.users.GetCurrentUser(ctx)
	if err != nil {
		s.logger.Warn("session restore failed", zap.Error(err))
		user = nil
	}
	s.state.setUser(user)
	if user != nil {
		s.logger.Info("session restored", zap.String("user_id", user.ID))
	}
	return nil
}

// SignIn devuelve false si el email no existe o la contraseña no coincide;
// ambos casos son indistinguibles para el llamador.
func (s *SessionService) SignIn(ctx context.Context, email, password string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.ready()
	if err != nil {
		return false, err
	}
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return false, nil
	}
	if snap.Authenticated() && !domain.SameEmail(snap.User.Email, email) {
		return false, ErrSessionActive
	}
	if s.limiter != nil && !s.limiter.Allow(email) {
		s.logger.Warn("sign in rate limited", zap.String("email", domain.FoldEmail(email)))
		return false, ErrRateLimited
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return false, fmt.Errorf("sign in: %w", err)
	}
	if user == nil || !s.hasher.Compare(user.PasswordHash, password) {
		if s.limiter != nil {
			s.limiter.Fail(email)
		}
		return false, nil
	}
	if err := s.users.SaveUser(ctx, *user); err != nil {
		return false, fmt.Errorf("sign in: %w", err)
	}
	if s.limiter != nil {
		s.limiter.Reset(email)
	}
	s.state.setUser(user)
	s.logger.Info("user signed in", zap.String("user_id", user.ID))
	return true, nil
}

// SignUp devuelve false si el email ya está registrado.
func (s *SessionService) SignUp(ctx context.Context, input SignUpInput) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.ready()
	if err != nil {
		return false, err
	}
	email := strings.TrimSpace(input.Email)
	if email == "" {
		return false, ErrInvalidEmail
	}
	if input.Password == "" {
		return false, ErrPasswordRequired
	}
	if snap.Authenticated() && !domain.SameEmail(snap.User.Email, email) {
		return false, ErrSessionActive
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return false, fmt.Errorf("sign up: %w", err)
	}
	if existing != nil {
		return false, nil
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return false, fmt.Errorf("sign up: hash password: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return false, fmt.Errorf("sign up: user id: %w", err)
	}
	user := domain.User{
		ID:             id.String(),
		Name:           strings.TrimSpace(input.Name),
		Email:          email,
		PasswordHash:   hash,
		ProfilePicture: input.ProfilePicture,
	}

	if err := s.users.RegisterUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return false, nil
		}
		return false, fmt.Errorf("sign up: %w", err)
	}
	if err := s.users.SaveUser(ctx, user); err != nil {
		return false, fmt.Errorf("sign up: %w", err)
	}
	s.state.setUser(&user)
	s.logger.Info("user signed up", zap.String("user_id", user.ID))
	return true, nil
}

// SignOut llama a onSignOut antes de borrar el puntero de sesión. La cuenta
// registrada no se toca.
func (s *SessionService) SignOut(ctx context.Context, onSignOut func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.ready(); err != nil {
		return err
	}
	if onSignOut != nil {
		onSignOut()
	}
	if err := s.users.ClearUser(ctx); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	s.state.setUser(nil)
	return nil
}

// UpdateProfile aplica update al usuario activo y publica el valor guardado.
// Si cambia el email, las notas del usuario pasan al nuevo email.
func (s *SessionService) UpdateProfile(ctx context.Context, update domain.UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.ready()
	if err != nil {
		return err
	}
	if !snap.Authenticated() {
		return ErrNotAuthenticated
	}
	if update.IsEmpty() {
		return nil
	}
	if update.Email != nil && strings.TrimSpace(*update.Email) == "" {
		return ErrInvalidEmail
	}
	previous := snap.User

	if err := s.users.UpdateUser(ctx, update); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	committed, err := s.users.GetCurrentUser(ctx)
	if err != nil || committed == nil {
		s.logger.Warn("reload after profile update failed", zap.Error(err))
		merged := update.Apply(*previous)
		committed = &merged
	}

	if s.owners != nil && !domain.SameEmail(previous.Email, committed.Email) {
		if err := s.owners.ReassignOwner(ctx, previous.Email, committed.Email); err != nil {
			// Notas y perfil deben quedar bajo el mismo email.
			if rbErr := s.users.UpdateUser(ctx, restoreUpdate(*previous)); rbErr != nil {
				s.logger.Error("profile rollback failed",
					zap.String("user_id", previous.ID),
					zap.Error(rbErr),
				)
				s.state.setUser(committed)
			} else {
				s.state.setUser(previous)
			}
			return fmt.Errorf("update profile: move ratings: %w", err)
		}
	}
	s.state.setUser(committed)
	return nil
}

// restoreUpdate reconstruye el perfil completo de user.
func restoreUpdate(user domain.User) domain.UserUpdate {
	return domain.UserUpdate{
		Name:                &user.Name,
		Email:               &user.Email,
		ProfilePicture:      user.ProfilePicture,
		ClearProfilePicture: user.ProfilePicture == nil,
	}
}

func (s *SessionService) ready() (SessionSnapshot, error) {
	snap := s.state.Snapshot()
	switch snap.Status {
	case StatusAuthenticated, StatusAnonymous:
		return snap, nil
	default:
		return snap, ErrSessionNotReady
	}
}
