package repository

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"rate-my-movie/internal/domain"
	"rate-my-movie/internal/kv"
)

const (
	usersKey   = "rate_my_movie:users"
	sessionKey = "rate_my_movie:session"
)

var (
	ErrDuplicateUser = errors.New("user already exists")
	ErrInvalidEmail  = errors.New("invalid email")
)

// UserRepository define el contrato de persistencia para usuarios y para el
// puntero de sesión. Las lecturas devuelven nil sin error cuando no hay dato.
type UserRepository interface {
	GetCurrentUser(ctx context.Context) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	RegisterUser(ctx context.Context, user domain.User) error
	SaveUser(ctx context.Context, user domain.User) error
	UpdateUser(ctx context.Context, update domain.UserUpdate) error
	ClearUser(ctx context.Context) error
}

type userRecord struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	PasswordHash   string  `json:"passwordHash"`
	ProfilePicture *string `json:"profilePicture"`
}

func toUserRecord(u domain.User) userRecord {
	return userRecord{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		PasswordHash:   u.PasswordHash,
		ProfilePicture: u.ProfilePicture,
	}
}

func (r userRecord) toDomain() *domain.User {
	return &domain.User{
		ID:             r.ID,
		Name:           r.Name,
		Email:          r.Email,
		PasswordHash:   r.PasswordHash,
		ProfilePicture: r.ProfilePicture,
	}
}

// KVUserRepository implementa UserRepository sobre un kv.Store.
type KVUserRepository struct {
	logger  *zap.Logger
	users   *jsonCollection[[]userRecord]
	session *jsonCollection[userRecord]
}

var _ UserRepository = (*KVUserRepository)(nil)

func NewKVUserRepository(logger *zap.Logger, store kv.Store) *KVUserRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KVUserRepository{
		logger:  logger,
		users:   newJSONCollection[[]userRecord](store, usersKey, logger),
		session: newJSONCollection[userRecord](store, sessionKey, logger),
	}
}

func (r *KVUserRepository) GetCurrentUser(ctx context.Context) (*domain.User, error) {
	rec, found, err := r.loadSession(ctx)
	if err != nil || !found {
		return nil, err
	}
	return rec.toDomain(), nil
}

// loadSession trata un puntero sin email (p. ej. un blob "null") como
// ausente.
func (r *KVUserRepository) loadSession(ctx context.Context) (userRecord, bool, error) {
	rec, found, err := r.session.load(ctx)
	if err != nil || !found {
		return userRecord{}, false, err
	}
	if strings.TrimSpace(rec.Email) == "" {
		r.logger.Warn("ignoring session without email", zap.String("key", sessionKey))
		return userRecord{}, false, nil
	}
	return rec, true, nil
}

func (r *KVUserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	users, _, err := r.users.load(ctx)
	if err != nil {
		return nil, err
	}
	if i := indexByEmail(users, email); i >= 0 {
		return users[i].toDomain(), nil
	}
	return nil, nil
}

func (r *KVUserRepository) RegisterUser(ctx context.Context, user domain.User) error {
	if strings.TrimSpace(user.Email) == "" {
		return ErrInvalidEmail
	}
	r.users.mu.Lock()
	defer r.users.mu.Unlock()

	users, _, err := r.users.load(ctx)
	if err != nil {
		return err
	}
	if indexByEmail(users, user.Email) >= 0 {
		return ErrDuplicateUser
	}
	return r.users.save(ctx, append(users, toUserRecord(user)))
}

// SaveUser persiste el perfil (upsert por email) y lo deja como sesión activa.
func (r *KVUserRepository) SaveUser(ctx context.Context, user domain.User) error {
	if strings.TrimSpace(user.Email) == "" {
		return ErrInvalidEmail
	}
	r.users.mu.Lock()
	defer r.users.mu.Unlock()
	r.session.mu.Lock()
	defer r.session.mu.Unlock()

	users, _, err := r.users.load(ctx)
	if err != nil {
		return err
	}
	rec := toUserRecord(user)
	if i := indexByEmail(users, user.Email); i >= 0 {
		users[i] = rec
	} else {
		users = append(users, rec)
	}
	if err := r.users.save(ctx, users); err != nil {
		return err
	}
	return r.session.save(ctx, rec)
}

// UpdateUser mezcla update sobre el usuario de la sesión. Sin sesión no hace
// nada. El registro se reemplaza por ID, así un cambio de email no duplica la
// cuenta; el nuevo email no puede pertenecer a otra cuenta.
func (r *KVUserRepository) UpdateUser(ctx context.Context, update domain.UserUpdate) error {
	r.users.mu.Lock()
	defer r.users.mu.Unlock()
	r.session.mu.Lock()
	defer r.session.mu.Unlock()

	current, found, err := r.loadSession(ctx)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	merged := toUserRecord(update.Apply(*current.toDomain()))
	if strings.TrimSpace(merged.Email) == "" {
		return ErrInvalidEmail
	}

	users, _, err := r.users.load(ctx)
	if err != nil {
		return err
	}
	idx := indexByID(users, current.ID)
	if idx < 0 {
		idx = indexByEmail(users, current.Email)
	}
	for i, u := range users {
		if i != idx && domain.SameEmail(u.Email, merged.Email) {
			return ErrDuplicateUser
		}
	}
	if idx >= 0 {
		users[idx] = merged
	} else {
		users = append(users, merged)
	}
	if err := r.users.save(ctx, users); err != nil {
		return err
	}
	return r.session.save(ctx, merged)
}

// ClearUser borra sólo el puntero de sesión; la cuenta sigue registrada.
func (r *KVUserRepository) ClearUser(ctx context.Context) error {
	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	return r.session.remove(ctx)
}

func indexByEmail(users []userRecord, email string) int {
	for i, u := range users {
		if domain.SameEmail(u.Email, email) {
			return i
		}
	}
	return -1
}

func indexByID(users []userRecord, id string) int {
	if id == "" {
		return -1
	}
	for i, u := range users {
		if u.ID == id {
			return i
		}
	}
	return -1
}
