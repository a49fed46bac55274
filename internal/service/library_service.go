package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"rate-my-movie/internal/domain"
	"rate-my-movie/internal/repository"
	"rate-my-movie/internal/view"
)

// LibraryService expone las notas del usuario de la sesión activa. Toda
// lectura se limita al dueño antes de pasar por el motor de vistas.
type LibraryService struct {
	logger *zap.Logger
	movies repository.RatedMovieRepository
	state  *SessionState
	engine *view.Engine
	now    func() time.Time
}

func NewLibraryService(logger *zap.Logger, movies repository.RatedMovieRepository, state *SessionState, engine *view.Engine) *LibraryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = view.NewEngineForLocale("")
	}
	return &LibraryService{
		logger: logger,
		movies: movies,
		state:  state,
		engine: engine,
		now:    time.Now,
	}
}

// RateMovie guarda una foto de movie con la nota dada. Si ya estaba
// calificada sólo cambia la nota, salvo que se indique watchedAt.
func (s *LibraryService) RateMovie(ctx context.Context, movie domain.Movie, rating int, watchedAt *time.Time) (*domain.RatedMovie, error) {
	owner, err := s.owner()
	if err != nil {
		return nil, err
	}
	if !domain.ValidRating(rating) {
		return nil, repository.ErrInvalidRating
	}

	existing, err := s.movies.GetRatedMovie(ctx, owner, movie.ID)
	if err != nil {
		return nil, fmt.Errorf("rate movie %d: %w", movie.ID, err)
	}
	if existing != nil && watchedAt == nil {
		if err := s.movies.UpdateRatedMovie(ctx, owner, movie.ID, rating); err != nil {
			return nil, fmt.Errorf("rate movie %d: %w", movie.ID, err)
		}
	} else {
		rated := domain.RatedMovie{
			Movie:      movie,
			UserRating: rating,
			RatedAt:    s.now().UTC(),
			WatchedAt:  watchedAt,
			UserEmail:  owner,
		}
		if err := s.movies.AddRatedMovie(ctx, rated); err != nil {
			return nil, fmt.Errorf("rate movie %d: %w", movie.ID, err)
		}
	}
	return s.movies.GetRatedMovie(ctx, owner, movie.ID)
}

// UpdateRating no hace nada si la película no estaba calificada.
func (s *LibraryService) UpdateRating(ctx context.Context, movieID int64, rating int) error {
	owner, err := s.owner()
	if err != nil {
		return err
	}
	if err := s.movies.UpdateRatedMovie(ctx, owner, movieID, rating); err != nil {
		return fmt.Errorf("update rating %d: %w", movieID, err)
	}
	return nil
}

func (s *LibraryService) Remove(ctx context.Context, movieID int64) error {
	owner, err := s.owner()
	if err != nil {
		return err
	}
	if err := s.movies.RemoveRatedMovie(ctx, owner, movieID); err != nil {
		return fmt.Errorf("remove rating %d: %w", movieID, err)
	}
	return nil
}

func (s *LibraryService) IsRated(ctx context.Context, movieID int64) (bool, error) {
	owner, err := s.owner()
	if err != nil {
		return false, err
	}
	rated, err := s.movies.IsMovieRated(ctx, owner, movieID)
	if err != nil {
		s.logger.Warn("rated lookup failed", zap.Int64("movie_id", movieID), zap.Error(err))
		return false, nil
	}
	return rated, nil
}

// Get devuelve nil si el usuario no calificó la película.
func (s *LibraryService) Get(ctx context.Context, movieID int64) (*domain.RatedMovie, error) {
	owner, err := s.owner()
	if err != nil {
		return nil, err
	}
	return s.movies.GetRatedMovie(ctx, owner, movieID)
}

// List ignora q.Owner: siempre proyecta las notas del usuario activo.
func (s *LibraryService) List(ctx context.Context, q view.Query) ([]domain.RatedMovie, error) {
	owner, err := s.owner()
	if err != nil {
		return nil, err
	}
	q.Owner = owner
	return s.engine.Project(s.load(ctx), q), nil
}

func (s *LibraryService) Stats(ctx context.Context) (view.Stats, error) {
	owner, err := s.owner()
	if err != nil {
		return view.Stats{}, err
	}
	return view.Summarize(view.ForOwner(s.load(ctx), owner), s.now()), nil
}

func (s *LibraryService) load(ctx context.Context) []domain.RatedMovie {
	movies, err := s.movies.GetRatedMovies(ctx)
	if err != nil {
		s.logger.Warn("rated movies unavailable", zap.Error(err))
		return nil
	}
	return movies
}

func (s *LibraryService) owner() (string, error) {
	if s.state == nil {
		return "", ErrNotAuthenticated
	}
	snap := s.state.Snapshot()
	if !snap.Authenticated() {
		return "", ErrNotAuthenticated
	}
	return snap.User.Email, nil
}
