package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"rate-my-movie/internal/domain"
	"rate-my-movie/internal/kv"
)

const ratedMoviesKey = "rate_my_movie:rated_movies"

var (
	ErrInvalidRating = errors.New("rating must be between 1 and 10")
	ErrOwnerRequired = errors.New("rated movie owner email required")
)

// RatedMovieRepository persiste las notas de los usuarios. La identidad de un
// registro es (id de película, email del dueño sin distinguir mayúsculas).
type RatedMovieRepository interface {
	GetRatedMovies(ctx context.Context) ([]domain.RatedMovie, error)
	GetRatedMovie(ctx context.Context, owner string, movieID int64) (*domain.RatedMovie, error)
	AddRatedMovie(ctx context.Context, movie domain.RatedMovie) error
	UpdateRatedMovie(ctx context.Context, owner string, movieID int64, rating int) error
	RemoveRatedMovie(ctx context.Context, owner string, movieID int64) error
	IsMovieRated(ctx context.Context, owner string, movieID int64) (bool, error)
	ReassignOwner(ctx context.Context, from, to string) error
}

type ratedMovieRecord struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	Overview         string  `json:"overview"`
	PosterPath       *string `json:"posterPath"`
	BackdropPath     *string `json:"backdropPath"`
	ReleaseDate      string  `json:"releaseDate"`
	VoteAverage      float64 `json:"voteAverage"`
	VoteCount        int     `json:"voteCount"`
	Popularity       float64 `json:"popularity"`
	OriginalLanguage string  `json:"originalLanguage"`
	GenreIDs         []int   `json:"genreIds"`
	UserRating       int     `json:"userRating"`
	RatedAt          string  `json:"ratedAt"`
	WatchedAt        *string `json:"watchedAt,omitempty"`
	UserEmail        string  `json:"userEmail"`
}

type ratingKey struct {
	movieID int64
	owner   string
}

func keyOf(movieID int64, owner string) ratingKey {
	return ratingKey{movieID: movieID, owner: domain.FoldEmail(owner)}
}

// KVRatedMovieRepository implementa RatedMovieRepository sobre un kv.Store.
// Todas las escrituras son leer-modificar-escribir bajo el mutex de la
// colección.
type KVRatedMovieRepository struct {
	logger *zap.Logger
	movies *jsonCollection[[]ratedMovieRecord]
	now    func() time.Time
}

var _ RatedMovieRepository = (*KVRatedMovieRepository)(nil)

func NewKVRatedMovieRepository(logger *zap.Logger, store kv.Store) *KVRatedMovieRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KVRatedMovieRepository{
		logger: logger,
		movies: newJSONCollection[[]ratedMovieRecord](store, ratedMoviesKey, logger),
		now:    time.Now,
	}
}

func (r *KVRatedMovieRepository) GetRatedMovies(ctx context.Context) ([]domain.RatedMovie, error) {
	records, _, err := r.movies.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RatedMovie, 0, len(records))
	for _, rec := range records {
		out = append(out, r.fromRecord(rec))
	}
	return out, nil
}

func (r *KVRatedMovieRepository) GetRatedMovie(ctx context.Context, owner string, movieID int64) (*domain.RatedMovie, error) {
	records, _, err := r.movies.load(ctx)
	if err != nil {
		return nil, err
	}
	if i := indexOfRating(records, keyOf(movieID, owner)); i >= 0 {
		m := r.fromRecord(records[i])
		return &m, nil
	}
	return nil, nil
}

// AddRatedMovie reemplaza por completo un registro con la misma identidad o
// lo agrega al final.
func (r *KVRatedMovieRepository) AddRatedMovie(ctx context.Context, movie domain.RatedMovie) error {
	if strings.TrimSpace(movie.UserEmail) == "" {
		return ErrOwnerRequired
	}
	if !domain.ValidRating(movie.UserRating) {
		return ErrInvalidRating
	}
	r.movies.mu.Lock()
	defer r.movies.mu.Unlock()

	records, _, err := r.movies.load(ctx)
	if err != nil {
		return err
	}
	rec := toRatedMovieRecord(movie)
	if i := indexOfRating(records, keyOf(movie.ID, movie.UserEmail)); i >= 0 {
		records[i] = rec
	} else {
		records = append(records, rec)
	}
	return r.movies.save(ctx, records)
}

// UpdateRatedMovie cambia la nota y refresca ratedAt. Si el registro no
// existe no escribe nada.
func (r *KVRatedMovieRepository) UpdateRatedMovie(ctx context.Context, owner string, movieID int64, rating int) error {
	if !domain.ValidRating(rating) {
		return ErrInvalidRating
	}
	r.movies.mu.Lock()
	defer r.movies.mu.Unlock()

	records, _, err := r.movies.load(ctx)
	if err != nil {
		return err
	}
	i := indexOfRating(records, keyOf(movieID, owner))
	if i < 0 {
		return nil
	}
	records[i].UserRating = rating
	records[i].RatedAt = formatTime(r.now())
	return r.movies.save(ctx, records)
}

func (r *KVRatedMovieRepository) RemoveRatedMovie(ctx context.Context, owner string, movieID int64) error {
	r.movies.mu.Lock()
	defer r.movies.mu.Unlock()

	records, _, err := r.movies.load(ctx)
	if err != nil {
		return err
	}
	key := keyOf(movieID, owner)
	kept := records[:0]
	for _, rec := range records {
		if keyOf(rec.ID, rec.UserEmail) != key {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(records) {
		return nil
	}
	return r.movies.save(ctx, kept)
}

func (r *KVRatedMovieRepository) IsMovieRated(ctx context.Context, owner string, movieID int64) (bool, error) {
	records, _, err := r.movies.load(ctx)
	if err != nil {
		return false, err
	}
	return indexOfRating(records, keyOf(movieID, owner)) >= 0, nil
}

// ReassignOwner pasa las notas de from a to (cambio de email de la cuenta).
// Si to ya tenía nota para la misma película se conserva la más reciente.
func (r *KVRatedMovieRepository) ReassignOwner(ctx context.Context, from, to string) error {
	if strings.TrimSpace(to) == "" {
		return ErrOwnerRequired
	}
	if domain.SameEmail(from, to) {
		return nil
	}
	r.movies.mu.Lock()
	defer r.movies.mu.Unlock()

	records, _, err := r.movies.load(ctx)
	if err != nil {
		return err
	}
	fromKey := domain.FoldEmail(from)
	index := make(map[ratingKey]int, len(records))
	out := make([]ratedMovieRecord, 0, len(records))
	changed := false
	for _, rec := range records {
		if domain.FoldEmail(rec.UserEmail) == fromKey {
			rec.UserEmail = to
			changed = true
		}
		k := keyOf(rec.ID, rec.UserEmail)
		if j, ok := index[k]; ok {
			if r.parseTime(rec.RatedAt).After(r.parseTime(out[j].RatedAt)) {
				out[j] = rec
			}
			continue
		}
		index[k] = len(out)
		out = append(out, rec)
	}
	if !changed {
		return nil
	}
	return r.movies.save(ctx, out)
}

func indexOfRating(records []ratedMovieRecord, key ratingKey) int {
	for i, rec := range records {
		if keyOf(rec.ID, rec.UserEmail) == key {
			return i
		}
	}
	return -1
}

func toRatedMovieRecord(m domain.RatedMovie) ratedMovieRecord {
	rec := ratedMovieRecord{
		ID:               m.ID,
		Title:            m.Title,
		Overview:         m.Overview,
		PosterPath:       m.PosterPath,
		BackdropPath:     m.BackdropPath,
		ReleaseDate:      m.ReleaseDate,
		VoteAverage:      m.VoteAverage,
		VoteCount:        m.VoteCount,
		Popularity:       m.Popularity,
		OriginalLanguage: m.OriginalLanguage,
		GenreIDs:         m.GenreIDs,
		UserRating:       m.UserRating,
		RatedAt:          formatTime(m.RatedAt),
		UserEmail:        m.UserEmail,
	}
	if m.WatchedAt != nil {
		w := formatTime(*m.WatchedAt)
		rec.WatchedAt = &w
	}
	return rec
}

func (r *KVRatedMovieRepository) fromRecord(rec ratedMovieRecord) domain.RatedMovie {
	m := domain.RatedMovie{
		Movie: domain.Movie{
			ID:               rec.ID,
			Title:            rec.Title,
			Overview:         rec.Overview,
			PosterPath:       rec.PosterPath,
			BackdropPath:     rec.BackdropPath,
			ReleaseDate:      rec.ReleaseDate,
			VoteAverage:      rec.VoteAverage,
			VoteCount:        rec.VoteCount,
			Popularity:       rec.Popularity,
			OriginalLanguage: rec.OriginalLanguage,
			GenreIDs:         rec.GenreIDs,
		},
		UserRating: rec.UserRating,
		RatedAt:    r.parseTime(rec.RatedAt),
		UserEmail:  rec.UserEmail,
	}
	if rec.WatchedAt != nil {
		w := r.parseTime(*rec.WatchedAt)
		m.WatchedAt = &w
	}
	return m
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deja el valor en cero si el texto no es RFC 3339; el registro se
// conserva igual.
func (r *KVRatedMovieRepository) parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		r.logger.Warn("invalid stored timestamp", zap.String("value", s), zap.Error(err))
		return time.Time{}
	}
	return t
}
