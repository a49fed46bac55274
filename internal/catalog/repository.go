// Package catalog adapta el catálogo remoto de películas (TMDb) a los tipos
// del dominio.
package catalog

import (
	"context"
	"errors"
	"strings"

	"rate-my-movie/internal/domain"
)

// Ventanas aceptadas por Trending.
const (
	WindowDay  = "day"
	WindowWeek = "week"
)

var ErrInvalidWindow = errors.New("trending window must be day or week")

// Service es la frontera del catálogo que consumen los handlers.
type Service interface {
	SearchMovies(ctx context.Context, query string, page int) ([]domain.Movie, error)
	GetMovieDetails(ctx context.Context, movieID int64) (domain.MovieDetails, error)
	GetPopularMovies(ctx context.Context, page int) ([]domain.Movie, error)
	GetTrendingMovies(ctx context.Context, window string) ([]domain.Movie, error)
}

// Repository implementa Service sobre Client.
type Repository struct {
	client *Client
}

var _ Service = (*Repository)(nil)

func NewRepository(client *Client) *Repository {
	return &Repository{client: client}
}

func (r *Repository) SearchMovies(ctx context.Context, query string, page int) ([]domain.Movie, error) {
	resp, err := r.client.search(ctx, query, page)
	if err != nil {
		return nil, err
	}
	return mapMovies(resp.Results), nil
}

func (r *Repository) GetMovieDetails(ctx context.Context, movieID int64) (domain.MovieDetails, error) {
	resp, err := r.client.details(ctx, movieID)
	if err != nil {
		return domain.MovieDetails{}, err
	}
	return mapDetails(resp), nil
}

func (r *Repository) GetPopularMovies(ctx context.Context, page int) ([]domain.Movie, error) {
	resp, err := r.client.popular(ctx, page)
	if err != nil {
		return nil, err
	}
	return mapMovies(resp.Results), nil
}

// GetTrendingMovies usa la ventana semanal si window viene vacío.
func (r *Repository) GetTrendingMovies(ctx context.Context, window string) ([]domain.Movie, error) {
	window = strings.ToLower(strings.TrimSpace(window))
	if window == "" {
		window = WindowWeek
	}
	if window != WindowDay && window != WindowWeek {
		return nil, ErrInvalidWindow
	}
	resp, err := r.client.trending(ctx, window)
	if err != nil {
		return nil, err
	}
	return mapMovies(resp.Results), nil
}

func mapMovie(m movieResponse) domain.Movie {
	return domain.Movie{
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
	}
}

func mapMovies(in []movieResponse) []domain.Movie {
	out := make([]domain.Movie, 0, len(in))
	for _, m := range in {
		out = append(out, mapMovie(m))
	}
	return out
}

func mapDetails(d movieDetailsResponse) domain.MovieDetails {
	out := domain.MovieDetails{
		Movie:               mapMovie(d.movieResponse),
		Runtime:             d.Runtime,
		Genres:              make([]domain.Genre, 0, len(d.Genres)),
		ProductionCompanies: make([]domain.ProductionCompany, 0, len(d.ProductionCompanies)),
		Budget:              d.Budget,
		Revenue:             d.Revenue,
		Status:              d.Status,
		Tagline:             d.Tagline,
	}
	for _, g := range d.Genres {
		out.Genres = append(out.Genres, domain.Genre{ID: g.ID, Name: g.Name})
	}
	for _, c := range d.ProductionCompanies {
		out.ProductionCompanies = append(out.ProductionCompanies, domain.ProductionCompany{
			ID:            c.ID,
			Name:          c.Name,
			LogoPath:      c.LogoPath,
			OriginCountry: c.OriginCountry,
		})
	}
	if len(out.GenreIDs) == 0 {
		out.GenreIDs = out.GenreIDsOf()
	}
	return out
}

// Tamaños de imagen usados por la app.
const (
	PosterSize   = "w500"
	BackdropSize = "w780"
)

// ImageURL arma la URL de una imagen; path vacío devuelve "".
func ImageURL(baseURL string, path *string, size string) string {
	if path == nil || *path == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/" + size + *path
}
