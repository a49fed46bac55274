// Package view calcula proyecciones derivadas (filtro, orden, búsqueda,
// estadísticas) sobre una foto de la colección de películas calificadas.
// No guarda estado ni modifica la entrada.
package view

import (
	"errors"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"rate-my-movie/internal/domain"
)

type SortOption string

const (
	SortDateAdded   SortOption = "dateAdded"
	SortRating      SortOption = "rating"
	SortTitle       SortOption = "title"
	SortReleaseDate SortOption = "releaseDate"
)

type FilterOption string

const (
	FilterAll       FilterOption = "all"
	FilterHighRated FilterOption = "highRated"
	FilterLowRated  FilterOption = "lowRated"
)

// HighRatedThreshold separa highRated (>=) de lowRated (<).
const HighRatedThreshold = 7

var (
	ErrUnknownSort   = errors.New("unknown sort option")
	ErrUnknownFilter = errors.New("unknown filter option")
)

// ParseSort valida un valor recibido; vacío equivale a dateAdded.
func ParseSort(s string) (SortOption, error) {
	switch opt := SortOption(strings.TrimSpace(s)); opt {
	case "":
		return SortDateAdded, nil
	case SortDateAdded, SortRating, SortTitle, SortReleaseDate:
		return opt, nil
	}
	return "", ErrUnknownSort
}

// ParseFilter valida un valor recibido; vacío equivale a all.
func ParseFilter(s string) (FilterOption, error) {
	switch opt := FilterOption(strings.TrimSpace(s)); opt {
	case "":
		return FilterAll, nil
	case FilterAll, FilterHighRated, FilterLowRated:
		return opt, nil
	}
	return "", ErrUnknownFilter
}

// Query agrupa las etapas de una proyección completa.
type Query struct {
	Owner  string
	Sort   SortOption
	Filter FilterOption
	Search string
}

// Engine ordena títulos según las reglas de collation de un idioma.
type Engine struct {
	tag language.Tag
}

func NewEngine(tag language.Tag) *Engine {
	return &Engine{tag: tag}
}

// NewEngineForLocale parsea locale (BCP 47); si no es válido usa inglés.
func NewEngineForLocale(locale string) *Engine {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return NewEngine(tag)
}

// ForOwner deja sólo los registros del dueño indicado.
func ForOwner(movies []domain.RatedMovie, owner string) []domain.RatedMovie {
	out := make([]domain.RatedMovie, 0, len(movies))
	for _, m := range movies {
		if domain.SameEmail(m.UserEmail, owner) {
			out = append(out, m)
		}
	}
	return out
}

// Filter aplica el filtro por nota. Opciones desconocidas no filtran.
func Filter(movies []domain.RatedMovie, filter FilterOption) []domain.RatedMovie {
	out := make([]domain.RatedMovie, 0, len(movies))
	for _, m := range movies {
		switch filter {
		case FilterHighRated:
			if m.UserRating < HighRatedThreshold {
				continue
			}
		case FilterLowRated:
			if m.UserRating >= HighRatedThreshold {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

// Sort devuelve una copia ordenada. El orden es estable, así los empates
// conservan el orden de entrada.
func (e *Engine) Sort(movies []domain.RatedMovie, by SortOption) []domain.RatedMovie {
	out := slices.Clone(movies)
	switch by {
	case SortDateAdded:
		slices.SortStableFunc(out, func(a, b domain.RatedMovie) int {
			return b.RatedAt.Compare(a.RatedAt)
		})
	case SortRating:
		slices.SortStableFunc(out, func(a, b domain.RatedMovie) int {
			return b.UserRating - a.UserRating
		})
	case SortTitle:
		// Un Collator no es seguro para uso concurrente.
		c := collate.New(e.tag)
		slices.SortStableFunc(out, func(a, b domain.RatedMovie) int {
			return c.CompareString(a.Title, b.Title)
		})
	case SortReleaseDate:
		slices.SortStableFunc(out, func(a, b domain.RatedMovie) int {
			return strings.Compare(b.ReleaseDate, a.ReleaseDate)
		})
	}
	return out
}

// Apply filtra y después ordena.
func (e *Engine) Apply(movies []domain.RatedMovie, by SortOption, filter FilterOption) []domain.RatedMovie {
	return e.Sort(Filter(movies, filter), by)
}

// Search busca query en el título sin distinguir mayúsculas. Una consulta en
// blanco devuelve la entrada completa en el mismo orden.
func Search(movies []domain.RatedMovie, query string) []domain.RatedMovie {
	if strings.TrimSpace(query) == "" {
		return slices.Clone(movies)
	}
	needle := strings.ToLower(query)
	out := make([]domain.RatedMovie, 0, len(movies))
	for _, m := range movies {
		if strings.Contains(strings.ToLower(m.Title), needle) {
			out = append(out, m)
		}
	}
	return out
}

// Project aplica dueño, filtro, búsqueda y orden, en ese orden.
func (e *Engine) Project(movies []domain.RatedMovie, q Query) []domain.RatedMovie {
	scoped := ForOwner(movies, q.Owner)
	return e.Sort(Search(Filter(scoped, q.Filter), q.Search), q.Sort)
}

type Stats struct {
	Count          int     `json:"count"`
	AverageRating  float64 `json:"average_rating"`
	RatedLastMonth int     `json:"rated_last_month"`
}

// Summarize calcula las estadísticas del perfil. El llamador debe pasar la
// colección ya acotada al dueño.
func Summarize(movies []domain.RatedMovie, now time.Time) Stats {
	var s Stats
	if len(movies) == 0 {
		return s
	}
	monthAgo := now.AddDate(0, -1, 0)
	total := 0
	for _, m := range movies {
		total += m.UserRating
		if !m.RatedAt.Before(monthAgo) {
			s.RatedLastMonth++
		}
	}
	s.Count = len(movies)
	s.AverageRating = float64(total) / float64(len(movies))
	return s
}
