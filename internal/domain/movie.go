package domain

import "time"

// Rangos válidos para la nota de un usuario.
const (
	MinRating = 1
	MaxRating = 10
)

type Movie struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	Overview         string  `json:"overview"`
	PosterPath       *string `json:"poster_path"`
	BackdropPath     *string `json:"backdrop_path"`
	ReleaseDate      string  `json:"release_date"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	Popularity       float64 `json:"popularity"`
	OriginalLanguage string  `json:"original_language"`
	GenreIDs         []int   `json:"genre_ids"`
}

type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type ProductionCompany struct {
	ID            int     `json:"id"`
	Name          string  `json:"name"`
	LogoPath      *string `json:"logo_path"`
	OriginCountry string  `json:"origin_country"`
}

type MovieDetails struct {
	Movie
	Runtime             *int                `json:"runtime"`
	Genres              []Genre             `json:"genres"`
	ProductionCompanies []ProductionCompany `json:"production_companies"`
	Budget              int64               `json:"budget"`
	Revenue             int64               `json:"revenue"`
	Status              string              `json:"status"`
	Tagline             *string             `json:"tagline"`
}

// RatedMovie es la nota personal de un usuario sobre una película del catálogo.
type RatedMovie struct {
	Movie
	UserRating int        `json:"user_rating"`
	RatedAt    time.Time  `json:"rated_at"`
	WatchedAt  *time.Time `json:"watched_at,omitempty"`
	UserEmail  string     `json:"user_email"`
}

// ValidRating indica si la nota está en el rango permitido.
func ValidRating(rating int) bool {
	return rating >= MinRating && rating <= MaxRating
}

// GenreIDsOf devuelve los ids de los géneros del detalle.
func (d MovieDetails) GenreIDsOf() []int {
	if len(d.Genres) == 0 {
		return d.GenreIDs
	}
	ids := make([]int, 0, len(d.Genres))
	for _, g := range d.Genres {
		ids = append(ids, g.ID)
	}
	return ids
}
