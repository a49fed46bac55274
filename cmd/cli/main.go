package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"rate-my-movie/internal/app"
	"rate-my-movie/internal/catalog"
	"rate-my-movie/internal/config"
	"rate-my-movie/internal/domain"
	"rate-my-movie/internal/repository"
	"rate-my-movie/internal/service"
	"rate-my-movie/internal/view"
)

// cli es la interfaz de terminal sobre los mismos servicios que la API.
type cli struct {
	reader   *bufio.Reader
	sessions *service.SessionService
	library  *service.LibraryService
	catalog  catalog.Service
	imageURL string
}

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewDevelopment(zap.IncreaseLevel(zap.WarnLevel))
	defer logger.Sync()

	stores, err := app.OpenStores(ctx, cfg, logger, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer stores.Close()

	userRepo := repository.NewKVUserRepository(logger, stores.KV)
	ratedRepo := repository.NewKVRatedMovieRepository(logger, stores.KV)
	state := service.NewSessionState()
	limiter := service.NewSignInLimiter(time.Duration(cfg.SignInWindowMinutes)*time.Minute, cfg.SignInMaxAttempts)
	sessions := service.NewSessionService(logger, userRepo, state, service.NewBcryptHasher(cfg.BcryptCost), ratedRepo, limiter)
	if err := sessions.Start(ctx); err != nil {
		log.Fatal(err)
	}

	c := &cli{
		reader:   reader,
		sessions: sessions,
		library:  service.NewLibraryService(logger, ratedRepo, state, view.NewEngineForLocale(cfg.CollationLocale)),
		catalog:  catalog.NewRepository(catalog.NewClient(cfg.TMDBBaseURL, cfg.TMDBAPIKey, nil, logger)),
		imageURL: cfg.TMDBImageBaseURL,
	}

	for {
		user := state.CurrentUser()
		if user == nil {
			if !c.anonymousMenu(ctx) {
				return
			}
			continue
		}
		if !c.userMenu(ctx, *user) {
			return
		}
	}
}

func (c *cli) anonymousMenu(ctx context.Context) bool {
	fmt.Println("\n===== Rate My Movie =====")
	fmt.Println("[1] Registrarse")
	fmt.Println("[2] Iniciar sesion")
	fmt.Println("[3] Salir")
	switch c.prompt("Selecciona una opcion: ") {
	case "1":
		input := service.SignUpInput{
			Name:     c.prompt("Nombre: "),
			Email:    c.prompt("Email: "),
			Password: c.prompt("Password: "),
		}
		ok, err := c.sessions.SignUp(ctx, input)
		switch {
		case err != nil:
			fmt.Printf("Error registrando: %v\n", err)
		case !ok:
			fmt.Println("Ese email ya esta registrado.")
		}
	case "2":
		ok, err := c.sessions.SignIn(ctx, c.prompt("Email: "), c.prompt("Password: "))
		switch {
		case errors.Is(err, service.ErrRateLimited):
			fmt.Println("Demasiados intentos. Proba mas tarde.")
		case err != nil:
			fmt.Printf("Error iniciando sesion: %v\n", err)
		case !ok:
			fmt.Println("Email o password incorrectos.")
		}
	case "3":
		return false
	default:
		fmt.Println("Opcion invalida.")
	}
	return true
}

func (c *cli) userMenu(ctx context.Context, user domain.User) bool {
	fmt.Printf("\n--- Hola, %s (%s) ---\n", user.Name, user.Email)
	fmt.Println("[1] Buscar peliculas")
	fmt.Println("[2] Populares")
	fmt.Println("[3] Tendencias")
	fmt.Println("[4] Mis notas")
	fmt.Println("[5] Calificar pelicula por ID")
	fmt.Println("[6] Borrar nota")
	fmt.Println("[7] Estadisticas")
	fmt.Println("[8] Editar perfil")
	fmt.Println("[9] Cerrar sesion")
	fmt.Println("[0] Salir")

	var err error
	switch c.prompt("Selecciona una opcion: ") {
	case "1":
		var movies []domain.Movie
		movies, err = c.catalog.SearchMovies(ctx, c.prompt("Buscar: "), 1)
		c.printMovies(movies)
	case "2":
		var movies []domain.Movie
		movies, err = c.catalog.GetPopularMovies(ctx, 1)
		c.printMovies(movies)
	case "3":
		var movies []domain.Movie
		movies, err = c.catalog.GetTrendingMovies(ctx, c.prompt("Ventana [day/week]: "))
		c.printMovies(movies)
	case "4":
		err = c.listFlow(ctx)
	case "5":
		err = c.rateFlow(ctx)
	case "6":
		var id int64
		if id, err = c.promptID(); err == nil {
			err = c.library.Remove(ctx, id)
		}
	case "7":
		var stats view.Stats
		if stats, err = c.library.Stats(ctx); err == nil {
			fmt.Printf("Peliculas calificadas: %d | Promedio: %.1f | Ultimo mes: %d\n", stats.Count, stats.AverageRating, stats.RatedLastMonth)
		}
	case "8":
		err = c.profileFlow(ctx)
	case "9":
		err = c.sessions.SignOut(ctx, func() { fmt.Println("Cerrando sesion...") })
	case "0":
		return false
	default:
		fmt.Println("Opcion invalida.")
	}
	if err != nil {
		if apiErr, ok := catalog.AsAPIError(err); ok {
			fmt.Printf("Catalogo: %s\n", apiErr.Message)
		} else {
			fmt.Printf("Error: %v\n", err)
		}
	}
	return true
}

func (c *cli) listFlow(ctx context.Context) error {
	sortBy, err := view.ParseSort(c.prompt("Orden [dateAdded/rating/title/releaseDate]: "))
	if err != nil {
		return err
	}
	filter, err := view.ParseFilter(c.prompt("Filtro [all/highRated/lowRated]: "))
	if err != nil {
		return err
	}
	movies, err := c.library.List(ctx, view.Query{Sort: sortBy, Filter: filter, Search: c.prompt("Buscar titulo (opcional): ")})
	if err != nil {
		return err
	}
	if len(movies) == 0 {
		fmt.Println("Sin resultados.")
		return nil
	}
	for _, m := range movies {
		fmt.Printf("[%d] %s (%s) - %d/10 - %s\n", m.ID, m.Title, year(m.ReleaseDate), m.UserRating, m.RatedAt.Local().Format("2006-01-02"))
	}
	return nil
}

func (c *cli) rateFlow(ctx context.Context) error {
	id, err := c.promptID()
	if err != nil {
		return err
	}
	details, err := c.catalog.GetMovieDetails(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s)\n", details.Title, year(details.ReleaseDate))
	if poster := catalog.ImageURL(c.imageURL, details.PosterPath, catalog.PosterSize); poster != "" {
		fmt.Println(poster)
	}
	rating, err := strconv.Atoi(c.prompt("Nota (1-10): "))
	if err != nil {
		return fmt.Errorf("nota invalida: %w", err)
	}
	var watchedAt *time.Time
	if raw := c.prompt("Vista el (YYYY-MM-DD, opcional): "); raw != "" {
		t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
		if err != nil {
			return fmt.Errorf("fecha invalida: %w", err)
		}
		watchedAt = &t
	}
	rated, err := c.library.RateMovie(ctx, details.Movie, rating, watchedAt)
	if err != nil {
		return err
	}
	fmt.Printf("Guardado: %s %d/10\n", rated.Title, rated.UserRating)
	return nil
}

func (c *cli) profileFlow(ctx context.Context) error {
	var update domain.UserUpdate
	if name := c.prompt("Nuevo nombre (enter para mantener): "); name != "" {
		update.Name = &name
	}
	if email := c.prompt("Nuevo email (enter para mantener): "); email != "" {
		update.Email = &email
	}
	switch pic := c.prompt("Foto de perfil (URL, '-' para quitar, enter para mantener): "); pic {
	case "":
	case "-":
		update.ClearProfilePicture = true
	default:
		update.ProfilePicture = &pic
	}
	return c.sessions.UpdateProfile(ctx, update)
}

func (c *cli) printMovies(movies []domain.Movie) {
	for _, m := range movies {
		fmt.Printf("[%d] %s (%s) - %.1f\n", m.ID, m.Title, year(m.ReleaseDate), m.VoteAverage)
	}
}

func (c *cli) prompt(label string) string {
	fmt.Print(label)
	line, _ := c.reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func (c *cli) promptID() (int64, error) {
	id, err := strconv.ParseInt(c.prompt("ID de pelicula: "), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("id invalido")
	}
	return id, nil
}

func year(releaseDate string) string {
	if len(releaseDate) >= 4 {
		return releaseDate[:4]
	}
	return "s/f"
}
