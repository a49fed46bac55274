package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rate-my-movie/internal/catalog"
	"rate-my-movie/internal/domain"
)

// MovieHandler expone el catálogo remoto.
type MovieHandler struct {
	logger    *zap.Logger
	catalog   catalog.Service
	imageBase string
}

func NewMovieHandler(logger *zap.Logger, svc catalog.Service, imageBase string) *MovieHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MovieHandler{logger: logger, catalog: svc, imageBase: imageBase}
}

type movieDetailsResponse struct {
	domain.MovieDetails
	PosterURL   string `json:"poster_url,omitempty"`
	BackdropURL string `json:"backdrop_url,omitempty"`
}

// Search maneja GET /movies/search?q=&page=.
func (h *MovieHandler) Search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query required"})
		return
	}
	movies, err := h.catalog.SearchMovies(c.Request.Context(), query, pageParam(c))
	if err != nil {
		h.writeCatalogError(c, "search", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": movies})
}

// Popular maneja GET /movies/popular?page=.
func (h *MovieHandler) Popular(c *gin.Context) {
	movies, err := h.catalog.GetPopularMovies(c.Request.Context(), pageParam(c))
	if err != nil {
		h.writeCatalogError(c, "popular", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": movies})
}

// Trending maneja GET /movies/trending?window=.
func (h *MovieHandler) Trending(c *gin.Context) {
	movies, err := h.catalog.GetTrendingMovies(c.Request.Context(), c.Query("window"))
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidWindow) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.writeCatalogError(c, "trending", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": movies})
}

// Details maneja GET /movies/:id.
func (h *MovieHandler) Details(c *gin.Context) {
	id, ok := movieIDParam(c)
	if !ok {
		return
	}
	details, err := h.catalog.GetMovieDetails(c.Request.Context(), id)
	if err != nil {
		h.writeCatalogError(c, "details", err)
		return
	}
	c.JSON(http.StatusOK, movieDetailsResponse{
		MovieDetails: details,
		PosterURL:    catalog.ImageURL(h.imageBase, details.PosterPath, catalog.PosterSize),
		BackdropURL:  catalog.ImageURL(h.imageBase, details.BackdropPath, catalog.BackdropSize),
	})
}

func (h *MovieHandler) writeCatalogError(c *gin.Context, op string, err error) {
	writeCatalogError(c, h.logger, op, err)
}

func writeCatalogError(c *gin.Context, logger *zap.Logger, op string, err error) {
	apiErr, ok := catalog.AsAPIError(err)
	if !ok {
		logger.Error("catalog "+op+" failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "catalog unavailable"})
		return
	}
	logger.Warn("catalog "+op+" failed",
		zap.Int("status", apiErr.StatusCode),
		zap.Bool("network", apiErr.IsNetwork()),
		zap.String("message", apiErr.Message),
	)
	if apiErr.StatusCode == http.StatusNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": apiErr.Message})
		return
	}
	c.JSON(http.StatusBadGateway, gin.H{"error": apiErr.Message})
}

func pageParam(c *gin.Context) int {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		return 1
	}
	return page
}

func movieIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid movie id"})
		return 0, false
	}
	return id, true
}
