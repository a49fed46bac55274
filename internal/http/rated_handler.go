package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rate-my-movie/internal/catalog"
	"rate-my-movie/internal/domain"
	"rate-my-movie/internal/repository"
	"rate-my-movie/internal/service"
	"rate-my-movie/internal/view"
)

// RatedHandler expone las notas del usuario de la sesión.
type RatedHandler struct {
	logger  *zap.Logger
	library *service.LibraryService
	catalog catalog.Service
}

func NewRatedHandler(logger *zap.Logger, library *service.LibraryService, svc catalog.Service) *RatedHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RatedHandler{logger: logger, library: library, catalog: svc}
}

// List maneja GET /rated?sort=&filter=&q=.
func (h *RatedHandler) List(c *gin.Context) {
	sortBy, err := view.ParseSort(c.Query("sort"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filter, err := view.ParseFilter(c.Query("filter"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	movies, err := h.library.List(c.Request.Context(), view.Query{
		Sort:   sortBy,
		Filter: filter,
		Search: c.Query("q"),
	})
	if err != nil {
		h.writeLibraryError(c, "list ratings", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": movies, "count": len(movies)})
}

// Stats maneja GET /rated/stats.
func (h *RatedHandler) Stats(c *gin.Context) {
	stats, err := h.library.Stats(c.Request.Context())
	if err != nil {
		h.writeLibraryError(c, "rating stats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Get maneja GET /rated/:id.
func (h *RatedHandler) Get(c *gin.Context) {
	id, ok := movieIDParam(c)
	if !ok {
		return
	}
	rated, err := h.library.Get(c.Request.Context(), id)
	if err != nil {
		h.writeLibraryError(c, "get rating", err)
		return
	}
	if rated == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "movie not rated"})
		return
	}
	c.JSON(http.StatusOK, rated)
}

// Put maneja PUT /rated/:id. Sin snapshot en el body, la película se busca
// en el catálogo.
func (h *RatedHandler) Put(c *gin.Context) {
	id, ok := movieIDParam(c)
	if !ok {
		return
	}
	var req struct {
		Rating    int           `json:"rating" binding:"required"`
		WatchedAt *time.Time    `json:"watched_at"`
		Movie     *domain.Movie `json:"movie"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid rating request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if !domain.ValidRating(req.Rating) {
		c.JSON(http.StatusBadRequest, gin.H{"error": repository.ErrInvalidRating.Error()})
		return
	}

	var movie domain.Movie
	if req.Movie != nil {
		movie = *req.Movie
		movie.ID = id
	} else {
		details, err := h.catalog.GetMovieDetails(c.Request.Context(), id)
		if err != nil {
			writeCatalogError(c, h.logger, "details", err)
			return
		}
		movie = details.Movie
	}

	rated, err := h.library.RateMovie(c.Request.Context(), movie, req.Rating, req.WatchedAt)
	if err != nil {
		h.writeLibraryError(c, "rate movie", err)
		return
	}
	c.JSON(http.StatusOK, rated)
}

// Delete maneja DELETE /rated/:id.
func (h *RatedHandler) Delete(c *gin.Context) {
	id, ok := movieIDParam(c)
	if !ok {
		return
	}
	if err := h.library.Remove(c.Request.Context(), id); err != nil {
		h.writeLibraryError(c, "remove rating", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RatedHandler) writeLibraryError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, service.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
	case errors.Is(err, repository.ErrInvalidRating):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error(op+" failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not " + op})
	}
}
