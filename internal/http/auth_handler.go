package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rate-my-movie/internal/domain"
	"rate-my-movie/internal/repository"
	"rate-my-movie/internal/service"
)

// AuthHandler expone el ciclo de vida de la sesión.
type AuthHandler struct {
	logger   *zap.Logger
	sessions *service.SessionService
	jwtServ  *service.JWTService
}

func NewAuthHandler(logger *zap.Logger, sessions *service.SessionService, jwtServ *service.JWTService) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		logger:   logger,
		sessions: sessions,
		jwtServ:  jwtServ,
	}
}

// SignUp maneja POST /auth/signup.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req struct {
		Name           string  `json:"name"`
		Email          string  `json:"email" binding:"required,email"`
		Password       string  `json:"password" binding:"required"`
		ProfilePicture *string `json:"profile_picture"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid sign up request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	ok, err := h.sessions.SignUp(c.Request.Context(), service.SignUpInput{
		Name:           req.Name,
		Email:          req.Email,
		Password:       req.Password,
		ProfilePicture: req.ProfilePicture,
	})
	if err != nil {
		h.writeSessionError(c, "sign up", err)
		return
	}
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		return
	}
	h.respondWithToken(c, http.StatusCreated)
}

// SignIn maneja POST /auth/signin.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid sign in request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	ok, err := h.sessions.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeSessionError(c, "sign in", err)
		return
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	h.respondWithToken(c, http.StatusOK)
}

// SignOut maneja POST /auth/signout.
func (h *AuthHandler) SignOut(c *gin.Context) {
	if claims, ok := GetAuthClaims(c); ok && h.jwtServ != nil {
		if err := h.jwtServ.Revoke(claims); err != nil {
			h.logger.Warn("token revoke failed", zap.Error(err))
		}
	}
	if err := h.sessions.SignOut(c.Request.Context(), nil); err != nil {
		h.writeSessionError(c, "sign out", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Session maneja GET /auth/session.
func (h *AuthHandler) Session(c *gin.Context) {
	snap := h.sessions.State().Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":  snap.Status.String(),
		"loading": snap.Loading,
		"user":    snap.User,
	})
}

// UpdateProfile maneja PATCH /auth/profile. Si cambia el email se emite un
// token nuevo y se revoca el anterior.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req struct {
		Name                *string `json:"name"`
		Email               *string `json:"email" binding:"omitempty,email"`
		ProfilePicture      *string `json:"profile_picture"`
		ClearProfilePicture bool    `json:"clear_profile_picture"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid profile request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	update := domain.UserUpdate{
		Name:                req.Name,
		Email:               req.Email,
		ProfilePicture:      req.ProfilePicture,
		ClearProfilePicture: req.ClearProfilePicture,
	}
	if err := h.sessions.UpdateProfile(c.Request.Context(), update); err != nil {
		h.writeSessionError(c, "update profile", err)
		return
	}

	user := h.sessions.State().CurrentUser()
	claims, _ := GetAuthClaims(c)
	if user != nil && !domain.SameEmail(claims.Email, user.Email) {
		if err := h.jwtServ.Revoke(claims); err != nil {
			h.logger.Warn("token revoke failed", zap.Error(err))
		}
		h.respondWithToken(c, http.StatusOK)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *AuthHandler) respondWithToken(c *gin.Context, status int) {
	user := h.sessions.State().CurrentUser()
	if user == nil || h.jwtServ == nil {
		h.logger.Error("jwt issue failed", zap.Bool("has_user", user != nil))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}
	token, err := h.jwtServ.GenerateAccess(*user)
	if err != nil {
		h.logger.Error("jwt issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}
	c.JSON(status, gin.H{"user": user, "token": token})
}

func (h *AuthHandler) writeSessionError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
	case errors.Is(err, service.ErrSessionActive):
		c.JSON(http.StatusConflict, gin.H{"error": "another user is signed in"})
	case errors.Is(err, repository.ErrDuplicateUser):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	case errors.Is(err, service.ErrNotAuthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrPasswordRequired),
		errors.Is(err, repository.ErrInvalidEmail):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrSessionNotReady):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session not ready"})
	default:
		h.logger.Error(op+" failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not " + op})
	}
}
