package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vivenzalife/vivenza/internal/apperr"
	"github.com/vivenzalife/vivenza/internal/assets"
	"github.com/vivenzalife/vivenza/internal/auth"
)

type AuthHandler struct {
	authSvc *auth.Service
	assets  assets.Storage
}

func NewAuthHandler(authSvc *auth.Service, storage assets.Storage) *AuthHandler {
	return &AuthHandler{authSvc: authSvc, assets: storage}
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token string         `json:"token"`
	User  *auth.Identity `json:"user"`
}

// Register creates a new user account
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}

	userID, err := h.authSvc.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	identity, err := h.authSvc.Identity(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := h.authSvc.GenerateToken(userID, identity.Email)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, AuthResponse{Token: token, User: identity})
}

// Login authenticates a user and returns a token
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}

	token, userID, err := h.authSvc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	identity, err := h.authSvc.Identity(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Token: token, User: identity})
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// Browsers cannot set headers on websocket upgrades.
	return c.Query("token")
}

// resolve returns the caller behind the request token, or an error
// describing why there is none.
func (h *AuthHandler) resolve(c *gin.Context) (string, error) {
	token := bearerToken(c)
	if token == "" {
		return "", apperr.New(apperr.Unauthorized, "missing authorization token")
	}

	claims, err := h.authSvc.ValidateToken(token)
	if err != nil {
		return "", apperr.New(apperr.Unauthorized, "invalid token")
	}

	exists, err := h.authSvc.UserExists(c.Request.Context(), claims.UserID)
	if err != nil {
		return "", apperr.Wrap(apperr.StoreError, "failed to validate user", err)
	}
	if !exists {
		return "", apperr.New(apperr.Unauthorized, "user not found")
	}
	return claims.UserID, nil
}

// AuthMiddleware validates the JWT token and rejects anonymous requests.
func (h *AuthHandler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := h.resolve(c)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(callerKey, userID)
		c.Next()
	}
}

// OptionalAuth attaches the caller when the token is valid and otherwise lets
// the request through anonymously.
func (h *AuthHandler) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, err := h.resolve(c); err == nil {
			c.Set(callerKey, userID)
		}
		c.Next()
	}
}

func (h *AuthHandler) GetProfile(c *gin.Context) {
	identity, err := h.authSvc.Identity(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, identity)
}

// UpdateProfile accepts a multipart form with "name" and an optional "image"
// file. Without a file the current picture is kept.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	name := c.PostForm("name")
	if name == "" {
		respondError(c, apperr.NewInvalid("name is required"))
		return
	}

	file, filename, err := optionalFile(c, "image")
	if err != nil {
		invalidRequest(c)
		return
	}

	var image *string
	if file != nil {
		defer file.Close()
		url, err := h.assets.Store(c.Request.Context(), file, filename)
		if err != nil {
			respondError(c, err)
			return
		}
		image = &url
	}

	identity, err := h.authSvc.UpdateProfile(c.Request.Context(), callerID(c), name, image)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, identity)
}
