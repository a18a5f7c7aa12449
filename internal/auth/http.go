package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/brightforge/storefront/internal/metrics"
)

// RegisterRoutes mounts authentication endpoints under /auth. Logout and
// profile routes sit behind the identity middleware; everything else is
// public.
func RegisterRoutes(router *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", handler.register)
		authGroup.POST("/login", handler.login)
		authGroup.POST("/refresh", handler.refresh)
		authGroup.POST("/forgot-password", handler.forgotPassword)
		authGroup.POST("/reset-password/:token", handler.resetPassword)

		protected := authGroup.Group("")
		protected.Use(Middleware(service))
		{
			protected.POST("/logout", handler.logout)
			protected.GET("/profile", handler.getProfile)
			protected.PUT("/profile", handler.updateProfile)
		}
	}
}

type httpHandler struct {
	service *Service
}

type registerRequest struct {
	Name     string  `json:"name" binding:"required"`
	Email    string  `json:"email" binding:"required,email"`
	Phone    *string `json:"phone" binding:"omitempty,max=32"`
	Password string  `json:"password" binding:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type updateProfileRequest struct {
	Name     *string `json:"name" binding:"omitempty,min=1"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Phone    *string `json:"phone" binding:"omitempty,max=32"`
	Password *string `json:"password" binding:"omitempty,min=8,max=72"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPasswordRequest struct {
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type sessionResponse struct {
	User         userResponse `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (h *httpHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	result, err := h.service.Register(c.Request.Context(), RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailTaken):
			respondError(c, http.StatusConflict, "VALIDATION_ERROR", "Email already registered")
		case errors.Is(err, ErrStoreUnavailable):
			respondError(c, http.StatusServiceUnavailable, "SERVER_ERROR", "Service temporarily unavailable")
		default:
			respondError(c, http.StatusInternalServerError, "SERVER_ERROR", "Failed to register user")
		}
		return
	}

	c.JSON(http.StatusCreated, marshalSession(result))
}

func (h *httpHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	result, err := h.service.Login(c.Request.Context(), LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			metrics.ObserveLogin("failure")
			respondError(c, http.StatusUnauthorized, "AUTH_ERROR", "Invalid email or password")
		case errors.Is(err, ErrStoreUnavailable):
			respondError(c, http.StatusServiceUnavailable, "SERVER_ERROR", "Service temporarily unavailable")
		default:
			respondError(c, http.StatusInternalServerError, "SERVER_ERROR", "Failed to authenticate")
		}
		return
	}

	metrics.ObserveLogin("success")
	c.JSON(http.StatusOK, marshalSession(result))
}

func (h *httpHandler) logout(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "AUTH_ERROR", "Invalid or expired token")
		return
	}

	if err := h.service.Logout(c.Request.Context(), user.ID); err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			respondError(c, http.StatusServiceUnavailable, "SERVER_ERROR", "Service temporarily unavailable")
			return
		}
		respondError(c, http.StatusInternalServerError, "SERVER_ERROR", "Failed to log out")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (h *httpHandler) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		respondError(c, http.StatusBadRequest, "AUTH_ERROR", "Refresh token required")
		return
	}

	pair, err := h.service.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingToken):
			respondError(c, http.StatusBadRequest, "AUTH_ERROR", "Refresh token required")
		case errors.Is(err, ErrInvalidToken):
			metrics.ObserveRefresh("rejected")
			respondError(c, http.StatusUnauthorized, "AUTH_ERROR", "Invalid or expired refresh token")
		case errors.Is(err, ErrStoreUnavailable):
			respondError(c, http.StatusServiceUnavailable, "SERVER_ERROR", "Service temporarily unavailable")
		default:
			respondError(c, http.StatusInternalServerError, "SERVER_ERROR", "Failed to refresh session")
		}
		return
	}

	metrics.ObserveRefresh("rotated")
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (h *httpHandler) getProfile(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "AUTH_ERROR", "Invalid or expired token")
		return
	}

	profile, err := h.service.GetProfile(c.Request.Context(), user.ID)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			respondError(c, http.StatusNotFound, "NOT_FOUND", "User not found")
		case errors.Is(err, ErrStoreUnavailable):
			respondError(c, http.StatusServiceUnavailable, "SERVER_ERROR", "Service temporarily unavailable")
		default:
			respondError(c, http.StatusInternalServerError, "SERVER_ERROR", "Failed to load profile")
		}
		return
	}

	c.JSON(http.StatusOK, marshalUser(profile))
}

func (h *httpHandler) updateProfile(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "AUTH_ERROR", "Invalid or expired token")
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	updated, err := h.service.UpdateProfile(c.Request.Context(), user.ID, UpdateProfileInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			respondError(c, http.StatusNotFound, "NOT_FOUND", "User not found")
		case errors.Is(err, ErrEmailTaken):
			respondError(c, http.StatusConflict, "VALIDATION_ERROR", "Email already in use")
		case errors.Is(err, ErrStoreUnavailable):
			respondError(c, http.StatusServiceUnavailable, "SERVER_ERROR", "Service temporarily unavailable")
		default:
			respondError(c, http.StatusInternalServerError, "SERVER_ERROR", "Failed to update profile")
		}
		return
	}

	c.JSON(http.StatusOK, marshalUser(updated))
}

func (h *httpHandler) forgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	if err := h.service.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			respondError(c, http.StatusServiceUnavailable, "SERVER_ERROR", "Service temporarily unavailable")
			return
		}
		respondError(c, http.StatusInternalServerError, "SERVER_ERROR", "Failed to process request")
		return
	}

	// Identical response whether or not the account exists.
	c.JSON(http.StatusOK, gin.H{"message": "If an account with that email exists, a password reset link has been sent."})
}

func (h *httpHandler) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), c.Param("token"), req.Password); err != nil {
		switch {
		case errors.Is(err, ErrResetInvalid):
			respondError(c, http.StatusBadRequest, "AUTH_ERROR", "Invalid or expired reset token")
		case errors.Is(err, ErrStoreUnavailable):
			respondError(c, http.StatusServiceUnavailable, "SERVER_ERROR", "Service temporarily unavailable")
		default:
			respondError(c, http.StatusInternalServerError, "SERVER_ERROR", "Failed to reset password")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password has been reset successfully."})
}

func marshalSession(result AuthResult) sessionResponse {
	return sessionResponse{
		User:         marshalUser(result.User),
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
	}
}

func marshalUser(user User) userResponse {
	return userResponse{
		ID:        user.ID.String(),
		Name:      user.Name,
		Email:     user.Email,
		Phone:     user.Phone,
		Role:      string(user.Role),
		CreatedAt: user.CreatedAt.UTC(),
		UpdatedAt: user.UpdatedAt.UTC(),
	}
}

type errorBody struct {
	Message string        `json:"message"`
	Code    string        `json:"code"`
	Details []fieldDetail `json:"details,omitempty"`
}

type fieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": errorBody{Message: message, Code: code}})
}

// respondValidationError translates binding failures into a 422 with
// per-field details.
func respondValidationError(c *gin.Context, err error) {
	body := errorBody{Message: "Validation failed", Code: "VALIDATION_ERROR"}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			body.Details = append(body.Details, fieldDetail{
				Field:   fe.Field(),
				Message: fe.Tag(),
			})
		}
	}

	c.JSON(http.StatusUnprocessableEntity, gin.H{"error": body})
}
