package handlers

import (
	"errors"
	"patient-records-server/internal/config"
	"patient-records-server/internal/logger"
	"patient-records-server/internal/metrics"
	"patient-records-server/internal/models"
	"patient-records-server/internal/repository"
	"patient-records-server/internal/utils"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const refreshCookie = "refresh_token"

// AuthHandler handles authentication-related requests.
type AuthHandler struct {
	Users   repository.UserRepository
	Tokens  repository.TokenRepository
	Cfg     *config.Config
	Log     *logger.Logger
	Metrics *metrics.Metrics
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(users repository.UserRepository, tokens repository.TokenRepository, cfg *config.Config, log *logger.Logger, m *metrics.Metrics) *AuthHandler {
	return &AuthHandler{Users: users, Tokens: tokens, Cfg: cfg, Log: log, Metrics: m}
}

// RegisterRequest represents the request body for a staff signup.
type RegisterRequest struct {
	FirstName   string `json:"firstName" binding:"required,max=100"`
	LastName    string `json:"lastName" binding:"required,max=100"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	AccountType string `json:"accountType" binding:"required,oneof=doctor triage"`
	Specialty   string `json:"specialty" binding:"max=100"`
}

// Register creates a pending account. An admin has to approve it before
// the user can log in.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	ctx := c.Request.Context()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := h.Users.FindByEmail(ctx, email); err == nil {
		utils.BadRequest(c, "User with this email already exists")
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		utils.ServerError(c, "Database error", err)
		return
	}

	user := models.User{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       email,
		AccountType: models.Role(req.AccountType),
	}
	if user.AccountType == models.RoleDoctor {
		user.Specialty = req.Specialty
	}

	if err := user.SetPassword(req.Password); err != nil {
		utils.ServerError(c, "Failed to hash password", err)
		return
	}

	if err := h.Users.Create(ctx, &user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			utils.BadRequest(c, "User with this email already exists")
			return
		}
		utils.ServerError(c, "Failed to create user", err)
		return
	}

	h.Log.Audit(user.ID, "register", "user", true, logrus.Fields{"account_type": user.AccountType})
	utils.Created(c, "Registration submitted for review", user.Sanitize())
}

// LoginRequest represents the request body for user login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the response body for successful login.
type LoginResponse struct {
	AccessToken  string               `json:"accessToken"`
	RefreshToken string               `json:"refreshToken"`
	User         models.UserSanitized `json:"user"`
}

// Login handles user login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	user, err := h.Users.FindByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.Metrics.AuthAttempt("invalid_credentials")
			utils.Unauthorized(c, "Invalid email or password")
		} else {
			utils.ServerError(c, "Database error", err)
		}
		return
	}

	if !user.CheckPassword(req.Password) {
		h.Metrics.AuthAttempt("invalid_credentials")
		utils.Unauthorized(c, "Invalid email or password")
		return
	}

	if !h.allowed(c, user) {
		return
	}

	accessToken, refreshToken, ok := h.issueTokens(c, user)
	if !ok {
		return
	}

	h.Metrics.AuthAttempt("success")
	h.Log.Audit(user.ID, "login", "session", true, nil)
	utils.Success(c, "Login successful", LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user.Sanitize(),
	})
}

// allowed rejects accounts still in, or refused by, the review queue.
func (h *AuthHandler) allowed(c *gin.Context, user *models.User) bool {
	switch user.Status() {
	case models.ApprovalPending:
		h.Metrics.AuthAttempt("pending")
		utils.Forbidden(c, "Account is pending approval")
		return false
	case models.ApprovalDenied:
		h.Metrics.AuthAttempt("denied")
		utils.Forbidden(c, "Account registration was denied")
		return false
	}
	return true
}

// issueTokens signs a token pair, stores the refresh token and sets the
// refresh cookie. On failure the error response has been written.
func (h *AuthHandler) issueTokens(c *gin.Context, user *models.User) (string, string, bool) {
	accessToken, refreshTokenString, err := utils.GenerateTokens(user, h.Cfg)
	if err != nil {
		utils.ServerError(c, "Failed to generate tokens", err)
		return "", "", false
	}

	refreshToken := models.RefreshToken{
		UserID:    user.ID,
		Token:     refreshTokenString,
		ExpiresAt: time.Now().Add(time.Duration(h.Cfg.JWTRefreshExpirationHours) * time.Hour),
	}
	if err := h.Tokens.Create(c.Request.Context(), &refreshToken); err != nil {
		utils.ServerError(c, "Failed to store refresh token", err)
		return "", "", false
	}

	c.SetCookie(
		refreshCookie,
		refreshTokenString,
		h.Cfg.JWTRefreshExpirationHours*60*60,
		"/",
		"",
		h.Cfg.IsProduction(),
		true,
	)
	return accessToken, refreshTokenString, true
}

// RefreshTokenRequest represents the request body for token refresh.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RefreshTokenResponse represents the response body for successful token refresh.
type RefreshTokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// RefreshToken rotates the refresh token: the presented one is revoked and a
// new pair is issued.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	presented, err := c.Cookie(refreshCookie)
	if err != nil || presented == "" {
		var req RefreshTokenRequest
		if !utils.BindAndValidate(c, &req) {
			return
		}
		presented = req.RefreshToken
	}
	ctx := c.Request.Context()

	claims, err := utils.ValidateToken(presented, h.Cfg.JWTRefreshSecret)
	if err != nil {
		utils.Unauthorized(c, "Invalid refresh token structure or signature: "+err.Error())
		return
	}

	stored, err := h.Tokens.FindActive(ctx, claims.UserID, presented)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.Unauthorized(c, "Refresh token not found, expired, or revoked")
		} else {
			utils.ServerError(c, "Database error checking refresh token", err)
		}
		return
	}

	user, err := h.Users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			utils.Unauthorized(c, "User no longer exists")
		} else {
			utils.ServerError(c, "Failed to find user associated with token", err)
		}
		return
	}
	if !h.allowed(c, user) {
		return
	}

	// Revoke is conditional on the token still being active, so a concurrent
	// exchange of the same token loses here.
	if err := h.Tokens.Revoke(ctx, stored.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.Metrics.AuthAttempt("refresh_reused")
			utils.Unauthorized(c, "Refresh token has already been used")
		} else {
			utils.ServerError(c, "Failed to revoke refresh token", err)
		}
		return
	}

	accessToken, refreshToken, ok := h.issueTokens(c, user)
	if !ok {
		return
	}

	utils.Success(c, "Access token refreshed successfully", RefreshTokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

// LogoutRequest represents the request body for user logout.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Logout revokes the refresh token from the cookie or body and clears the cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	token, _ := c.Cookie(refreshCookie)
	if token == "" {
		var req LogoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequest(c, "Invalid request payload: "+err.Error())
			return
		}
		token = req.RefreshToken
	}
	if token == "" {
		utils.BadRequest(c, "Refresh token is required")
		return
	}

	if err := h.Tokens.RevokeByToken(c.Request.Context(), token); err != nil {
		utils.ServerError(c, "Failed to revoke refresh token", err)
		return
	}

	c.SetCookie(refreshCookie, "", -1, "/", "", h.Cfg.IsProduction(), true)

	if who, ok := currentActor(c); ok {
		h.Log.Audit(who.ID, "logout", "session", true, nil)
	}
	utils.Success(c, "Logout successful. Refresh token has been invalidated.", nil)
}

// GetProfile handles fetching the currently authenticated user's profile.
func (h *AuthHandler) GetProfile(c *gin.Context) {
	who, ok := requireActor(c)
	if !ok {
		return
	}

	user, err := h.Users.FindByID(c.Request.Context(), who.ID)
	if err != nil {
		respondRepoError(c, err, "User profile not found")
		return
	}

	utils.Success(c, "Profile fetched successfully", user.Sanitize())
}
