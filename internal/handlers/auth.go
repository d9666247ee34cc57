package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"medical-dictation-server/internal/config"
	"medical-dictation-server/internal/middleware"
	"medical-dictation-server/internal/models"
	"medical-dictation-server/internal/utils"
)

// AuthHandler handles authentication-related requests.
type AuthHandler struct {
	DB  *gorm.DB
	Cfg *config.Config
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(db *gorm.DB, cfg *config.Config) *AuthHandler {
	return &AuthHandler{DB: db, Cfg: cfg}
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

	var user models.User
	if err := h.DB.Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Unauthorized(c, "Invalid email or password")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return
	}

	if !user.CheckPassword(req.Password) {
		utils.Unauthorized(c, "Invalid email or password")
		return
	}
	if !user.IsActive {
		utils.Forbidden(c, "Account is inactive")
		return
	}

	accessToken, refreshToken, ok := h.issueTokens(c, &user)
	if !ok {
		return
	}

	utils.Success(c, "Login successful", LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user.Sanitize(),
	})
}

// issueTokens signs a token pair, stores the refresh token and sets its cookie.
func (h *AuthHandler) issueTokens(c *gin.Context, user *models.User) (string, string, bool) {
	accessToken, refreshTokenString, err := utils.GenerateTokens(user, h.Cfg)
	if err != nil {
		utils.InternalServerError(c, "Failed to generate tokens: "+err.Error())
		return "", "", false
	}

	refreshToken := models.RefreshToken{
		UserID:    user.ID,
		Token:     refreshTokenString,
		ExpiresAt: time.Now().Add(utils.RefreshTTL(h.Cfg)),
	}
	if err := h.DB.Create(&refreshToken).Error; err != nil {
		utils.InternalServerError(c, "Failed to store refresh token: "+err.Error())
		return "", "", false
	}

	c.SetCookie(
		"refresh_token",
		refreshTokenString,
		h.Cfg.JWTRefreshExpirationHours*60*60,
		"/",
		"",
		h.Cfg.Environment != "development", // Secure outside development
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

// RefreshToken exchanges a refresh token for a new pair. The presented
// token is revoked.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	// Cookie first, request body as a fallback for mobile clients.
	presented, err := c.Cookie("refresh_token")
	if err != nil || presented == "" {
		var req RefreshTokenRequest
		if !utils.BindAndValidate(c, &req) {
			return
		}
		presented = req.RefreshToken
	}

	claims, err := utils.ValidateToken(presented, h.Cfg.JWTRefreshSecret)
	if err != nil {
		utils.Unauthorized(c, "Invalid refresh token structure or signature: "+err.Error())
		return
	}

	var storedToken models.RefreshToken
	if err := h.DB.Where("token = ? AND user_id = ?", presented, claims.UserID).First(&storedToken).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Unauthorized(c, "Refresh token not found, expired, or revoked")
		} else {
			utils.InternalServerError(c, "Database error checking refresh token: "+err.Error())
		}
		return
	}
	if !storedToken.Usable(time.Now()) {
		utils.Unauthorized(c, "Refresh token not found, expired, or revoked")
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", claims.UserID).Error; err != nil {
		utils.Unauthorized(c, "User no longer exists")
		return
	}
	if !user.IsActive {
		utils.Forbidden(c, "Account is inactive")
		return
	}

	// Conditional revoke so a token replayed concurrently is only honoured once.
	res := h.DB.Model(&models.RefreshToken{}).
		Where("id = ? AND is_revoked = ?", storedToken.ID, false).
		Update("is_revoked", true)
	if res.Error != nil {
		utils.InternalServerError(c, "Failed to revoke refresh token: "+res.Error.Error())
		return
	}
	if res.RowsAffected == 0 {
		utils.Unauthorized(c, "Refresh token not found, expired, or revoked")
		return
	}

	accessToken, refreshToken, ok := h.issueTokens(c, &user)
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
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Logout revokes the given refresh token and clears the cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	userID, _ := middleware.GetUserIDFromContext(c)

	// Unknown or already revoked tokens are fine for logout.
	err := h.DB.Model(&models.RefreshToken{}).
		Where("token = ? AND user_id = ? AND is_revoked = ?", req.RefreshToken, userID, false).
		Updates(map[string]any{"is_revoked": true, "expires_at": time.Now()}).Error
	if err != nil {
		utils.InternalServerError(c, "Failed to revoke refresh token: "+err.Error())
		return
	}

	c.SetCookie("refresh_token", "", -1, "/", "", h.Cfg.Environment != "development", true)

	utils.Success(c, "Logout successful. Refresh token has been invalidated.", nil)
}

func (h *AuthHandler) currentUser(c *gin.Context) (*models.User, bool) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return nil, false
	}
	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User profile not found")
		} else {
			utils.InternalServerError(c, "Database error: "+err.Error())
		}
		return nil, false
	}
	return &user, true
}

// GetProfile handles fetching the currently authenticated user's profile.
func (h *AuthHandler) GetProfile(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	utils.Success(c, "Profile fetched successfully", user.Sanitize())
}

// UpdateProfileRequest represents the request body for updating user profile.
type UpdateProfileRequest struct {
	FullName     *string `json:"fullName" validate:"omitempty,min=1"`
	Email        *string `json:"email" validate:"omitempty,email"`
	Password     *string `json:"password" validate:"omitempty,min=8"`
	ProfileImage *string `json:"profileImage"`
}

// UpdateProfile handles updating the currently authenticated user's profile.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.Email != nil && *req.Email != user.Email {
		var count int64
		if err := h.DB.Model(&models.User{}).Where("email = ? AND id <> ?", *req.Email, user.ID).Count(&count).Error; err != nil {
			utils.InternalServerError(c, "Database error checking email: "+err.Error())
			return
		}
		if count > 0 {
			utils.Conflict(c, "Email is already in use")
			return
		}
		user.Email = *req.Email
	}
	if req.Password != nil {
		if err := user.SetPassword(*req.Password); err != nil {
			utils.InternalServerError(c, "Failed to hash password: "+err.Error())
			return
		}
	}
	if req.ProfileImage != nil {
		user.ProfileImage = *req.ProfileImage
	}

	if err := h.DB.Save(user).Error; err != nil {
		utils.InternalServerError(c, "Failed to update profile: "+err.Error())
		return
	}

	utils.Success(c, "Profile updated successfully", user.Sanitize())
}

// DeviceTokenRequest registers the push notification target of the caller's device.
type DeviceTokenRequest struct {
	DeviceToken string `json:"deviceToken" validate:"max=512"`
}

// UpdateDeviceToken stores or clears the caller's device token.
func (h *AuthHandler) UpdateDeviceToken(c *gin.Context) {
	var req DeviceTokenRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}
	if err := h.DB.Model(&models.User{}).Where("id = ?", userID).Update("device_token", req.DeviceToken).Error; err != nil {
		utils.InternalServerError(c, "Failed to store device token: "+err.Error())
		return
	}
	utils.Success(c, "Device token updated successfully", nil)
}
