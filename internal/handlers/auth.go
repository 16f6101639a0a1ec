package handlers

import (
	"fmt"
	"net/http"

	"mibagent/internal/middleware"
	"mibagent/internal/utils"

	"github.com/gin-gonic/gin"
)

type AuthHandlers struct {
	authService *middleware.AuthService
	log         *utils.Logger
}

type LoginRequest struct {
	Username string `json:"username" validate:"required,min=1,max=64"`
	Password string `json:"password" validate:"required,min=1,max=128"`
}

func NewAuthHandlers(authService *middleware.AuthService, logger *utils.Logger) *AuthHandlers {
	return &AuthHandlers{authService: authService, log: logger}
}

// APILogin exchanges credentials for a bearer token carrying the
// account's access class.
func (h *AuthHandlers) APILogin(c *gin.Context) {
	key := c.ClientIP()
	if retryAfter, locked := h.authService.LockedOut(key); locked {
		c.Header("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many failed login attempts", "retry_after": int(retryAfter.Seconds())})
		return
	}

	var req LoginRequest
	if !middleware.BindJSON(c, &req) {
		return
	}
	username := middleware.SanitizeString(req.Username)
	acct, ok := h.authService.Authenticate(username, req.Password)
	if !ok {
		h.log.Writef("API login failed for %q from %s", username, key)
		if retryAfter, locked := h.authService.RecordLoginFailure(key); locked {
			c.Header("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many failed login attempts", "retry_after": int(retryAfter.Seconds())})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
		return
	}

	token, err := h.authService.GenerateToken(acct.Username, acct.Class)
	if err != nil {
		h.log.Writef("Token generation failed for %q: %v", acct.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	h.authService.ClearFailures(key)
	h.log.Writef("API login for %q (%s)", acct.Username, acct.Class)
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"class":      acct.Class.String(),
		"expires_in": int(middleware.TokenExpiry.Seconds()),
	})
}
