package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/staybook/hotel-booking-backend/internal/utils"
	"github.com/staybook/hotel-booking-backend/pkg/jwt"
)

// UserContextKey is the key used to store user information in Gin context
const UserContextKey = "user"

// AdminKeyHeader carries the operator API key
const AdminKeyHeader = "X-Admin-Key"

// UserContext represents the authenticated user's information
type UserContext struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Roles  []string  `json:"roles"`
	// ViaAdminKey is set when the caller authenticated with the operator key
	ViaAdminKey bool `json:"via_admin_key"`
}

// IsAdmin reports whether the caller holds operator rights
func (u UserContext) IsAdmin() bool {
	if u.ViaAdminKey {
		return true
	}
	claims := jwt.Claims{Roles: u.Roles}
	return claims.HasRole(jwt.RoleAdmin)
}

// AuthMiddleware creates a middleware that validates JWT tokens
func AuthMiddleware(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userCtx, ok := authenticate(c, jwtService, logger)
		if !ok {
			return
		}
		c.Set(UserContextKey, userCtx)
		c.Next()
	}
}

// RequireAdmin lets a request through when it carries a valid operator key,
// or a bearer token with the admin role
func RequireAdmin(jwtService *jwt.Service, adminKeyHash string, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader(AdminKeyHeader); key != "" {
			if !utils.CheckAdminAPIKey(adminKeyHash, key) {
				logger.WithFields(logrus.Fields{
					"path": c.Request.URL.Path,
					"ip":   utils.GetRealIP(c),
				}).Warn("ADMIN AUTH FAILED: invalid admin key")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   "unauthorized",
					"message": "Invalid admin key",
					"code":    "INVALID_ADMIN_KEY",
				})
				return
			}
			c.Set(UserContextKey, UserContext{ViaAdminKey: true})
			c.Next()
			return
		}

		userCtx, ok := authenticate(c, jwtService, logger)
		if !ok {
			return
		}
		if !userCtx.IsAdmin() {
			logger.WithFields(logrus.Fields{
				"path":    c.Request.URL.Path,
				"user_id": userCtx.UserID,
			}).Warn("ADMIN AUTH FAILED: missing admin role")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "You don't have permission to access this resource",
				"code":    "INSUFFICIENT_PERMISSIONS",
			})
			return
		}

		c.Set(UserContextKey, userCtx)
		c.Next()
	}
}

// authenticate validates the bearer token, answering 401 when it cannot
func authenticate(c *gin.Context, jwtService *jwt.Service, logger *logrus.Logger) (UserContext, bool) {
	log := logger.WithFields(logrus.Fields{
		"path": c.Request.URL.Path,
		"ip":   utils.GetRealIP(c),
	})

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		log.Warn("AUTH FAILED: missing authorization header")
		abortUnauthorized(c, "unauthorized", "Authorization header is required", "MISSING_AUTH_HEADER")
		return UserContext{}, false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		log.Warn("AUTH FAILED: invalid authorization format")
		abortUnauthorized(c, "unauthorized", "Invalid authorization header format. Expected: Bearer <token>", "INVALID_AUTH_FORMAT")
		return UserContext{}, false
	}

	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		log.Warn("AUTH FAILED: empty token")
		abortUnauthorized(c, "unauthorized", "Token cannot be empty", "INVALID_AUTH_FORMAT")
		return UserContext{}, false
	}

	claims, err := jwtService.ValidateAccessToken(tokenString)
	if err != nil {
		if errors.Is(err, gojwt.ErrTokenExpired) {
			log.WithError(err).Info("AUTH FAILED: token expired")
			abortUnauthorized(c, "token_expired", "Access token has expired. Please sign in again.", "TOKEN_EXPIRED")
		} else {
			log.WithError(err).Warn("AUTH FAILED: invalid token")
			abortUnauthorized(c, "invalid_token", "Invalid access token", "INVALID_TOKEN")
		}
		return UserContext{}, false
	}

	return UserContext{
		UserID: claims.UserID,
		Email:  claims.Email,
		Roles:  claims.Roles,
	}, true
}

func abortUnauthorized(c *gin.Context, errorType, message, code string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   errorType,
		"message": message,
		"code":    code,
	})
}

// GetUserContext retrieves the user context from Gin context
func GetUserContext(c *gin.Context) (UserContext, bool) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return UserContext{}, false
	}

	userCtx, ok := value.(UserContext)
	if !ok {
		return UserContext{}, false
	}

	return userCtx, true
}

// MustGetUserContext retrieves the user context or panics (use only after AuthMiddleware)
func MustGetUserContext(c *gin.Context) UserContext {
	userCtx, exists := GetUserContext(c)
	if !exists {
		panic("user context not found - ensure AuthMiddleware is applied")
	}
	return userCtx
}
