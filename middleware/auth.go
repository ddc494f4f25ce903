package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"natours-api/models"
	"natours-api/services"
	"natours-api/utils"
)

const (
	currentUserKey = "currentUser"

	// TokenCookie is the cookie the session token is also delivered in.
	TokenCookie = "jwt"
)

var (
	errNotLoggedIn     = utils.Unauthorized("You are not logged in! Please log in to get access.")
	errUserGone        = utils.Unauthorized("Invalid user data. Please log in with different credential")
	errPasswordChanged = utils.Unauthorized("User recently changed password. Please log in with new credential")
	errForbidden       = utils.Forbidden("You do not have permission to perform this action")
)

// UserFinder resolves active users by id.
type UserFinder interface {
	FindByID(ctx context.Context, id string, preloads ...string) (*models.User, error)
}

type AuthMiddleware struct {
	auth  *services.AuthService
	users UserFinder
}

func NewAuthMiddleware(auth *services.AuthService, users UserFinder) *AuthMiddleware {
	return &AuthMiddleware{auth: auth, users: users}
}

// Protect admits requests carrying a valid token of a still active user
// whose password has not changed since the token was issued.
func (m *AuthMiddleware) Protect() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			abort(c, errNotLoggedIn)
			return
		}

		userID, issuedAt, err := m.auth.ParseToken(token)
		if err != nil {
			abort(c, err)
			return
		}

		user, err := m.users.FindByID(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				abort(c, errUserGone)
				return
			}
			abort(c, err)
			return
		}

		if user.ChangedPasswordAfter(issuedAt) {
			abort(c, errPasswordChanged)
			return
		}

		SetCurrentUser(c, user)
		c.Next()
	}
}

// RestrictTo admits only the given roles. It runs after Protect.
func RestrictTo(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			abort(c, errNotLoggedIn)
			return
		}
		if !user.HasRole(roles...) {
			abort(c, errForbidden)
			return
		}
		c.Next()
	}
}

func SetCurrentUser(c *gin.Context, user *models.User) {
	c.Set(currentUserKey, user)
}

// CurrentUser returns the user stored by Protect, or nil.
func CurrentUser(c *gin.Context) *models.User {
	value, ok := c.Get(currentUserKey)
	if !ok {
		return nil
	}
	user, _ := value.(*models.User)
	return user
}

// extractToken reads the bearer token, falling back to the session cookie.
func extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if cookie, err := c.Cookie(TokenCookie); err == nil && cookie != "" && cookie != "loggedout" {
		return cookie
	}
	return ""
}

func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
