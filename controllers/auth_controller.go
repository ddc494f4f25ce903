package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"natours-api/config"
	"natours-api/middleware"
	"natours-api/models"
	"natours-api/repositories"
	"natours-api/services"
	"natours-api/utils"
)

var (
	errMissingCredentials = utils.BadRequest("Please provide email and password")
	errBadCredentials     = utils.Unauthorized("Incorrect email or password")
	errWrongPassword      = utils.BadRequest("Wrong password. Update password request denied.")
	errUserNotFound       = utils.NotFound("User not found.")
	errResetToken         = utils.BadRequest("Reset password token is invalid or expired")
	errSendMail           = utils.NewAppError("There was an error sending the mail. Try again later.", http.StatusInternalServerError)
)

// Mailer delivers the account emails.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, name, resetURL string) error
	SendWelcome(ctx context.Context, to, name, accountURL string) error
}

type AuthController struct {
	config *config.Config
	users  *repositories.UserRepository
	auth   *services.AuthService
	mailer Mailer
	log    *logrus.Logger
}

func NewAuthController(cfg *config.Config, users *repositories.UserRepository, auth *services.AuthService, mailer Mailer, log *logrus.Logger) *AuthController {
	return &AuthController{
		config: cfg,
		users:  users,
		auth:   auth,
		mailer: mailer,
		log:    log,
	}
}

func (ac *AuthController) Signup(c *gin.Context) {
	var req models.SignupInput
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}
	if err := req.Validate(); err != nil {
		_ = c.Error(err)
		return
	}

	hash, err := ac.auth.HashPassword(req.Password)
	if err != nil {
		_ = c.Error(err)
		return
	}

	user := models.NewUser(req.Name, req.Email)
	user.Password = hash
	if err := user.Validate(); err != nil {
		_ = c.Error(err)
		return
	}
	if err := ac.users.Create(c.Request.Context(), user); err != nil {
		_ = c.Error(err)
		return
	}

	// The account exists either way; a failed welcome mail is only logged.
	if err := ac.mailer.SendWelcome(c.Request.Context(), user.Email, firstName(user.Name), ac.url(c, "/api/v1/users/me")); err != nil {
		ac.log.WithError(err).WithField("user_id", user.ID).Warn("welcome email not sent")
	}

	ac.createSendToken(c, user, http.StatusCreated)
}

func (ac *AuthController) Login(c *gin.Context) {
	var req models.LoginInput
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}
	if req.Email == "" || req.Password == "" {
		_ = c.Error(errMissingCredentials)
		return
	}

	user, err := ac.users.FindByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = c.Error(errBadCredentials)
			return
		}
		_ = c.Error(err)
		return
	}
	if !ac.auth.CheckPassword(user.Password, req.Password) {
		_ = c.Error(errBadCredentials)
		return
	}

	ac.createSendToken(c, user, http.StatusOK)
}

// Logout overwrites the session cookie with a short lived placeholder.
func (ac *AuthController) Logout(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "loggedout",
		Path:     "/",
		Expires:  ac.auth.Now().Add(10 * time.Second),
		HttpOnly: true,
		Secure:   ac.config.IsProduction(),
	})
	c.JSON(http.StatusOK, utils.SuccessResponse{Status: utils.StatusSuccess})
}

// ForgotPassword stores a reset token for the account and mails the raw
// token. When the mail cannot be sent the token is withdrawn again.
func (ac *AuthController) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}

	ctx := c.Request.Context()
	user, err := ac.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = c.Error(errUserNotFound)
			return
		}
		_ = c.Error(err)
		return
	}

	raw, err := user.CreatePasswordResetToken(ac.auth.Now())
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := ac.users.SaveResetToken(ctx, user); err != nil {
		_ = c.Error(err)
		return
	}

	resetURL := ac.url(c, "/api/v1/users/resetPassword/"+raw)
	if err := ac.mailer.SendPasswordReset(ctx, user.Email, firstName(user.Name), resetURL); err != nil {
		ac.log.WithError(err).WithField("user_id", user.ID).Error("password reset email not sent")

		user.ClearPasswordResetToken()
		if err := ac.users.SaveResetToken(ctx, user); err != nil {
			ac.log.WithError(err).WithField("user_id", user.ID).Error("reset token not withdrawn")
		}
		_ = c.Error(errSendMail)
		return
	}

	utils.SendMessage(c, http.StatusOK, "Token sent to email")
}

func (ac *AuthController) ResetPassword(c *gin.Context) {
	ctx := c.Request.Context()
	now := ac.auth.Now()

	user, err := ac.users.FindByResetToken(ctx, models.HashResetToken(c.Param("token")), now)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = c.Error(errResetToken)
			return
		}
		_ = c.Error(err)
		return
	}

	var req models.PasswordInput
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}
	if err := req.Validate(); err != nil {
		_ = c.Error(err)
		return
	}

	if err := ac.setPassword(ctx, user, req.Password, now); err != nil {
		_ = c.Error(err)
		return
	}
	ac.createSendToken(c, user, http.StatusOK)
}

func (ac *AuthController) UpdateMyPassword(c *gin.Context) {
	user := *middleware.CurrentUser(c)

	var req models.UpdatePasswordInput
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err)
		return
	}
	if err := req.Validate(); err != nil {
		_ = c.Error(err)
		return
	}
	if !ac.auth.CheckPassword(user.Password, req.CurrentPassword) {
		_ = c.Error(errWrongPassword)
		return
	}

	if err := ac.setPassword(c.Request.Context(), &user, req.Password, ac.auth.Now()); err != nil {
		_ = c.Error(err)
		return
	}
	ac.createSendToken(c, &user, http.StatusOK)
}

// setPassword stores the new hash and closes any open reset. Tokens issued
// before now, to the millisecond, stop being accepted.
func (ac *AuthController) setPassword(ctx context.Context, user *models.User, password string, now time.Time) error {
	hash, err := ac.auth.HashPassword(password)
	if err != nil {
		return err
	}
	changedAt := now.Truncate(time.Millisecond)
	user.Password = hash
	user.PasswordChangedAt = &changedAt
	user.ClearPasswordResetToken()
	return ac.users.SavePassword(ctx, user)
}

// createSendToken issues a session token and returns it both in the body
// and as the jwt cookie.
func (ac *AuthController) createSendToken(c *gin.Context, user *models.User, status int) {
	token, err := ac.auth.SignToken(user.ID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  ac.auth.Now().Add(ac.config.JWTCookieExpiresIn),
		HttpOnly: true,
		Secure:   ac.config.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})

	c.JSON(status, utils.SuccessResponse{
		Status: utils.StatusSuccess,
		Token:  token,
		Data:   gin.H{"user": user},
	})
}

// url builds an absolute link, from BASE_URL when set and from the request
// otherwise.
func (ac *AuthController) url(c *gin.Context, path string) string {
	if ac.config.BaseURL != "" {
		return strings.TrimRight(ac.config.BaseURL, "/") + path
	}
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, c.Request.Host, path)
}

func firstName(name string) string {
	if fields := strings.Fields(name); len(fields) > 0 {
		return fields[0]
	}
	return name
}
