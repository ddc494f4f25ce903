package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"natours-api/config"
	"natours-api/models"
	"natours-api/services"
	"natours-api/utils"
)

const (
	MaxJSONBodyBytes      = 10 << 10
	MaxMultipartBodyBytes = 10 << 20
)

const (
	msgInternal   = "Something went wrong"
	msgNotFound   = "No document found with that ID"
	msgBadToken   = "Invalid token. Please log in again!"
	msgExpired    = "Your token has expired! Please log in again."
	msgDuplicate  = "Duplicate field value. Please use another value!"
	msgBadJSON    = "Invalid JSON body"
	msgBodyTooBig = "Request body is too large"
)

// Normalize maps an error raised anywhere in the chain to the operational
// error shown to the client. ok is false for unexpected errors, which are
// reported as a generic 500.
func Normalize(err error) (appErr *utils.AppError, ok bool) {
	var (
		ae          *utils.AppError
		validation  *models.ValidationError
		castErr     *utils.CastError
		typeErr     *json.UnmarshalTypeError
		syntaxErr   *json.SyntaxError
		maxBytesErr *http.MaxBytesError
	)

	switch {
	case errors.As(err, &ae):
		return ae, true
	case errors.As(err, &validation):
		return utils.BadRequest("Invalid input data. " + validation.Error()), true
	case errors.As(err, &castErr):
		return utils.BadRequest(fmt.Sprintf("Invalid %s : %s", castErr.Path, castErr.Value)), true
	case errors.As(err, &typeErr):
		return utils.BadRequest(fmt.Sprintf("Invalid %s : %s", typeErr.Field, typeErr.Value)), true
	case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return utils.BadRequest(msgBadJSON), true
	case errors.As(err, &maxBytesErr):
		return utils.NewAppError(msgBodyTooBig, http.StatusRequestEntityTooLarge), true
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return utils.BadRequest(msgDuplicate), true
	case errors.Is(err, gorm.ErrRecordNotFound):
		return utils.NotFound(msgNotFound), true
	case errors.Is(err, services.ErrTokenExpired):
		return utils.Unauthorized(msgExpired), true
	case errors.Is(err, services.ErrTokenInvalid):
		return utils.Unauthorized(msgBadToken), true
	}
	return utils.NewAppError(msgInternal, http.StatusInternalServerError), false
}

// ErrorHandler renders the last error pushed with c.Error. Production
// responses carry status and message only; development adds the raw error
// and its stack.
func ErrorHandler(cfg *config.Config, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		appErr, operational := Normalize(err)
		if !operational {
			log.WithFields(logrus.Fields{
				"method": c.Request.Method,
				"path":   c.Request.URL.Path,
			}).WithError(err).Errorf("unexpected error: %+v", err)
		}

		resp := utils.ErrorResponse{
			Status:  appErr.Status,
			Message: appErr.Message,
		}
		if !cfg.IsProduction() {
			if !operational {
				resp.Message = err.Error()
			}
			resp.Error = err.Error()
			resp.Stack = fmt.Sprintf("%+v", err)
		}
		c.JSON(appErr.StatusCode, resp)
	}
}

// Recovery turns a panic into an unexpected error for ErrorHandler.
func Recovery(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithField("path", c.Request.URL.Path).Errorf("panic recovered: %v", rec)
				_ = c.Error(pkgerrors.Errorf("panic: %v", rec))
				c.Abort()
			}
		}()
		c.Next()
	}
}

// RequestLogger logs one structured line per request.
func RequestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(logrus.Fields{
			"status":     status,
			"method":     c.Request.Method,
			"path":       path,
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		})
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Info("request handled")
		}
	}
}

func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'self'")
		c.Next()
	}
}

// ValidateJSON requires a JSON or multipart content type on requests that
// carry a body.
func ValidateJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodDelete, http.MethodOptions, http.MethodHead:
			c.Next()
			return
		}
		if c.Request.ContentLength == 0 {
			c.Next()
			return
		}

		contentType := c.GetHeader("Content-Type")
		if !strings.Contains(contentType, "application/json") && !isMultipart(c) {
			_ = c.Error(utils.BadRequest("Content-Type must be application/json or multipart/form-data"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// BodyLimit caps request bodies: 10kb for JSON, 10MB for uploads.
func BodyLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			limit := int64(MaxJSONBodyBytes)
			if isMultipart(c) {
				limit = MaxMultipartBodyBytes
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.GetHeader("Content-Type"), "multipart/form-data")
}
