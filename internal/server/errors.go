package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/kasira/internal/auth/domain"
	"github.com/smallbiznis/kasira/internal/bootstrap"
	"github.com/smallbiznis/kasira/internal/config"
	"github.com/smallbiznis/kasira/internal/location"
	obscontext "github.com/smallbiznis/kasira/internal/observability/context"
	"github.com/smallbiznis/kasira/internal/observability/logger"
	orgdomain "github.com/smallbiznis/kasira/internal/organization/domain"
	orgservice "github.com/smallbiznis/kasira/internal/organization/service"
	"github.com/smallbiznis/kasira/internal/tenancy"
	"github.com/smallbiznis/kasira/internal/ui"
	"go.uber.org/zap"
	"maragu.dev/gomponents"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrBadGateway         = errors.New("bad_gateway")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if orgservice.IsValidation(err) || errors.Is(err, ErrInvalidRequest) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, bootstrap.ErrNoOrganizationContext):
		return http.StatusBadRequest, errorPayload{
			Type:    "no_org_context",
			Message: "this endpoint requires an organization host",
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, bootstrap.ErrNotAuthenticated),
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrSessionRejected):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, orgdomain.ErrSubdomainTaken):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "subdomain is already taken",
		}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, bootstrap.ErrOrganizationNotFound),
		errors.Is(err, location.ErrUnknownLocation):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, authdomain.ErrTooManyAttempts):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrBadGateway):
		return http.StatusBadGateway, errorPayload{
			Type:    "bad_gateway",
			Message: "backend unreachable",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, orgdomain.ErrUnavailable),
		errors.Is(err, authdomain.ErrUnavailable),
		errors.Is(err, bootstrap.ErrOrganizationUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	return strings.TrimPrefix(code, "invalid_")
}

func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return payload.Type, http.StatusText(status)
	}
	return payload.Type, strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}

func (s *Server) render(c *gin.Context, status int, node gomponents.Node) {
	if err := ui.Render(c.Writer, status, node); err != nil {
		logger.WithContext(c.Request.Context(), s.log).Warn("render page failed", zap.Error(err))
	}
}

func (s *Server) renderError(c *gin.Context, status int, title, message string) {
	s.render(c, status, ui.ErrorPage(ui.ErrorData{
		Title:     title,
		Message:   message,
		RetryURL:  c.Request.URL.RequestURI(),
		MainURL:   s.mainURL(c) + "/",
		RequestID: obscontext.RequestIDFromContext(c.Request.Context()),
	}))
}

// recoverWithErrorPage turns a panic into the generic error screen, or JSON for API callers.
func recoverWithErrorPage(holder *config.TenancyConfigHolder) gin.RecoveryFunc {
	return func(c *gin.Context, recovered any) {
		ctx := c.Request.Context()
		logger.FromContext(ctx).Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
		)
		if c.Writer.Written() {
			c.Abort()
			return
		}
		if wantsJSON(c) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: errorPayload{
				Type:    "internal_error",
				Message: "internal server error",
			}})
			return
		}
		rules := tenancy.FromConfig(holder.Get())
		_ = ui.Render(c.Writer, http.StatusInternalServerError, ui.ErrorPage(ui.ErrorData{
			RetryURL:  c.Request.URL.RequestURI(),
			MainURL:   tenancy.MainDomainURL(requestScheme(c), c.Request.Host, rules) + "/",
			RequestID: obscontext.RequestIDFromContext(ctx),
		}))
		c.Abort()
	}
}
