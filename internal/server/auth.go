package server

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/kasira/internal/auth/domain"
	"github.com/smallbiznis/kasira/internal/auth/session"
	"github.com/smallbiznis/kasira/internal/bootstrap"
	"github.com/smallbiznis/kasira/internal/observability/logger"
	"github.com/smallbiznis/kasira/internal/ui"
	"go.uber.org/zap"
	"maragu.dev/gomponents"
)

type sessionResponse struct {
	bootstrap.Outcome
	CSRFToken string `json:"csrfToken,omitempty"`
}

func (s *Server) LoginPage(c *gin.Context) {
	out, _ := bootstrap.FromContext(c.Request.Context())
	next := c.Query("next")
	if out.SignedIn() {
		s.redirectAfterLogin(c, out, next)
		return
	}
	s.render(c, http.StatusOK, s.loginPage(c, out, ui.LoginData{
		Email:   c.Query("email"),
		Message: c.Query("message"),
		Next:    next,
	}))
}

func (s *Server) Login(c *gin.Context) {
	ctx := c.Request.Context()
	out, _ := bootstrap.FromContext(ctx)

	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")
	next := c.PostForm("next")
	form := ui.LoginData{Email: email, Next: next}

	if email == "" || password == "" {
		form.Error = "Email and password are required."
		s.render(c, http.StatusBadRequest, s.loginPage(c, out, form))
		return
	}

	if out.Organization != nil {
		res := s.limiter.AllowLogin(ctx, out.Organization.ID, c.ClientIP())
		if !res.Allowed {
			wait := int(math.Ceil(res.RetryAfter.Seconds()))
			if wait < 1 {
				wait = 1
			}
			c.Header("Retry-After", fmt.Sprint(wait))
			form.Error = fmt.Sprintf("Too many sign-in attempts. Try again in %d seconds.", wait)
			s.render(c, http.StatusTooManyRequests, s.loginPage(c, out, form))
			return
		}
	}

	// rotate the session id on sign-in
	previous := sessionID(c)
	sid, err := session.NewID()
	if err != nil {
		AbortWithError(c, ErrInternal)
		return
	}
	req := s.bootstrapRequest(c)
	req.SessionID = sid

	result, err := s.bootstrapper.Login(ctx, req, authdomain.LoginRequest{Email: email, Password: password})
	if err != nil {
		status, message := loginFailure(err)
		logger.WithContext(ctx, s.log).Info("login failed", logger.Session(sid), zap.Int("status", status), zap.Error(err))
		if errors.Is(err, authdomain.ErrInvalidCredentials) && previous != "" {
			if err := s.tokens.Remove(ctx, previous); err != nil {
				logger.WithContext(ctx, s.log).Warn("clear rejected session token failed", logger.Session(previous), zap.Error(err))
			}
		}
		if status == http.StatusServiceUnavailable {
			c.Header("Retry-After", "5")
		}
		form.Error = message
		s.render(c, status, s.loginPage(c, out, form))
		return
	}

	s.sessions.Set(c, sid)
	c.Set(contextSessionIDKey, sid)
	if previous != "" && previous != sid {
		if err := s.bootstrapper.Logout(ctx, previous); err != nil {
			logger.WithContext(ctx, s.log).Warn("discard previous session failed", zap.Error(err))
		}
	}

	s.redirectAfterLogin(c, result, next)
}

// Logout clears the session before navigating back to the login form.
func (s *Server) Logout(c *gin.Context) {
	if err := s.bootstrapper.Logout(c.Request.Context(), sessionID(c)); err != nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	s.sessions.Clear(c)
	c.Redirect(http.StatusSeeOther, s.orgPath(c, "/login", nil))
}

func (s *Server) SessionInfo(c *gin.Context) {
	out, _ := bootstrap.FromContext(c.Request.Context())
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, sessionResponse{Outcome: out, CSRFToken: csrfToken(c)})
}

func (s *Server) WhoAmI(c *gin.Context) {
	out, _ := bootstrap.FromContext(c.Request.Context())
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"user": out.User, "degraded": out.Degraded})
}

func (s *Server) redirectAfterLogin(c *gin.Context, out bootstrap.Outcome, next string) {
	target := safeNext(next)
	if out.State == bootstrap.SelectingLocation {
		c.Redirect(http.StatusSeeOther, s.orgPath(c, "/select-location", url.Values{"next": {target}}))
		return
	}
	c.Redirect(http.StatusSeeOther, s.withOverride(c, target))
}

func (s *Server) loginPage(c *gin.Context, out bootstrap.Outcome, data ui.LoginData) gomponents.Node {
	data.Subdomain = out.Classification.Subdomain
	if out.Organization != nil {
		data.OrgName = out.Organization.BusinessName
	}
	data.CSRF = csrfToken(c)
	data.Action = s.orgPath(c, "/login", nil)
	if !out.Classification.IsLocalDevelopment {
		data.MainURL = s.mainURL(c) + "/"
	}
	return ui.LoginPage(data)
}

// withOverride appends the local development organization parameter to a relative target.
func (s *Server) withOverride(c *gin.Context, target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	return s.orgPath(c, u.Path, u.Query())
}

func loginFailure(err error) (int, string) {
	switch {
	case errors.Is(err, authdomain.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Invalid email or password."
	case errors.Is(err, authdomain.ErrMissingCredentials):
		return http.StatusBadRequest, "Email and password are required."
	case errors.Is(err, authdomain.ErrTooManyAttempts):
		return http.StatusTooManyRequests, "Too many sign-in attempts. Please wait a moment."
	case errors.Is(err, bootstrap.ErrOrganizationNotFound):
		return http.StatusNotFound, "This organization does not exist."
	case errors.Is(err, bootstrap.ErrNoOrganizationContext):
		return http.StatusBadRequest, "Sign in from your organization's address."
	default:
		return http.StatusServiceUnavailable, "Sign-in is temporarily unavailable. Please try again."
	}
}
