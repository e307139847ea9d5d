package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/kasira/internal/bootstrap"
	obscontext "github.com/smallbiznis/kasira/internal/observability/context"
	"github.com/smallbiznis/kasira/internal/tenancy"
	"github.com/smallbiznis/kasira/internal/ui"
)

const (
	contextSessionIDKey = "session_id"
	contextStateKey     = "session_state"

	defaultAfterLogin = "/app/"
)

// LoadSession makes sure the visitor carries a session cookie.
func (s *Server) LoadSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := s.sessions.Ensure(c)
		if err != nil {
			AbortWithError(c, ErrInternal)
			return
		}
		c.Set(contextSessionIDKey, sid)
		c.Next()
	}
}

// Bootstrap evaluates the visit and exposes the outcome on the request context.
func (s *Server) Bootstrap() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		out := s.bootstrapper.Run(ctx, s.bootstrapRequest(c))
		if out.State == bootstrap.Initializing {
			// client went away; nothing left to answer
			c.Abort()
			return
		}

		c.Set(contextStateKey, string(out.State))
		ctx = bootstrap.WithOutcome(ctx, out)
		if out.Organization != nil {
			ctx = obscontext.WithOrg(ctx, out.Organization.Subdomain)
		}
		if out.User != nil {
			ctx = obscontext.WithActor(ctx, "user", out.User.ID)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireOrganization sends main-domain visitors to the landing page without any lookup.
func (s *Server) RequireOrganization() gin.HandlerFunc {
	return func(c *gin.Context) {
		class := s.bootstrapper.Classify(s.bootstrapRequest(c))
		if class.RequiresOrganization() {
			c.Next()
			return
		}
		if wantsJSON(c) {
			AbortWithError(c, bootstrap.ErrNoOrganizationContext)
			return
		}
		c.Redirect(http.StatusFound, s.mainURL(c)+"/")
		c.Abort()
	}
}

// PublicOnly keeps landing and signup on the main domain.
func (s *Server) PublicOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		class := s.bootstrapper.Classify(s.bootstrapRequest(c))
		if class.Kind() != tenancy.KindOrganization {
			c.Next()
			return
		}
		c.Redirect(http.StatusFound, s.mainURL(c)+c.Request.URL.Path)
		c.Abort()
	}
}

// RequireResolvedOrganization stops requests whose organization is unknown or unreachable.
func (s *Server) RequireResolvedOrganization() gin.HandlerFunc {
	return func(c *gin.Context) {
		out, _ := bootstrap.FromContext(c.Request.Context())
		switch out.State {
		case bootstrap.OrgNotFound:
			if wantsJSON(c) {
				AbortWithError(c, bootstrap.ErrOrganizationNotFound)
				return
			}
			s.render(c, http.StatusNotFound, ui.OrgNotFoundPage(ui.NotFoundData{
				Subdomain: out.Classification.Subdomain,
				MainURL:   s.mainURL(c) + "/",
				SignupURL: s.mainURL(c) + "/signup",
			}))
			c.Abort()
		case bootstrap.OrgUnavailable:
			c.Header("Retry-After", "5")
			if wantsJSON(c) {
				AbortWithError(c, ErrServiceUnavailable)
				return
			}
			s.render(c, http.StatusServiceUnavailable, ui.OrgUnavailablePage(ui.UnavailableData{
				Subdomain: out.Classification.Subdomain,
				RetryURL:  c.Request.URL.RequestURI(),
				MainURL:   s.mainURL(c) + "/",
				RequestID: obscontext.RequestIDFromContext(c.Request.Context()),
			}))
			c.Abort()
		default:
			c.Next()
		}
	}
}

// RequireSession sends visitors without a session to the login form, remembering where they were going.
func (s *Server) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		out, _ := bootstrap.FromContext(c.Request.Context())
		if out.SignedIn() {
			c.Next()
			return
		}
		if wantsJSON(c) {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Redirect(http.StatusFound, s.orgPath(c, "/login", url.Values{"next": {c.Request.URL.RequestURI()}}))
		c.Abort()
	}
}

// RequireLocationChoice holds signed-in users at location selection until they pick.
func (s *Server) RequireLocationChoice() gin.HandlerFunc {
	return func(c *gin.Context) {
		out, _ := bootstrap.FromContext(c.Request.Context())
		if out.State != bootstrap.SelectingLocation {
			c.Next()
			return
		}
		c.Redirect(http.StatusFound, s.orgPath(c, "/select-location", url.Values{"next": {c.Request.URL.RequestURI()}}))
		c.Abort()
	}
}

func (s *Server) bootstrapRequest(c *gin.Context) bootstrap.Request {
	return bootstrap.Request{
		SessionID: c.GetString(contextSessionIDKey),
		Host:      c.Request.Host,
		Query:     c.Request.URL.Query(),
	}
}

func (s *Server) rules() tenancy.Rules {
	return s.bootstrapper.Rules()
}

func (s *Server) mainURL(c *gin.Context) string {
	return tenancy.MainDomainURL(requestScheme(c), c.Request.Host, s.rules())
}

// orgPath builds a same-host path, carrying the local development override along.
func (s *Server) orgPath(c *gin.Context, path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	rules := s.rules()
	if rules.IsLocal(tenancy.Hostname(c.Request.Host)) {
		if org := strings.TrimSpace(c.Query(rules.OverrideParam)); org != "" && query.Get(rules.OverrideParam) == "" {
			query.Set(rules.OverrideParam, org)
		}
	}
	if len(query) == 0 {
		return path
	}
	return path + "?" + query.Encode()
}

func requestScheme(c *gin.Context) string {
	if proto := strings.TrimSpace(c.GetHeader("X-Forwarded-Proto")); proto != "" {
		return strings.ToLower(strings.Split(proto, ",")[0])
	}
	if c.Request.TLS != nil {
		return "https"
	}
	return "http"
}

func wantsJSON(c *gin.Context) bool {
	path := c.Request.URL.Path
	if strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/auth/") {
		return true
	}
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}

// safeNext keeps post-login redirects on the current host.
func safeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return defaultAfterLogin
	}
	u, err := url.Parse(next)
	if err != nil || u.Host != "" || u.Scheme != "" {
		return defaultAfterLogin
	}
	if strings.HasPrefix(u.Path, "/login") || strings.HasPrefix(u.Path, "/logout") {
		return defaultAfterLogin
	}
	return next
}

func sessionID(c *gin.Context) string {
	return c.GetString(contextSessionIDKey)
}
