package server

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	csrfCookieName = "kasira_csrf"
	csrfHeader     = "X-CSRF-Token"
	csrfFormField  = "csrf_token"
	contextCSRFKey = "csrf_token"
)

// EnsureCSRF issues the double-submit token cookie when missing.
func (s *Server) EnsureCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := readCSRFCookie(c)
		if token == "" {
			token = randomToken(32)
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(csrfCookieName, token, 0, "/", "", s.cfg.AuthCookieSecure, true)
		}
		c.Set(contextCSRFKey, token)
		c.Next()
	}
}

// RequireCSRF rejects unsafe methods whose form field or header does not match the cookie.
func (s *Server) RequireCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		cookieToken := readCSRFCookie(c)
		formToken := strings.TrimSpace(c.GetHeader(csrfHeader))
		if formToken == "" && !strings.HasPrefix(c.Request.URL.Path, "/api/") {
			formToken = strings.TrimSpace(c.PostForm(csrfFormField))
		}

		if cookieToken == "" || subtle.ConstantTimeCompare([]byte(cookieToken), []byte(formToken)) != 1 {
			if wantsJSON(c) {
				AbortWithError(c, ErrForbidden)
				return
			}
			s.renderError(c, http.StatusForbidden, "Form expired", "Your form session expired. Reload the page and try again.")
			c.Abort()
			return
		}
		c.Next()
	}
}

func csrfToken(c *gin.Context) string {
	if token := c.GetString(contextCSRFKey); token != "" {
		return token
	}
	return readCSRFCookie(c)
}

func readCSRFCookie(c *gin.Context) string {
	value, err := c.Cookie(csrfCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

func randomToken(size int) string {
	if size < 16 {
		size = 16
	}
	b := make([]byte, size)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
