package session

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/kasira/internal/config"
)

const (
	DefaultCookieName = "_sid"

	sessionIDBytes = 32
)

// Manager manages the opaque session cookie.
type Manager struct {
	cookieName string
	secure     bool
	ttl        time.Duration
}

func NewManager(cfg config.Config) *Manager {
	ttl := cfg.Session.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Manager{
		cookieName: DefaultCookieName,
		secure:     cfg.AuthCookieSecure,
		ttl:        ttl,
	}
}

func (m *Manager) CookieName() string {
	return m.cookieName
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// ReadID returns the session id carried by the request cookie.
func (m *Manager) ReadID(c *gin.Context) (string, bool) {
	sid, err := c.Cookie(m.cookieName)
	if err != nil {
		return "", false
	}
	sid = strings.TrimSpace(sid)
	if sid == "" || len(sid) > 128 {
		return "", false
	}
	return sid, true
}

// Ensure returns the current session id, issuing a new cookie when absent.
func (m *Manager) Ensure(c *gin.Context) (string, error) {
	if sid, ok := m.ReadID(c); ok {
		return sid, nil
	}
	sid, err := NewID()
	if err != nil {
		return "", err
	}
	m.Set(c, sid)
	return sid, nil
}

// Set writes the cookie with the configured sliding lifetime.
func (m *Manager) Set(c *gin.Context, sid string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, sid, int(m.ttl.Seconds()), "/", "", m.secure, true)
}

func (m *Manager) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(m.cookieName, "", -1, "/", "", m.secure, true)
}

// NewID returns a random URL-safe session identifier.
func NewID() (string, error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
