package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/kasira/internal/clock"
	"github.com/smallbiznis/kasira/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(clock.NewFakeClock(time.Now()), time.Hour)

	require.NoError(t, store.Set(ctx, "sid", KeyAuthToken, "jwt"))
	require.NoError(t, store.Set(ctx, "sid", KeyOrgID, "org-1"))

	v, ok, err := store.Get(ctx, "sid", KeyAuthToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "jwt", v)

	require.NoError(t, store.Delete(ctx, "sid", KeyAuthToken))
	_, ok, err = store.Get(ctx, "sid", KeyAuthToken)
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, _ = store.Get(ctx, "sid", KeyOrgID)
	assert.True(t, ok)
	assert.Equal(t, "org-1", v)
}

func TestMemoryStoreIsolatesSessions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil, time.Hour)

	require.NoError(t, store.Set(ctx, "a", KeyAuthToken, "one"))
	_, ok, err := store.Get(ctx, "b", KeyAuthToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreExpires(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFakeClock(time.Now())
	store := NewMemoryStore(clk, time.Minute)

	require.NoError(t, store.Set(ctx, "sid", KeyAuthToken, "jwt"))
	clk.Advance(2 * time.Minute)

	_, ok, err := store.Get(ctx, "sid", KeyAuthToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreDeleteMissingIsNoop(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil, time.Hour)

	assert.NoError(t, store.Delete(ctx, "missing", KeyAuthToken))
	assert.NoError(t, store.Destroy(ctx, "missing"))
	assert.ErrorIs(t, store.Set(ctx, "", KeyAuthToken, "x"), ErrEmptySessionID)
}

func TestManagerEnsureIssuesCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mgr := NewManager(config.Config{Session: config.SessionConfig{TTL: time.Hour}})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	sid, err := mgr.Ensure(c)
	require.NoError(t, err)
	assert.Len(t, sid, 43)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, DefaultCookieName, cookies[0].Name)
	assert.Equal(t, sid, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.Equal(t, 3600, cookies[0].MaxAge)
}

func TestManagerEnsureReusesCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mgr := NewManager(config.Config{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "existing"})

	sid, err := mgr.Ensure(c)
	require.NoError(t, err)
	assert.Equal(t, "existing", sid)
	assert.Empty(t, w.Result().Cookies())
}
