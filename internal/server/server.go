package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/kasira/internal/auth/session"
	"github.com/smallbiznis/kasira/internal/auth/token"
	"github.com/smallbiznis/kasira/internal/backend"
	"github.com/smallbiznis/kasira/internal/bootstrap"
	"github.com/smallbiznis/kasira/internal/config"
	"github.com/smallbiznis/kasira/internal/observability"
	obsmiddleware "github.com/smallbiznis/kasira/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/kasira/internal/observability/metrics"
	obstracing "github.com/smallbiznis/kasira/internal/observability/tracing"
	orgdomain "github.com/smallbiznis/kasira/internal/organization/domain"
	"github.com/smallbiznis/kasira/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

type EngineParams struct {
	fx.In

	ObsCfg      observability.Config
	HTTPMetrics *obsmetrics.HTTPMetrics
	Registry    *prometheus.Registry
	Tenancy     *config.TenancyConfigHolder
}

func NewEngine(p EngineParams) *gin.Engine {
	r := gin.New()
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           p.ObsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(gin.CustomRecovery(recoverWithErrorPage(p.Tenancy)))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(p.HTTPMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if p.ObsCfg.MetricsEnabled && p.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{Registry: p.Registry})))
	}

	return r
}

func registerGin(p EngineParams) *gin.Engine {
	if !p.ObsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(p)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	bootstrapper *bootstrap.Bootstrapper
	orgs         orgdomain.Service
	tokens       *token.Store
	sessions     *session.Manager
	limiter      *ratelimit.Limiter
	backend      *backend.Client
	metrics      *obsmetrics.Metrics
	log          *zap.Logger
	proxy        *httputil.ReverseProxy
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Bootstrapper *bootstrap.Bootstrapper
	Orgs         orgdomain.Service
	Tokens       *token.Store
	Sessions     *session.Manager
	Limiter      *ratelimit.Limiter
	Backend      *backend.Client
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
	Log          *zap.Logger
}

func NewServer(p ServerParams) *Server {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		bootstrapper: p.Bootstrapper,
		orgs:         p.Orgs,
		tokens:       p.Tokens,
		sessions:     p.Sessions,
		limiter:      p.Limiter,
		backend:      p.Backend,
		metrics:      p.ObsMetrics,
		log:          log.Named("http"),
	}
	svc.proxy = svc.newAPIProxy()

	svc.registerPublicRoutes()
	svc.registerOrgRoutes()
	svc.registerAPIRoutes()
	svc.registerDevRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Landing and signup live on the main domain only.
func (s *Server) registerPublicRoutes() {
	r := s.engine.Group("/", s.LoadSession(), s.EnsureCSRF())

	r.GET("/", s.PublicOnly(), s.Landing)
	r.GET("/signup", s.PublicOnly(), s.SignupPage)
	r.POST("/signup", s.PublicOnly(), s.RequireCSRF(), s.Signup)
	r.GET("/signup/availability", s.SubdomainAvailability)

	r.GET("/auth/session", s.Bootstrap(), s.SessionInfo)
}

func (s *Server) registerOrgRoutes() {
	org := s.engine.Group("/", s.LoadSession(), s.EnsureCSRF(), s.RequireOrganization(), s.Bootstrap(), s.RequireResolvedOrganization())

	org.GET("/login", s.LoginPage)
	org.POST("/login", s.RequireCSRF(), s.Login)
	org.POST("/logout", s.RequireCSRF(), s.Logout)

	authed := org.Group("/", s.RequireSession())
	{
		authed.GET("/auth/whoami", s.WhoAmI)
		authed.GET("/select-location", s.SelectLocationPage)
		authed.POST("/select-location", s.RequireCSRF(), s.SelectLocation)

		app := authed.Group("/app", s.RequireLocationChoice())
		{
			app.GET("", s.serveApp)
			app.GET("/*path", s.serveApp)
		}
	}
}

func (s *Server) registerAPIRoutes() {
	s.engine.Any("/api/*path", s.RequireCSRF(), s.APIProxy)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		// static assets (vite)
		if c.Request.Method == http.MethodGet && fileExists(s.publicDir(), c.Request.URL.Path) {
			c.File(filepath.Join(s.publicDir(), filepath.Clean(c.Request.URL.Path)))
			return
		}
		s.renderError(c, http.StatusNotFound, "Page not found", "The page you are looking for does not exist.")
	})
}

// serveApp serves the SPA bundle for the authenticated shell.
func (s *Server) serveApp(c *gin.Context) {
	rel := strings.TrimPrefix(c.Param("path"), "/")
	if rel != "" && fileExists(s.publicDir(), "/"+rel) {
		c.File(filepath.Join(s.publicDir(), filepath.Clean("/"+rel)))
		return
	}
	index := filepath.Join(s.publicDir(), "index.html")
	if _, err := os.Stat(index); err != nil {
		s.log.Error("app bundle missing", zap.String("path", index), zap.Error(err))
		s.renderError(c, http.StatusServiceUnavailable, "App unavailable", "The application bundle is not installed on this server.")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.File(index)
}

func (s *Server) publicDir() string {
	if dir := strings.TrimSpace(s.cfg.PublicDir); dir != "" {
		return dir
	}
	return "./public"
}

func fileExists(publicDir, reqPath string) bool {
	clean := filepath.Clean("/" + reqPath)

	// prevent path traversal
	if clean == "/" || strings.Contains(clean, "..") {
		return false
	}

	fullPath := filepath.Join(publicDir, clean)

	info, err := os.Stat(fullPath)
	if err != nil {
		return false
	}

	return !info.IsDir()
}
