package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httputil"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/kasira/internal/backend"
	"github.com/smallbiznis/kasira/internal/bootstrap"
	obscontext "github.com/smallbiznis/kasira/internal/observability/context"
	"github.com/smallbiznis/kasira/internal/observability/logger"
	"github.com/smallbiznis/kasira/internal/observability/tracing"
	"github.com/smallbiznis/kasira/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

type proxyKey struct{}

// proxyTarget carries per-request credentials from the handler into the rewrite hook.
type proxyTarget struct {
	sessionID string
	token     string
	subdomain string
}

func withProxyTarget(ctx context.Context, t proxyTarget) context.Context {
	return context.WithValue(ctx, proxyKey{}, t)
}

func proxyTargetFrom(ctx context.Context) proxyTarget {
	t, _ := ctx.Value(proxyKey{}).(proxyTarget)
	return t
}

func (s *Server) newAPIProxy() *httputil.ReverseProxy {
	target := s.backend.BaseURL()
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			ctx := pr.In.Context()
			t := proxyTargetFrom(ctx)

			pr.SetURL(target)
			pr.Out.Host = target.Host
			pr.Out.Header.Del("Cookie")
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del(backend.HeaderOrgSubdomain)
			if t.token != "" {
				pr.Out.Header.Set("Authorization", "Bearer "+t.token)
			}
			if t.subdomain != "" {
				pr.Out.Header.Set(backend.HeaderOrgSubdomain, t.subdomain)
			}
			if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
				pr.Out.Header.Set(logger.HeaderRequestID, requestID)
			}
			correlation.SetHeader(ctx, pr.Out.Header)
		},
		Transport: s.backend.Transport(),
		ModifyResponse: func(resp *http.Response) error {
			ctx := resp.Request.Context()
			s.metrics.RecordProxyResponse(ctx, resp.StatusCode)
			if resp.StatusCode == http.StatusUnauthorized {
				t := proxyTargetFrom(ctx)
				if t.token != "" {
					if err := s.tokens.Remove(ctx, t.sessionID); err != nil {
						logger.WithContext(ctx, s.log).Warn("clear rejected token failed", zap.Error(err))
					}
				}
			}
			// the browser never sees backend cookies
			resp.Header.Del("Set-Cookie")
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			ctx := r.Context()
			status := http.StatusBadGateway
			payload := errorPayload{Type: "bad_gateway", Message: "backend unreachable"}
			if ctx.Err() == context.DeadlineExceeded {
				status = http.StatusGatewayTimeout
				payload = errorPayload{Type: "gateway_timeout", Message: "backend timed out"}
			}
			s.metrics.RecordProxyResponse(ctx, status)
			logger.WithContext(ctx, s.log).Warn("api proxy failed",
				zap.String("path", r.URL.Path),
				zap.Error(tracing.SafeError(err)),
			)
			writeJSON(w, status, errorResponse{Error: payload})
		},
	}
}

// APIProxy forwards /api calls to the backend with the session's bearer token attached.
func (s *Server) APIProxy(c *gin.Context) {
	ctx := c.Request.Context()

	t := proxyTarget{}
	if sid, ok := s.sessions.ReadID(c); ok {
		t.sessionID = sid
		if tok, ok := s.tokens.Get(ctx, sid); ok {
			if s.tokens.Valid(tok) {
				t.token = tok
			} else if err := s.tokens.Remove(ctx, sid); err != nil {
				logger.WithContext(ctx, s.log).Warn("remove expired token failed", zap.Error(err))
			}
		}
	}

	class := s.bootstrapper.Classify(bootstrap.Request{Host: c.Request.Host, Query: c.Request.URL.Query()})
	if class.RequiresOrganization() {
		t.subdomain = class.Subdomain
	}

	ctx, cancel := context.WithTimeout(withProxyTarget(ctx, t), s.backend.Timeout())
	defer cancel()

	s.proxy.ServeHTTP(c.Writer, c.Request.WithContext(ctx))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
