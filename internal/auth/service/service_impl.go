package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/smallbiznis/kasira/internal/auth/domain"
	"github.com/smallbiznis/kasira/internal/backend"
	"github.com/smallbiznis/kasira/internal/observability/logger"
	"github.com/smallbiznis/kasira/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Repo    domain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	repo    domain.Repository
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		log:     log.Named("auth.service"),
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) Login(ctx context.Context, orgID string, req domain.LoginRequest) (*domain.LoginResult, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, domain.ErrNoOrganizationContext
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return nil, domain.ErrMissingCredentials
	}

	resp, err := s.repo.Login(ctx, orgID, req)
	if err != nil {
		mapped := mapLoginError(err)
		s.metrics.RecordLogin(ctx, resultLabel(mapped))
		logger.WithContext(ctx, s.log).Info("login failed",
			zap.String("org_id", orgID),
			zap.Int("backend_status", backend.StatusOf(err)),
		)
		return nil, mapped
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		s.metrics.RecordLogin(ctx, "unavailable")
		return nil, fmt.Errorf("%w: empty access token", domain.ErrUnavailable)
	}

	s.metrics.RecordLogin(ctx, "ok")
	user := resp.User()
	if user.OrgID == "" {
		user.OrgID = orgID
	}
	return &domain.LoginResult{AccessToken: resp.AccessToken, User: user}, nil
}

func (s *Service) WhoAmI(ctx context.Context, token string) (*domain.User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, domain.ErrSessionRejected
	}
	payload, err := s.repo.WhoAmI(ctx, token)
	if err != nil {
		switch {
		case backend.IsTransient(err):
			return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
		case backend.StatusOf(err) != 0:
			// any other backend answer is definitive
			return nil, fmt.Errorf("%w: %v", domain.ErrSessionRejected, err)
		}
		return nil, err
	}
	if strings.TrimSpace(payload.UserID) == "" {
		return nil, domain.ErrSessionRejected
	}
	user := payload.User()
	return &user, nil
}

func mapLoginError(err error) error {
	switch status := backend.StatusOf(err); {
	case status == http.StatusUnauthorized || status == http.StatusForbidden ||
		status == http.StatusNotFound || status == http.StatusBadRequest:
		return domain.ErrInvalidCredentials
	case status == http.StatusTooManyRequests:
		return domain.ErrTooManyAttempts
	case backend.IsTransient(err):
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	default:
		return err
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrTooManyAttempts):
		return "rate_limited"
	default:
		return "unavailable"
	}
}
