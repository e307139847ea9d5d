package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"unicode"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/kasira/internal/backend"
	"github.com/smallbiznis/kasira/internal/observability/logger"
	"github.com/smallbiznis/kasira/internal/observability/metrics"
	"github.com/smallbiznis/kasira/internal/organization/domain"
	"github.com/smallbiznis/kasira/internal/tenancy"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type ServiceParam struct {
	fx.In

	Repo    domain.Repository
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

type service struct {
	repo    domain.Repository
	log     *zap.Logger
	metrics *metrics.Metrics

	// lookups coalesces concurrent lookups of the same subdomain. Results are not retained.
	lookups singleflight.Group
}

func NewService(p ServiceParam) domain.Service {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &service{
		repo:    p.Repo,
		log:     log.Named("organization.service"),
		metrics: p.Metrics,
	}
}

func (s *service) Resolve(ctx context.Context, subdomain string) domain.Resolution {
	subdomain = strings.ToLower(strings.TrimSpace(subdomain))
	if subdomain == "" {
		return domain.ResolvedNotFound()
	}

	ch := s.lookups.DoChan(subdomain, func() (any, error) {
		return s.repo.GetBySubdomain(context.WithoutCancel(ctx), subdomain)
	})

	var res domain.Resolution
	select {
	case <-ctx.Done():
		res = domain.ResolvedUnavailable(ctx.Err())
	case out := <-ch:
		res = classify(out.Val, out.Err)
	}

	s.metrics.RecordOrgResolution(ctx, string(res.Kind))
	if res.Kind == domain.Unavailable {
		logger.WithContext(ctx, s.log).Warn("organization lookup unavailable",
			zap.String("subdomain", subdomain),
			zap.Error(res.Err),
		)
	}
	return res
}

func classify(val any, err error) domain.Resolution {
	if err != nil {
		if backend.IsNotFound(err) {
			return domain.ResolvedNotFound()
		}
		return domain.ResolvedUnavailable(err)
	}
	org, _ := val.(*domain.Organization)
	if org == nil || strings.TrimSpace(org.ID) == "" {
		return domain.ResolvedNotFound()
	}
	return domain.ResolvedFound(org)
}

func (s *service) Available(ctx context.Context, subdomain string) (bool, error) {
	subdomain = strings.ToLower(strings.TrimSpace(subdomain))
	if !tenancy.ValidSubdomain(subdomain) {
		return false, domain.ErrInvalidSubdomain
	}
	res := s.Resolve(ctx, subdomain)
	switch res.Kind {
	case domain.NotFound:
		return true, nil
	case domain.Found:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", domain.ErrUnavailable, res.Err)
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateOrganizationRequest) (*domain.Organization, error) {
	req.BusinessName = strings.TrimSpace(req.BusinessName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	req.Subdomain = strings.ToLower(strings.TrimSpace(req.Subdomain))

	if err := validateCreate(req); err != nil {
		return nil, err
	}

	available, err := s.Available(ctx, req.Subdomain)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, domain.ErrSubdomainTaken
	}

	org, err := s.repo.Create(ctx, req)
	if err != nil {
		if backend.StatusOf(err) == http.StatusConflict {
			return nil, domain.ErrSubdomainTaken
		}
		if backend.IsTransient(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
		}
		return nil, err
	}

	logger.WithContext(ctx, s.log).Info("organization created",
		zap.String("org_id", org.ID),
		zap.String("subdomain", org.Subdomain),
	)
	return org, nil
}

// SuggestSubdomain derives a candidate subdomain from a business name.
func (s *service) SuggestSubdomain(businessName string) string {
	candidate := slug.Make(businessName)
	if len(candidate) > 20 {
		candidate = strings.TrimRight(candidate[:20], "-")
	}
	if !tenancy.ValidSubdomain(candidate) {
		return ""
	}
	return candidate
}

func validateCreate(req domain.CreateOrganizationRequest) error {
	if req.BusinessName == "" {
		return domain.ErrInvalidBusinessName
	}
	if _, err := mail.ParseAddress(req.Email); err != nil || !strings.Contains(req.Email, "@") {
		return domain.ErrInvalidEmail
	}
	if !validPhone(req.Phone) {
		return domain.ErrInvalidPhone
	}
	if !StrongPassword(req.Password) {
		return domain.ErrWeakPassword
	}
	if !tenancy.ValidSubdomain(req.Subdomain) {
		return domain.ErrInvalidSubdomain
	}
	return nil
}

// StrongPassword requires at least 8 characters with upper, lower and digit.
func StrongPassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

func validPhone(phone string) bool {
	digits := 0
	for _, r := range phone {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' || r == '-' || r == ' ' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 6
}

// IsValidation reports whether err is a signup input error.
func IsValidation(err error) bool {
	return errors.Is(err, domain.ErrInvalidBusinessName) ||
		errors.Is(err, domain.ErrInvalidEmail) ||
		errors.Is(err, domain.ErrInvalidPhone) ||
		errors.Is(err, domain.ErrWeakPassword) ||
		errors.Is(err, domain.ErrInvalidSubdomain)
}
