package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/kasira/internal/observability/logger"
	orgdomain "github.com/smallbiznis/kasira/internal/organization/domain"
	"github.com/smallbiznis/kasira/internal/tenancy"
	"github.com/smallbiznis/kasira/internal/ui"
	"go.uber.org/zap"
	"maragu.dev/gomponents"
)

const signupSuccessMessage = "Organization created. Sign in to continue."

type SignupRequest struct {
	BusinessName    string `form:"businessName"`
	Email           string `form:"email"`
	Phone           string `form:"phone"`
	Subdomain       string `form:"subdomain"`
	Password        string `form:"password"`
	ConfirmPassword string `form:"confirmPassword"`
}

type availabilityResponse struct {
	Subdomain string `json:"subdomain"`
	Available bool   `json:"available"`
}

func (s *Server) Landing(c *gin.Context) {
	s.render(c, http.StatusOK, ui.LandingPage(ui.LandingData{SignupURL: s.orgPath(c, "/signup", nil)}))
}

func (s *Server) SignupPage(c *gin.Context) {
	s.render(c, http.StatusOK, s.signupPage(c, ui.SignupData{}))
}

func (s *Server) Signup(c *gin.Context) {
	ctx := c.Request.Context()

	var req SignupRequest
	if err := c.ShouldBind(&req); err != nil {
		s.render(c, http.StatusBadRequest, s.signupPage(c, ui.SignupData{Error: "Check the highlighted fields and try again."}))
		return
	}

	form := ui.SignupForm{
		BusinessName: strings.TrimSpace(req.BusinessName),
		Email:        strings.TrimSpace(req.Email),
		Phone:        strings.TrimSpace(req.Phone),
		Subdomain:    strings.ToLower(strings.TrimSpace(req.Subdomain)),
	}
	if form.Subdomain == "" {
		form.Subdomain = s.orgs.SuggestSubdomain(form.BusinessName)
	}
	data := ui.SignupData{Form: form}

	if req.Password != req.ConfirmPassword {
		data.Errors = map[string]string{"confirmPassword": "Passwords do not match."}
		s.render(c, http.StatusBadRequest, s.signupPage(c, data))
		return
	}

	lockToken, ok, err := s.limiter.TryLockSignup(ctx, form.Subdomain)
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("signup lock failed", zap.Error(err))
	} else if !ok {
		data.Errors = map[string]string{"subdomain": "Another signup for this subdomain is in progress."}
		s.render(c, http.StatusConflict, s.signupPage(c, data))
		return
	} else {
		defer func() {
			if err := s.limiter.ReleaseSignup(ctx, form.Subdomain, lockToken); err != nil {
				logger.WithContext(ctx, s.log).Warn("signup unlock failed", zap.Error(err))
			}
		}()
	}

	org, err := s.orgs.Create(ctx, orgdomain.CreateOrganizationRequest{
		BusinessName: form.BusinessName,
		Email:        form.Email,
		Phone:        form.Phone,
		Subdomain:    form.Subdomain,
		Password:     req.Password,
	})
	if err != nil {
		status, field, message := signupFailure(err)
		if field != "" {
			data.Errors = map[string]string{field: message}
		} else {
			data.Error = message
		}
		if status >= http.StatusInternalServerError {
			logger.WithContext(ctx, s.log).Error("signup failed", zap.Error(err))
		}
		s.render(c, status, s.signupPage(c, data))
		return
	}

	c.Redirect(http.StatusSeeOther, s.orgLoginURL(c, org.Subdomain, url.Values{
		"message": {signupSuccessMessage},
		"email":   {form.Email},
	}))
}

func (s *Server) SubdomainAvailability(c *gin.Context) {
	subdomain := strings.ToLower(strings.TrimSpace(c.Query("subdomain")))
	if !tenancy.ValidSubdomain(subdomain) {
		AbortWithError(c, newValidationError("subdomain", "invalid_subdomain", "use 3-20 lowercase letters, numbers or inner hyphens"))
		return
	}

	available, err := s.orgs.Available(c.Request.Context(), subdomain)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, availabilityResponse{Subdomain: subdomain, Available: available})
}

func (s *Server) signupPage(c *gin.Context, data ui.SignupData) gomponents.Node {
	data.CSRF = csrfToken(c)
	data.MainDomain = strings.TrimPrefix(strings.TrimPrefix(s.mainURL(c), "https://"), "http://")
	return ui.SignupPage(data)
}

// orgLoginURL points at the login form of the organization's own host.
func (s *Server) orgLoginURL(c *gin.Context, subdomain string, query url.Values) string {
	root := tenancy.OrgURL(requestScheme(c), c.Request.Host, subdomain, s.rules())
	u, err := url.Parse(root)
	if err != nil {
		return "/login"
	}
	q := u.Query()
	for key, values := range query {
		q[key] = values
	}
	u.Path = "/login"
	u.RawQuery = q.Encode()
	return u.String()
}

func signupFailure(err error) (int, string, string) {
	switch {
	case errors.Is(err, orgdomain.ErrInvalidBusinessName):
		return http.StatusBadRequest, "businessName", "Business name is required."
	case errors.Is(err, orgdomain.ErrInvalidEmail):
		return http.StatusBadRequest, "email", "Enter a valid email address."
	case errors.Is(err, orgdomain.ErrInvalidPhone):
		return http.StatusBadRequest, "phone", "Enter a valid phone number."
	case errors.Is(err, orgdomain.ErrWeakPassword):
		return http.StatusBadRequest, "password", "Use at least 8 characters with upper case, lower case and a number."
	case errors.Is(err, orgdomain.ErrInvalidSubdomain):
		return http.StatusBadRequest, "subdomain", "Use 3-20 lowercase letters, numbers or inner hyphens."
	case errors.Is(err, orgdomain.ErrSubdomainTaken):
		return http.StatusConflict, "subdomain", "This subdomain is already taken."
	case errors.Is(err, orgdomain.ErrUnavailable):
		return http.StatusServiceUnavailable, "", "We could not create your organization right now. Please try again."
	default:
		return http.StatusInternalServerError, "", "Something went wrong while creating your organization."
	}
}
