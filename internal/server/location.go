package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/kasira/internal/bootstrap"
	"github.com/smallbiznis/kasira/internal/location"
	"github.com/smallbiznis/kasira/internal/observability/logger"
	"github.com/smallbiznis/kasira/internal/ui"
	"go.uber.org/zap"
)

func (s *Server) SelectLocationPage(c *gin.Context) {
	out, _ := bootstrap.FromContext(c.Request.Context())
	s.renderLocationPicker(c, out, http.StatusOK, c.Query("next"), "")
}

func (s *Server) SelectLocation(c *gin.Context) {
	ctx := c.Request.Context()
	next := c.PostForm("next")

	out, err := s.bootstrapper.SelectLocation(ctx, s.bootstrapRequest(c), c.PostForm("locationId"))
	switch {
	case err == nil:
		c.Redirect(http.StatusSeeOther, s.withOverride(c, safeNext(next)))
	case errors.Is(err, location.ErrUnknownLocation):
		s.renderLocationPicker(c, out, http.StatusBadRequest, next, "That location is not available to you.")
	case errors.Is(err, bootstrap.ErrNotAuthenticated):
		c.Redirect(http.StatusSeeOther, s.orgPath(c, "/login", nil))
	default:
		logger.WithContext(ctx, s.log).Warn("select location failed", zap.Error(err))
		s.renderLocationPicker(c, out, http.StatusServiceUnavailable, next, "Locations could not be loaded. Please try again.")
	}
}

func (s *Server) renderLocationPicker(c *gin.Context, out bootstrap.Outcome, status int, next, errMsg string) {
	ctx := c.Request.Context()
	locs, err := s.bootstrapper.AvailableLocations(ctx, sessionID(c), out)
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("list locations failed", zap.Error(err))
		if errMsg == "" {
			errMsg = "Locations could not be loaded. You can continue without a location."
		}
	}

	data := ui.SelectLocationData{
		Error:  errMsg,
		Next:   next,
		CSRF:   csrfToken(c),
		Action: s.orgPath(c, "/select-location", nil),
	}
	if out.Organization != nil {
		data.OrgName = out.Organization.BusinessName
	}
	if out.User != nil {
		data.UserName = out.User.Name
	}
	for _, loc := range locs {
		data.Locations = append(data.Locations, ui.LocationOption{
			ID:      loc.ID,
			Name:    loc.Name,
			Address: loc.Address,
			Phone:   loc.Phone,
			Email:   loc.Email,
		})
	}
	s.render(c, status, ui.SelectLocationPage(data))
}
