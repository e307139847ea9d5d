package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/kasira/internal/tenancy"
	"github.com/smallbiznis/kasira/internal/ui"
)

func (s *Server) registerDevRoutes() {
	if s.cfg.IsProduction() {
		return
	}
	s.engine.GET("/dev/tenancy", s.TenancyDebug)
}

// TenancyDebug shows how the current host is classified.
func (s *Server) TenancyDebug(c *gin.Context) {
	rules := s.rules()
	class := s.bootstrapper.Classify(s.bootstrapRequest(c))
	scheme := requestScheme(c)

	orgURL := ""
	if class.Subdomain != "" {
		orgURL = tenancy.OrgURL(scheme, c.Request.Host, class.Subdomain, rules)
	}

	if c.Query("format") == "json" {
		c.JSON(http.StatusOK, gin.H{
			"host":           c.Request.Host,
			"classification": class,
			"kind":           class.Kind(),
			"mainUrl":        tenancy.MainDomainURL(scheme, c.Request.Host, rules),
			"orgUrl":         orgURL,
		})
		return
	}

	rows := []ui.DebugRow{
		{Key: "host", Value: c.Request.Host},
		{Key: "hostname", Value: tenancy.Hostname(c.Request.Host)},
		{Key: "kind", Value: string(class.Kind())},
		{Key: "subdomain", Value: class.Subdomain},
		{Key: "isMainDomain", Value: strconv.FormatBool(class.IsMainDomain)},
		{Key: "isLocalDevelopment", Value: strconv.FormatBool(class.IsLocalDevelopment)},
		{Key: "mainUrl", Value: tenancy.MainDomainURL(scheme, c.Request.Host, rules)},
		{Key: "orgUrl", Value: orgURL},
		{Key: "localHosts", Value: strings.Join(rules.LocalHosts, ", ")},
		{Key: "privatePrefixes", Value: strings.Join(rules.PrivatePrefixes, ", ")},
		{Key: "mainDomainAliases", Value: strings.Join(rules.MainDomainAliases, ", ")},
		{Key: "overrideParam", Value: rules.OverrideParam},
		{Key: "defaultOrg", Value: rules.DefaultOrg},
	}
	s.render(c, http.StatusOK, ui.TenancyDebugPage(rows))
}
