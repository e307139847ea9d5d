// Package tenancy classifies request hostnames into main-domain, organization
// and local-development contexts.
package tenancy

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/smallbiznis/kasira/internal/config"
)

// Rules drives hostname classification.
type Rules struct {
	LocalHosts        []string
	PrivatePrefixes   []string
	MainDomainAliases []string
	OverrideParam     string
	DefaultOrg        string
}

// FromConfig converts the hot-reloadable tenancy settings into parser rules.
func FromConfig(cfg config.TenancyConfig) Rules {
	return Rules{
		LocalHosts:        cfg.LocalHosts,
		PrivatePrefixes:   cfg.PrivatePrefixes,
		MainDomainAliases: cfg.MainDomainAliases,
		OverrideParam:     cfg.DevOrgParam,
		DefaultOrg:        cfg.DevDefaultOrg,
	}
}

// DefaultRules mirrors config.DefaultTenancyConfig.
func DefaultRules() Rules {
	return FromConfig(config.DefaultTenancyConfig())
}

type Kind string

const (
	KindMainDomain       Kind = "main_domain"
	KindOrganization     Kind = "organization"
	KindLocalDevelopment Kind = "local_development"
)

// Classification is derived per request and never cached.
type Classification struct {
	Subdomain          string `json:"subdomain"`
	IsMainDomain       bool   `json:"isMainDomain"`
	IsLocalDevelopment bool   `json:"isLocalDevelopment"`
}

func (c Classification) Kind() Kind {
	switch {
	case c.IsLocalDevelopment:
		return KindLocalDevelopment
	case c.IsMainDomain:
		return KindMainDomain
	default:
		return KindOrganization
	}
}

// RequiresOrganization reports whether the host carries an organization context.
func (c Classification) RequiresOrganization() bool {
	return !c.IsMainDomain
}

// Parse classifies host. Ports are stripped before the host is split into labels.
func Parse(host string, query url.Values, rules Rules) Classification {
	hostname := Hostname(host)

	if rules.IsLocal(hostname) {
		sub := ""
		if rules.OverrideParam != "" && query != nil {
			sub = strings.ToLower(strings.TrimSpace(query.Get(rules.OverrideParam)))
		}
		if sub == "" {
			sub = rules.DefaultOrg
		}
		return Classification{Subdomain: sub, IsLocalDevelopment: true}
	}

	// Public IP literals have no subdomain label.
	if net.ParseIP(hostname) != nil {
		return Classification{IsMainDomain: true}
	}

	labels := splitLabels(hostname)
	if len(labels) <= 2 || (len(labels) == 3 && rules.isMainAlias(labels[0])) {
		return Classification{IsMainDomain: true}
	}
	return Classification{Subdomain: labels[0]}
}

// Hostname lower-cases host and removes any port, IPv6 brackets and trailing dot.
func Hostname(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	return strings.TrimSuffix(host, ".")
}

// IsLocal reports development hosts: configured names and any loopback or
// private IP literal. Extra prefixes only apply to IP literals.
func (r Rules) IsLocal(hostname string) bool {
	for _, h := range r.LocalHosts {
		if strings.EqualFold(hostname, strings.TrimSpace(h)) {
			return true
		}
	}
	ip := net.ParseIP(hostname)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsPrivate() {
		return true
	}
	for _, prefix := range r.PrivatePrefixes {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" && strings.HasPrefix(hostname, prefix) {
			return true
		}
	}
	return false
}

func (r Rules) isMainAlias(label string) bool {
	for _, alias := range r.MainDomainAliases {
		if strings.EqualFold(label, strings.TrimSpace(alias)) {
			return true
		}
	}
	return false
}

func splitLabels(hostname string) []string {
	parts := strings.Split(hostname, ".")
	labels := parts[:0]
	for _, p := range parts {
		if p != "" {
			labels = append(labels, p)
		}
	}
	return labels
}

// MainDomainURL returns the marketing site root for host. Local hosts point at themselves.
func MainDomainURL(scheme, host string, rules Rules) string {
	hostname, port := splitPort(host)
	if rules.IsLocal(hostname) || net.ParseIP(hostname) != nil {
		return scheme + "://" + joinPort(hostname, port)
	}
	labels := splitLabels(hostname)
	if len(labels) > 2 {
		labels = labels[len(labels)-2:]
	}
	return scheme + "://" + joinPort(strings.Join(labels, "."), port)
}

// OrgURL returns the root URL of an organization. Local hosts use the override query parameter.
func OrgURL(scheme, host, subdomain string, rules Rules) string {
	hostname, port := splitPort(host)
	subdomain = strings.ToLower(strings.TrimSpace(subdomain))
	if rules.IsLocal(hostname) {
		u := url.URL{Scheme: scheme, Host: joinPort(hostname, port), Path: "/"}
		q := url.Values{}
		q.Set(rules.OverrideParam, subdomain)
		u.RawQuery = q.Encode()
		return u.String()
	}
	main := strings.TrimPrefix(MainDomainURL(scheme, host, rules), scheme+"://")
	return scheme + "://" + subdomain + "." + main
}

var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// ValidSubdomain accepts 3 to 20 lowercase alphanumerics or inner hyphens.
func ValidSubdomain(s string) bool {
	if len(s) < 3 || len(s) > 20 {
		return false
	}
	return subdomainPattern.MatchString(s)
}

func splitPort(host string) (string, string) {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, p, err := net.SplitHostPort(host); err == nil {
		return strings.TrimSuffix(h, "."), p
	}
	return Hostname(host), ""
}

func joinPort(hostname, port string) string {
	if port == "" {
		if strings.Contains(hostname, ":") {
			return "[" + hostname + "]"
		}
		return hostname
	}
	return net.JoinHostPort(hostname, port)
}
