package tenancy

import (
	"net/url"
	"testing"
)

func TestParse(t *testing.T) {
	rules := DefaultRules()

	cases := []struct {
		name  string
		host  string
		query url.Values
		want  Classification
	}{
		{name: "org subdomain", host: "acme.domain.com", want: Classification{Subdomain: "acme"}},
		{name: "org subdomain with port", host: "acme.pos.com:8080", want: Classification{Subdomain: "acme"}},
		{name: "upper case host", host: "ACME.Domain.com", want: Classification{Subdomain: "acme"}},
		{name: "deep subdomain", host: "acme.eu.pos.com", want: Classification{Subdomain: "acme"}},
		{name: "apex", host: "domain.com", want: Classification{IsMainDomain: true}},
		{name: "apex with port", host: "domain.com:443", want: Classification{IsMainDomain: true}},
		{name: "www", host: "www.domain.com", want: Classification{IsMainDomain: true}},
		{name: "trailing dot", host: "www.domain.com.", want: Classification{IsMainDomain: true}},
		{name: "single label", host: "intranet", want: Classification{IsMainDomain: true}},
		{name: "public ip", host: "203.0.113.7:80", want: Classification{IsMainDomain: true}},
		{name: "localhost default org", host: "localhost:5173", want: Classification{Subdomain: "demo", IsLocalDevelopment: true}},
		{name: "loopback override", host: "127.0.0.1:8080", query: url.Values{"org": {"Acme"}}, want: Classification{Subdomain: "acme", IsLocalDevelopment: true}},
		{name: "ipv6 loopback", host: "[::1]:8080", want: Classification{Subdomain: "demo", IsLocalDevelopment: true}},
		{name: "private network", host: "192.168.1.20:3000", query: url.Values{"org": {"shop"}}, want: Classification{Subdomain: "shop", IsLocalDevelopment: true}},
		{name: "private 10 network", host: "10.0.0.5", want: Classification{Subdomain: "demo", IsLocalDevelopment: true}},
		{name: "other loopback", host: "127.0.0.2", want: Classification{Subdomain: "demo", IsLocalDevelopment: true}},
		{name: "private 172 network", host: "172.16.0.5:3000", want: Classification{Subdomain: "demo", IsLocalDevelopment: true}},
		{name: "ipv6 unique local", host: "[fd00::1]:8080", want: Classification{Subdomain: "demo", IsLocalDevelopment: true}},
		{name: "name starting with private prefix", host: "10.shop.example.com", query: url.Values{"org": {"evil"}}, want: Classification{Subdomain: "10"}},
		{name: "name starting with 192.168", host: "192.168.example.com", want: Classification{Subdomain: "192"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Parse(tc.host, tc.query, rules)
			if got != tc.want {
				t.Fatalf("Parse(%q) = %+v, want %+v", tc.host, got, tc.want)
			}
		})
	}
}

func TestParseExactlyOneKind(t *testing.T) {
	rules := DefaultRules()
	hosts := []string{"acme.domain.com", "domain.com", "www.domain.com", "localhost", "192.168.0.2", "a.b.c.d.e"}
	for _, host := range hosts {
		c := Parse(host, nil, rules)
		count := 0
		if c.IsMainDomain {
			count++
		}
		if c.IsLocalDevelopment {
			count++
		}
		if !c.IsMainDomain && !c.IsLocalDevelopment && c.Subdomain != "" {
			count++
		}
		if count != 1 {
			t.Fatalf("host %q classified ambiguously: %+v", host, c)
		}
	}
}

func TestParseLocalIgnoresPath(t *testing.T) {
	rules := DefaultRules()
	q := url.Values{"next": {"/app/pos"}, "utm": {"x"}}
	c := Parse("localhost", q, rules)
	if !c.IsLocalDevelopment || c.Subdomain != "demo" {
		t.Fatalf("unexpected classification %+v", c)
	}
	if c.Kind() != KindLocalDevelopment || !c.RequiresOrganization() {
		t.Fatalf("local development must carry an organization context")
	}
}

func TestParseCustomRules(t *testing.T) {
	rules := Rules{
		LocalHosts:        []string{"pos.test"},
		MainDomainAliases: []string{"www", "app"},
		OverrideParam:     "tenant",
		DefaultOrg:        "sandbox",
	}
	if c := Parse("app.domain.com", nil, rules); !c.IsMainDomain {
		t.Fatalf("expected app alias to be main domain, got %+v", c)
	}
	if c := Parse("pos.test", url.Values{"tenant": {"kopi"}}, rules); c.Subdomain != "kopi" {
		t.Fatalf("expected tenant override, got %+v", c)
	}
	if c := Parse("localhost", nil, rules); c.IsLocalDevelopment {
		t.Fatalf("localhost is not local under custom rules: %+v", c)
	}
}

func TestPrivatePrefixesOnlyMatchIPLiterals(t *testing.T) {
	rules := DefaultRules()
	rules.PrivatePrefixes = []string{"100.64."}

	if c := Parse("100.64.0.9", nil, rules); !c.IsLocalDevelopment {
		t.Fatalf("expected configured prefix to mark IP literal local, got %+v", c)
	}
	if c := Parse("100.64.example.com", nil, rules); c.IsLocalDevelopment || c.Subdomain != "100" {
		t.Fatalf("expected DNS name to be an organization host, got %+v", c)
	}
}

func TestMainDomainURL(t *testing.T) {
	rules := DefaultRules()
	cases := map[string]string{
		"acme.pos.com":      "https://pos.com",
		"acme.pos.com:8443": "https://pos.com:8443",
		"www.pos.com":       "https://pos.com",
		"pos.com":           "https://pos.com",
		"localhost:5173":    "https://localhost:5173",
		"192.168.1.20":      "https://192.168.1.20",
	}
	for host, want := range cases {
		if got := MainDomainURL("https", host, rules); got != want {
			t.Fatalf("MainDomainURL(%q) = %q, want %q", host, got, want)
		}
	}
}

func TestOrgURL(t *testing.T) {
	rules := DefaultRules()
	if got := OrgURL("https", "www.pos.com", "acme", rules); got != "https://acme.pos.com" {
		t.Fatalf("unexpected org url %q", got)
	}
	if got := OrgURL("http", "pos.com:8080", "Acme", rules); got != "http://acme.pos.com:8080" {
		t.Fatalf("unexpected org url %q", got)
	}
	if got := OrgURL("http", "localhost:8080", "acme", rules); got != "http://localhost:8080/?org=acme" {
		t.Fatalf("unexpected local org url %q", got)
	}
}

func TestValidSubdomain(t *testing.T) {
	valid := []string{"acme", "kopi-kenangan", "a1b", "abcdefghijklmnopqrst"}
	invalid := []string{"", "ab", "-acme", "acme-", "Acme", "ac_me", "abcdefghijklmnopqrstu", "ac.me"}
	for _, s := range valid {
		if !ValidSubdomain(s) {
			t.Fatalf("expected %q to be valid", s)
		}
	}
	for _, s := range invalid {
		if ValidSubdomain(s) {
			t.Fatalf("expected %q to be invalid", s)
		}
	}
}
