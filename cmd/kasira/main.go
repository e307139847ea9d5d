package main

import (
	"github.com/smallbiznis/kasira/internal/auth"
	"github.com/smallbiznis/kasira/internal/backend"
	"github.com/smallbiznis/kasira/internal/bootstrap"
	"github.com/smallbiznis/kasira/internal/cache"
	"github.com/smallbiznis/kasira/internal/clock"
	"github.com/smallbiznis/kasira/internal/config"
	"github.com/smallbiznis/kasira/internal/location"
	"github.com/smallbiznis/kasira/internal/observability"
	"github.com/smallbiznis/kasira/internal/organization"
	"github.com/smallbiznis/kasira/internal/ratelimit"
	"github.com/smallbiznis/kasira/internal/server"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		clock.Module,
		cache.Module,
		backend.Module,

		// Functional Domains
		organization.Module,
		auth.Module,
		location.Module,
		ratelimit.Module,
		bootstrap.Module,

		server.Module,
	)
	app.Run()
}
