package auth

import (
	"github.com/smallbiznis/kasira/internal/auth/repository"
	"github.com/smallbiznis/kasira/internal/auth/service"
	"github.com/smallbiznis/kasira/internal/auth/session"
	"github.com/smallbiznis/kasira/internal/auth/token"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
	session.Module,
	token.Module,
)
