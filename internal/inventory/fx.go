package inventory

import (
	"github.com/smallbiznis/vendora/internal/inventory/repository"
	"github.com/smallbiznis/vendora/internal/inventory/service"
	"go.uber.org/fx"
)

var Module = fx.Module("inventory",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
