package delivery

import (
	"github.com/smallbiznis/vendora/internal/delivery/repository"
	"github.com/smallbiznis/vendora/internal/delivery/service"
	"go.uber.org/fx"
)

var Module = fx.Module("delivery",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
