package webhook

import (
	"github.com/smallbiznis/vendora/internal/paypal"
	webhookdomain "github.com/smallbiznis/vendora/internal/webhook/domain"
	"github.com/smallbiznis/vendora/internal/webhook/repository"
	"github.com/smallbiznis/vendora/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook",
	fx.Provide(
		repository.Provide,
		service.NewService,
		func(client *paypal.Client) webhookdomain.Verifier { return client },
	),
)
