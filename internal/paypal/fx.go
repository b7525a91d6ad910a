package paypal

import "go.uber.org/fx"

var Module = fx.Module("paypal",
	fx.Provide(NewClient),
)
