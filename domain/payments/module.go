package payments

import (
	"go.uber.org/fx"

	"github.com/vaguinhas/vaguinhas/domain/users"
)

// Module provides checkout and webhook handling
var Module = fx.Module("payments",
	fx.Provide(
		NewRepository,
		func(r *Repository) Store { return r },
		func(r *users.Repository) UserStore { return r },
		NewGateways,
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
