package accounts

import (
	"go.uber.org/fx"

	"github.com/vaguinhas/vaguinhas/domain/subscribers"
	"github.com/vaguinhas/vaguinhas/domain/users"
	"github.com/vaguinhas/vaguinhas/internal/database"
)

// Module provides password, magic link and OAuth sign-in
var Module = fx.Module("accounts",
	fx.Provide(
		NewRepository,
		NewProviders,
		func(r *users.Repository) UserStore { return r },
		func(r *Repository) LinkStore { return r },
		func(s *subscribers.Service) Confirmer { return s },
		func(t *database.Transactor) TxRunner { return t },
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
