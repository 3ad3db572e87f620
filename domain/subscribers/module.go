package subscribers

import (
	"go.uber.org/fx"

	"github.com/vaguinhas/vaguinhas/domain/users"
	"github.com/vaguinhas/vaguinhas/internal/database"
)

// Module provides the newsletter subscription domain
var Module = fx.Module("subscribers",
	fx.Provide(
		func(r *users.Repository) Store { return r },
		func(t *database.Transactor) TxRunner { return t },
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
