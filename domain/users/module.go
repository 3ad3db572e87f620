package users

import (
	"go.uber.org/fx"
)

// Module provides the shared users repository
var Module = fx.Module("users",
	fx.Provide(NewRepository),
)
