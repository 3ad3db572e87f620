package jobpostings

import (
	"go.uber.org/fx"

	"github.com/vaguinhas/vaguinhas/internal/storage"
)

// Module provides the job board domain
var Module = fx.Module("jobpostings",
	fx.Provide(
		NewRepository,
		func(r *Repository) Store { return r },
		func(s *storage.Service) LogoStorage { return s },
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)
