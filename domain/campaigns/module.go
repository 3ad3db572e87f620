package campaigns

import (
	"go.uber.org/fx"

	"github.com/vaguinhas/vaguinhas/domain/jobpostings"
	"github.com/vaguinhas/vaguinhas/domain/subscribers"
	"github.com/vaguinhas/vaguinhas/domain/users"
	"github.com/vaguinhas/vaguinhas/internal/jobs"
)

// Module provides the campaign job handlers and admin triggers
var Module = fx.Module("campaigns",
	fx.Provide(
		func(r *users.Repository) SubscriberStore { return r },
		func(s *subscribers.Service) Confirmer { return s },
		func(s *jobpostings.Service) Postings { return s },
		func(q *jobs.Queue) Queue { return q },
		NewService,
		NewHandler,
	),
	fx.Invoke(RegisterHandlers, RegisterRoutes),
)

// RegisterHandlers binds the campaign jobs on the registry.
func RegisterHandlers(registry *jobs.Registry, svc *Service) {
	registry.Register(JobConfirmationReminders, svc.RunConfirmationReminders)
	registry.Register(JobSupportUs, svc.RunSupportUs)
	registry.Register(JobBroadcast, svc.RunBroadcast)
	registry.Register(JobDailyDigest, svc.RunDailyDigest)
}
