package email

import (
	"go.uber.org/fx"

	"github.com/vaguinhas/vaguinhas/internal/jobs"
)

// Module provides email rendering, delivery and the email.send job handler.
var Module = fx.Module("email",
	fx.Provide(
		NewConfig,
		NewTemplateService,
		NewSender,
		NewSendHandler,
		NewService,
		func(s *Service) Enqueuer { return s },
	),
	fx.Invoke(RegisterHandlers),
)

// RegisterHandlers binds email.send on the job registry.
func RegisterHandlers(registry *jobs.Registry, h *SendHandler) {
	registry.Register(JobName, h.Handle)
}
