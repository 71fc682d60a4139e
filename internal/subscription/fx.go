package subscription

import (
	"github.com/lumahq/lumina/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription",
	fx.Provide(service.New),
)
