package admission

import (
	"github.com/lumahq/lumina/internal/admission/domain"
	"github.com/lumahq/lumina/internal/admission/service"
	ledgerdomain "github.com/lumahq/lumina/internal/ledger/domain"
	"github.com/lumahq/lumina/internal/policy"
	ratelimitdomain "github.com/lumahq/lumina/internal/ratelimit/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("admission",
	fx.Provide(
		func(svc ratelimitdomain.Service) domain.RateLimiter { return svc },
		func(engine *policy.Engine) domain.PolicyEvaluator { return engine },
		func(svc ledgerdomain.Service) domain.CreditLedger { return svc },
		service.New,
	),
)
