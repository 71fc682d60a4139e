package payment

import (
	"github.com/lumahq/lumina/internal/payment/gateway"
	"github.com/lumahq/lumina/internal/payment/reconcile"
	"github.com/lumahq/lumina/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(gateway.NewClient),
	fx.Provide(webhook.New),
	fx.Provide(reconcile.New),
)
