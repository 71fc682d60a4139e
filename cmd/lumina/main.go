package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/lumahq/lumina/internal/admission"
	"github.com/lumahq/lumina/internal/audit"
	"github.com/lumahq/lumina/internal/clock"
	"github.com/lumahq/lumina/internal/config"
	"github.com/lumahq/lumina/internal/identity"
	"github.com/lumahq/lumina/internal/ledger"
	"github.com/lumahq/lumina/internal/migration"
	"github.com/lumahq/lumina/internal/observability"
	"github.com/lumahq/lumina/internal/payment"
	"github.com/lumahq/lumina/internal/policy"
	"github.com/lumahq/lumina/internal/ratelimit"
	"github.com/lumahq/lumina/internal/scheduler"
	"github.com/lumahq/lumina/internal/server"
	"github.com/lumahq/lumina/internal/subscription"
	"github.com/lumahq/lumina/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		identity.Module,

		// functional domains
		audit.Module,
		ledger.Module,
		ratelimit.Module,
		policy.Module,
		subscription.Module,
		payment.Module,
		admission.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
