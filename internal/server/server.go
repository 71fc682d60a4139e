package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	admissiondomain "github.com/lumahq/lumina/internal/admission/domain"
	auditdomain "github.com/lumahq/lumina/internal/audit/domain"
	"github.com/lumahq/lumina/internal/config"
	"github.com/lumahq/lumina/internal/identity"
	ledgerdomain "github.com/lumahq/lumina/internal/ledger/domain"
	"github.com/lumahq/lumina/internal/observability"
	paymentdomain "github.com/lumahq/lumina/internal/payment/domain"
	ratelimitdomain "github.com/lumahq/lumina/internal/ratelimit/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, metrics *observability.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.GinMiddleware(log, metrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	verifier     identity.Verifier
	admissionSvc admissiondomain.Service
	ledgerSvc    ledgerdomain.Service
	ratelimitSvc ratelimitdomain.Service
	gateway      paymentdomain.Gateway
	webhookSvc   paymentdomain.Webhook
	auditSvc     auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	Verifier     identity.Verifier
	AdmissionSvc admissiondomain.Service
	LedgerSvc    ledgerdomain.Service
	RatelimitSvc ratelimitdomain.Service
	Gateway      paymentdomain.Gateway
	WebhookSvc   paymentdomain.Webhook
	AuditSvc     auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("server"),
		verifier:     p.Verifier,
		admissionSvc: p.AdmissionSvc,
		ledgerSvc:    p.LedgerSvc,
		ratelimitSvc: p.RatelimitSvc,
		gateway:      p.Gateway,
		webhookSvc:   p.WebhookSvc,
		auditSvc:     p.AuditSvc,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1", s.RequireAuth())

	v1.POST("/admissions", s.CreateAdmission)
	v1.POST("/admissions/:id/compensate", s.CompensateAdmission)
	v1.POST("/checkout", s.CreateCheckout)
	v1.GET("/ratelimit/status", s.RateLimitStatus)
	v1.GET("/ledger/balance", s.LedgerBalance)
	v1.GET("/ledger/entries", s.LedgerEntries)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.RequireAuth(), s.RequirePrivileged())

	admin.POST("/ratelimit/reset", s.ResetRateLimit)
	admin.POST("/ledger/adjust", s.AdjustLedger)
	admin.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/payment", s.PaymentWebhook)
}
