package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/vendora/internal/config"
	"github.com/smallbiznis/vendora/internal/customer"
	customerdomain "github.com/smallbiznis/vendora/internal/customer/domain"
	"github.com/smallbiznis/vendora/internal/delivery"
	deliverydomain "github.com/smallbiznis/vendora/internal/delivery/domain"
	"github.com/smallbiznis/vendora/internal/inventory"
	inventorydomain "github.com/smallbiznis/vendora/internal/inventory/domain"
	"github.com/smallbiznis/vendora/internal/observability"
	obsmiddleware "github.com/smallbiznis/vendora/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/vendora/internal/observability/metrics"
	obstracing "github.com/smallbiznis/vendora/internal/observability/tracing"
	"github.com/smallbiznis/vendora/internal/paypal"
	"github.com/smallbiznis/vendora/internal/purchase"
	purchasedomain "github.com/smallbiznis/vendora/internal/purchase/domain"
	"github.com/smallbiznis/vendora/internal/ratelimit"
	"github.com/smallbiznis/vendora/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/vendora/internal/subscription/domain"
	"github.com/smallbiznis/vendora/internal/webhook"
	webhookdomain "github.com/smallbiznis/vendora/internal/webhook/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	customer.Module,
	inventory.Module,
	purchase.Module,
	delivery.Module,
	subscription.Module,
	paypal.Module,
	webhook.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
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
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	catalog         *config.CatalogHolder
	inventorySvc    inventorydomain.Service
	deliverySvc     deliverydomain.Service
	webhookSvc      webhookdomain.Service
	customerRepo    customerdomain.Repository
	purchaseRepo    purchasedomain.Repository
	subscriptionRpo subscriptiondomain.Repository
	deliverLimiter  *ratelimit.DeliverLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin              *gin.Engine
	Cfg              config.Config
	DB               *gorm.DB
	GenID            *snowflake.Node
	Catalog          *config.CatalogHolder
	InventorySvc     inventorydomain.Service
	DeliverySvc      deliverydomain.Service
	WebhookSvc       webhookdomain.Service
	CustomerRepo     customerdomain.Repository
	PurchaseRepo     purchasedomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	DeliverLimiter   *ratelimit.DeliverLimiter `optional:"true"`
	ObsMetrics       *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		catalog:         p.Catalog,
		inventorySvc:    p.InventorySvc,
		deliverySvc:     p.DeliverySvc,
		webhookSvc:      p.WebhookSvc,
		customerRepo:    p.CustomerRepo,
		purchaseRepo:    p.PurchaseRepo,
		subscriptionRpo: p.SubscriptionRepo,
		deliverLimiter:  p.DeliverLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/packages", s.ListPackages)

	api.POST("/deliver-accounts", s.DeliverRateLimit(), s.DeliverAccounts)
	api.GET("/purchases/:id/accounts", s.GetPurchaseAccounts)

	api.GET("/paypal/config", s.GetPayPalConfig)
	api.POST("/paypal/webhook", s.HandlePayPalWebhook)
	api.GET("/paypal/webhook", s.MethodNotAllowed)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.AdminAuthRequired())

	admin.GET("/accounts", s.ListAccounts)
	admin.POST("/accounts", s.AddAccount)
	admin.POST("/accounts/bulk", s.BulkAddAccounts)
	admin.DELETE("/accounts/:id", s.DeleteAccount)
	admin.GET("/stock", s.GetStock)
	admin.GET("/purchases", s.ListPurchases)
	admin.GET("/subscriptions", s.ListSubscriptions)
	admin.GET("/customers", s.ListCustomers)
}
