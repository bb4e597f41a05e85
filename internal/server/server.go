package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	"github.com/smallbiznis/staybook/internal/businessday"
	"github.com/smallbiznis/staybook/internal/clock"
	"github.com/smallbiznis/staybook/internal/config"
	directorydomain "github.com/smallbiznis/staybook/internal/directory/domain"
	"github.com/smallbiznis/staybook/internal/observability"
	obsmiddleware "github.com/smallbiznis/staybook/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/staybook/internal/observability/metrics"
	obstracing "github.com/smallbiznis/staybook/internal/observability/tracing"
	"github.com/smallbiznis/staybook/internal/ratelimit"
	reportdomain "github.com/smallbiznis/staybook/internal/report/domain"
	"github.com/smallbiznis/staybook/internal/rollup"
	"github.com/smallbiznis/staybook/internal/settings"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.Middleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger, _ *Server) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
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
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	clock      clock.Clock
	resolver   *businessday.Resolver
	bookingSvc bookingdomain.Service
	reportSvc  reportdomain.Service
	directory  directorydomain.Service
	settings   *settings.Service
	rollup     *rollup.Maintainer
	limiter    *ratelimit.IngestLimiter
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	Resolver   *businessday.Resolver
	BookingSvc bookingdomain.Service
	ReportSvc  reportdomain.Service
	Directory  directorydomain.Service
	Clock      clock.Clock              `optional:"true"`
	Settings   *settings.Service        `optional:"true"`
	Rollup     *rollup.Maintainer       `optional:"true"`
	Limiter    *ratelimit.IngestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	log := zap.NewNop()
	if p.Log != nil {
		log = p.Log.Named("http")
	}
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        log,
		clock:      clk,
		resolver:   p.Resolver,
		bookingSvc: p.BookingSvc,
		reportSvc:  p.ReportSvc,
		directory:  p.Directory,
		settings:   p.Settings,
		rollup:     p.Rollup,
		limiter:    p.Limiter,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Ledger --------
	api.POST("/transactions", s.IngestTransaction)
	api.GET("/transactions", s.ListTransactions)
	api.GET("/transactions/:id", s.GetTransaction)
	api.PATCH("/transactions/:id", s.UpdateTransaction)
	api.DELETE("/transactions/:id", s.DeleteTransaction)

	api.GET("/messages/:message_id/transaction", s.GetTransactionByMessage)
	api.PATCH("/messages/:message_id/transaction", s.UpdateTransactionByMessage)
	api.DELETE("/messages/:message_id/transaction", s.DeleteTransactionByMessage)

	// -------- Reports --------
	api.GET("/business-day", s.GetBusinessDay)
	reports := api.Group("/reports")
	{
		reports.GET("/summary", s.GetPeriodSummary)
		reports.GET("/performance", s.GetPerformance)
		reports.GET("/growth", s.GetGrowth)
		reports.GET("/payment-methods", s.GetPaymentBreakdown)
		reports.GET("/commission-matrix", s.GetCommissionMatrix)
		reports.GET("/trend", s.GetTrend)
		reports.GET("/overview", s.GetOverview)
		reports.GET("/recent", s.GetRecent)
	}

	// -------- Directory --------
	api.GET("/agents", s.ListAgents)
	api.POST("/agents", s.UpsertAgent)
	api.GET("/locations", s.ListLocations)
	api.POST("/locations", s.UpsertLocation)
}

func (s *Server) registerAdminRoutes() {
	api := s.engine.Group("/api")

	if s.settings != nil {
		api.GET("/settings", s.ListSettings)
		api.GET("/settings/:key", s.GetSetting)
		api.PUT("/settings/:key", s.PutSetting)
	}

	if s.rollup != nil {
		admin := api.Group("/admin/rollup")
		admin.POST("/reconcile", s.ReconcileRollup)
		admin.GET("/verify", s.VerifyRollup)
	}
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
