package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/airtax/internal/behavior"
	"github.com/smallbiznis/airtax/internal/config"
	"github.com/smallbiznis/airtax/internal/dispatch"
	evaluationdomain "github.com/smallbiznis/airtax/internal/evaluation/domain"
	"github.com/smallbiznis/airtax/internal/itinerary"
	"github.com/smallbiznis/airtax/internal/observability"
	obsmiddleware "github.com/smallbiznis/airtax/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/airtax/internal/observability/metrics"
	obstracing "github.com/smallbiznis/airtax/internal/observability/tracing"
	"github.com/smallbiznis/airtax/internal/ratelimit"
	taxruledomain "github.com/smallbiznis/airtax/internal/taxrule/domain"
	"github.com/smallbiznis/airtax/internal/taxrule/snapshot"
	"github.com/smallbiznis/airtax/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(func(d *dispatch.Dispatcher) Dispatcher { return d }),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, apiMetrics *telemetry.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(RequestMetrics(apiMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, apiMetrics *telemetry.Metrics) *gin.Engine {
	return NewEngine(obsCfg, apiMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// Dispatcher evaluates a batch of itineraries, one set per input position.
type Dispatcher interface {
	Dispatch(ctx context.Context, itineraries []*itinerary.Itinerary) []*evaluationdomain.ComputedTaxSet
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	dispatcher Dispatcher
	ruleSvc    taxruledomain.Service
	registry   *behavior.Registry
	snapshots  *snapshot.Store
	limiter    *ratelimit.EvaluateLimiter
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	Dispatcher Dispatcher
	RuleSvc    taxruledomain.Service
	Registry   *behavior.Registry

	Snapshots  *snapshot.Store            `optional:"true"`
	Limiter    *ratelimit.EvaluateLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http"),
		dispatcher: p.Dispatcher,
		ruleSvc:    p.RuleSvc,
		registry:   p.Registry,
		snapshots:  p.Snapshots,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerHealthRoutes()
	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerHealthRoutes() {
	s.engine.GET("/health", s.Health)
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	// -------- Evaluation --------
	v1.POST("/taxes/evaluate", s.EvaluateRateLimit(), s.EvaluateTaxes)

	// -------- Rules --------
	v1.GET("/rules", s.ListRules)
	v1.POST("/rules", s.CreateRule)
	v1.GET("/rules/:id", s.GetRuleByID)

	// -------- Behaviors --------
	v1.GET("/behaviors", s.ListBehaviors)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

// Health reports liveness plus the age of the active rule snapshot. A
// snapshot that was never loaded reports degraded.
func (s *Server) Health(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if s.snapshots != nil {
		snap := s.snapshots.Current()
		rules := gin.H{"count": snap.Len()}
		if snap.LoadedAt().IsZero() {
			resp["status"] = "degraded"
		} else {
			rules["loaded_at"] = snap.LoadedAt().UTC().Format(time.RFC3339)
		}
		resp["rules"] = rules
	}
	c.JSON(http.StatusOK, resp)
}
