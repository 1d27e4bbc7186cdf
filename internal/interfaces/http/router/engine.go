package router

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/interfaces/http/handler"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
)

// EngineConfig wires the HTTP surface
type EngineConfig struct {
	Logger         *zap.Logger
	Meter          metric.Meter
	ServiceName    string
	TracingEnabled bool
	CORS           middleware.CORSConfig
	TrustedProxies []string
	MaxBodySize    int64

	AdminAuth          middleware.AdminAuthConfig
	AdminRatePerMinute  int

	System   *handler.SystemHandler
	Webhooks *handler.PaymentWebhookHandler
	SyncLogs *handler.SyncLogHandler
}

var probePaths = []string{"/health", "/ready"}

// NewEngine builds the gin engine with the middleware stack and every route
func NewEngine(cfg EngineConfig) (*gin.Engine, error) {
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	middleware.SetupValidator()
	engine.Use(
		middleware.RequestID(),
		logger.Recovery(cfg.Logger),
		middleware.Tracing(middleware.TracingConfig{ServiceName: cfg.ServiceName, Enabled: cfg.TracingEnabled}),
		middleware.SpanAttributes(),
		logger.GinMiddleware(cfg.Logger, probePaths...),
		middleware.HTTPMetrics(cfg.Meter, cfg.Logger),
		middleware.Secure(),
		middleware.CORSWithConfig(cfg.CORS),
	)
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}

	engine.GET("/health", cfg.System.Health)
	engine.GET("/ready", cfg.System.Ready)

	r := NewRouter(engine)

	system := NewDomainGroup("system", "/system")
	system.GET("/info", cfg.System.GetSystemInfo)
	r.Register(system)

	payments := NewDomainGroup("payments", "/payments")
	payments.POST("/easebuzz/webhook",
		middleware.BodyLimit(handler.WebhookMaxBodyBytes),
		cfg.Webhooks.HandleEasebuzz,
	)
	r.Register(payments)

	admin := NewDomainGroup("admin", "/admin").
		Use(middleware.AdminAuth(cfg.AdminAuth))
	if cfg.AdminRatePerMinute > 0 {
		admin.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.AdminRatePerMinute)))
	}
	admin.Group("sync-logs", "/sync-logs").
		GET("", cfg.SyncLogs.List).
		POST("", cfg.SyncLogs.Action).
		GET("/stats", cfg.SyncLogs.Stats)
	r.Register(admin)

	r.Setup()
	return engine, nil
}
