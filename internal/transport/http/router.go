package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailarchive/backend/internal/health"
	"mailarchive/backend/internal/middleware"
	"mailarchive/backend/internal/monitoring"
)

// RouterDependencies 运维路由依赖
type RouterDependencies struct {
	Health  *health.HealthChecker
	Metrics *monitoring.Metrics
	Logger  *zap.Logger
}

// NewRouter 创建运维 HTTP 路由：健康检查和 Prometheus 指标。
//
// 邮件查询与发送 API 由外部服务实现，这里不提供。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	mm := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)
	router.Use(mm.PanicRecovery())
	router.Use(mm.RequestLogger())
	router.Use(mm.HTTPMetrics())

	router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
	router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	router.GET("/health", func(c *gin.Context) {
		report := deps.Health.CheckHealth()
		if report.Status != health.StatusHealthy {
			Unavailable(c, report)
			return
		}
		Success(c, report)
	})
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	return router
}
