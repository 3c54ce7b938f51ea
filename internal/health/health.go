package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// CheckFunc 依赖检查
type CheckFunc func(ctx context.Context) error

// Status 检查结果
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Report 就绪检查报告
type Report struct {
	Status    Status            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks"`
}

// HealthChecker 健康检查器
//
// 存活检查只反映进程本身；就绪检查覆盖数据库、Redis 等依赖。
type HealthChecker struct {
	health    healthcheck.Handler
	logger    *zap.Logger
	timeout   time.Duration
	startTime time.Time

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewHealthChecker 创建健康检查器，timeout 为单项检查超时
func NewHealthChecker(logger *zap.Logger, timeout time.Duration) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	hc := &HealthChecker{
		health:    healthcheck.NewHandler(),
		logger:    logger,
		timeout:   timeout,
		startTime: time.Now(),
		checks:    make(map[string]CheckFunc),
	}
	hc.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	return hc
}

// AddReadinessCheck 注册依赖检查
func (hc *HealthChecker) AddReadinessCheck(name string, check CheckFunc) {
	hc.mu.Lock()
	hc.checks[name] = check
	hc.mu.Unlock()

	hc.health.AddReadinessCheck(name, func() error {
		return hc.run(name, check)
	})
}

func (hc *HealthChecker) run(name string, check CheckFunc) error {
	ctx, cancel := context.WithTimeout(context.Background(), hc.timeout)
	defer cancel()

	if err := check(ctx); err != nil {
		hc.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
		return err
	}
	return nil
}

// LiveEndpoint 存活检查
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}

// CheckHealth 执行全部就绪检查并汇总
func (hc *HealthChecker) CheckHealth() *Report {
	hc.mu.RLock()
	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	hc.mu.RUnlock()
	sort.Strings(names)

	report := &Report{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(hc.startTime).Round(time.Second).String(),
		Checks:    make(map[string]string, len(names)),
	}

	for _, name := range names {
		hc.mu.RLock()
		check := hc.checks[name]
		hc.mu.RUnlock()

		if err := hc.run(name, check); err != nil {
			report.Checks[name] = "ERROR: " + err.Error()
			report.Status = StatusUnhealthy
			continue
		}
		report.Checks[name] = "OK"
	}
	return report
}
