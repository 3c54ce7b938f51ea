package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 入站邮件处理结果
const (
	ResultStored    = "stored"
	ResultDuplicate = "duplicate"
	ResultMalformed = "malformed"
	ResultTooLarge  = "too_large"
	ResultFailed    = "failed"
)

// 外发邮件处理结果
const (
	ResultSent        = "sent"
	ResultInvalid     = "invalid"
	ResultRelayFailed = "relay_failed"
)

// Metrics 监控指标
//
// 所有方法对 nil 接收者安全，未启用监控时组件可直接传 nil。
type Metrics struct {
	// SMTP 会话指标
	SMTPSessionsTotal    prometheus.Counter
	SMTPSessionsActive   prometheus.Gauge
	SMTPSessionsRejected prometheus.Counter

	// 邮件指标
	MessagesReceived *prometheus.CounterVec
	MessagesSent     *prometheus.CounterVec
	MessageSize      prometheus.Histogram
	AttachmentSize   prometheus.Histogram

	// 处理耗时
	IngestDuration *prometheus.HistogramVec
	RelayDuration  *prometheus.HistogramVec

	// 事件通知
	EventsPublished *prometheus.CounterVec

	// 运维 HTTP 指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	registry prometheus.Gatherer
}

// NewMetrics 在指定注册表上创建监控指标；reg 为 nil 时使用默认注册表
func NewMetrics(reg *prometheus.Registry) *Metrics {
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	factory := promauto.With(registerer)

	return &Metrics{
		SMTPSessionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailarchive_smtp_sessions_total",
				Help: "Total number of accepted SMTP sessions",
			},
		),

		SMTPSessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailarchive_smtp_sessions_active",
				Help: "Number of open SMTP sessions",
			},
		),

		SMTPSessionsRejected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailarchive_smtp_sessions_rejected_total",
				Help: "Total number of SMTP sessions rejected by the connection limiter",
			},
		),

		MessagesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailarchive_messages_received_total",
				Help: "Total number of inbound messages by result",
			},
			[]string{"result"},
		),

		MessagesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailarchive_messages_sent_total",
				Help: "Total number of outbound messages by result",
			},
			[]string{"result"},
		),

		MessageSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mailarchive_message_size_bytes",
				Help:    "Size of raw inbound messages in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 9),
			},
		),

		AttachmentSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mailarchive_attachment_size_bytes",
				Help:    "Size of decoded attachments in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 9),
			},
		),

		IngestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailarchive_ingest_duration_seconds",
				Help:    "Time spent normalizing and persisting an inbound message",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),

		RelayDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailarchive_relay_duration_seconds",
				Help:    "Time spent submitting a message to the outbound relay",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),

		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailarchive_events_published_total",
				Help: "Total number of stored-message events by result",
			},
			[]string{"result"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailarchive_http_requests_total",
				Help: "Total number of ops HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailarchive_http_request_duration_seconds",
				Help:    "Ops HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailarchive_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailarchive_panics_total",
				Help: "Total number of recovered panics",
			},
		),

		registry: gatherer,
	}
}

// SessionOpened 记录新会话
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SMTPSessionsTotal.Inc()
	m.SMTPSessionsActive.Inc()
}

// SessionClosed 记录会话结束
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SMTPSessionsActive.Dec()
}

// SessionRejected 记录被限流拒绝的会话
func (m *Metrics) SessionRejected() {
	if m == nil {
		return
	}
	m.SMTPSessionsRejected.Inc()
}

// ObserveIngest 记录一次入站处理
func (m *Metrics) ObserveIngest(result string, size int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(result).Inc()
	m.IngestDuration.WithLabelValues(result).Observe(elapsed.Seconds())
	if size > 0 {
		m.MessageSize.Observe(float64(size))
	}
}

// ObserveAttachment 记录附件大小
func (m *Metrics) ObserveAttachment(size int64) {
	if m == nil {
		return
	}
	m.AttachmentSize.Observe(float64(size))
}

// ObserveSend 记录一次外发
func (m *Metrics) ObserveSend(result string) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(result).Inc()
}

// ObserveRelay 记录中继耗时
func (m *Metrics) ObserveRelay(provider string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RelayDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveEvent 记录事件发布结果
func (m *Metrics) ObserveEvent(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.EventsPublished.WithLabelValues(result).Inc()
}

// RecordHTTPRequest 记录一次 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录恢复的 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// Handler 返回 Prometheus 指标处理器
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
