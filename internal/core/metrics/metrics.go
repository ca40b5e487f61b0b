package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	pkgif "github.com/dep2p/go-meshnode/pkg/interfaces"
)

// Namespace 指标命名空间
const Namespace = "meshnode"

// 拨号结果标签
const (
	DialSuccess = "success"
	DialFailure = "failure"
)

// Metrics 节点指标集合
type Metrics struct {
	registry *prometheus.Registry

	ConnectionsOpen *prometheus.GaugeVec
	Dials           *prometheus.CounterVec

	Published  prometheus.Counter
	Delivered  prometheus.Counter
	Duplicates prometheus.Counter
	Forwarded  prometheus.Counter

	Lookups      *prometheus.CounterVec
	LookupRounds prometheus.Histogram

	Trimmed prometheus.Counter
}

// New 在私有注册表上创建并注册全部指标
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry 在给定注册表上创建指标，reg 为 nil 时使用私有注册表
//
// 同一注册表上重复注册会 panic。
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,

		ConnectionsOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "connections_open",
			Help:      "Number of open connections",
		}, []string{"direction"}),
		Dials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dials_total",
			Help:      "Outbound dial attempts by result",
		}, []string{"result"}),

		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pubsub",
			Name:      "published_total",
			Help:      "Messages published by this node",
		}),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pubsub",
			Name:      "delivered_total",
			Help:      "Messages delivered to local subscribers",
		}),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pubsub",
			Name:      "duplicates_total",
			Help:      "Messages dropped as already seen",
		}),
		Forwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "pubsub",
			Name:      "forwarded_total",
			Help:      "Message copies sent to mesh peers",
		}),

		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "dht",
			Name:      "lookups_total",
			Help:      "DHT lookups by terminal state",
		}, []string{"state"}),
		LookupRounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "dht",
			Name:      "lookup_rounds",
			Help:      "Query rounds needed per DHT lookup",
			Buckets:   prometheus.LinearBuckets(1, 1, 12),
		}),

		Trimmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "connmgr",
			Name:      "trimmed_total",
			Help:      "Peers disconnected by the connection manager",
		}),
	}

	m.registry.MustRegister(
		m.ConnectionsOpen, m.Dials,
		m.Published, m.Delivered, m.Duplicates, m.Forwarded,
		m.Lookups, m.LookupRounds,
		m.Trimmed,
	)
	return m
}

// Registry 返回指标所在的注册表
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Notifier 返回跟踪连接数的 Swarm 通知器
func (m *Metrics) Notifier() pkgif.SwarmNotifier {
	return &pkgif.NotifyBundle{
		ConnectedF: func(c pkgif.Connection) {
			m.ConnectionsOpen.WithLabelValues(c.Direction().String()).Inc()
		},
		DisconnectedF: func(c pkgif.Connection) {
			m.ConnectionsOpen.WithLabelValues(c.Direction().String()).Dec()
		},
	}
}

// ============================================================================
//                              记录方法（nil 安全）
// ============================================================================

// ObserveDial 记录一次拨号结果
func (m *Metrics) ObserveDial(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.Dials.WithLabelValues(DialFailure).Inc()
		return
	}
	m.Dials.WithLabelValues(DialSuccess).Inc()
}

// ObservePublish 记录一次本地发布
func (m *Metrics) ObservePublish() {
	if m == nil {
		return
	}
	m.Published.Inc()
}

// ObserveDelivery 记录一次本地投递
func (m *Metrics) ObserveDelivery() {
	if m == nil {
		return
	}
	m.Delivered.Inc()
}

// ObserveDuplicate 记录一次去重丢弃
func (m *Metrics) ObserveDuplicate() {
	if m == nil {
		return
	}
	m.Duplicates.Inc()
}

// ObserveForward 记录转发份数
func (m *Metrics) ObserveForward(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Forwarded.Add(float64(n))
}

// ObserveLookup 记录一次 DHT 查找的终止状态和轮数
func (m *Metrics) ObserveLookup(state string, rounds int) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(state).Inc()
	m.LookupRounds.Observe(float64(rounds))
}

// ObserveTrim 记录连接管理器关闭的节点数
func (m *Metrics) ObserveTrim(closed int) {
	if m == nil || closed <= 0 {
		return
	}
	m.Trimmed.Add(float64(closed))
}
