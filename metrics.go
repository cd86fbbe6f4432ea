package rtm

import (
	"github.com/prometheus/client_golang/prometheus"
)

// default namespace for prometheus metrics. Can be changed over Config.
var defaultMetricsNamespace = "rtm"

type metrics struct {
	operationCount       *prometheus.CounterVec
	operationErrorCount  *prometheus.CounterVec
	pushReceivedCount    *prometheus.CounterVec
	reconnectCount       prometheus.Counter
	replayFailureCount   prometheus.Counter
	connectionStateGauge prometheus.Gauge
}

func newMetrics(namespace string) *metrics {
	m := &metrics{}
	m.operationCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "client",
		Name:      "operations_total",
		Help:      "Number of operations issued.",
	}, []string{"op"})
	m.operationErrorCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "client",
		Name:      "operation_errors_total",
		Help:      "Number of operations failed.",
	}, []string{"op"})
	m.pushReceivedCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "client",
		Name:      "pushes_received_total",
		Help:      "Number of server pushes received.",
	}, []string{"type"})
	m.reconnectCount = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "client",
		Name:      "reconnects_total",
		Help:      "Number of reconnections performed.",
	})
	m.replayFailureCount = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "client",
		Name:      "replay_failures_total",
		Help:      "Number of subscriptions that could not be replayed after reconnect.",
	})
	m.connectionStateGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "client",
		Name:      "connection_state",
		Help:      "Current connection state of the client.",
	})
	return m
}

func (m *metrics) register(registerer prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{
		m.operationCount,
		m.operationErrorCount,
		m.pushReceivedCount,
		m.reconnectCount,
		m.replayFailureCount,
		m.connectionStateGauge,
	} {
		if err := registerer.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func (m *metrics) incOperation(op string) {
	m.operationCount.WithLabelValues(op).Inc()
}

func (m *metrics) incOperationError(op string) {
	m.operationErrorCount.WithLabelValues(op).Inc()
}

func (m *metrics) incPush(pushType string) {
	m.pushReceivedCount.WithLabelValues(pushType).Inc()
}

func (m *metrics) setState(state ConnState) {
	m.connectionStateGauge.Set(float64(state))
}
