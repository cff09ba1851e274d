// Package metrics 定义服务器的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ServerMetrics 服务器指标集合
type ServerMetrics struct {
	AuthSessions   prometheus.Gauge
	MarginSessions prometheus.Gauge
	GameSessions   prometheus.Gauge
	PlayersOnline  prometheus.Gauge
	WorldObjects   prometheus.Gauge

	AuthResults *prometheus.CounterVec

	PacketsSent      prometheus.Counter
	PacketsReceived  prometheus.Counter
	PacketsResent    prometheus.Counter
	PacketsDuplicate prometheus.Counter
	PacketsDropped   prometheus.Counter

	DBQueryDuration *prometheus.HistogramVec

	MissionsStarted   prometheus.Counter
	MissionsCompleted prometheus.Counter
	DialogueChoices   prometheus.Counter
}

// New 创建并注册全部指标
func New(reg prometheus.Registerer) *ServerMetrics {
	m := &ServerMetrics{
		AuthSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reality", Subsystem: "auth", Name: "sessions",
			Help: "Active auth sessions.",
		}),
		MarginSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reality", Subsystem: "margin", Name: "sessions",
			Help: "Active margin sessions.",
		}),
		GameSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reality", Subsystem: "game", Name: "sessions",
			Help: "Active game sessions.",
		}),
		PlayersOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reality", Subsystem: "world", Name: "players_online",
			Help: "Players currently in world.",
		}),
		WorldObjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reality", Subsystem: "world", Name: "objects",
			Help: "Registered world objects.",
		}),
		AuthResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reality", Subsystem: "auth", Name: "results_total",
			Help: "Auth results by code.",
		}, []string{"code"}),
		PacketsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reality", Subsystem: "game", Name: "packets_sent_total",
			Help: "Datagrams sent.",
		}),
		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reality", Subsystem: "game", Name: "packets_received_total",
			Help: "Datagrams received.",
		}),
		PacketsResent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reality", Subsystem: "game", Name: "packets_resent_total",
			Help: "Reliable datagrams retransmitted.",
		}),
		PacketsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reality", Subsystem: "game", Name: "packets_duplicate_total",
			Help: "Duplicate reliable datagrams suppressed.",
		}),
		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reality", Subsystem: "game", Name: "packets_dropped_total",
			Help: "Datagrams dropped (window, format, address mismatch).",
		}),
		DBQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reality", Subsystem: "store", Name: "query_duration_seconds",
			Help:    "Store gateway query durations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		MissionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reality", Subsystem: "margin", Name: "missions_started_total",
			Help: "Missions started.",
		}),
		MissionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reality", Subsystem: "margin", Name: "missions_completed_total",
			Help: "Missions completed.",
		}),
		DialogueChoices: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reality", Subsystem: "margin", Name: "dialogue_choices_total",
			Help: "Dialogue options selected.",
		}),
	}

	reg.MustRegister(
		m.AuthSessions, m.MarginSessions, m.GameSessions,
		m.PlayersOnline, m.WorldObjects,
		m.AuthResults,
		m.PacketsSent, m.PacketsReceived, m.PacketsResent,
		m.PacketsDuplicate, m.PacketsDropped,
		m.DBQueryDuration,
		m.MissionsStarted, m.MissionsCompleted, m.DialogueChoices,
	)

	return m
}

// NewForTest 创建挂在独立注册表上的指标，测试用
func NewForTest() *ServerMetrics {
	return New(prometheus.NewRegistry())
}

// RecordDBQuery 记录一次存储查询耗时
func (m *ServerMetrics) RecordDBQuery(op string, seconds float64) {
	m.DBQueryDuration.WithLabelValues(op).Observe(seconds)
}
