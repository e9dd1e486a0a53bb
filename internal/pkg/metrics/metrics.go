package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// 座席ロック操作の総数（operation: hold/lock/release/release_lock/disconnect, result: success/conflict/forbidden/error）
	SeatLockOperationsTotal *prometheus.CounterVec

	// 座席ロック操作の所要時間（operation）
	SeatLockOperationDuration *prometheus.HistogramVec

	// TTL切れと判定した座席数（kind: hold/lock）
	SeatExpiriesTotal *prometheus.CounterVec

	// 期限切れ候補のうち通知しなかった数（reason: booked/released）
	SeatExpirySuppressedTotal *prometheus.CounterVec

	// ルームごとの閲覧者数（room: busId:date）
	RoomViewers *prometheus.GaugeVec

	// 予約確定・変更の総数（result: confirmed/duplicate/cancelled/rescheduled/rejected/error）
	BookingsTotal *prometheus.CounterVec
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		SeatLockOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_lock_operations_total",
				Help: "Total number of seat hold/lock operations",
			},
			[]string{"operation", "result"},
		),
		SeatLockOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seat_lock_operation_duration_seconds",
				Help:    "Time spent on seat lock store operations",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),
		SeatExpiriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_expiries_total",
				Help: "Total number of detected seat hold/lock expirations",
			},
			[]string{"kind"},
		),
		SeatExpirySuppressedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_expiry_suppressed_total",
				Help: "Disappeared seat locks that were not reported as expired",
			},
			[]string{"reason"},
		),
		RoomViewers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "room_viewers",
				Help: "Current number of connections observing a bus and date",
			},
			[]string{"room"},
		),
		BookingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookings_total",
				Help: "Total number of booking transitions",
			},
			[]string{"result"},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SeatLockOperationsTotal,
		m.SeatLockOperationDuration,
		m.SeatExpiriesTotal,
		m.SeatExpirySuppressedTotal,
		m.RoomViewers,
		m.BookingsTotal,
	)

	return m
}

// ObserveLockOperation は座席ロック操作の結果と所要時間を記録する
// m が nil の場合は何もしない
func (m *Metrics) ObserveLockOperation(operation, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SeatLockOperationsTotal.WithLabelValues(operation, result).Inc()
	m.SeatLockOperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// IncExpiry はTTL切れの検出を記録する
func (m *Metrics) IncExpiry(kind string) {
	if m == nil {
		return
	}
	m.SeatExpiriesTotal.WithLabelValues(kind).Inc()
}

// IncExpirySuppressed は通知しなかった期限切れ候補を記録する
func (m *Metrics) IncExpirySuppressed(reason string) {
	if m == nil {
		return
	}
	m.SeatExpirySuppressedTotal.WithLabelValues(reason).Inc()
}

// SetRoomViewers はルームの閲覧者数を設定する
// 0人になったルームはラベルごと削除する
func (m *Metrics) SetRoomViewers(room string, count int) {
	if m == nil {
		return
	}
	if count == 0 {
		m.RoomViewers.DeleteLabelValues(room)
		return
	}
	m.RoomViewers.WithLabelValues(room).Set(float64(count))
}

// IncBooking は予約の状態遷移を記録する
func (m *Metrics) IncBooking(result string) {
	if m == nil {
		return
	}
	m.BookingsTotal.WithLabelValues(result).Inc()
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
