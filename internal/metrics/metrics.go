// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやワーカーから利用する。
type MetricsCollector interface {
	RecordRegistration()
	RecordLogin()
	RecordUpload(bytes int64)
	RecordDownload()
	RecordDelete()
	RecordHTTPStatus(statusCode int)
	RecordCleanupDeleted(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	registrations  prometheus.Counter
	logins         prometheus.Counter
	uploads        prometheus.Counter
	uploadBytes    prometheus.Counter
	downloads      prometheus.Counter
	deletes        prometheus.Counter
	httpStatus     *prometheus.CounterVec
	cleanupDeleted prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filedrop_registrations_total",
			Help: "アカウント登録の合計数",
		}),
		logins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filedrop_logins_total",
			Help: "ログイン成功の合計数",
		}),
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filedrop_uploads_total",
			Help: "ファイル公開の合計数",
		}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filedrop_upload_bytes_total",
			Help: "公開されたファイルの合計バイト数",
		}),
		downloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filedrop_downloads_total",
			Help: "ファイルダウンロードの合計数",
		}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filedrop_deletes_total",
			Help: "所有者によるファイル削除の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "filedrop_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		cleanupDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "filedrop_cleanup_deleted_total",
			Help: "期限切れ掃除で削除されたファイルの合計数",
		}),
	}

	reg.MustRegister(
		c.registrations,
		c.logins,
		c.uploads,
		c.uploadBytes,
		c.downloads,
		c.deletes,
		c.httpStatus,
		c.cleanupDeleted,
	)

	return c
}

// RecordRegistration はアカウント登録を記録する。
func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

// RecordLogin はログイン成功を記録する。
func (c *Collector) RecordLogin() {
	c.logins.Inc()
}

// RecordUpload はファイル公開とそのサイズを記録する。
func (c *Collector) RecordUpload(bytes int64) {
	c.uploads.Inc()
	c.uploadBytes.Add(float64(bytes))
}

// RecordDownload はファイルダウンロードを記録する。
func (c *Collector) RecordDownload() {
	c.downloads.Inc()
}

// RecordDelete は所有者によるファイル削除を記録する。
func (c *Collector) RecordDelete() {
	c.deletes.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordCleanupDeleted は期限切れ掃除で削除されたファイル数を記録する。
func (c *Collector) RecordCleanupDeleted(count int) {
	c.cleanupDeleted.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
