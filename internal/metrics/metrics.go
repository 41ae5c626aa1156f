// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// サインイン結果のラベル値。
const (
	SignInSuccess      = "success"
	SignInInvalid      = "invalid_credentials"
	SignInNotConfirmed = "email_not_confirmed"
	SignInError        = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordSignIn(outcome string)
	RecordSignUp()
	RecordSignOut()
	RecordArchiveCreated(category string)
	RecordUploadFailure()
	RecordUploadLatency(duration time.Duration)
	RecordGuardRedirect(target string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signIn          *prometheus.CounterVec
	signUp          prometheus.Counter
	signOut         prometheus.Counter
	archivesCreated *prometheus.CounterVec
	uploadFail      prometheus.Counter
	uploadLatency   prometheus.Histogram
	guardRedirects  *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "srikandi_sign_in_total",
			Help: "サインイン試行の結果別の合計数",
		}, []string{"outcome"}),
		signUp: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "srikandi_sign_up_total",
			Help: "ユーザー登録の合計数",
		}),
		signOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "srikandi_sign_out_total",
			Help: "サインアウトの合計数",
		}),
		archivesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "srikandi_archives_created_total",
			Help: "区分別の文書登録数",
		}, []string{"category"}),
		uploadFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "srikandi_upload_fail_total",
			Help: "添付ファイルのアップロード失敗の合計数",
		}),
		uploadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "srikandi_upload_latency_seconds",
			Help:    "添付ファイルのアップロードのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		guardRedirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "srikandi_route_guard_redirects_total",
			Help: "ルートガードによるリダイレクト先別の合計数",
		}, []string{"target"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "srikandi_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.signIn,
		c.signUp,
		c.signOut,
		c.archivesCreated,
		c.uploadFail,
		c.uploadLatency,
		c.guardRedirects,
		c.httpStatus,
	)

	return c
}

// RecordSignIn はサインイン試行の結果を記録する。
func (c *Collector) RecordSignIn(outcome string) {
	c.signIn.WithLabelValues(outcome).Inc()
}

// RecordSignUp はユーザー登録を記録する。
func (c *Collector) RecordSignUp() {
	c.signUp.Inc()
}

// RecordSignOut はサインアウトを記録する。
func (c *Collector) RecordSignOut() {
	c.signOut.Inc()
}

// RecordArchiveCreated は文書登録を記録する。
func (c *Collector) RecordArchiveCreated(category string) {
	c.archivesCreated.WithLabelValues(category).Inc()
}

// RecordUploadFailure はアップロード失敗を記録する。
func (c *Collector) RecordUploadFailure() {
	c.uploadFail.Inc()
}

// RecordUploadLatency はアップロードのレイテンシを記録する。
func (c *Collector) RecordUploadLatency(duration time.Duration) {
	c.uploadLatency.Observe(duration.Seconds())
}

// RecordGuardRedirect はルートガードのリダイレクトを記録する。
func (c *Collector) RecordGuardRedirect(target string) {
	c.guardRedirects.WithLabelValues(target).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 一部のメトリクスの収集に失敗しても、収集できた分は返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

var _ MetricsCollector = (*Collector)(nil)
