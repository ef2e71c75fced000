// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 結果ラベル
const (
	ResultSuccess   = "success"
	ResultRejected  = "rejected"
	ResultError     = "error"
	ResultValid     = "valid"
	ResultRefreshed = "refreshed"
	ResultInvalid   = "invalid"
	ResultDropped   = "dropped"
)

// Recorder は認証メトリクス記録のインターフェース。
// サービス層、セッション管理、メール送信から利用する。
type Recorder interface {
	RecordSignup(result string)
	RecordLogin(result string)
	RecordOAuthCallback(provider, result string)
	RecordSessionValidation(result string)
	RecordWelcomeMail(result string)
	RecordHTTPStatus(statusCode int)
	RecordProviderLatency(provider string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signups            *prometheus.CounterVec
	logins             *prometheus.CounterVec
	oauthCallbacks     *prometheus.CounterVec
	sessionValidations *prometheus.CounterVec
	welcomeMails       *prometheus.CounterVec
	httpStatus         *prometheus.CounterVec
	providerLatency    *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unlinked_signup_total",
			Help: "メールアドレスによる新規登録の結果別件数",
		}, []string{"result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unlinked_login_total",
			Help: "パスワードログインの結果別件数",
		}, []string{"result"}),
		oauthCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unlinked_oauth_callback_total",
			Help: "OAuthコールバックのプロバイダー・結果別件数",
		}, []string{"provider", "result"}),
		sessionValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unlinked_session_validation_total",
			Help: "セッション検証の結果別件数",
		}, []string{"result"}),
		welcomeMails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unlinked_welcome_mail_total",
			Help: "ウェルカムメール送信の結果別件数",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unlinked_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "unlinked_oauth_provider_latency_seconds",
			Help:    "OAuthプロバイダー呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
	}

	reg.MustRegister(
		c.signups,
		c.logins,
		c.oauthCallbacks,
		c.sessionValidations,
		c.welcomeMails,
		c.httpStatus,
		c.providerLatency,
	)

	return c
}

// RecordSignup は新規登録の結果を記録する。
func (c *Collector) RecordSignup(result string) {
	c.signups.WithLabelValues(result).Inc()
}

// RecordLogin はログインの結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordOAuthCallback はOAuthコールバックの結果を記録する。
func (c *Collector) RecordOAuthCallback(provider, result string) {
	c.oauthCallbacks.WithLabelValues(provider, result).Inc()
}

// RecordSessionValidation はセッション検証の結果を記録する。
func (c *Collector) RecordSessionValidation(result string) {
	c.sessionValidations.WithLabelValues(result).Inc()
}

// RecordWelcomeMail はウェルカムメール送信の結果を記録する。
func (c *Collector) RecordWelcomeMail(result string) {
	c.welcomeMails.WithLabelValues(result).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordProviderLatency はプロバイダー呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(provider string, duration time.Duration) {
	c.providerLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// Nop は何も記録しないRecorder。
type Nop struct{}

func (Nop) RecordSignup(string)                         {}
func (Nop) RecordLogin(string)                          {}
func (Nop) RecordOAuthCallback(string, string)          {}
func (Nop) RecordSessionValidation(string)              {}
func (Nop) RecordWelcomeMail(string)                    {}
func (Nop) RecordHTTPStatus(int)                        {}
func (Nop) RecordProviderLatency(string, time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
