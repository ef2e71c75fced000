// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
)

// NewProviderClient は外部IdPとの通信に使用するHTTPクライアントを生成する。
// httpsの443番ポートのみ許可し、プライベートIP、ループバック、リンクローカル、
// メタデータIPへの接続はsafeurlがDNS解決後に拒否する。
// timeoutは1リクエスト全体の上限として適用される。
func NewProviderClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(config).Client
}
