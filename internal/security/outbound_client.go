package security

import (
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
)

// NewOutboundClient はIdPなど外部HTTPSエンドポイント向けのHTTPクライアントを生成する。
// safeurlによりhttps以外のスキーム、443以外のポート、プライベートIP・ループバック・
// リンクローカル・メタデータIPへの接続はDialerレベルで拒否される。
func NewOutboundClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(config).Client
}
