package gateway

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/medigate/pkg/middleware"
)

// route は公開パスプレフィックスとバックエンドの対応を表すルート定義。
// ルートテーブル（routeの順序付きスライス）は起動時に一度だけ構築され、
// 以降は読み取り専用となるため、リクエスト間で同期なしに共有できる。
type route struct {
	// prefix は公開パスプレフィックス。
	prefix string
	// pattern が非nilの場合、prefixの代わりにこのパターンで一致判定を行う。
	// パラメータ化されたサブルート（例: /api/patients/:id/diagnostics）に使用する。
	pattern *regexp.Regexp
	// target はバックエンドのベースURL。
	target *url.URL
	// requiresAuth はトークン検証を要求するかどうか。
	requiresAuth bool
	// policy は認可ポリシー。空の場合は認証のみを要求する。
	policy middleware.AuthorizationPolicy
	// rule はパス書き換え戦略。
	rule rewriteRule
	// upgradable はプロトコルアップグレード（WebSocket）接続の中継対象かどうか。
	upgradable bool
	// chain はこのルートのパイプライン（検証 → 認可 → 転送）。
	chain []gin.HandlerFunc
}

// matches は受信パスがこのルートに属するか判定する。
func (r *route) matches(path string) bool {
	if r.pattern != nil {
		return r.pattern.MatchString(path)
	}
	return path == r.prefix || strings.HasPrefix(path, r.prefix+"/")
}

// patientDiagnosticsPattern は /api/patients/:id/diagnostics 形式のパスに一致する。
// より広い /api/patients ルートよりも優先される。
var patientDiagnosticsPattern = regexp.MustCompile(`^/api/patients/[^/]+/diagnostics(?:/.*)?$`)

// dispatch は受信リクエストに一致するルートを選択し、そのパイプラインを
// 固定順序（トークン検証 → 認可評価 → パス書き換え → 転送）で実行する。
// いずれかの段階が失敗した時点でレスポンスを返し、バックエンドには到達させない。
// ルートが一致しない場合は404を返す。
func (s *Server) dispatch(c *gin.Context) {
	rt, ok := s.matchRoute(c.Request.URL.Path)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "ルートが見つかりません"})
		return
	}

	for _, h := range rt.chain {
		h(c)
		if c.IsAborted() {
			return
		}
	}
}

// matchRoute はパスに一致するルートを返す。
// テーブルはプレフィックスが重なる場合に具体的なルートが先に来るよう
// 並べてあり、先頭から走査した最初の一致が最長一致となる。
func (s *Server) matchRoute(path string) (*route, bool) {
	for i := range s.routes {
		if s.routes[i].matches(path) {
			return &s.routes[i], true
		}
	}
	return nil, false
}

// buildChain はルート定義からパイプラインを構築する。
// 認証不要のルートは検証・認可を完全にスキップする。
func (s *Server) buildChain(rt *route) []gin.HandlerFunc {
	var chain []gin.HandlerFunc
	if rt.requiresAuth {
		chain = append(chain, middleware.JWTAuth(s.jwtSecret))
		if !rt.policy.IsEmpty() {
			chain = append(chain, middleware.RequireRole(rt.policy, ownerResourceID(rt.prefix)))
		}
	}
	return append(chain, s.forward(rt))
}

// ownerResourceID はルートプレフィックス直後のパスセグメントを
// リソースIDとして取り出す関数を返す。所有者例外の判定に使用する。
// 例: prefix=/api/patients のとき /api/patients/42 → "42"
func ownerResourceID(prefix string) func(*gin.Context) string {
	return func(c *gin.Context) string {
		rest := strings.TrimPrefix(c.Request.URL.Path, prefix)
		rest = strings.TrimPrefix(rest, "/")
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		return rest
	}
}
