package gateway

import "strings"

// healthCheckPath はバージョン付きパス規約をバイパスする固定パス。
// インフラのヘルスチェックプローブが全バックエンドを同じ規約で
// 監視できるようにするための例外。
const healthCheckPath = "/health"

// rewriteRule は公開パスをバックエンド内部パスへ変換する書き換え戦略。
// 各ルートに必ず1つだけ適用される。実装は決定的かつ副作用を持たないこと。
type rewriteRule interface {
	rewrite(path string) string
}

// prefixRewrite は公開プレフィックスをバージョン付きバックエンドプレフィックスへ
// 置換する戦略。プレフィックス以降の残りパスが "/health" の場合は
// 置換せずそのまま通す。
//
// 例: from=/api/users, to=/api/v1/users のとき
// /api/users/42 → /api/v1/users/42, /api/users/health → /health
type prefixRewrite struct {
	from string
	to   string
}

func (r prefixRewrite) rewrite(path string) string {
	suffix := strings.TrimPrefix(path, r.from)
	if suffix == healthCheckPath {
		return healthCheckPath
	}
	return r.to + suffix
}

// literalRewrite は先頭の固定リテラルセグメントを別のリテラルへ置換する戦略。
// 残りのパスには一切手を加えない。ヘルスチェック例外も適用しない。
//
// 例: from=/api/patients, to=/api/v1/patients のとき
// /api/patients/5/diagnostics → /api/v1/patients/5/diagnostics
type literalRewrite struct {
	from string
	to   string
}

func (r literalRewrite) rewrite(path string) string {
	return r.to + strings.TrimPrefix(path, r.from)
}
