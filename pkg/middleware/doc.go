// Package middleware はGinベースのAPIゲートウェイで使用する共通ミドルウェアを提供する。
//
// Bearerトークン（JWT）の検証、役割ベースの認可ポリシー評価、
// CORS設定、パニックリカバリ、リクエスト追跡ID付与を含む。
// トークン検証と認可評価はいずれもステートレスかつ再入可能であり、
// リクエスト間で共有する可変状態を持たない。
package middleware
