// Package gateway はAPIゲートウェイの内部実装を提供する。
//
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線として機能する。
// 受信リクエストをルートテーブルで最長プレフィックス一致により振り分け、
// ルートごとに固定順序のパイプライン（Bearerトークン検証 → 役割/所有者認可 →
// パス書き換え → リバースプロキシ転送）を実行する。WebSocketなどの
// プロトコルアップグレード接続は生のバイト列を双方向に中継する。
// ゲートウェイ自体はビジネスロジックと状態を一切持たない。
package gateway
