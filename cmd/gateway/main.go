// APIゲートウェイサービスのエントリポイント。
// Bearerトークン検証、役割ベース認可、パス書き換え、各バックエンドサービスへの
// リバースプロキシ転送を担当する。外部からアクセス可能な唯一のサービスであり、
// セキュリティの境界線となる。
package main

import (
	"log"

	"github.com/nao1215/medigate/internal/gateway"
	"github.com/nao1215/medigate/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	server, err := gateway.NewServer(cfg)
	if err != nil {
		log.Fatalf("ゲートウェイサーバーの初期化に失敗: %v", err)
	}

	log.Printf("ゲートウェイサービスを起動します: :%s", cfg.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("ゲートウェイサービスの起動に失敗: %v", err)
	}
}
