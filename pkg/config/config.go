// Package config はゲートウェイの起動時設定を提供する。
//
// すべての設定は環境変数から一度だけ読み込まれ、以降は変更されない。
// 各バックエンドサービスのベースURL、リッスンポート、JWT署名シークレット、
// CORS許可オリジンを含む。
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config はゲートウェイの起動時設定。
// Load()で構築された後は読み取り専用として扱う。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string `env:"PORT" envDefault:"8080"`
	// JWTSecret はJWT署名検証用の共有シークレット。
	// 認証サービスと同じ値を設定する必要がある。
	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret-key"`
	// AllowedOrigins はCORSで許可するオリジンのリスト（カンマ区切り）。
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:5173"`

	// AuthServiceURL は認証サービスのベースURL。
	AuthServiceURL string `env:"AUTH_SERVICE_URL" envDefault:"http://localhost:8081"`
	// UserServiceURL はユーザーサービスのベースURL。
	UserServiceURL string `env:"USER_SERVICE_URL" envDefault:"http://localhost:8082"`
	// PatientServiceURL は患者サービスのベースURL。
	PatientServiceURL string `env:"PATIENT_SERVICE_URL" envDefault:"http://localhost:8083"`
	// DiagnosticServiceURL は診断サービスのベースURL。
	DiagnosticServiceURL string `env:"DIAGNOSTIC_SERVICE_URL" envDefault:"http://localhost:8084"`
	// DepartmentServiceURL は診療科サービスのベースURL。
	DepartmentServiceURL string `env:"DEPARTMENT_SERVICE_URL" envDefault:"http://localhost:8085"`
	// SpecializationServiceURL は専門分野サービスのベースURL。
	SpecializationServiceURL string `env:"SPECIALIZATION_SERVICE_URL" envDefault:"http://localhost:8086"`
	// DoctorServiceURL は医師サービスのベースURL。
	DoctorServiceURL string `env:"DOCTOR_SERVICE_URL" envDefault:"http://localhost:8087"`
	// NurseServiceURL は看護師サービスのベースURL。
	NurseServiceURL string `env:"NURSE_SERVICE_URL" envDefault:"http://localhost:8088"`
	// AppointmentServiceURL は予約サービスのベースURL。
	AppointmentServiceURL string `env:"APPOINTMENT_SERVICE_URL" envDefault:"http://localhost:8089"`
	// QueueServiceURL は待機列（リアルタイム通知）サービスのベースURL。
	QueueServiceURL string `env:"QUEUE_SERVICE_URL" envDefault:"http://localhost:8090"`
}

// Load は環境変数からConfigを構築する。
// 未設定の環境変数にはデフォルト値が適用される。
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}
	return cfg, nil
}
