package gateway

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/medigate/pkg/config"
	"github.com/nao1215/medigate/pkg/middleware"
)

// Server はAPIゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// jwtSecret はJWT署名検証用の共有シークレット。
	jwtSecret string
	// routes は起動時に構築される読み取り専用のルートテーブル。
	routes []route
	// proxyClient はバックエンドへの転送に使用するHTTPクライアント。
	// タイムアウトは設けず、遅いバックエンドは当該リクエストのみをブロックする。
	proxyClient *http.Client
	// proxyTLSConfig はHTTPSバックエンドへのアップグレード中継に使うTLS設定。
	// nilの場合はシステムのルート証明書で検証する。
	proxyTLSConfig *tls.Config
}

// NewServer は新しいゲートウェイサーバーを生成する。
// 設定からルートテーブルを構築し、以降ルートテーブルは変更されない。
func NewServer(cfg config.Config) (*Server, error) {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	s := &Server{
		router:    router,
		port:      cfg.Port,
		jwtSecret: cfg.JWTSecret,
		proxyClient: &http.Client{
			// リダイレクトは追跡せず、バックエンドの3xxレスポンスを
			// そのままクライアントへ中継する
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}

	if err := s.buildRoutes(cfg); err != nil {
		return nil, err
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// buildRoutes は設定からルートテーブルを構築する。
// プレフィックスが重なるルート（/api/patients/:id/diagnostics と /api/patients）は
// 具体的な方を先に置き、最長一致を保証する。
func (s *Server) buildRoutes(cfg config.Config) error {
	var parseErr error
	parseTarget := func(name, raw string) *url.URL {
		u, err := url.Parse(raw)
		if err != nil && parseErr == nil {
			parseErr = fmt.Errorf("%sサービスURLの解析に失敗: %w", name, err)
		}
		return u
	}

	auth := parseTarget("認証", cfg.AuthServiceURL)
	user := parseTarget("ユーザー", cfg.UserServiceURL)
	patient := parseTarget("患者", cfg.PatientServiceURL)
	diagnostic := parseTarget("診断", cfg.DiagnosticServiceURL)
	department := parseTarget("診療科", cfg.DepartmentServiceURL)
	specialization := parseTarget("専門分野", cfg.SpecializationServiceURL)
	doctor := parseTarget("医師", cfg.DoctorServiceURL)
	nurse := parseTarget("看護師", cfg.NurseServiceURL)
	appointment := parseTarget("予約", cfg.AppointmentServiceURL)
	queue := parseTarget("待機列", cfg.QueueServiceURL)
	if parseErr != nil {
		return parseErr
	}
	s.routes = []route{
		{
			// 患者配下の診断サブルートは診断サービスへ転送する。
			prefix:       "/api/patients",
			pattern:      patientDiagnosticsPattern,
			target:       diagnostic,
			requiresAuth: true,
			policy:       middleware.NewAuthorizationPolicy(middleware.RolePatient, middleware.RoleDoctor, middleware.RoleAdministrator),
			rule:         literalRewrite{from: "/api/patients", to: "/api/v1/patients"},
		},
		{
			prefix: "/api/auth",
			target: auth,
			rule:   prefixRewrite{from: "/api/auth", to: "/api/v1/auth"},
		},
		{
			prefix:       "/api/users",
			target:       user,
			requiresAuth: true,
			policy:       middleware.NewAuthorizationPolicy(middleware.RoleAdministrator),
			rule:         prefixRewrite{from: "/api/users", to: "/api/v1/users"},
		},
		{
			// 患者本人は自分のリソース（/api/patients/:id）にアクセスできる。
			prefix:       "/api/patients",
			target:       patient,
			requiresAuth: true,
			policy:       middleware.NewAuthorizationPolicy(middleware.RoleAdministrator, middleware.RoleDoctor).WithOwnerException(),
			rule:         prefixRewrite{from: "/api/patients", to: "/api/v1/patients"},
		},
		{
			prefix:       "/api/diagnostics",
			target:       diagnostic,
			requiresAuth: true,
			policy:       middleware.NewAuthorizationPolicy(middleware.RolePatient, middleware.RoleDoctor, middleware.RoleAdministrator),
			rule:         prefixRewrite{from: "/api/diagnostics", to: "/api/v1/diagnostics"},
		},
		{
			prefix:       "/api/departments",
			target:       department,
			requiresAuth: true,
			policy:       middleware.NewAuthorizationPolicy(middleware.RoleAdministrator),
			rule:         prefixRewrite{from: "/api/departments", to: "/api/v1/departments"},
		},
		{
			prefix:       "/api/specializations",
			target:       specialization,
			requiresAuth: true,
			policy:       middleware.NewAuthorizationPolicy(middleware.RoleAdministrator),
			rule:         prefixRewrite{from: "/api/specializations", to: "/api/v1/specializations"},
		},
		{
			prefix:       "/api/doctors",
			target:       doctor,
			requiresAuth: true,
			policy:       middleware.NewAuthorizationPolicy(middleware.RoleAdministrator, middleware.RoleDoctor),
			rule:         prefixRewrite{from: "/api/doctors", to: "/api/v1/doctors"},
		},
		{
			prefix:       "/api/nurses",
			target:       nurse,
			requiresAuth: true,
			policy:       middleware.NewAuthorizationPolicy(middleware.RoleAdministrator, middleware.RoleNurse),
			rule:         prefixRewrite{from: "/api/nurses", to: "/api/v1/nurses"},
		},
		{
			// 予約はすべての認証済みユーザーが利用できる。
			prefix:       "/api/appointments",
			target:       appointment,
			requiresAuth: true,
			policy:       middleware.AuthorizationPolicy{},
			rule:         prefixRewrite{from: "/api/appointments", to: "/api/v1/appointments"},
		},
		{
			prefix:     "/api/queue",
			target:     queue,
			rule:       prefixRewrite{from: "/api/queue", to: "/api/v1/queue"},
			upgradable: true,
		},
		{
			// Socket.IOクライアントは固定の /socket.io パスでハンドシェイクするため、
			// 書き換えずに待機列サービスへそのまま中継する。
			prefix:     "/socket.io",
			target:     queue,
			rule:       literalRewrite{from: "/socket.io", to: "/socket.io"},
			upgradable: true,
		},
	}

	for i := range s.routes {
		s.routes[i].chain = s.buildChain(&s.routes[i])
	}
	return nil
}

// setupRoutes はルートテーブル以外の固定エンドポイントを設定する。
func (s *Server) setupRoutes() {
	// 稼働確認
	s.router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ゲートウェイは稼働中です"})
	})

	// ゲートウェイ自身のヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})

	// プレフィックス一致のプロキシルートはすべてディスパッチャ経由で処理する
	s.router.NoRoute(s.dispatch)
}
