package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Role は認証済みユーザーの役割。
// ポリシー判定は大文字小文字を区別する完全一致で行う。
type Role string

const (
	// RoleAdministrator は管理者。
	RoleAdministrator Role = "ADMINISTRATOR"
	// RoleDoctor は医師。
	RoleDoctor Role = "DOCTOR"
	// RoleNurse は看護師。
	RoleNurse Role = "NURSE"
	// RolePatient は患者。
	RolePatient Role = "PATIENT"
)

// Identity は検証済みトークンから得た認証済みユーザーの情報。
// トークン検証時に生成され、リクエストのライフタイムだけコンテキストに保持される。
type Identity struct {
	// ID はユーザーの一意識別子。
	ID string `json:"id"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
	// Role はユーザーの役割。
	Role Role `json:"role"`
}

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
// 認証サービスが発行するトークンのペイロード形式と一致させる。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。
	UserID string `json:"id"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
	// Role はユーザーの役割。
	Role string `json:"role"`
}

// contextKeyIdentity はGinコンテキストに認証済みユーザー情報を格納するためのキー。
const contextKeyIdentity = "identity"

// GenerateToken はユーザー情報からJWTトークンを生成する。
// 本番でのトークン発行は認証サービスの責務であり、ゲートウェイは
// 検証のみを行う。この関数は認証サービスと同一のペイロード形式を
// 再現するために提供する。
func GenerateToken(secret, userID, email string, role Role) (string, error) {
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "medigate-auth",
		},
		UserID: userID,
		Email:  email,
		Role:   string(role),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// JWTAuth はBearerトークンを検証するGinミドルウェアを返す。
// 検証は共有シークレットによる署名確認と有効期限確認のみで、
// 認証サービスへの問い合わせは行わない。
// 検証に成功した場合、コンテキストにIdentityを設定する。
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorizationヘッダーが必要です",
			})
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer トークン形式が不正です",
			})
			return
		}

		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "トークンが無効または期限切れです",
			})
			return
		}

		c.Set(contextKeyIdentity, Identity{
			ID:    claims.UserID,
			Email: claims.Email,
			Role:  Role(claims.Role),
		})
		c.Next()
	}
}

// GetIdentity はGinコンテキストから認証済みユーザー情報を取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetIdentity(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(contextKeyIdentity)
	if !ok {
		return Identity{}, false
	}
	identity, ok := v.(Identity)
	return identity, ok
}
