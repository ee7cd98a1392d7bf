package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

// AuthorizationPolicy はルートに対する認可ポリシー。
// 許可する役割の集合と、リソース所有者を例外的に許可するかを持つ。
// 役割一致の判定が所有者判定より常に優先される。
type AuthorizationPolicy struct {
	// AllowedRoles はアクセスを許可する役割の集合。
	// 空の場合、認証のみが要求され役割による制限は行わない。
	AllowedRoles []Role
	// AllowOwnerException はリソース所有者（パス中のIDと
	// 認証済みユーザーIDが一致する場合）を許可するかどうか。
	AllowOwnerException bool
}

// NewAuthorizationPolicy は指定した役割を許可する認可ポリシーを生成する。
func NewAuthorizationPolicy(roles ...Role) AuthorizationPolicy {
	return AuthorizationPolicy{AllowedRoles: roles}
}

// WithOwnerException は所有者例外を有効にしたポリシーのコピーを返す。
func (p AuthorizationPolicy) WithOwnerException() AuthorizationPolicy {
	p.AllowOwnerException = true
	return p
}

// IsEmpty はポリシーが何の制限も課さない（認証のみでよい）場合にtrueを返す。
func (p AuthorizationPolicy) IsEmpty() bool {
	return len(p.AllowedRoles) == 0 && !p.AllowOwnerException
}

// RequireRole は認可ポリシーを評価するGinミドルウェアを返す。
// resourceIDはリクエストから対象リソースIDを取り出す関数で、
// 所有者例外の判定にのみ使用する（nil可）。
//
// 評価順序: 役割一致 → 所有者例外。所有者例外はあくまで
// 役割不一致時のフォールバックであり、役割による許可を上書きしない。
// 評価は純粋であり、I/Oを行わない。
func RequireRole(policy AuthorizationPolicy, resourceID func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := GetIdentity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "認証されていません",
			})
			return
		}

		if slices.Contains(policy.AllowedRoles, identity.Role) {
			c.Next()
			return
		}

		if policy.AllowOwnerException && resourceID != nil {
			if id := resourceID(c); id != "" && id == identity.ID {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "このリソースへのアクセス権限がありません",
			"role":    identity.Role,
			"allowed": policy.AllowedRoles,
		})
	}
}
