package security

import (
	"github.com/golang-jwt/jwt/v5"
)

// UserClaims 身份服务签发的 Token 业务信息，姓名与角色已预先解析好
type UserClaims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"` // parent / staff
	jwt.RegisteredClaims
}
