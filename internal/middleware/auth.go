package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"seckill/internal/model"
	"seckill/pkg/logger"
)

const (
	// AuthorizationHeader 登录 token 所在的请求头
	AuthorizationHeader = "authorization"
	userContextKey      = "seckill.user"
)

// TokenLoader 按 token 取登录用户，token 无效返回 nil, nil。
type TokenLoader interface {
	LoadToken(ctx context.Context, token string) (*model.UserDTO, error)
}

// RefreshToken 所有请求都经过：有合法 token 就把用户放进上下文并续期，否则直接放行。
func RefreshToken(loader TokenLoader) gin.HandlerFunc {
	log := logger.WithModule("auth")
	return func(c *gin.Context) {
		token := c.GetHeader(AuthorizationHeader)
		if token == "" {
			c.Next()
			return
		}
		user, err := loader.LoadToken(c.Request.Context(), token)
		if err != nil {
			log.Warn("load login token failed", zap.Error(err))
		}
		if user != nil {
			c.Set(userContextKey, user)
		}
		c.Next()
	}
}

// RequireLogin 未登录返回 401。
func RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "请先登录"})
			return
		}
		c.Next()
	}
}

// RequireAdmin 管理接口的简单令牌校验。
func RequireAdmin(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" || c.GetHeader("X-Admin-Token") != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "admin token 无效"})
			return
		}
		c.Next()
	}
}

// CurrentUser 当前登录用户，未登录返回 nil。
func CurrentUser(c *gin.Context) *model.UserDTO {
	v, ok := c.Get(userContextKey)
	if !ok {
		return nil
	}
	user, _ := v.(*model.UserDTO)
	return user
}
