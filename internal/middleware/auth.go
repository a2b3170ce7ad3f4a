package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"

	"github.com/Matthew0wolf/Apront/internal/domain"
)

// actorContextKey 是认证后的操作者在 Gin 上下文中的键
const actorContextKey = "actor"

// ErrMissingAuthHeader 表示请求没有携带任何认证凭据
var ErrMissingAuthHeader = errors.New("missing Authorization header")

// Auth 返回一个 Gin 中间件，验证 JWT 并把操作者身份放入上下文。
// token 里必须带 user_id 和 company_id；role / can_operate / can_present
// 缺省时按最低权限处理。
// jwtSecret: 用于验证签名的密钥，必须提供。
func Auth(jwtSecret string) gin.HandlerFunc {
	if jwtSecret == "" {
		panic("JWT secret cannot be empty for Auth middleware")
	}

	return func(c *gin.Context) {
		// 1. 从请求头（或 WebSocket 握手的 query 参数）提取 Token
		tokenStr, err := extractToken(c)
		if err != nil {
			if errors.Is(err, ErrMissingAuthHeader) {
				logrus.Warn("Auth middleware: Missing Authorization header")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			} else {
				logrus.WithError(err).Warn("Auth middleware: Error extracting token")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			}
			c.Abort()
			return
		}

		// 2. 验证 Token
		claims, err := validateToken(tokenStr, jwtSecret)
		if err != nil {
			logCtx := logrus.WithError(err)
			logCtx.Warn("Auth middleware: Invalid token")

			var validationError *jwt.ValidationError
			if errors.As(err, &validationError) {
				if validationError.Errors&jwt.ValidationErrorExpired != 0 {
					logCtx.Warn("Reason: Token is expired")
				}
				if validationError.Errors&jwt.ValidationErrorSignatureInvalid != 0 {
					logCtx.Warn("Reason: Token signature is invalid")
				}
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		// 3. 从 Claims 装配操作者身份
		actor, err := actorFromClaims(claims)
		if err != nil {
			logrus.WithError(err).Error("Auth middleware: Malformed identity claims")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token processing error"})
			c.Abort()
			return
		}

		c.Set(actorContextKey, actor)
		logrus.WithFields(logrus.Fields{
			"user_id":    actor.ID,
			"company_id": actor.CompanyID,
			"role":       actor.Role,
		}).Debug("Auth middleware: User authenticated via JWT")

		c.Next()
	}
}

// ActorFromContext 取出认证中间件写入的操作者身份。
// 第二个返回值为 false 表示中间件没有运行（路由配置错误）。
func ActorFromContext(c *gin.Context) (domain.Actor, bool) {
	value, exists := c.Get(actorContextKey)
	if !exists {
		return domain.Actor{}, false
	}
	actor, ok := value.(domain.Actor)
	return actor, ok
}

// extractToken 提取 Bearer Token。WebSocket 握手无法自定义请求头，
// 允许从 ?token= 参数读取。
func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if queryToken := c.Query("token"); queryToken != "" {
			return queryToken, nil
		}
		return "", ErrMissingAuthHeader
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", jwt.ErrTokenMalformed
	}
	return parts[1], nil
}

// validateToken 解析并验证 JWT token 字符串
func validateToken(tokenStr string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token or claims type")
}

// actorFromClaims 把 JWT Claims 转换为领域层的操作者身份
func actorFromClaims(claims jwt.MapClaims) (domain.Actor, error) {
	userID, err := uintClaim(claims, "user_id")
	if err != nil {
		return domain.Actor{}, err
	}
	companyID, err := uintClaim(claims, "company_id")
	if err != nil {
		return domain.Actor{}, err
	}

	actor := domain.Actor{ID: userID, CompanyID: companyID}
	if role, ok := claims["role"].(string); ok {
		actor.Role = role
	}
	if canOperate, ok := claims["can_operate"].(bool); ok {
		actor.CanOperate = canOperate
	}
	if canPresent, ok := claims["can_present"].(bool); ok {
		actor.CanPresent = canPresent
	}
	return actor, nil
}

// uintClaim 提取一个必须为正整数的 claim。
// JWT 数字默认解析为 float64，需要安全转换。
func uintClaim(claims jwt.MapClaims, name string) (uint, error) {
	value, ok := claims[name]
	if !ok {
		return 0, fmt.Errorf("'%s' claim missing in token", name)
	}
	number, ok := value.(float64)
	if !ok || number <= 0 || number != float64(uint(number)) {
		return 0, fmt.Errorf("'%s' claim is not a valid positive integer: %v", name, value)
	}
	return uint(number), nil
}
