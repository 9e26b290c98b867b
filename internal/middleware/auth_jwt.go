package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"

	"marketplace/internal/config"
)

const (
	CtxUserIDKey   = "user_id"   // string（JWTのsub）
	CtxUserRoleKey = "user_role" // string（admin / vendor / customer）
)

var knownRoles = map[string]bool{"admin": true, "vendor": true, "customer": true}

// bearerAuth用のJWT検証ミドルウェア。
// トークンの発行は外部の認証サービス
func AuthJWT(cfg config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			//Authorizationヘッダを取得
			authz := c.Request().Header.Get("Authorization")
			if authz == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized", "unauthorized"))
			}

			//Bearer形式か確認してtokenを抜く
			parts := strings.SplitN(authz, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized", "unauthorized"))
			}
			rawToken := strings.TrimSpace(parts[1])
			if rawToken == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized", "unauthorized"))
			}

			//JWTをパースして検証する
			token, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
				if t.Method != jwt.SigningMethodHS256 {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(cfg.JWTSecret), nil
			})
			if err != nil || token == nil || !token.Valid {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized", "unauthorized"))
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized", "unauthorized"))
			}

			//subはそのまま文字列のIDとして使う
			userID, ok := claims["sub"].(string)
			userID = strings.TrimSpace(userID)
			if !ok || userID == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized", "unauthorized"))
			}

			//roleを取り出す（大文字でも受ける）
			rawRole, _ := claims["role"].(string)
			role := strings.ToLower(strings.TrimSpace(rawRole))
			if !knownRoles[role] {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized", "unauthorized"))
			}

			//contextへ保存
			c.Set(CtxUserIDKey, userID)
			c.Set(CtxUserRoleKey, role)

			return next(c)
		}
	}
}

// handlerと同じ形のエラーボディ
type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func errorJSON(kind, msg string) errorResponse {
	return errorResponse{Kind: kind, Message: msg}
}
