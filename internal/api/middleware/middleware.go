package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupMiddleware は共通ミドルウェアを設定する
// corsOrigin はカンマ区切りで、"*" または空の場合はすべて許可する
func SetupMiddleware(e *echo.Echo, corsOrigin string) {
	// リクエストID
	e.Use(RequestIDMiddleware())

	// 構造化リクエストログ（zap）
	e.Use(RequestLogger())

	// パニックリカバリー
	e.Use(middleware.Recover())

	// CORS
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowOrigins(corsOrigin),
		AllowMethods: []string{echo.GET, echo.HEAD, echo.POST, echo.OPTIONS},
	}))
}

func allowOrigins(corsOrigin string) []string {
	var origins []string
	for _, o := range strings.Split(corsOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
