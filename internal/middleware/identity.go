// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/jobmapper/internal/model"
)

// DefaultUserIDHeader はユーザーIDを受け取るデフォルトのヘッダー名。
const DefaultUserIDHeader = "X-User-ID"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// UserAllowFunc はユーザーIDがアクセスを許可されているかを判定する。
type UserAllowFunc func(userID string) bool

// NewIdentityMiddleware は前段の認証プロキシが付与したヘッダーからユーザーIDを読み取り、
// リクエストコンテキストに注入するミドルウェアを返す。
// ヘッダーが空の場合は401、allowが拒否した場合は403を返す。allowがnilの場合は全員を許可する。
func NewIdentityMiddleware(header string, allow UserAllowFunc, logger *slog.Logger) func(next http.Handler) http.Handler {
	if header == "" {
		header = DefaultUserIDHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(header))
			if userID == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if allow != nil && !allow(userID) {
				logger.Warn("許可されていないユーザーからのアクセスを拒否しました",
					slog.String("user_id", userID),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// IdentityミドルウェアまたはAdminミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
