package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/jobmapper/internal/model"
)

// AdminUserID は管理APIのリクエストに割り当てるユーザーID。
// ログとレート制限のキーに使用する。
const AdminUserID = "admin"

const bearerPrefix = "Bearer "

// NewAdminAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// トークンは定数時間で比較する。tokenが空の場合は全ての管理リクエストを拒否する。
func NewAdminAuthMiddleware(token string, logger *slog.Logger) func(next http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, bearerPrefix) || len(expected) == 0 {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			given := []byte(strings.TrimSpace(strings.TrimPrefix(auth, bearerPrefix)))
			if subtle.ConstantTimeCompare(given, expected) != 1 {
				logger.Warn("管理トークンの検証に失敗しました",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), AdminUserID)))
		})
	}
}
