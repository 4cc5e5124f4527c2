package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
)

const testAdminToken = "admin-token-0123456789"

func TestAdminAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"正しいトークン", "Bearer " + testAdminToken, http.StatusOK},
		{"ヘッダーなし", "", http.StatusUnauthorized},
		{"Bearer以外のスキーム", "Basic " + testAdminToken, http.StatusUnauthorized},
		{"誤ったトークン", "Bearer wrong-token", http.StatusUnauthorized},
		{"前方一致のみ", "Bearer " + testAdminToken[:10], http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			var captured string
			handler := NewAdminAuthMiddleware(testAdminToken, newTestLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured, _ = UserIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/admin/sync", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && captured != AdminUserID {
				t.Errorf("userID = %q, want %q", captured, AdminUserID)
			}
		})
	}
}

func TestAdminAuthMiddleware_EmptyTokenRejectsAll(t *testing.T) {
	var buf bytes.Buffer
	handler := NewAdminAuthMiddleware("", newTestLogger(&buf))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/admin/sync/log", nil)
	req.Header.Set("Authorization", "Bearer ")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}
