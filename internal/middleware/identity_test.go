package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/jobmapper/internal/model"
)

func TestIdentityMiddleware_InjectsUserID(t *testing.T) {
	var buf bytes.Buffer
	mw := NewIdentityMiddleware("X-User-ID", nil, newTestLogger(&buf))

	var captured string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/markers", nil)
	req.Header.Set("X-User-ID", "  user-1  ")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if captured != "user-1" {
		t.Errorf("userID = %q, want %q", captured, "user-1")
	}
}

func TestIdentityMiddleware_MissingHeaderReturns401(t *testing.T) {
	var buf bytes.Buffer
	called := false
	handler := NewIdentityMiddleware("", nil, newTestLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/markers", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if called {
		t.Error("ヘッダーなしで後続のハンドラーが呼ばれました")
	}
	if body := decodeErrorBody(t, w); body.Code != model.ErrCodeUnauthorized {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthorized)
	}
}

func TestIdentityMiddleware_CustomHeader(t *testing.T) {
	var buf bytes.Buffer
	handler := NewIdentityMiddleware("X-Forwarded-User", nil, newTestLogger(&buf))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/markers", nil)
	req.Header.Set("X-User-ID", "user-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("デフォルトヘッダーのみの場合 status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/markers", nil)
	req.Header.Set("X-Forwarded-User", "user-1")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("設定ヘッダーの場合 status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestIdentityMiddleware_RejectsUserNotAllowed(t *testing.T) {
	var buf bytes.Buffer
	allow := func(userID string) bool { return userID == "alice" }
	handler := NewIdentityMiddleware("X-User-ID", allow, newTestLogger(&buf))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/markers", nil)
	req.Header.Set("X-User-ID", "mallory")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if body := decodeErrorBody(t, w); body.Code != model.ErrCodeForbidden {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeForbidden)
	}
	if !strings.Contains(buf.String(), "mallory") {
		t.Errorf("拒否ログにユーザーIDが含まれていません: %s", buf.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/markers", nil)
	req.Header.Set("X-User-ID", "alice")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("許可ユーザーの status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestUserIDFromContext(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("ユーザーIDなしのコンテキストでエラーが返されませんでした")
	}
	if _, err := UserIDFromContext(ContextWithUserID(context.Background(), "")); err == nil {
		t.Error("空のユーザーIDでエラーが返されませんでした")
	}

	got, err := UserIDFromContext(ContextWithUserID(context.Background(), "user-9"))
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if got != "user-9" {
		t.Errorf("userID = %q, want %q", got, "user-9")
	}
}
